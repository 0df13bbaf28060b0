package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/platform/observability"
	"github.com/gelomax/api/internal/services"

	"go.uber.org/zap"
)

const maxPushBodySize = 256 * 1024

// InternalJobHandlers serves Pub/Sub push deliveries for background work.
// The response status controls redelivery: 2xx acknowledges the message,
// anything else makes Pub/Sub retry it.
type InternalJobHandlers struct {
	invoices services.InvoiceService
}

// NewInternalJobHandlers constructs a new InternalJobHandlers instance.
func NewInternalJobHandlers(invoices services.InvoiceService) *InternalJobHandlers {
	return &InternalJobHandlers{invoices: invoices}
}

// Routes registers the internal job endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/invoice-emission", h.invoiceEmission)
}

// pushEnvelope mirrors the JSON body of a Pub/Sub push subscription delivery.
type pushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (h *InternalJobHandlers) invoiceEmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	body, err := readLimitedBody(r, maxPushBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid push envelope", http.StatusBadRequest))
		return
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		// Malformed payloads never become valid on retry; ack them.
		logger.Warn("invoice emission push with undecodable data",
			zap.String("message_id", envelope.Message.MessageID))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var msg services.InvoiceJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("invoice emission push with invalid job message",
			zap.String("message_id", envelope.Message.MessageID))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	err = h.invoices.ProcessEmission(ctx, msg)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, services.ErrInvoiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("emission_unavailable", "fiscal emission temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrInvoiceInvalidInput), errors.Is(err, services.ErrInvoiceNotFound), errors.Is(err, services.ErrInvoiceSaleNotFound):
		// Poison messages are acked after logging; redelivering them
		// would loop forever.
		logger.Warn("dropping unprocessable invoice emission job",
			zap.String("job_id", msg.JobID),
			zap.String("invoice_id", msg.InvoiceID),
			zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("emission_failed", "failed to process invoice emission", http.StatusInternalServerError))
	}
}
