package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// WebhookHandlers receives callbacks from the fiscal authority bridge.
// Signature verification happens in middleware; by the time a request
// reaches these handlers it is authenticated.
type WebhookHandlers struct {
	invoices services.InvoiceService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(invoices services.InvoiceService) *WebhookHandlers {
	return &WebhookHandlers{invoices: invoices}
}

// Routes registers the webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/fiscal", h.fiscalCallback)
}

type fiscalWebhookRequest struct {
	AccessKey  string `json:"access_key"`
	SaleID     string `json:"sale_id"`
	Status     string `json:"status"`
	Detail     string `json:"detail"`
	ResolvedAt string `json:"resolved_at"`
}

type fiscalWebhookResponse struct {
	Invoice invoicePayload `json:"invoice"`
}

func (h *WebhookHandlers) fiscalCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req fiscalWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	var resolvedAt time.Time
	if raw := strings.TrimSpace(req.ResolvedAt); raw != "" {
		resolvedAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "resolved_at must be RFC3339", http.StatusBadRequest))
			return
		}
	}

	invoice, err := h.invoices.HandleWebhook(ctx, services.InvoiceWebhookCommand{
		AccessKey:  strings.TrimSpace(req.AccessKey),
		SaleID:     strings.TrimSpace(req.SaleID),
		Status:     strings.ToLower(strings.TrimSpace(req.Status)),
		Detail:     strings.TrimSpace(req.Detail),
		ResolvedAt: resolvedAt,
	})
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fiscalWebhookResponse{Invoice: buildInvoicePayload(invoice)})
}
