package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/services"
)

const maxAssistantBodySize = 8 * 1024

// AssistantHandlers exposes the business assistant endpoint.
type AssistantHandlers struct {
	authn     *auth.Authenticator
	assistant services.AssistantService
}

// NewAssistantHandlers constructs a new AssistantHandlers instance.
func NewAssistantHandlers(authn *auth.Authenticator, assistant services.AssistantService) *AssistantHandlers {
	return &AssistantHandlers{
		authn:     authn,
		assistant: assistant,
	}
}

// Routes registers the assistant endpoint at the API root.
func (h *AssistantHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.With(h.authn.RequireFirebaseAuth()).Post("/assistant:ask", h.ask)
		return
	}
	r.Post("/assistant:ask", h.ask)
}

func (h *AssistantHandlers) ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxAssistantBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req assistantAskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	unit, err := parseUnitParam(req.Unit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	answer, err := h.assistant.Ask(ctx, services.AssistantQuestion{
		Question: req.Question,
		Unit:     unit,
	})
	if err != nil {
		writeAssistantError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, assistantAskResponse{
		Answer:   answer.Answer,
		Question: answer.Question,
		AskedAt:  formatTime(answer.AskedAt),
	})
}

type assistantAskRequest struct {
	Question string `json:"question"`
	Unit     string `json:"unit"`
}

type assistantAskResponse struct {
	Answer   string `json:"answer"`
	Question string `json:"question"`
	AskedAt  string `json:"asked_at"`
}

func writeAssistantError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAssistantInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAssistantRejected):
		httpx.WriteError(ctx, w, httpx.NewError("question_rejected", "the assistant declined to answer this question", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrAssistantUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("assistant_unavailable", "assistant temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("assistant_error", "failed to process assistant request", http.StatusInternalServerError))
	}
}
