package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/repositories"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

const maxStockBodySize = 8 * 1024

// StockHandlers exposes manual inventory operations and the movement journal.
type StockHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
}

// NewStockHandlers constructs a new StockHandlers instance.
func NewStockHandlers(authn *auth.Authenticator, inventory services.InventoryService) *StockHandlers {
	return &StockHandlers{
		authn:     authn,
		inventory: inventory,
	}
}

// Routes registers the /stock endpoints.
func (h *StockHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/adjustments", h.adjustStock)
	r.Post("/productions", h.recordProduction)
	r.Post("/transfers", h.transferStock)
	r.Get("/movements", h.listMovements)
}

func (h *StockHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}

	var req stockAdjustRequest
	if !decodeStockBody(w, r, &req) {
		return
	}

	unit, err := parseUnitParam(req.Unit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	mutation, err := h.inventory.AdjustStock(ctx, services.StockAdjustCommand{
		ProductID: req.ProductID,
		Unit:      unit,
		Delta:     req.Delta,
		Note:      req.Note,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, stockMutationResponse{
		Movement: buildMovementPayload(mutation.Movement),
		Stock:    mutation.Stock,
	})
}

func (h *StockHandlers) recordProduction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}

	var req stockProductionRequest
	if !decodeStockBody(w, r, &req) {
		return
	}

	mutation, err := h.inventory.RecordProduction(ctx, services.ProductionCommand{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Note:      req.Note,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, stockMutationResponse{
		Movement: buildMovementPayload(mutation.Movement),
		Stock:    mutation.Stock,
	})
}

func (h *StockHandlers) transferStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}

	var req stockTransferRequest
	if !decodeStockBody(w, r, &req) {
		return
	}

	from, err := parseUnitParam(req.From)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	to, err := parseUnitParam(req.To)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	transfer, err := h.inventory.TransferStock(ctx, services.StockTransferCommand{
		ProductID: req.ProductID,
		From:      from,
		To:        to,
		Quantity:  req.Quantity,
		Note:      req.Note,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, stockTransferResponse{
		Outbound:  buildMovementPayload(transfer.Outbound),
		Inbound:   buildMovementPayload(transfer.Inbound),
		FromStock: transfer.FromStock,
		ToStock:   transfer.ToStock,
	})
}

func (h *StockHandlers) listMovements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()

	unit, err := parseUnitParam(values.Get("unit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	pageSize, err := parsePageSize(values.Get("pageSize"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListMovements(ctx, services.MovementListQuery{
		ProductID: values.Get("productId"),
		Unit:      unit,
		Kind:      domain.StockMovementKind(values.Get("kind")),
		PageSize:  pageSize,
		PageToken: values.Get("pageToken"),
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	payload := movementListResponse{
		Movements:     make([]movementPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, movement := range page.Items {
		payload.Movements = append(payload.Movements, buildMovementPayload(movement))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func decodeStockBody(w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxStockBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

type stockAdjustRequest struct {
	ProductID string `json:"product_id"`
	Unit      string `json:"unit"`
	Delta     int    `json:"delta"`
	Note      string `json:"note"`
}

type stockProductionRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

type stockTransferRequest struct {
	ProductID string `json:"product_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

type stockMutationResponse struct {
	Movement movementPayload `json:"movement"`
	Stock    int             `json:"stock"`
}

type stockTransferResponse struct {
	Outbound  movementPayload `json:"outbound"`
	Inbound   movementPayload `json:"inbound"`
	FromStock int             `json:"from_stock"`
	ToStock   int             `json:"to_stock"`
}

type movementListResponse struct {
	Movements     []movementPayload `json:"movements"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type movementPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Unit      string `json:"unit"`
	Kind      string `json:"kind"`
	Delta     int    `json:"delta"`
	Reference string `json:"reference,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

func buildMovementPayload(movement domain.StockMovement) movementPayload {
	return movementPayload{
		ID:        movement.ID,
		ProductID: movement.ProductID,
		Unit:      string(movement.Unit),
		Kind:      string(movement.Kind),
		Delta:     movement.Delta,
		Reference: movement.Reference,
		Note:      movement.Note,
		CreatedAt: formatTime(movement.CreatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory temporarily unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
