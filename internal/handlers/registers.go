package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/pos"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

const (
	maxRegisterBodySize = 8 * 1024
	snapshotPageSize    = 100
	snapshotMaxPages    = 20
)

// RegisterHandlers drives point-of-sale sessions over HTTP. One session per
// operator; the register itself serializes mutations, the handler only maps
// requests and errors.
type RegisterHandlers struct {
	authn     *auth.Authenticator
	catalog   services.CatalogService
	customers services.CustomerService
	settler   pos.Settler
	recorder  pos.Recorder

	mu       sync.Mutex
	sessions map[string]*pos.Register
}

// NewRegisterHandlers constructs a new RegisterHandlers instance.
func NewRegisterHandlers(authn *auth.Authenticator, catalog services.CatalogService, customers services.CustomerService, settler pos.Settler, recorder pos.Recorder) *RegisterHandlers {
	return &RegisterHandlers{
		authn:     authn,
		catalog:   catalog,
		customers: customers,
		settler:   settler,
		recorder:  recorder,
		sessions:  make(map[string]*pos.Register),
	}
}

// Routes registers the /registers endpoints.
func (h *RegisterHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/session", h.openSession)
	r.Get("/session", h.sessionState)
	r.Delete("/session", h.closeSession)
	r.Post("/session:switch-unit", h.switchUnit)
	r.Post("/session:refresh", h.refreshSession)
	r.Get("/session/catalog", h.filterCatalog)
	r.Get("/session/customers", h.searchCustomers)
	r.Post("/session/cart/items", h.addItem)
	r.Post("/session/cart/items:adjust", h.adjustItem)
	r.Post("/session/cart/items:remove", h.removeItem)
	r.Post("/session/negotiation:confirm", h.confirmNegotiation)
	r.Post("/session/negotiation:cancel", h.cancelNegotiation)
	r.Post("/session/customer", h.attachCustomer)
	r.Delete("/session/customer", h.detachCustomer)
	r.Post("/session/checkout", h.beginCheckout)
	r.Post("/session/checkout:select", h.selectPayment)
	r.Post("/session/checkout:confirm", h.confirmCheckout)
	r.Post("/session/checkout:abort", h.abortCheckout)
	r.Post("/session/checkout:finish", h.finishCheckout)
	r.Get("/session/receipt", h.receipt)
}

func (h *RegisterHandlers) openSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID, ok := operatorFromContext(ctx, w)
	if !ok {
		return
	}

	var req openSessionRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}
	unit, err := parseUnitParam(req.Unit)
	if err != nil || unit == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a valid business unit is required", http.StatusBadRequest))
		return
	}

	h.mu.Lock()
	_, exists := h.sessions[operatorID]
	h.mu.Unlock()
	if exists {
		httpx.WriteError(ctx, w, httpx.NewError("session_exists", "operator already has an open register session", http.StatusConflict))
		return
	}

	products, customers, err := h.loadSnapshots(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("register_unavailable", "failed to load register data", http.StatusServiceUnavailable))
		return
	}

	register, err := pos.NewRegister(pos.RegisterDeps{
		Unit:       unit,
		Products:   products,
		Customers:  customers,
		Settler:    h.settler,
		Recorder:   h.recorder,
		OperatorID: operatorID,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	h.mu.Lock()
	h.sessions[operatorID] = register
	h.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) sessionState(w http.ResponseWriter, r *http.Request) {
	register, ok := h.session(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) closeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operatorID, ok := operatorFromContext(ctx, w)
	if !ok {
		return
	}

	h.mu.Lock()
	_, exists := h.sessions[operatorID]
	delete(h.sessions, operatorID)
	h.mu.Unlock()

	if !exists {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "no open register session", http.StatusNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegisterHandlers) switchUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req openSessionRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}
	unit, err := parseUnitParam(req.Unit)
	if err != nil || unit == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "a valid business unit is required", http.StatusBadRequest))
		return
	}

	if err := register.SwitchUnit(unit); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) refreshSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	products, customers, err := h.loadSnapshots(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("register_unavailable", "failed to refresh register data", http.StatusServiceUnavailable))
		return
	}
	register.RefreshCatalog(products)
	register.RefreshCustomers(customers)
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) filterCatalog(w http.ResponseWriter, r *http.Request) {
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	products := register.FilterCatalog(r.URL.Query().Get("q"))
	payload := registerCatalogResponse{
		Unit:     string(register.Unit()),
		Products: make([]registerProductPayload, 0, len(products)),
	}
	unit := register.Unit()
	for _, product := range products {
		payload.Products = append(payload.Products, buildRegisterProductPayload(product, unit))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *RegisterHandlers) searchCustomers(w http.ResponseWriter, r *http.Request) {
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	customers := register.SearchCustomers(r.URL.Query().Get("q"))
	payload := registerCustomersResponse{
		Customers: make([]customerPayload, 0, len(customers)),
	}
	for _, customer := range customers {
		payload.Customers = append(payload.Customers, buildCustomerPayload(customer))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *RegisterHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req cartItemRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}

	negotiation, err := register.AddItem(req.ProductID, req.Quantity)
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	if negotiation != nil {
		httpx.WriteJSON(w, http.StatusOK, negotiationResponse{
			Negotiation: buildNegotiationPayload(negotiation, register.Unit()),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) adjustItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req cartItemRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}

	if err := register.AdjustLine(req.ProductID, req.Delta, req.NegotiatedPriceCents); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req cartItemRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}

	if err := register.RemoveLine(req.ProductID, req.NegotiatedPriceCents); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) confirmNegotiation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req negotiationConfirmRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}

	if err := register.ConfirmNegotiation(req.Quantity, req.UnitPriceCents); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) cancelNegotiation(w http.ResponseWriter, r *http.Request) {
	register, ok := h.session(w, r)
	if !ok {
		return
	}
	register.CancelNegotiation()
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) attachCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req attachCustomerRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}

	if err := register.AttachCustomer(req.CustomerID); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) detachCustomer(w http.ResponseWriter, r *http.Request) {
	register, ok := h.session(w, r)
	if !ok {
		return
	}
	register.DetachCustomer()
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	if _, err := register.BeginCheckout(); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) selectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	var req selectPaymentRequest
	if !decodeRegisterBody(w, r, &req) {
		return
	}

	session, err := register.Checkout()
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	if err := session.SelectMethod(domain.PaymentMethod(strings.ToLower(req.Method))); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	if req.CashReceivedCents != nil {
		if err := session.SetCashReceived(*req.CashReceivedCents); err != nil {
			writePOSError(ctx, w, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) confirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	session, err := register.Checkout()
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	sale, err := session.Confirm(ctx)
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saleResponse{Sale: buildSalePayload(sale)})
}

func (h *RegisterHandlers) abortCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	session, err := register.Checkout()
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	if err := session.Abort(); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) finishCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	session, err := register.Checkout()
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	if err := session.Finish(); err != nil {
		writePOSError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.buildSessionPayload(register))
}

func (h *RegisterHandlers) receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	register, ok := h.session(w, r)
	if !ok {
		return
	}

	session, err := register.Checkout()
	if err != nil {
		writePOSError(ctx, w, err)
		return
	}
	sale, ok := session.Receipt()
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("receipt_not_ready", "no finalized sale to print", http.StatusConflict))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saleResponse{Sale: buildSalePayload(sale)})
}

func (h *RegisterHandlers) session(w http.ResponseWriter, r *http.Request) (*pos.Register, bool) {
	ctx := r.Context()
	operatorID, ok := operatorFromContext(ctx, w)
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	register, exists := h.sessions[operatorID]
	h.mu.Unlock()
	if !exists {
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "no open register session", http.StatusNotFound))
		return nil, false
	}
	return register, true
}

// loadSnapshots fetches the active catalog and the customer book the register
// works from. Both are paged to a bounded number of rounds; a POS snapshot
// never needs the full history of a large dataset.
func (h *RegisterHandlers) loadSnapshots(ctx context.Context) ([]domain.Product, []domain.Customer, error) {
	products := make([]domain.Product, 0, snapshotPageSize)
	token := ""
	for range snapshotMaxPages {
		page, err := h.catalog.ListProducts(ctx, services.ProductListQuery{
			ActiveOnly: true,
			PageSize:   snapshotPageSize,
			PageToken:  token,
		})
		if err != nil {
			return nil, nil, err
		}
		products = append(products, page.Items...)
		token = page.NextPageToken
		if token == "" {
			break
		}
	}

	customers := make([]domain.Customer, 0, snapshotPageSize)
	token = ""
	for range snapshotMaxPages {
		page, err := h.customers.ListCustomers(ctx, services.CustomerListQuery{
			PageSize:  snapshotPageSize,
			PageToken: token,
		})
		if err != nil {
			return nil, nil, err
		}
		customers = append(customers, page.Items...)
		token = page.NextPageToken
		if token == "" {
			break
		}
	}

	return products, customers, nil
}

func (h *RegisterHandlers) buildSessionPayload(register *pos.Register) registerSessionResponse {
	unit := register.Unit()
	lines := register.Lines()
	payload := registerSessionResponse{
		Unit:       string(unit),
		TotalCents: register.Total(),
		Lines:      make([]cartLinePayload, 0, len(lines)),
	}
	for _, line := range lines {
		linePayload := cartLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
		}
		if line.Negotiated != nil {
			price := *line.Negotiated
			linePayload.NegotiatedPriceCents = &price
		}
		payload.Lines = append(payload.Lines, linePayload)
	}

	if customer, ok := register.Customer(); ok {
		attached := buildCustomerPayload(customer)
		payload.Customer = &attached
	}
	if negotiation := register.Negotiation(); negotiation != nil {
		pending := buildNegotiationPayload(negotiation, unit)
		payload.Negotiation = &pending
	}
	if session, err := register.Checkout(); err == nil {
		payload.Checkout = &checkoutPayload{
			Stage:       string(session.Stage()),
			Method:      string(session.Method()),
			ChangeCents: session.Change(),
			CanConfirm:  session.CanConfirm(),
		}
	}
	return payload
}

func decodeRegisterBody(w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxRegisterBodySize)
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

func operatorFromContext(ctx context.Context, w http.ResponseWriter) (string, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return strings.TrimSpace(identity.UID), true
}

type openSessionRequest struct {
	Unit string `json:"unit"`
}

type cartItemRequest struct {
	ProductID            string `json:"product_id"`
	Quantity             int    `json:"quantity"`
	Delta                int    `json:"delta"`
	NegotiatedPriceCents *int64 `json:"negotiated_price_cents"`
}

type negotiationConfirmRequest struct {
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

type attachCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

type selectPaymentRequest struct {
	Method            string `json:"method"`
	CashReceivedCents *int64 `json:"cash_received_cents"`
}

type registerSessionResponse struct {
	Unit        string              `json:"unit"`
	Lines       []cartLinePayload   `json:"lines"`
	TotalCents  int64               `json:"total_cents"`
	Customer    *customerPayload    `json:"customer,omitempty"`
	Negotiation *negotiationPayload `json:"negotiation,omitempty"`
	Checkout    *checkoutPayload    `json:"checkout,omitempty"`
}

type cartLinePayload struct {
	ProductID            string `json:"product_id"`
	ProductName          string `json:"product_name"`
	Quantity             int    `json:"quantity"`
	NegotiatedPriceCents *int64 `json:"negotiated_price_cents,omitempty"`
}

type negotiationResponse struct {
	Negotiation negotiationPayload `json:"negotiation"`
}

type negotiationPayload struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	ListPriceCents int64  `json:"list_price_cents"`
	Quantity       int    `json:"quantity,omitempty"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
}

type checkoutPayload struct {
	Stage       string `json:"stage"`
	Method      string `json:"method,omitempty"`
	ChangeCents int64  `json:"change_cents"`
	CanConfirm  bool   `json:"can_confirm"`
}

type registerCatalogResponse struct {
	Unit     string                   `json:"unit"`
	Products []registerProductPayload `json:"products"`
}

type registerProductPayload struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	PriceCents          int64  `json:"price_cents"`
	Stock               int    `json:"stock"`
	RequiresNegotiation bool   `json:"requires_negotiation"`
}

type registerCustomersResponse struct {
	Customers []customerPayload `json:"customers"`
}

func buildRegisterProductPayload(product domain.Product, unit domain.BusinessUnit) registerProductPayload {
	return registerProductPayload{
		ID:                  product.ID,
		Name:                product.Name,
		Category:            product.Category,
		PriceCents:          product.PriceFor(unit),
		Stock:               product.StockFor(unit),
		RequiresNegotiation: pos.RequiresNegotiation(product, unit),
	}
}

func buildNegotiationPayload(negotiation *pos.Negotiation, unit domain.BusinessUnit) negotiationPayload {
	product := negotiation.Product()
	return negotiationPayload{
		ProductID:      product.ID,
		ProductName:    product.Name,
		ListPriceCents: product.PriceFor(unit),
		Quantity:       negotiation.Quantity(),
		UnitPriceCents: negotiation.Price(),
	}
}

func writePOSError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, pos.ErrInvalidQuantity), errors.Is(err, pos.ErrInvalidPrice):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, pos.ErrInvalidCashAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cash_amount", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, pos.ErrStockExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("stock_exceeded", err.Error(), http.StatusConflict))
	case errors.Is(err, pos.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found in catalog", http.StatusNotFound))
	case errors.Is(err, pos.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, pos.ErrLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("line_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, pos.ErrNegotiationRequired):
		httpx.WriteError(ctx, w, httpx.NewError("negotiation_required", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, pos.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, pos.ErrNoNegotiation):
		httpx.WriteError(ctx, w, httpx.NewError("no_negotiation", "no negotiation in progress", http.StatusConflict))
	case errors.Is(err, pos.ErrNoCheckout):
		httpx.WriteError(ctx, w, httpx.NewError("no_checkout", "no checkout in progress", http.StatusConflict))
	case errors.Is(err, pos.ErrCheckoutInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_in_progress", "checkout already in progress", http.StatusConflict))
	case errors.Is(err, pos.ErrRegisterBusy):
		httpx.WriteError(ctx, w, httpx.NewError("register_busy", "register is settling a payment", http.StatusConflict))
	case errors.Is(err, pos.ErrInvalidStateTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_stage", err.Error(), http.StatusConflict))
	case errors.Is(err, pos.ErrSettlementFailed):
		httpx.WriteError(ctx, w, httpx.NewError("settlement_failed", "payment settlement failed", http.StatusBadGateway))
	case errors.Is(err, pos.ErrLedgerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("ledger_unavailable", "sales ledger unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("register_error", "failed to process register request", http.StatusInternalServerError))
	}
}
