package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/platform/observability"
	"github.com/gelomax/api/internal/repositories"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

const maxInvoiceBodySize = 8 * 1024

// SaleHandlers exposes the sales ledger and fiscal emission endpoints.
type SaleHandlers struct {
	authn       *auth.Authenticator
	sales       services.SalesService
	invoices    services.InvoiceService
	idempotency func(http.Handler) http.Handler
	links       InvoiceDocumentLinker
}

// InvoiceDocumentLinker resolves an archived document path to a time-limited
// download URL.
type InvoiceDocumentLinker func(ctx context.Context, xmlPath string) (string, error)

// SaleHandlerOption customises SaleHandlers construction.
type SaleHandlerOption func(*SaleHandlers)

// WithInvoiceIdempotency applies the middleware to the emission request endpoint.
func WithInvoiceIdempotency(mw func(http.Handler) http.Handler) SaleHandlerOption {
	return func(h *SaleHandlers) {
		h.idempotency = mw
	}
}

// WithInvoiceDocumentLinks enables signed download URLs on invoice lookups.
func WithInvoiceDocumentLinks(linker InvoiceDocumentLinker) SaleHandlerOption {
	return func(h *SaleHandlers) {
		h.links = linker
	}
}

// NewSaleHandlers constructs a new SaleHandlers instance.
func NewSaleHandlers(authn *auth.Authenticator, sales services.SalesService, invoices services.InvoiceService, opts ...SaleHandlerOption) *SaleHandlers {
	h := &SaleHandlers{
		authn:    authn,
		sales:    sales,
		invoices: invoices,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /sales endpoints.
func (h *SaleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listSales)
	r.Get("/summary", h.summarize)
	r.Get("/{saleID}", h.getSale)
	r.Get("/{saleID}/invoice", h.getInvoice)
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/{saleID}/invoice", h.requestInvoice)
		return
	}
	r.Post("/{saleID}/invoice", h.requestInvoice)
}

func (h *SaleHandlers) listSales(w http.ResponseWriter, r *http.Request) {
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

	query := services.SaleListQuery{
		Unit:      unit,
		Method:    domain.PaymentMethod(strings.ToLower(values.Get("method"))),
		PageSize:  pageSize,
		PageToken: values.Get("pageToken"),
	}
	if from, err := parseTimeParam(values.Get("from")); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	} else if !from.IsZero() {
		query.From = &from
	}
	if to, err := parseTimeParam(values.Get("to")); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	} else if !to.IsZero() {
		query.To = &to
	}

	page, err := h.sales.ListSales(ctx, query)
	if err != nil {
		writeSalesError(ctx, w, err)
		return
	}

	payload := saleListResponse{
		Sales:         make([]salePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, sale := range page.Items {
		payload.Sales = append(payload.Sales, buildSalePayload(sale))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *SaleHandlers) getSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sale, err := h.sales.GetSale(ctx, chi.URLParam(r, "saleID"))
	if err != nil {
		writeSalesError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, saleResponse{Sale: buildSalePayload(sale)})
}

func (h *SaleHandlers) summarize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()

	unit, err := parseUnitParam(values.Get("unit"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	from, err := parseTimeParam(values.Get("from"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	to, err := parseTimeParam(values.Get("to"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	summary, err := h.sales.Summarize(ctx, services.SalesSummaryQuery{
		Unit: unit,
		From: from,
		To:   to,
	})
	if err != nil {
		writeSalesError(ctx, w, err)
		return
	}

	payload := salesSummaryResponse{
		Unit:       string(summary.Unit),
		From:       formatTime(summary.From),
		To:         formatTime(summary.To),
		SaleCount:  summary.SaleCount,
		TotalCents: summary.TotalCents,
		ByMethod:   make(map[string]int64, len(summary.ByMethod)),
		TopItems:   make([]summaryItemPayload, 0, len(summary.TopItems)),
	}
	for method, total := range summary.ByMethod {
		payload.ByMethod[string(method)] = total
	}
	for _, item := range summary.TopItems {
		payload.TopItems = append(payload.TopItems, summaryItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			TotalCents:  item.TotalCents,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *SaleHandlers) requestInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req invoiceEmissionRequest
	if body, err := readLimitedBody(r, maxInvoiceBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(w, r, err)
		return
	}

	invoice, err := h.invoices.RequestEmission(ctx, services.InvoiceEmissionCommand{
		SaleID:         chi.URLParam(r, "saleID"),
		Document:       req.Document,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *SaleHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invoice, err := h.invoices.GetInvoiceForSale(ctx, chi.URLParam(r, "saleID"))
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	payload := buildInvoicePayload(invoice)
	if h.links != nil && invoice.XMLPath != "" {
		url, err := h.links(ctx, invoice.XMLPath)
		if err != nil {
			observability.FromContext(ctx).Warn("failed to sign invoice document url",
				zap.String("invoice_id", invoice.ID), zap.Error(err))
		} else {
			payload.XMLURL = url
		}
	}
	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: payload})
}

type saleResponse struct {
	Sale salePayload `json:"sale"`
}

type saleListResponse struct {
	Sales         []salePayload `json:"sales"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type salePayload struct {
	ID                string            `json:"id"`
	Unit              string            `json:"unit"`
	CustomerID        string            `json:"customer_id,omitempty"`
	CustomerLabel     string            `json:"customer_label"`
	Lines             []saleLinePayload `json:"lines"`
	TotalCents        int64             `json:"total_cents"`
	Method            string            `json:"method"`
	CashReceivedCents int64             `json:"cash_received_cents,omitempty"`
	ChangeCents       int64             `json:"change_cents,omitempty"`
	Authorization     string            `json:"authorization,omitempty"`
	InvoiceEligible   bool              `json:"invoice_eligible"`
	InvoiceStatus     string            `json:"invoice_status"`
	OperatorID        string            `json:"operator_id,omitempty"`
	CreatedAt         string            `json:"created_at"`
}

type saleLinePayload struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Negotiated     bool   `json:"negotiated"`
	TotalCents     int64  `json:"total_cents"`
}

type salesSummaryResponse struct {
	Unit       string               `json:"unit"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	SaleCount  int                  `json:"sale_count"`
	TotalCents int64                `json:"total_cents"`
	ByMethod   map[string]int64     `json:"by_method"`
	TopItems   []summaryItemPayload `json:"top_items"`
}

type summaryItemPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	TotalCents  int64  `json:"total_cents"`
}

type invoiceEmissionRequest struct {
	Document string `json:"document"`
}

type invoiceResponse struct {
	Invoice invoicePayload `json:"invoice"`
}

type invoicePayload struct {
	ID          string `json:"id"`
	SaleID      string `json:"sale_id"`
	Document    string `json:"document,omitempty"`
	AccessKey   string `json:"access_key,omitempty"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	XMLPath     string `json:"xml_path,omitempty"`
	XMLURL      string `json:"xml_url,omitempty"`
	RequestedAt string `json:"requested_at"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
}

func buildSalePayload(sale domain.Sale) salePayload {
	lines := make([]saleLinePayload, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		lines = append(lines, saleLinePayload{
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPrice,
			Negotiated:     line.Negotiated,
			TotalCents:     line.Total,
		})
	}
	return salePayload{
		ID:                sale.ID,
		Unit:              string(sale.Unit),
		CustomerID:        sale.CustomerID,
		CustomerLabel:     sale.CustomerLabel,
		Lines:             lines,
		TotalCents:        sale.Total,
		Method:            string(sale.Method),
		CashReceivedCents: sale.CashReceived,
		ChangeCents:       sale.Change,
		Authorization:     sale.Authorization,
		InvoiceEligible:   sale.InvoiceEligible,
		InvoiceStatus:     string(sale.InvoiceStatus),
		OperatorID:        sale.OperatorID,
		CreatedAt:         formatTime(sale.CreatedAt),
	}
}

func buildInvoicePayload(invoice domain.Invoice) invoicePayload {
	return invoicePayload{
		ID:          invoice.ID,
		SaleID:      invoice.SaleID,
		Document:    invoice.Document,
		AccessKey:   invoice.AccessKey,
		Status:      string(invoice.Status),
		Detail:      invoice.Detail,
		XMLPath:     invoice.XMLPath,
		RequestedAt: formatTime(invoice.RequestedAt),
		ResolvedAt:  formatTime(pointerTime(invoice.ResolvedAt)),
	}
}

func writeSalesError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrSalesInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSalesNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sale_not_found", "sale not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSalesDuplicate):
		httpx.WriteError(ctx, w, httpx.NewError("sale_duplicate", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSalesInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrSalesProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrSalesUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sales ledger temporarily unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sales repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("sales_error", "failed to process sales request", http.StatusInternalServerError))
	}
}

func writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceSaleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sale_not_found", "sale not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_found", "invoice not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_eligible", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInvoiceAlreadyAuthorized):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_already_authorized", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvoiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("invoices_unavailable", "invoice emission temporarily unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("invoices_unavailable", "invoice repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invoices_error", "failed to process invoice request", http.StatusInternalServerError))
	}
}
