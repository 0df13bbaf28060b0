package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/pos"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

type settlerStub struct {
	settleFn func(ctx context.Context, req pos.SettlementRequest) (pos.Settlement, error)
}

func (s *settlerStub) Settle(ctx context.Context, req pos.SettlementRequest) (pos.Settlement, error) {
	if s.settleFn == nil {
		return pos.Settlement{Authorization: "auth_test"}, nil
	}
	return s.settleFn(ctx, req)
}

func registerTestCatalog() []domain.Product {
	return []domain.Product{
		{
			ID:             "prod_ice",
			Name:           "Gelo escama 20kg",
			Category:       "gelo",
			WholesalePrice: 1200,
			RetailPrice:    1800,
			MatrizStock:    100,
			FilialStock:    10,
			Active:         true,
		},
		{
			ID:          "prod_beer",
			Name:        "Cerveja lata",
			Category:    "bebidas",
			RetailPrice: 600,
			FilialStock: 48,
			Active:      true,
		},
	}
}

func newRegisterRouter(t *testing.T, recorder pos.Recorder) http.Handler {
	t.Helper()
	catalog := &catalogStub{
		listFn: func(_ context.Context, query services.ProductListQuery) (domain.CursorPage[domain.Product], error) {
			return domain.CursorPage[domain.Product]{Items: registerTestCatalog()}, nil
		},
	}
	customers := &customerStub{
		listFn: func(context.Context, services.CustomerListQuery) (domain.CursorPage[domain.Customer], error) {
			return domain.CursorPage[domain.Customer]{
				Items: []domain.Customer{{ID: "cust_1", Name: "Bar do Zeca"}},
			}, nil
		},
	}
	if recorder == nil {
		recorder = &salesStub{
			recordFn: func(_ context.Context, sale domain.Sale) (domain.Sale, error) {
				return sale, nil
			},
		}
	}
	handler := NewRegisterHandlers(nil, catalog, customers, &settlerStub{}, recorder)
	return NewRouter(WithRegisterRoutes(handler.Routes))
}

func doRegister(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRegisterHandlersOpenSession(t *testing.T) {
	router := newRegisterRouter(t, nil)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp registerSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Unit != "filial" || len(resp.Lines) != 0 || resp.TotalCents != 0 {
		t.Fatalf("unexpected session: %+v", resp)
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate open, got %d", rr.Code)
	}
}

func TestRegisterHandlersStateWithoutSession(t *testing.T) {
	router := newRegisterRouter(t, nil)

	rr := doRegister(t, router, http.MethodGet, "/api/v1/registers/session", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRegisterHandlersRetailCartFlow(t *testing.T) {
	router := newRegisterRouter(t, nil)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("open session: %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items", `{"product_id":"prod_beer","quantity":3}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add item: %d: %s", rr.Code, rr.Body.String())
	}
	var state registerSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Lines) != 1 || state.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected cart: %+v", state.Lines)
	}
	if state.TotalCents != 1800 {
		t.Fatalf("expected total 1800, got %d", state.TotalCents)
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items:adjust", `{"product_id":"prod_beer","delta":-1}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("adjust item: %d: %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Lines[0].Quantity != 2 || state.TotalCents != 1200 {
		t.Fatalf("unexpected cart after adjust: %+v total %d", state.Lines, state.TotalCents)
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items:remove", `{"product_id":"prod_beer"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove item: %d: %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", state.Lines)
	}
}

func TestRegisterHandlersStockExceeded(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items", `{"product_id":"prod_ice","quantity":11}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "stock_exceeded" {
		t.Fatalf("expected stock_exceeded, got %v", resp["error"])
	}
}

func TestRegisterHandlersWholesaleNegotiation(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"matriz"}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items", `{"product_id":"prod_ice","quantity":10}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with negotiation, got %d: %s", rr.Code, rr.Body.String())
	}
	var negotiation negotiationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &negotiation); err != nil {
		t.Fatalf("decode negotiation: %v", err)
	}
	if negotiation.Negotiation.ProductID != "prod_ice" || negotiation.Negotiation.ListPriceCents != 1200 {
		t.Fatalf("unexpected negotiation: %+v", negotiation.Negotiation)
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/negotiation:confirm", `{"quantity":10,"unit_price_cents":1000}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm negotiation: %d: %s", rr.Code, rr.Body.String())
	}
	var state registerSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Lines) != 1 {
		t.Fatalf("expected one line, got %+v", state.Lines)
	}
	if state.Lines[0].NegotiatedPriceCents == nil || *state.Lines[0].NegotiatedPriceCents != 1000 {
		t.Fatalf("expected negotiated price 1000, got %+v", state.Lines[0])
	}
	if state.TotalCents != 10000 {
		t.Fatalf("expected total 10000, got %d", state.TotalCents)
	}
}

func TestRegisterHandlersCustomerAttach(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"matriz"}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session/customer", `{"customer_id":"cust_1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("attach customer: %d: %s", rr.Code, rr.Body.String())
	}
	var state registerSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Customer == nil || state.Customer.Name != "Bar do Zeca" {
		t.Fatalf("unexpected customer: %+v", state.Customer)
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/customer", `{"customer_id":"cust_missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown customer, got %d", rr.Code)
	}

	rr = doRegister(t, router, http.MethodDelete, "/api/v1/registers/session/customer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("detach customer: %d: %s", rr.Code, rr.Body.String())
	}
	state = registerSessionResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Customer != nil {
		t.Fatalf("expected detached customer, got %+v", state.Customer)
	}
}

func TestRegisterHandlersCashCheckoutFlow(t *testing.T) {
	var recorded domain.Sale
	recorder := &salesStub{
		recordFn: func(_ context.Context, sale domain.Sale) (domain.Sale, error) {
			recorded = sale
			return sale, nil
		},
	}
	router := newRegisterRouter(t, recorder)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)
	doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items", `{"product_id":"prod_beer","quantity":2}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("begin checkout: %d: %s", rr.Code, rr.Body.String())
	}
	var state registerSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Checkout == nil || state.Checkout.Stage != "method_select" {
		t.Fatalf("unexpected checkout: %+v", state.Checkout)
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout:select", `{"method":"cash","cash_received_cents":2000}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("select method: %d: %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Checkout == nil || state.Checkout.Method != "cash" || state.Checkout.ChangeCents != 800 {
		t.Fatalf("unexpected checkout: %+v", state.Checkout)
	}
	if !state.Checkout.CanConfirm {
		t.Fatalf("expected checkout to be confirmable")
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout:confirm", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm checkout: %d: %s", rr.Code, rr.Body.String())
	}
	var saleResp saleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if saleResp.Sale.Method != "cash" || saleResp.Sale.TotalCents != 1200 || saleResp.Sale.ChangeCents != 800 {
		t.Fatalf("unexpected sale: %+v", saleResp.Sale)
	}
	if recorded.ID == "" || recorded.OperatorID != "op_1" {
		t.Fatalf("expected recorded sale with operator, got %+v", recorded)
	}

	rr = doRegister(t, router, http.MethodGet, "/api/v1/registers/session/receipt", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("receipt: %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout:finish", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("finish checkout: %d: %s", rr.Code, rr.Body.String())
	}
	state = registerSessionResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Lines) != 0 || state.Checkout != nil {
		t.Fatalf("expected reset register, got %+v", state)
	}
}

func TestRegisterHandlersCheckoutEmptyCart(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "empty_cart" {
		t.Fatalf("expected empty_cart, got %v", resp["error"])
	}
}

func TestRegisterHandlersLedgerFailureKeepsCheckout(t *testing.T) {
	recorder := &salesStub{
		recordFn: func(context.Context, domain.Sale) (domain.Sale, error) {
			return domain.Sale{}, services.ErrSalesUnavailable
		},
	}
	router := newRegisterRouter(t, recorder)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)
	doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items", `{"product_id":"prod_beer","quantity":1}`)
	doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout", "")
	doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout:select", `{"method":"pix"}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session/checkout:confirm", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "ledger_unavailable" {
		t.Fatalf("expected ledger_unavailable, got %v", resp["error"])
	}
}

func TestRegisterHandlersSwitchUnitClearsCart(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)
	doRegister(t, router, http.MethodPost, "/api/v1/registers/session/cart/items", `{"product_id":"prod_beer","quantity":2}`)

	rr := doRegister(t, router, http.MethodPost, "/api/v1/registers/session:switch-unit", `{"unit":"matriz"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("switch unit: %d: %s", rr.Code, rr.Body.String())
	}
	var state registerSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Unit != "matriz" || len(state.Lines) != 0 {
		t.Fatalf("expected cleared matriz cart, got %+v", state)
	}
}

func TestRegisterHandlersCatalogFilter(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)

	rr := doRegister(t, router, http.MethodGet, "/api/v1/registers/session/catalog?q=cerveja", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("catalog: %d: %s", rr.Code, rr.Body.String())
	}
	var resp registerCatalogResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != "prod_beer" {
		t.Fatalf("unexpected catalog: %+v", resp.Products)
	}
	if resp.Products[0].PriceCents != 600 || resp.Products[0].RequiresNegotiation {
		t.Fatalf("unexpected product payload: %+v", resp.Products[0])
	}
}

func TestRegisterHandlersCloseSession(t *testing.T) {
	router := newRegisterRouter(t, nil)

	doRegister(t, router, http.MethodPost, "/api/v1/registers/session", `{"unit":"filial"}`)

	rr := doRegister(t, router, http.MethodDelete, "/api/v1/registers/session", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("close session: %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRegister(t, router, http.MethodDelete, "/api/v1/registers/session", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on re-close, got %d", rr.Code)
	}
}
