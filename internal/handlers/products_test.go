package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

func TestProductHandlersCreate(t *testing.T) {
	now := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	var gotCmd services.ProductCreateCommand
	catalog := &catalogStub{
		createFn: func(_ context.Context, cmd services.ProductCreateCommand) (domain.Product, error) {
			gotCmd = cmd
			return domain.Product{
				ID:             "prod_1",
				Name:           cmd.Name,
				Category:       cmd.Category,
				WholesalePrice: cmd.WholesalePrice,
				RetailPrice:    cmd.RetailPrice,
				MatrizStock:    cmd.MatrizStock,
				FilialStock:    cmd.FilialStock,
				MinimumStock:   cmd.MinimumStock,
				Active:         true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, nil
		},
	}
	handler := NewProductHandlers(nil, catalog)
	router := NewRouter(WithProductRoutes(handler.Routes))

	body := `{"name":"Gelo 5kg","category":"gelo","wholesale_price_cents":700,"retail_price_cents":900,"matriz_stock":120,"filial_stock":40,"minimum_stock":20}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity("mgr_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.Name != "Gelo 5kg" || gotCmd.WholesalePrice != 700 || gotCmd.FilialStock != 40 {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}

	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Product.ID != "prod_1" {
		t.Fatalf("expected product id prod_1, got %q", resp.Product.ID)
	}
	if resp.Product.CreatedAt == "" {
		t.Fatalf("expected created_at to be set")
	}
}

func TestProductHandlersCreateRequiresManagerRole(t *testing.T) {
	handler := NewProductHandlers(nil, &catalogStub{})
	router := NewRouter(WithProductRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/", strings.NewReader(`{"name":"Gelo"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "forbidden" {
		t.Fatalf("expected error code forbidden, got %v", resp["error"])
	}
}

func TestProductHandlersUpdateDefaultsActive(t *testing.T) {
	var gotCmd services.ProductUpdateCommand
	catalog := &catalogStub{
		updateFn: func(_ context.Context, cmd services.ProductUpdateCommand) (domain.Product, error) {
			gotCmd = cmd
			return domain.Product{ID: cmd.ProductID, Name: cmd.Name, Active: cmd.Active}, nil
		},
	}
	handler := NewProductHandlers(nil, catalog)
	router := NewRouter(WithProductRoutes(handler.Routes))

	body := `{"name":"Gelo 10kg","category":"gelo","wholesale_price_cents":1100,"retail_price_cents":1500}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/products/prod_1", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity("mgr_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.ProductID != "prod_1" {
		t.Fatalf("expected product id prod_1, got %q", gotCmd.ProductID)
	}
	if !gotCmd.Active {
		t.Fatalf("expected active to default to true when omitted")
	}
}

func TestProductHandlersDeactivate(t *testing.T) {
	var gotID string
	catalog := &catalogStub{
		deactivateFn: func(_ context.Context, productID string) error {
			gotID = productID
			return nil
		},
	}
	handler := NewProductHandlers(nil, catalog)
	router := NewRouter(WithProductRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/prod_9:deactivate", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity("mgr_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotID != "prod_9" {
		t.Fatalf("expected prod_9, got %q", gotID)
	}
}

func TestProductHandlersListPassesFilters(t *testing.T) {
	var gotQuery services.ProductListQuery
	catalog := &catalogStub{
		listFn: func(_ context.Context, query services.ProductListQuery) (domain.CursorPage[domain.Product], error) {
			gotQuery = query
			return domain.CursorPage[domain.Product]{
				Items:         []domain.Product{{ID: "prod_1", Name: "Gelo 5kg"}},
				NextPageToken: "tok_next",
			}, nil
		},
	}
	handler := NewProductHandlers(nil, catalog)
	router := NewRouter(WithProductRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/?category=gelo&active=true&q=5kg&pageSize=10&pageToken=tok_0", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotQuery.Category != "gelo" || !gotQuery.ActiveOnly || gotQuery.Search != "5kg" {
		t.Fatalf("unexpected query: %+v", gotQuery)
	}
	if gotQuery.PageSize != 10 || gotQuery.PageToken != "tok_0" {
		t.Fatalf("unexpected paging: %+v", gotQuery)
	}

	var resp productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 1 || resp.NextPageToken != "tok_next" {
		t.Fatalf("unexpected list payload: %+v", resp)
	}
}

func TestProductHandlersListPageSizeBounds(t *testing.T) {
	var gotQuery services.ProductListQuery
	catalog := &catalogStub{
		listFn: func(_ context.Context, query services.ProductListQuery) (domain.CursorPage[domain.Product], error) {
			gotQuery = query
			return domain.CursorPage[domain.Product]{}, nil
		},
	}
	handler := NewProductHandlers(nil, catalog)
	router := NewRouter(WithProductRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/?pageSize=abc", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed pageSize, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/?pageSize=500", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotQuery.PageSize != maxListPageSize {
		t.Fatalf("expected pageSize clamped to %d, got %d", maxListPageSize, gotQuery.PageSize)
	}
}

func TestProductHandlersLowStockRejectsUnknownUnit(t *testing.T) {
	handler := NewProductHandlers(nil, &catalogStub{})
	router := NewRouter(WithProductRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/low-stock?unit=deposito", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestProductHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid input", err: services.ErrCatalogInvalidInput, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "not found", err: services.ErrCatalogProductNotFound, wantStatus: http.StatusNotFound, wantCode: "product_not_found"},
		{name: "unavailable", err: services.ErrCatalogUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "catalog_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &catalogStub{
				getFn: func(context.Context, string) (domain.Product, error) {
					return domain.Product{}, tc.err
				},
			}
			handler := NewProductHandlers(nil, catalog)
			router := NewRouter(WithProductRoutes(handler.Routes))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_1", nil)
			req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			var resp map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["error"] != tc.wantCode {
				t.Fatalf("expected error code %q, got %v", tc.wantCode, resp["error"])
			}
		})
	}
}
