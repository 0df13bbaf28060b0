package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

func TestRecipeHandlersCreate(t *testing.T) {
	var gotCmd services.RecipeUpsertCommand
	costing := &costingStub{
		upsertFn: func(_ context.Context, cmd services.RecipeUpsertCommand) (domain.Recipe, error) {
			gotCmd = cmd
			return domain.Recipe{
				ID:        "rec_1",
				ProductID: cmd.ProductID,
				Name:      cmd.Name,
				Yield:     cmd.Yield,
				Items:     cmd.Items,
			}, nil
		},
	}
	handler := NewRecipeHandlers(nil, costing)
	router := NewRouter(WithRecipeRoutes(handler.Routes))

	body := `{"product_id":"prod_1","name":"Caipirinha","yield":10,"items":[{"name":"Limao","quantity":1.5,"unit":"kg","unit_cost_cents":800},{"name":"Cachaca","quantity":0.7,"unit":"l","unit_cost_cents":2500}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes/", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity("mgr_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.RecipeID != "" {
		t.Fatalf("expected blank recipe id on create, got %q", gotCmd.RecipeID)
	}
	if gotCmd.ProductID != "prod_1" || gotCmd.Yield != 10 || len(gotCmd.Items) != 2 {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
	if gotCmd.Items[0].UnitCost != 800 {
		t.Fatalf("unexpected item cost: %+v", gotCmd.Items[0])
	}
}

func TestRecipeHandlersUpdateUsesPathID(t *testing.T) {
	var gotCmd services.RecipeUpsertCommand
	costing := &costingStub{
		upsertFn: func(_ context.Context, cmd services.RecipeUpsertCommand) (domain.Recipe, error) {
			gotCmd = cmd
			return domain.Recipe{ID: cmd.RecipeID, ProductID: cmd.ProductID, Name: cmd.Name}, nil
		},
	}
	handler := NewRecipeHandlers(nil, costing)
	router := NewRouter(WithRecipeRoutes(handler.Routes))

	body := `{"product_id":"prod_1","name":"Caipirinha nova","yield":12,"items":[{"name":"Limao","quantity":2,"unit":"kg","unit_cost_cents":800}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/recipes/rec_1", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity("mgr_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.RecipeID != "rec_1" {
		t.Fatalf("expected rec_1, got %q", gotCmd.RecipeID)
	}
}

func TestRecipeHandlersUpsertRequiresManagerRole(t *testing.T) {
	handler := NewRecipeHandlers(nil, &costingStub{})
	router := NewRouter(WithRecipeRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes/", strings.NewReader(`{"name":"x"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRecipeHandlersDelete(t *testing.T) {
	var gotID string
	costing := &costingStub{
		deleteFn: func(_ context.Context, recipeID string) error {
			gotID = recipeID
			return nil
		},
	}
	handler := NewRecipeHandlers(nil, costing)
	router := NewRouter(WithRecipeRoutes(handler.Routes))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/recipes/rec_3", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), managerIdentity("mgr_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotID != "rec_3" {
		t.Fatalf("expected rec_3, got %q", gotID)
	}
}

func TestRecipeHandlersCostProduct(t *testing.T) {
	costing := &costingStub{
		costFn: func(_ context.Context, productID string) (services.ProductCosting, error) {
			return services.ProductCosting{
				ProductID:        productID,
				RecipeID:         "rec_1",
				BatchCostCents:   3300,
				Yield:            10,
				UnitCostCents:    330,
				WholesaleMargin:  370,
				RetailMargin:     570,
				WholesalePercent: 52.86,
				RetailPercent:    63.33,
			}, nil
		},
	}
	handler := NewRecipeHandlers(nil, costing)
	router := NewRouter(WithCostingRoutes(handler.CostingRoutes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_1:costing", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp costingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ProductID != "prod_1" || resp.UnitCostCents != 330 {
		t.Fatalf("unexpected costing: %+v", resp)
	}
	if resp.RetailMargin != 570 {
		t.Fatalf("unexpected retail margin: %+v", resp)
	}
}

func TestRecipeHandlersCostProductWithoutRecipe(t *testing.T) {
	costing := &costingStub{
		costFn: func(context.Context, string) (services.ProductCosting, error) {
			return services.ProductCosting{}, services.ErrCostingRecipeNotFound
		},
	}
	handler := NewRecipeHandlers(nil, costing)
	router := NewRouter(WithCostingRoutes(handler.CostingRoutes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_1:costing", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), operatorIdentity("op_1")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}
