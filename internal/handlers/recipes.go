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

const maxRecipeBodySize = 32 * 1024

// RecipeHandlers exposes recipe management and product costing endpoints.
type RecipeHandlers struct {
	authn   *auth.Authenticator
	costing services.CostingService
}

// NewRecipeHandlers constructs a new RecipeHandlers instance.
func NewRecipeHandlers(authn *auth.Authenticator, costing services.CostingService) *RecipeHandlers {
	return &RecipeHandlers{
		authn:   authn,
		costing: costing,
	}
}

// Routes registers the /recipes endpoints.
func (h *RecipeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listRecipes)
	r.Post("/", h.upsertRecipe)
	r.Get("/{recipeID}", h.getRecipe)
	r.Put("/{recipeID}", h.upsertRecipe)
	r.Delete("/{recipeID}", h.deleteRecipe)
}

// CostingRoutes registers the product costing endpoint at the API root.
func (h *RecipeHandlers) CostingRoutes(r chi.Router) {
	if r == nil {
		return
	}
	route := "/products/{productID}:costing"
	if h.authn != nil {
		r.With(h.authn.RequireFirebaseAuth()).Get(route, h.costProduct)
		return
	}
	r.Get(route, h.costProduct)
}

func (h *RecipeHandlers) upsertRecipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, maxRecipeBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req recipeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	items := make([]domain.RecipeItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.RecipeItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Unit:     item.Unit,
			UnitCost: item.UnitCostCents,
		})
	}

	recipe, err := h.costing.UpsertRecipe(ctx, services.RecipeUpsertCommand{
		RecipeID:  chi.URLParam(r, "recipeID"),
		ProductID: req.ProductID,
		Name:      req.Name,
		Yield:     req.Yield,
		Items:     items,
	})
	if err != nil {
		writeCostingError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if chi.URLParam(r, "recipeID") == "" {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, recipeResponse{Recipe: buildRecipePayload(recipe)})
}

func (h *RecipeHandlers) deleteRecipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}
	if err := h.costing.DeleteRecipe(ctx, chi.URLParam(r, "recipeID")); err != nil {
		writeCostingError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecipeHandlers) getRecipe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipe, err := h.costing.GetRecipe(ctx, chi.URLParam(r, "recipeID"))
	if err != nil {
		writeCostingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, recipeResponse{Recipe: buildRecipePayload(recipe)})
}

func (h *RecipeHandlers) listRecipes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()

	pageSize, err := parsePageSize(values.Get("pageSize"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.costing.ListRecipes(ctx, services.RecipeListQuery{
		PageSize:  pageSize,
		PageToken: values.Get("pageToken"),
	})
	if err != nil {
		writeCostingError(ctx, w, err)
		return
	}

	payload := recipeListResponse{
		Recipes:       make([]recipePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, recipe := range page.Items {
		payload.Recipes = append(payload.Recipes, buildRecipePayload(recipe))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *RecipeHandlers) costProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	costing, err := h.costing.CostProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCostingError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, costingResponse{
		ProductID:        costing.ProductID,
		RecipeID:         costing.RecipeID,
		BatchCostCents:   costing.BatchCostCents,
		Yield:            costing.Yield,
		UnitCostCents:    costing.UnitCostCents,
		WholesaleMargin:  costing.WholesaleMargin,
		RetailMargin:     costing.RetailMargin,
		WholesalePercent: costing.WholesalePercent,
		RetailPercent:    costing.RetailPercent,
	})
}

type recipeRequest struct {
	ProductID string              `json:"product_id"`
	Name      string              `json:"name"`
	Yield     int                 `json:"yield"`
	Items     []recipeItemPayload `json:"items"`
}

type recipeResponse struct {
	Recipe recipePayload `json:"recipe"`
}

type recipeListResponse struct {
	Recipes       []recipePayload `json:"recipes"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type recipePayload struct {
	ID        string              `json:"id"`
	ProductID string              `json:"product_id"`
	Name      string              `json:"name"`
	Yield     int                 `json:"yield"`
	Items     []recipeItemPayload `json:"items"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
}

type recipeItemPayload struct {
	Name          string  `json:"name"`
	Quantity      float64 `json:"quantity"`
	Unit          string  `json:"unit"`
	UnitCostCents int64   `json:"unit_cost_cents"`
}

type costingResponse struct {
	ProductID        string  `json:"product_id"`
	RecipeID         string  `json:"recipe_id"`
	BatchCostCents   int64   `json:"batch_cost_cents"`
	Yield            int     `json:"yield"`
	UnitCostCents    int64   `json:"unit_cost_cents"`
	WholesaleMargin  int64   `json:"wholesale_margin_cents"`
	RetailMargin     int64   `json:"retail_margin_cents"`
	WholesalePercent float64 `json:"wholesale_margin_percent"`
	RetailPercent    float64 `json:"retail_margin_percent"`
}

func buildRecipePayload(recipe domain.Recipe) recipePayload {
	items := make([]recipeItemPayload, 0, len(recipe.Items))
	for _, item := range recipe.Items {
		items = append(items, recipeItemPayload{
			Name:          item.Name,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			UnitCostCents: item.UnitCost,
		})
	}
	return recipePayload{
		ID:        recipe.ID,
		ProductID: recipe.ProductID,
		Name:      recipe.Name,
		Yield:     recipe.Yield,
		Items:     items,
		CreatedAt: formatTime(recipe.CreatedAt),
		UpdatedAt: formatTime(recipe.UpdatedAt),
	}
}

func writeCostingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCostingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCostingRecipeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("recipe_not_found", "recipe not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCostingProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCostingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("costing_unavailable", "costing temporarily unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("costing_unavailable", "recipe repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("costing_error", "failed to process recipe request", http.StatusInternalServerError))
	}
}
