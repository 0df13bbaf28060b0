package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/platform/httpx"
	"github.com/gelomax/api/internal/repositories"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

const maxProductBodySize = 16 * 1024

// ProductHandlers exposes the back-office catalog endpoints.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	r.Get("/low-stock", h.listLowStock)
	r.Get("/{productID}", h.getProduct)
	r.Put("/{productID}", h.updateProduct)
	r.Post("/{productID}:deactivate", h.deactivateProduct)
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req productRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.ProductCreateCommand{
		Name:           req.Name,
		Category:       req.Category,
		WholesalePrice: req.WholesalePriceCents,
		RetailPrice:    req.RetailPriceCents,
		MatrizStock:    req.MatrizStock,
		FilialStock:    req.FilialStock,
		MinimumStock:   req.MinimumStock,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	var req productRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	product, err := h.catalog.UpdateProduct(ctx, services.ProductUpdateCommand{
		ProductID:      chi.URLParam(r, "productID"),
		Name:           req.Name,
		Category:       req.Category,
		WholesalePrice: req.WholesalePriceCents,
		RetailPrice:    req.RetailPriceCents,
		MinimumStock:   req.MinimumStock,
		Active:         active,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}
	if err := h.catalog.DeactivateProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()

	pageSize, err := parsePageSize(values.Get("pageSize"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ProductListQuery{
		Category:   values.Get("category"),
		ActiveOnly: values.Get("active") == "true",
		Search:     values.Get("q"),
		PageSize:   pageSize,
		PageToken:  values.Get("pageToken"),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductListPayload(page))
}

func (h *ProductHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.catalog.ListLowStock(ctx, services.LowStockQuery{
		Unit:      unit,
		PageSize:  pageSize,
		PageToken: values.Get("pageToken"),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductListPayload(page))
}

type productRequest struct {
	Name                string `json:"name"`
	Category            string `json:"category"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	MatrizStock         int    `json:"matriz_stock"`
	FilialStock         int    `json:"filial_stock"`
	MinimumStock        int    `json:"minimum_stock"`
	Active              *bool  `json:"active"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Products      []productPayload `json:"products"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	WholesalePriceCents int64  `json:"wholesale_price_cents"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	MatrizStock         int    `json:"matriz_stock"`
	FilialStock         int    `json:"filial_stock"`
	MinimumStock        int    `json:"minimum_stock"`
	Active              bool   `json:"active"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:                  product.ID,
		Name:                product.Name,
		Category:            product.Category,
		WholesalePriceCents: product.WholesalePrice,
		RetailPriceCents:    product.RetailPrice,
		MatrizStock:         product.MatrizStock,
		FilialStock:         product.FilialStock,
		MinimumStock:        product.MinimumStock,
		Active:              product.Active,
		CreatedAt:           formatTime(product.CreatedAt),
		UpdatedAt:           formatTime(product.UpdatedAt),
	}
}

func buildProductListPayload(page domain.CursorPage[domain.Product]) productListResponse {
	payload := productListResponse{
		Products:      make([]productPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, product := range page.Items {
		payload.Products = append(payload.Products, buildProductPayload(product))
	}
	return payload
}

func requireBackofficeRole(ctx context.Context, w http.ResponseWriter) bool {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return false
	}
	if !identity.HasAnyRole(auth.RoleManager, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "manager role required", http.StatusForbidden))
		return false
	}
	return true
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog temporarily unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
