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

const maxCustomerBodySize = 16 * 1024

// CustomerHandlers exposes the customer book endpoints.
type CustomerHandlers struct {
	authn     *auth.Authenticator
	customers services.CustomerService
}

// NewCustomerHandlers constructs a new CustomerHandlers instance.
func NewCustomerHandlers(authn *auth.Authenticator, customers services.CustomerService) *CustomerHandlers {
	return &CustomerHandlers{
		authn:     authn,
		customers: customers,
	}
}

// Routes registers the /customers endpoints.
func (h *CustomerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listCustomers)
	r.Post("/", h.createCustomer)
	r.Get("/{customerID}", h.getCustomer)
	r.Put("/{customerID}", h.updateCustomer)
	r.Delete("/{customerID}", h.deleteCustomer)
}

func (h *CustomerHandlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeCustomerBody(w, r)
	if !ok {
		return
	}

	customer, err := h.customers.CreateCustomer(ctx, services.CustomerCreateCommand{
		Name:     req.Name,
		Document: req.Document,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		City:     req.City,
		Notes:    req.Notes,
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, customerResponse{Customer: buildCustomerPayload(customer)})
}

func (h *CustomerHandlers) updateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeCustomerBody(w, r)
	if !ok {
		return
	}

	customer, err := h.customers.UpdateCustomer(ctx, services.CustomerUpdateCommand{
		CustomerID: chi.URLParam(r, "customerID"),
		Name:       req.Name,
		Document:   req.Document,
		Phone:      req.Phone,
		Email:      req.Email,
		Address:    req.Address,
		City:       req.City,
		Notes:      req.Notes,
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, customerResponse{Customer: buildCustomerPayload(customer)})
}

func (h *CustomerHandlers) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireBackofficeRole(ctx, w) {
		return
	}
	if err := h.customers.DeleteCustomer(ctx, chi.URLParam(r, "customerID")); err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CustomerHandlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customer, err := h.customers.GetCustomer(ctx, chi.URLParam(r, "customerID"))
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, customerResponse{Customer: buildCustomerPayload(customer)})
}

func (h *CustomerHandlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()

	pageSize, err := parsePageSize(values.Get("pageSize"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.customers.ListCustomers(ctx, services.CustomerListQuery{
		Search:    values.Get("q"),
		PageSize:  pageSize,
		PageToken: values.Get("pageToken"),
	})
	if err != nil {
		writeCustomerError(ctx, w, err)
		return
	}

	payload := customerListResponse{
		Customers:     make([]customerPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, customer := range page.Items {
		payload.Customers = append(payload.Customers, buildCustomerPayload(customer))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func decodeCustomerBody(w http.ResponseWriter, r *http.Request) (customerRequest, bool) {
	var req customerRequest
	body, err := readLimitedBody(r, maxCustomerBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return req, false
	}
	return req, true
}

type customerRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Notes    string `json:"notes"`
}

type customerResponse struct {
	Customer customerPayload `json:"customer"`
}

type customerListResponse struct {
	Customers     []customerPayload `json:"customers"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type customerPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Document  string `json:"document,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func buildCustomerPayload(customer domain.Customer) customerPayload {
	return customerPayload{
		ID:        customer.ID,
		Name:      customer.Name,
		Document:  customer.Document,
		Phone:     customer.Phone,
		Email:     customer.Email,
		Address:   customer.Address,
		City:      customer.City,
		Notes:     customer.Notes,
		CreatedAt: formatTime(customer.CreatedAt),
		UpdatedAt: formatTime(customer.UpdatedAt),
	}
}

func writeCustomerError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCustomerUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("customers_unavailable", "customer book temporarily unavailable", http.StatusServiceUnavailable))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("customers_unavailable", "customer repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("customers_error", "failed to process customer request", http.StatusInternalServerError))
	}
}
