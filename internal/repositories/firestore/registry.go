package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/gelomax/api/internal/platform/firestore"
	"github.com/gelomax/api/internal/repositories"
)

// Registry wires every Firestore-backed repository over a shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	products  *ProductRepository
	customers *CustomerRepository
	sales     *SaleRepository
	recipes   *RecipeRepository
	invoices  *InvoiceRepository
	movements *MovementRepository
}

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	sales, err := NewSaleRepository(provider)
	if err != nil {
		return nil, err
	}
	recipes, err := NewRecipeRepository(provider)
	if err != nil {
		return nil, err
	}
	invoices, err := NewInvoiceRepository(provider)
	if err != nil {
		return nil, err
	}
	movements, err := NewMovementRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		products:  products,
		customers: customers,
		sales:     sales,
		recipes:   recipes,
		invoices:  invoices,
		movements: movements,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Products exposes the catalog repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Customers exposes the customer repository.
func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }

// Sales exposes the sale ledger repository.
func (r *Registry) Sales() repositories.SaleRepository { return r.sales }

// Recipes exposes the recipe repository.
func (r *Registry) Recipes() repositories.RecipeRepository { return r.recipes }

// Invoices exposes the fiscal document repository.
func (r *Registry) Invoices() repositories.InvoiceRepository { return r.invoices }

// Movements exposes the inventory journal repository.
func (r *Registry) Movements() repositories.MovementRepository { return r.movements }
