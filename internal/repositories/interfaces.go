package repositories

import (
	"context"
	"time"

	domain "github.com/gelomax/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Customers() CustomerRepository
	Sales() SaleRepository
	Recipes() RecipeRepository
	Invoices() InvoiceRepository
	Movements() MovementRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists the sellable catalog with per-unit stock counts.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Deactivate(ctx context.Context, productID string, at time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	ListBelowMinimum(ctx context.Context, filter LowStockFilter) (domain.CursorPage[domain.Product], error)
}

// CustomerRepository stores customer records for sale attachment and billing.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	Delete(ctx context.Context, customerID string) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.CursorPage[domain.Customer], error)
}

// SaleRepository persists finalized sales. Record runs the sale insert and the
// per-line stock decrement in a single transaction so a sale can never commit
// against stock it did not consume.
type SaleRepository interface {
	Record(ctx context.Context, req RecordSaleRequest) (RecordSaleResult, error)
	FindByID(ctx context.Context, saleID string) (domain.Sale, error)
	List(ctx context.Context, filter SaleListFilter) (domain.CursorPage[domain.Sale], error)
	UpdateInvoiceStatus(ctx context.Context, saleID string, status domain.InvoiceStatus, now time.Time) error
}

// RecordSaleRequest carries the immutable sale snapshot into the transaction.
type RecordSaleRequest struct {
	Sale domain.Sale
	Now  time.Time
}

// RecordSaleResult reports the persisted sale and resulting stock levels by product.
type RecordSaleResult struct {
	Sale   domain.Sale
	Stocks map[string]int
}

// RecipeRepository stores manufacturing recipes used for unit costing.
type RecipeRepository interface {
	Upsert(ctx context.Context, recipe domain.Recipe) error
	Delete(ctx context.Context, recipeID string) error
	FindByID(ctx context.Context, recipeID string) (domain.Recipe, error)
	FindByProduct(ctx context.Context, productID string) (domain.Recipe, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Recipe], error)
}

// InvoiceRepository stores fiscal document records and their lifecycle state.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	Update(ctx context.Context, invoice domain.Invoice) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindBySale(ctx context.Context, saleID string) (domain.Invoice, error)
	FindByAccessKey(ctx context.Context, accessKey string) (domain.Invoice, error)
	ListPending(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Invoice], error)
}

// MovementRepository owns the inventory journal plus the transactional stock
// mutations that do not originate from a sale.
type MovementRepository interface {
	Apply(ctx context.Context, req ApplyMovementRequest) (ApplyMovementResult, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	List(ctx context.Context, filter MovementListFilter) (domain.CursorPage[domain.StockMovement], error)
}

// ApplyMovementRequest adjusts one unit's stock and journals the change.
type ApplyMovementRequest struct {
	Movement domain.StockMovement
	Now      time.Time
}

// ApplyMovementResult reports the journal entry and the resulting stock count.
type ApplyMovementResult struct {
	Movement domain.StockMovement
	Stock    int
}

// TransferRequest moves quantity between Matriz and Filial atomically.
type TransferRequest struct {
	ProductID string
	From      domain.BusinessUnit
	To        domain.BusinessUnit
	Quantity  int
	Note      string
	Now       time.Time
	IDFactory func() string
}

// TransferResult reports both journal entries and the resulting stock counts.
type TransferResult struct {
	Outbound  domain.StockMovement
	Inbound   domain.StockMovement
	FromStock int
	ToStock   int
}

// Filter DTOs shared across repositories ------------------------------------

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category   string
	ActiveOnly bool
	Search     string
	Pagination domain.Pagination
}

// LowStockFilter controls the below-minimum stock report.
type LowStockFilter struct {
	Unit       domain.BusinessUnit
	Pagination domain.Pagination
}

// CustomerListFilter narrows customer listings by folded name prefix.
type CustomerListFilter struct {
	Search     string
	Pagination domain.Pagination
}

// SaleListFilter narrows sale listings.
type SaleListFilter struct {
	Unit       domain.BusinessUnit
	Method     domain.PaymentMethod
	From       *time.Time
	To         *time.Time
	Pagination domain.Pagination
}

// MovementListFilter narrows journal listings.
type MovementListFilter struct {
	ProductID  string
	Unit       domain.BusinessUnit
	Kind       domain.StockMovementKind
	Pagination domain.Pagination
}
