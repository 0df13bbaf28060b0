package domain

import (
	"time"
)

// BusinessUnit identifies one of the two selling locations.
type BusinessUnit string

const (
	// UnitMatriz is the factory-side unit selling ice at negotiated wholesale prices.
	UnitMatriz BusinessUnit = "matriz"
	// UnitFilial is the storefront unit selling the full catalog at list prices.
	UnitFilial BusinessUnit = "filial"
)

// Valid reports whether the unit is one of the known business units.
func (u BusinessUnit) Valid() bool {
	return u == UnitMatriz || u == UnitFilial
}

// CategoryIce tags products in the wholesale-only ice family.
const CategoryIce = "gelo"

// Product is a sellable catalog item carrying both unit price points and
// per-location stock counts. Prices are int64 centavos.
type Product struct {
	ID             string
	Name           string
	Category       string
	WholesalePrice int64
	RetailPrice    int64
	MatrizStock    int
	FilialStock    int
	MinimumStock   int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PriceFor resolves the unit-appropriate list price.
func (p Product) PriceFor(unit BusinessUnit) int64 {
	if unit == UnitMatriz {
		return p.WholesalePrice
	}
	return p.RetailPrice
}

// StockFor resolves the unit-appropriate stock count.
func (p Product) StockFor(unit BusinessUnit) int {
	if unit == UnitMatriz {
		return p.MatrizStock
	}
	return p.FilialStock
}

// IsIce reports whether the product belongs to the ice category family.
func (p Product) IsIce() bool {
	return p.Category == CategoryIce
}

// Customer is a known buyer attachable to a sale for labelling.
type Customer struct {
	ID        string
	Name      string
	Document  string
	Phone     string
	Email     string
	Address   string
	City      string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentMethod enumerates the settlement methods accepted at the registers.
type PaymentMethod string

const (
	// PaymentPix is an instant bank transfer.
	PaymentPix PaymentMethod = "pix"
	// PaymentCredit is a credit card settled through the card provider.
	PaymentCredit PaymentMethod = "credit"
	// PaymentDebit is a debit card settled through the card provider.
	PaymentDebit PaymentMethod = "debit"
	// PaymentCash is cash received at the register with change returned.
	PaymentCash PaymentMethod = "cash"
)

// Valid reports whether the method is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentPix, PaymentCredit, PaymentDebit, PaymentCash:
		return true
	}
	return false
}

// SaleLine snapshots one cart line at the moment of sale. UnitPrice is the
// resolved price-at-sale: the negotiated price when present, the catalog
// price otherwise.
type SaleLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
	Negotiated  bool
	Total       int64
}

// Sale is a finalized transaction. Immutable once recorded; the ledger owns
// stock decrement and invoice lifecycle.
type Sale struct {
	ID              string
	Unit            BusinessUnit
	CustomerID      string
	CustomerLabel   string
	Lines           []SaleLine
	Total           int64
	Method          PaymentMethod
	CashReceived    int64
	Change          int64
	Authorization   string
	InvoiceEligible bool
	InvoiceStatus   InvoiceStatus
	OperatorID      string
	CreatedAt       time.Time
}

// InvoiceStatus tracks the fiscal document lifecycle for a sale.
type InvoiceStatus string

const (
	// InvoiceStatusNone means no fiscal document was requested.
	InvoiceStatusNone InvoiceStatus = "none"
	// InvoiceStatusPending means emission was requested and awaits the fiscal provider.
	InvoiceStatusPending InvoiceStatus = "pending"
	// InvoiceStatusAuthorized means the fiscal provider authorized the document.
	InvoiceStatusAuthorized InvoiceStatus = "authorized"
	// InvoiceStatusRejected means the fiscal provider rejected the document.
	InvoiceStatusRejected InvoiceStatus = "rejected"
)

// Invoice stores the fiscal document record produced for a sale.
type Invoice struct {
	ID          string
	SaleID      string
	Document    string
	AccessKey   string
	Status      InvoiceStatus
	Detail      string
	XMLPath     string
	RequestedAt time.Time
	ResolvedAt  *time.Time
}

// RecipeItem is one costed ingredient of a manufactured product.
type RecipeItem struct {
	Name     string
	Quantity float64
	Unit     string
	UnitCost int64
}

// Recipe describes how a product is manufactured for unit-cost calculation.
// Yield is the number of sellable units one batch produces.
type Recipe struct {
	ID        string
	ProductID string
	Name      string
	Yield     int
	Items     []RecipeItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockMovementKind enumerates journal entry types for inventory changes.
type StockMovementKind string

const (
	// MovementSale records stock consumed by a finalized sale.
	MovementSale StockMovementKind = "sale"
	// MovementAdjustment records a manual correction.
	MovementAdjustment StockMovementKind = "adjustment"
	// MovementProduction records newly manufactured stock entering Matriz.
	MovementProduction StockMovementKind = "production"
	// MovementTransfer records stock moved between Matriz and Filial.
	MovementTransfer StockMovementKind = "transfer"
)

// StockMovement is an inventory journal entry.
type StockMovement struct {
	ID        string
	ProductID string
	Unit      BusinessUnit
	Kind      StockMovementKind
	Delta     int
	Reference string
	Note      string
	CreatedAt time.Time
}

// Pagination defines cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
