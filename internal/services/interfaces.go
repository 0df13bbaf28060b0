package services

import (
	"context"
	"time"

	domain "github.com/gelomax/api/internal/domain"
)

// CatalogService manages the sellable product catalog.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd ProductCreateCommand) (domain.Product, error)
	UpdateProduct(ctx context.Context, cmd ProductUpdateCommand) (domain.Product, error)
	DeactivateProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[domain.Product], error)
	ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.Product], error)
}

// ProductCreateCommand carries the fields for a new catalog item.
type ProductCreateCommand struct {
	Name           string
	Category       string
	WholesalePrice int64
	RetailPrice    int64
	MatrizStock    int
	FilialStock    int
	MinimumStock   int
}

// ProductUpdateCommand carries a full product replacement.
type ProductUpdateCommand struct {
	ProductID      string
	Name           string
	Category       string
	WholesalePrice int64
	RetailPrice    int64
	MinimumStock   int
	Active         bool
}

// ProductListQuery narrows catalog listings.
type ProductListQuery struct {
	Category   string
	ActiveOnly bool
	Search     string
	PageSize   int
	PageToken  string
}

// LowStockQuery controls the below-minimum report for one unit.
type LowStockQuery struct {
	Unit      domain.BusinessUnit
	PageSize  int
	PageToken string
}

// InventoryService owns stock mutations that do not originate from a sale.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd StockAdjustCommand) (StockMutation, error)
	RecordProduction(ctx context.Context, cmd ProductionCommand) (StockMutation, error)
	TransferStock(ctx context.Context, cmd StockTransferCommand) (StockTransfer, error)
	ListMovements(ctx context.Context, query MovementListQuery) (domain.CursorPage[domain.StockMovement], error)
}

// StockAdjustCommand applies a manual correction to one unit's count.
type StockAdjustCommand struct {
	ProductID string
	Unit      domain.BusinessUnit
	Delta     int
	Note      string
}

// ProductionCommand registers newly manufactured stock entering Matriz.
type ProductionCommand struct {
	ProductID string
	Quantity  int
	Note      string
}

// StockTransferCommand moves quantity between the two units.
type StockTransferCommand struct {
	ProductID string
	From      domain.BusinessUnit
	To        domain.BusinessUnit
	Quantity  int
	Note      string
}

// StockMutation reports the journal entry and resulting stock count.
type StockMutation struct {
	Movement domain.StockMovement
	Stock    int
}

// StockTransfer reports both journal entries and resulting counts.
type StockTransfer struct {
	Outbound  domain.StockMovement
	Inbound   domain.StockMovement
	FromStock int
	ToStock   int
}

// MovementListQuery narrows journal listings.
type MovementListQuery struct {
	ProductID string
	Unit      domain.BusinessUnit
	Kind      domain.StockMovementKind
	PageSize  int
	PageToken string
}

// CustomerService manages customer records used for sale attachment.
type CustomerService interface {
	CreateCustomer(ctx context.Context, cmd CustomerCreateCommand) (domain.Customer, error)
	UpdateCustomer(ctx context.Context, cmd CustomerUpdateCommand) (domain.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	GetCustomer(ctx context.Context, customerID string) (domain.Customer, error)
	ListCustomers(ctx context.Context, query CustomerListQuery) (domain.CursorPage[domain.Customer], error)
}

// CustomerCreateCommand carries the fields for a new customer record.
type CustomerCreateCommand struct {
	Name     string
	Document string
	Phone    string
	Email    string
	Address  string
	City     string
	Notes    string
}

// CustomerUpdateCommand carries a full customer replacement.
type CustomerUpdateCommand struct {
	CustomerID string
	Name       string
	Document   string
	Phone      string
	Email      string
	Address    string
	City       string
	Notes      string
}

// CustomerListQuery narrows customer listings by folded name prefix.
type CustomerListQuery struct {
	Search    string
	PageSize  int
	PageToken string
}

// SalesService is the ledger collaborator behind the register: it persists
// finalized sales, decrements unit stock atomically, and reports on history.
type SalesService interface {
	RecordSale(ctx context.Context, sale domain.Sale) (domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (domain.Sale, error)
	ListSales(ctx context.Context, query SaleListQuery) (domain.CursorPage[domain.Sale], error)
	Summarize(ctx context.Context, query SalesSummaryQuery) (SalesSummary, error)
}

// SaleListQuery narrows sale listings.
type SaleListQuery struct {
	Unit      domain.BusinessUnit
	Method    domain.PaymentMethod
	From      *time.Time
	To        *time.Time
	PageSize  int
	PageToken string
}

// SalesSummaryQuery selects the period to aggregate.
type SalesSummaryQuery struct {
	Unit domain.BusinessUnit
	From time.Time
	To   time.Time
}

// SalesSummary aggregates a period of sales for reporting and the assistant.
type SalesSummary struct {
	Unit       domain.BusinessUnit
	From       time.Time
	To         time.Time
	SaleCount  int
	TotalCents int64
	ByMethod   map[domain.PaymentMethod]int64
	TopItems   []SalesSummaryItem
}

// SalesSummaryItem is one product's aggregated share of a period.
type SalesSummaryItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	TotalCents  int64
}

// CostingService computes recipe-based unit costs and price-point margins.
type CostingService interface {
	UpsertRecipe(ctx context.Context, cmd RecipeUpsertCommand) (domain.Recipe, error)
	DeleteRecipe(ctx context.Context, recipeID string) error
	GetRecipe(ctx context.Context, recipeID string) (domain.Recipe, error)
	ListRecipes(ctx context.Context, query RecipeListQuery) (domain.CursorPage[domain.Recipe], error)
	CostProduct(ctx context.Context, productID string) (ProductCosting, error)
}

// RecipeUpsertCommand carries a recipe definition. A blank RecipeID creates
// a new recipe.
type RecipeUpsertCommand struct {
	RecipeID  string
	ProductID string
	Name      string
	Yield     int
	Items     []domain.RecipeItem
}

// RecipeListQuery pages through recipes.
type RecipeListQuery struct {
	PageSize  int
	PageToken string
}

// ProductCosting reports the unit cost and the margin at both price points.
type ProductCosting struct {
	ProductID        string
	RecipeID         string
	BatchCostCents   int64
	Yield            int
	UnitCostCents    int64
	WholesaleMargin  int64
	RetailMargin     int64
	WholesalePercent float64
	RetailPercent    float64
}

// AssistantService answers business questions over current operational data.
type AssistantService interface {
	Ask(ctx context.Context, cmd AssistantQuestion) (AssistantAnswer, error)
}

// AssistantQuestion is one operator question with the unit scope to report on.
type AssistantQuestion struct {
	Question string
	Unit     domain.BusinessUnit
}

// AssistantAnswer carries the sanitised completion text.
type AssistantAnswer struct {
	Answer   string
	AskedAt  time.Time
	Question string
}

// InvoiceService drives fiscal document emission for eligible sales.
type InvoiceService interface {
	RequestEmission(ctx context.Context, cmd InvoiceEmissionCommand) (domain.Invoice, error)
	ProcessEmission(ctx context.Context, msg InvoiceJobMessage) error
	HandleWebhook(ctx context.Context, cmd InvoiceWebhookCommand) (domain.Invoice, error)
	GetInvoiceForSale(ctx context.Context, saleID string) (domain.Invoice, error)
}

// InvoiceEmissionCommand requests emission for one finalized sale.
type InvoiceEmissionCommand struct {
	SaleID         string
	Document       string
	IdempotencyKey string
}

// InvoiceWebhookCommand carries a verified fiscal status callback.
type InvoiceWebhookCommand struct {
	AccessKey  string
	SaleID     string
	Status     string
	Detail     string
	ResolvedAt time.Time
}

// InvoiceJobMessage is the Pub/Sub payload queued for the emission worker.
type InvoiceJobMessage struct {
	JobID          string    `json:"jobId"`
	InvoiceID      string    `json:"invoiceId"`
	SaleID         string    `json:"saleId"`
	Unit           string    `json:"unit"`
	QueuedAt       time.Time `json:"queuedAt"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}

// InvoiceJobPublisher enqueues emission jobs for asynchronous processing.
type InvoiceJobPublisher interface {
	PublishInvoiceJob(ctx context.Context, message InvoiceJobMessage) (string, error)
}
