package handlers

import (
	"context"
	"errors"

	"github.com/gelomax/api/internal/platform/auth"
	"github.com/gelomax/api/internal/services"

	domain "github.com/gelomax/api/internal/domain"
)

var errStubNotImplemented = errors.New("stub: not implemented")

type catalogStub struct {
	createFn     func(ctx context.Context, cmd services.ProductCreateCommand) (domain.Product, error)
	updateFn     func(ctx context.Context, cmd services.ProductUpdateCommand) (domain.Product, error)
	deactivateFn func(ctx context.Context, productID string) error
	getFn        func(ctx context.Context, productID string) (domain.Product, error)
	listFn       func(ctx context.Context, query services.ProductListQuery) (domain.CursorPage[domain.Product], error)
	lowStockFn   func(ctx context.Context, query services.LowStockQuery) (domain.CursorPage[domain.Product], error)
}

func (s *catalogStub) CreateProduct(ctx context.Context, cmd services.ProductCreateCommand) (domain.Product, error) {
	if s.createFn == nil {
		return domain.Product{}, errStubNotImplemented
	}
	return s.createFn(ctx, cmd)
}

func (s *catalogStub) UpdateProduct(ctx context.Context, cmd services.ProductUpdateCommand) (domain.Product, error) {
	if s.updateFn == nil {
		return domain.Product{}, errStubNotImplemented
	}
	return s.updateFn(ctx, cmd)
}

func (s *catalogStub) DeactivateProduct(ctx context.Context, productID string) error {
	if s.deactivateFn == nil {
		return errStubNotImplemented
	}
	return s.deactivateFn(ctx, productID)
}

func (s *catalogStub) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getFn == nil {
		return domain.Product{}, errStubNotImplemented
	}
	return s.getFn(ctx, productID)
}

func (s *catalogStub) ListProducts(ctx context.Context, query services.ProductListQuery) (domain.CursorPage[domain.Product], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Product]{}, errStubNotImplemented
	}
	return s.listFn(ctx, query)
}

func (s *catalogStub) ListLowStock(ctx context.Context, query services.LowStockQuery) (domain.CursorPage[domain.Product], error) {
	if s.lowStockFn == nil {
		return domain.CursorPage[domain.Product]{}, errStubNotImplemented
	}
	return s.lowStockFn(ctx, query)
}

type inventoryStub struct {
	adjustFn     func(ctx context.Context, cmd services.StockAdjustCommand) (services.StockMutation, error)
	productionFn func(ctx context.Context, cmd services.ProductionCommand) (services.StockMutation, error)
	transferFn   func(ctx context.Context, cmd services.StockTransferCommand) (services.StockTransfer, error)
	movementsFn  func(ctx context.Context, query services.MovementListQuery) (domain.CursorPage[domain.StockMovement], error)
}

func (s *inventoryStub) AdjustStock(ctx context.Context, cmd services.StockAdjustCommand) (services.StockMutation, error) {
	if s.adjustFn == nil {
		return services.StockMutation{}, errStubNotImplemented
	}
	return s.adjustFn(ctx, cmd)
}

func (s *inventoryStub) RecordProduction(ctx context.Context, cmd services.ProductionCommand) (services.StockMutation, error) {
	if s.productionFn == nil {
		return services.StockMutation{}, errStubNotImplemented
	}
	return s.productionFn(ctx, cmd)
}

func (s *inventoryStub) TransferStock(ctx context.Context, cmd services.StockTransferCommand) (services.StockTransfer, error) {
	if s.transferFn == nil {
		return services.StockTransfer{}, errStubNotImplemented
	}
	return s.transferFn(ctx, cmd)
}

func (s *inventoryStub) ListMovements(ctx context.Context, query services.MovementListQuery) (domain.CursorPage[domain.StockMovement], error) {
	if s.movementsFn == nil {
		return domain.CursorPage[domain.StockMovement]{}, errStubNotImplemented
	}
	return s.movementsFn(ctx, query)
}

type customerStub struct {
	createFn func(ctx context.Context, cmd services.CustomerCreateCommand) (domain.Customer, error)
	updateFn func(ctx context.Context, cmd services.CustomerUpdateCommand) (domain.Customer, error)
	deleteFn func(ctx context.Context, customerID string) error
	getFn    func(ctx context.Context, customerID string) (domain.Customer, error)
	listFn   func(ctx context.Context, query services.CustomerListQuery) (domain.CursorPage[domain.Customer], error)
}

func (s *customerStub) CreateCustomer(ctx context.Context, cmd services.CustomerCreateCommand) (domain.Customer, error) {
	if s.createFn == nil {
		return domain.Customer{}, errStubNotImplemented
	}
	return s.createFn(ctx, cmd)
}

func (s *customerStub) UpdateCustomer(ctx context.Context, cmd services.CustomerUpdateCommand) (domain.Customer, error) {
	if s.updateFn == nil {
		return domain.Customer{}, errStubNotImplemented
	}
	return s.updateFn(ctx, cmd)
}

func (s *customerStub) DeleteCustomer(ctx context.Context, customerID string) error {
	if s.deleteFn == nil {
		return errStubNotImplemented
	}
	return s.deleteFn(ctx, customerID)
}

func (s *customerStub) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	if s.getFn == nil {
		return domain.Customer{}, errStubNotImplemented
	}
	return s.getFn(ctx, customerID)
}

func (s *customerStub) ListCustomers(ctx context.Context, query services.CustomerListQuery) (domain.CursorPage[domain.Customer], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Customer]{}, errStubNotImplemented
	}
	return s.listFn(ctx, query)
}

type salesStub struct {
	recordFn    func(ctx context.Context, sale domain.Sale) (domain.Sale, error)
	getFn       func(ctx context.Context, saleID string) (domain.Sale, error)
	listFn      func(ctx context.Context, query services.SaleListQuery) (domain.CursorPage[domain.Sale], error)
	summarizeFn func(ctx context.Context, query services.SalesSummaryQuery) (services.SalesSummary, error)
}

func (s *salesStub) RecordSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if s.recordFn == nil {
		return domain.Sale{}, errStubNotImplemented
	}
	return s.recordFn(ctx, sale)
}

func (s *salesStub) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	if s.getFn == nil {
		return domain.Sale{}, errStubNotImplemented
	}
	return s.getFn(ctx, saleID)
}

func (s *salesStub) ListSales(ctx context.Context, query services.SaleListQuery) (domain.CursorPage[domain.Sale], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Sale]{}, errStubNotImplemented
	}
	return s.listFn(ctx, query)
}

func (s *salesStub) Summarize(ctx context.Context, query services.SalesSummaryQuery) (services.SalesSummary, error) {
	if s.summarizeFn == nil {
		return services.SalesSummary{}, errStubNotImplemented
	}
	return s.summarizeFn(ctx, query)
}

type costingStub struct {
	upsertFn func(ctx context.Context, cmd services.RecipeUpsertCommand) (domain.Recipe, error)
	deleteFn func(ctx context.Context, recipeID string) error
	getFn    func(ctx context.Context, recipeID string) (domain.Recipe, error)
	listFn   func(ctx context.Context, query services.RecipeListQuery) (domain.CursorPage[domain.Recipe], error)
	costFn   func(ctx context.Context, productID string) (services.ProductCosting, error)
}

func (s *costingStub) UpsertRecipe(ctx context.Context, cmd services.RecipeUpsertCommand) (domain.Recipe, error) {
	if s.upsertFn == nil {
		return domain.Recipe{}, errStubNotImplemented
	}
	return s.upsertFn(ctx, cmd)
}

func (s *costingStub) DeleteRecipe(ctx context.Context, recipeID string) error {
	if s.deleteFn == nil {
		return errStubNotImplemented
	}
	return s.deleteFn(ctx, recipeID)
}

func (s *costingStub) GetRecipe(ctx context.Context, recipeID string) (domain.Recipe, error) {
	if s.getFn == nil {
		return domain.Recipe{}, errStubNotImplemented
	}
	return s.getFn(ctx, recipeID)
}

func (s *costingStub) ListRecipes(ctx context.Context, query services.RecipeListQuery) (domain.CursorPage[domain.Recipe], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Recipe]{}, errStubNotImplemented
	}
	return s.listFn(ctx, query)
}

func (s *costingStub) CostProduct(ctx context.Context, productID string) (services.ProductCosting, error) {
	if s.costFn == nil {
		return services.ProductCosting{}, errStubNotImplemented
	}
	return s.costFn(ctx, productID)
}

type assistantStub struct {
	askFn func(ctx context.Context, cmd services.AssistantQuestion) (services.AssistantAnswer, error)
}

func (s *assistantStub) Ask(ctx context.Context, cmd services.AssistantQuestion) (services.AssistantAnswer, error) {
	if s.askFn == nil {
		return services.AssistantAnswer{}, errStubNotImplemented
	}
	return s.askFn(ctx, cmd)
}

type invoiceStub struct {
	requestFn func(ctx context.Context, cmd services.InvoiceEmissionCommand) (domain.Invoice, error)
	processFn func(ctx context.Context, msg services.InvoiceJobMessage) error
	webhookFn func(ctx context.Context, cmd services.InvoiceWebhookCommand) (domain.Invoice, error)
	getFn     func(ctx context.Context, saleID string) (domain.Invoice, error)
}

func (s *invoiceStub) RequestEmission(ctx context.Context, cmd services.InvoiceEmissionCommand) (domain.Invoice, error) {
	if s.requestFn == nil {
		return domain.Invoice{}, errStubNotImplemented
	}
	return s.requestFn(ctx, cmd)
}

func (s *invoiceStub) ProcessEmission(ctx context.Context, msg services.InvoiceJobMessage) error {
	if s.processFn == nil {
		return errStubNotImplemented
	}
	return s.processFn(ctx, msg)
}

func (s *invoiceStub) HandleWebhook(ctx context.Context, cmd services.InvoiceWebhookCommand) (domain.Invoice, error) {
	if s.webhookFn == nil {
		return domain.Invoice{}, errStubNotImplemented
	}
	return s.webhookFn(ctx, cmd)
}

func (s *invoiceStub) GetInvoiceForSale(ctx context.Context, saleID string) (domain.Invoice, error) {
	if s.getFn == nil {
		return domain.Invoice{}, errStubNotImplemented
	}
	return s.getFn(ctx, saleID)
}

func operatorIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleOperator}}
}

func managerIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleManager}}
}
