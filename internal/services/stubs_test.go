package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/repositories"
)

type stubProductRepo struct {
	insertFn     func(ctx context.Context, product domain.Product) error
	updateFn     func(ctx context.Context, product domain.Product) error
	deactivateFn func(ctx context.Context, productID string, at time.Time) error
	findFn       func(ctx context.Context, productID string) (domain.Product, error)
	listFn       func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	lowStockFn   func(ctx context.Context, filter repositories.LowStockFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Deactivate(ctx context.Context, productID string, at time.Time) error {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, productID, at)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubProductRepo) ListBelowMinimum(ctx context.Context, filter repositories.LowStockFilter) (domain.CursorPage[domain.Product], error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

type stubCustomerRepo struct {
	insertFn func(ctx context.Context, customer domain.Customer) error
	updateFn func(ctx context.Context, customer domain.Customer) error
	deleteFn func(ctx context.Context, customerID string) error
	findFn   func(ctx context.Context, customerID string) (domain.Customer, error)
	listFn   func(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error)
}

func (s *stubCustomerRepo) Insert(ctx context.Context, customer domain.Customer) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Update(ctx context.Context, customer domain.Customer) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, customer)
	}
	return nil
}

func (s *stubCustomerRepo) Delete(ctx context.Context, customerID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, customerID)
	}
	return nil
}

func (s *stubCustomerRepo) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, customerID)
	}
	return domain.Customer{}, errors.New("not implemented")
}

func (s *stubCustomerRepo) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Customer]{}, nil
}

type stubSaleRepo struct {
	recordFn func(ctx context.Context, req repositories.RecordSaleRequest) (repositories.RecordSaleResult, error)
	findFn   func(ctx context.Context, saleID string) (domain.Sale, error)
	listFn   func(ctx context.Context, filter repositories.SaleListFilter) (domain.CursorPage[domain.Sale], error)
	statusFn func(ctx context.Context, saleID string, status domain.InvoiceStatus, now time.Time) error
}

func (s *stubSaleRepo) Record(ctx context.Context, req repositories.RecordSaleRequest) (repositories.RecordSaleResult, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, req)
	}
	return repositories.RecordSaleResult{Sale: req.Sale}, nil
}

func (s *stubSaleRepo) FindByID(ctx context.Context, saleID string) (domain.Sale, error) {
	if s.findFn != nil {
		return s.findFn(ctx, saleID)
	}
	return domain.Sale{}, errors.New("not implemented")
}

func (s *stubSaleRepo) List(ctx context.Context, filter repositories.SaleListFilter) (domain.CursorPage[domain.Sale], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Sale]{}, nil
}

func (s *stubSaleRepo) UpdateInvoiceStatus(ctx context.Context, saleID string, status domain.InvoiceStatus, now time.Time) error {
	if s.statusFn != nil {
		return s.statusFn(ctx, saleID, status, now)
	}
	return nil
}

type stubRecipeRepo struct {
	upsertFn        func(ctx context.Context, recipe domain.Recipe) error
	deleteFn        func(ctx context.Context, recipeID string) error
	findFn          func(ctx context.Context, recipeID string) (domain.Recipe, error)
	findByProductFn func(ctx context.Context, productID string) (domain.Recipe, error)
	listFn          func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Recipe], error)
}

func (s *stubRecipeRepo) Upsert(ctx context.Context, recipe domain.Recipe) error {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, recipe)
	}
	return nil
}

func (s *stubRecipeRepo) Delete(ctx context.Context, recipeID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, recipeID)
	}
	return nil
}

func (s *stubRecipeRepo) FindByID(ctx context.Context, recipeID string) (domain.Recipe, error) {
	if s.findFn != nil {
		return s.findFn(ctx, recipeID)
	}
	return domain.Recipe{}, errors.New("not implemented")
}

func (s *stubRecipeRepo) FindByProduct(ctx context.Context, productID string) (domain.Recipe, error) {
	if s.findByProductFn != nil {
		return s.findByProductFn(ctx, productID)
	}
	return domain.Recipe{}, errors.New("not implemented")
}

func (s *stubRecipeRepo) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Recipe], error) {
	if s.listFn != nil {
		return s.listFn(ctx, pager)
	}
	return domain.CursorPage[domain.Recipe]{}, nil
}

type stubInvoiceRepo struct {
	insertFn      func(ctx context.Context, invoice domain.Invoice) error
	updateFn      func(ctx context.Context, invoice domain.Invoice) error
	findFn        func(ctx context.Context, invoiceID string) (domain.Invoice, error)
	findBySaleFn  func(ctx context.Context, saleID string) (domain.Invoice, error)
	findByKeyFn   func(ctx context.Context, accessKey string) (domain.Invoice, error)
	listPendingFn func(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Invoice], error)
}

func (s *stubInvoiceRepo) Insert(ctx context.Context, invoice domain.Invoice) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, invoice)
	}
	return nil
}

func (s *stubInvoiceRepo) Update(ctx context.Context, invoice domain.Invoice) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, invoice)
	}
	return nil
}

func (s *stubInvoiceRepo) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if s.findFn != nil {
		return s.findFn(ctx, invoiceID)
	}
	return domain.Invoice{}, errors.New("not implemented")
}

func (s *stubInvoiceRepo) FindBySale(ctx context.Context, saleID string) (domain.Invoice, error) {
	if s.findBySaleFn != nil {
		return s.findBySaleFn(ctx, saleID)
	}
	return domain.Invoice{}, errors.New("not implemented")
}

func (s *stubInvoiceRepo) FindByAccessKey(ctx context.Context, accessKey string) (domain.Invoice, error) {
	if s.findByKeyFn != nil {
		return s.findByKeyFn(ctx, accessKey)
	}
	return domain.Invoice{}, errors.New("not implemented")
}

func (s *stubInvoiceRepo) ListPending(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Invoice], error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, pager)
	}
	return domain.CursorPage[domain.Invoice]{}, nil
}

type stubMovementRepo struct {
	applyFn    func(ctx context.Context, req repositories.ApplyMovementRequest) (repositories.ApplyMovementResult, error)
	transferFn func(ctx context.Context, req repositories.TransferRequest) (repositories.TransferResult, error)
	listFn     func(ctx context.Context, filter repositories.MovementListFilter) (domain.CursorPage[domain.StockMovement], error)
}

func (s *stubMovementRepo) Apply(ctx context.Context, req repositories.ApplyMovementRequest) (repositories.ApplyMovementResult, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, req)
	}
	return repositories.ApplyMovementResult{Movement: req.Movement}, nil
}

func (s *stubMovementRepo) Transfer(ctx context.Context, req repositories.TransferRequest) (repositories.TransferResult, error) {
	if s.transferFn != nil {
		return s.transferFn(ctx, req)
	}
	return repositories.TransferResult{}, nil
}

func (s *stubMovementRepo) List(ctx context.Context, filter repositories.MovementListFilter) (domain.CursorPage[domain.StockMovement], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.StockMovement]{}, nil
}

type notFoundRepoError struct{ msg string }

func (e *notFoundRepoError) Error() string       { return e.msg }
func (e *notFoundRepoError) IsNotFound() bool    { return true }
func (e *notFoundRepoError) IsConflict() bool    { return false }
func (e *notFoundRepoError) IsUnavailable() bool { return false }
