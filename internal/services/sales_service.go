package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/repositories"
)

const (
	eventSaleRecorded = "sales.recorded"
	eventSaleLowStock = "sales.low_stock_after_sale"

	summaryTopItems = 5
)

var (
	// ErrSalesInvalidInput signals the caller provided invalid arguments.
	ErrSalesInvalidInput = errors.New("sales: invalid input")
	// ErrSalesNotFound indicates the sale could not be located.
	ErrSalesNotFound = errors.New("sales: sale not found")
	// ErrSalesInsufficientStock indicates a line exceeds the unit's stock.
	ErrSalesInsufficientStock = errors.New("sales: insufficient stock")
	// ErrSalesProductNotFound indicates a line references an unknown product.
	ErrSalesProductNotFound = errors.New("sales: product not found")
	// ErrSalesDuplicate indicates the sale was already recorded.
	ErrSalesDuplicate = errors.New("sales: sale already recorded")
	// ErrSalesUnavailable indicates a transient persistence outage.
	ErrSalesUnavailable = errors.New("sales: temporarily unavailable")
)

// SalesServiceDeps bundles the collaborators required to construct a sales service.
type SalesServiceDeps struct {
	Sales       repositories.SaleRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type salesService struct {
	sales    repositories.SaleRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewSalesService wires dependencies into a concrete SalesService implementation.
func NewSalesService(deps SalesServiceDeps) (SalesService, error) {
	if deps.Sales == nil {
		return nil, errors.New("sales service: sale repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &salesService{
		sales:    deps.Sales,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// RecordSale persists the finalized sale and decrements unit stock in one
// transaction. It satisfies the register's Recorder contract.
func (s *salesService) RecordSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	if err := s.validateSale(sale); err != nil {
		return domain.Sale{}, err
	}

	now := s.clock()
	if strings.TrimSpace(sale.ID) == "" {
		sale.ID = s.newID()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.InvoiceStatus == "" {
		sale.InvoiceStatus = domain.InvoiceStatusNone
	}

	result, err := s.sales.Record(ctx, repositories.RecordSaleRequest{
		Sale: sale,
		Now:  now,
	})
	if err != nil {
		return domain.Sale{}, s.mapError(err)
	}

	s.logger(ctx, eventSaleRecorded, map[string]any{
		"sale_id":     result.Sale.ID,
		"unit":        string(result.Sale.Unit),
		"method":      string(result.Sale.Method),
		"total_cents": result.Sale.Total,
		"lines":       len(result.Sale.Lines),
	})
	s.reportLowStock(ctx, result)

	return result.Sale, nil
}

func (s *salesService) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", ErrSalesInvalidInput)
	}
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, s.mapError(err)
	}
	return sale, nil
}

func (s *salesService) ListSales(ctx context.Context, query SaleListQuery) (domain.CursorPage[domain.Sale], error) {
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return domain.CursorPage[domain.Sale]{}, fmt.Errorf("%w: period end precedes start", ErrSalesInvalidInput)
	}
	page, err := s.sales.List(ctx, repositories.SaleListFilter{
		Unit:   query.Unit,
		Method: query.Method,
		From:   query.From,
		To:     query.To,
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: strings.TrimSpace(query.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Sale]{}, s.mapError(err)
	}
	return page, nil
}

// Summarize aggregates a period of sales for reporting. It pages through the
// ledger so the caller sees totals over the whole window.
func (s *salesService) Summarize(ctx context.Context, query SalesSummaryQuery) (SalesSummary, error) {
	if query.From.IsZero() || query.To.IsZero() {
		return SalesSummary{}, fmt.Errorf("%w: period bounds are required", ErrSalesInvalidInput)
	}
	if query.To.Before(query.From) {
		return SalesSummary{}, fmt.Errorf("%w: period end precedes start", ErrSalesInvalidInput)
	}

	from := query.From.UTC()
	to := query.To.UTC()
	summary := SalesSummary{
		Unit:     query.Unit,
		From:     from,
		To:       to,
		ByMethod: make(map[domain.PaymentMethod]int64),
	}
	items := make(map[string]*SalesSummaryItem)

	pageToken := ""
	for {
		page, err := s.sales.List(ctx, repositories.SaleListFilter{
			Unit: query.Unit,
			From: &from,
			To:   &to,
			Pagination: domain.Pagination{
				PageSize:  200,
				PageToken: pageToken,
			},
		})
		if err != nil {
			return SalesSummary{}, s.mapError(err)
		}
		for _, sale := range page.Items {
			summary.SaleCount++
			summary.TotalCents += sale.Total
			summary.ByMethod[sale.Method] += sale.Total
			for _, line := range sale.Lines {
				item := items[line.ProductID]
				if item == nil {
					item = &SalesSummaryItem{
						ProductID:   line.ProductID,
						ProductName: line.ProductName,
					}
					items[line.ProductID] = item
				}
				item.Quantity += line.Quantity
				item.TotalCents += line.Total
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	ranked := make([]SalesSummaryItem, 0, len(items))
	for _, item := range items {
		ranked = append(ranked, *item)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalCents != ranked[j].TotalCents {
			return ranked[i].TotalCents > ranked[j].TotalCents
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})
	if len(ranked) > summaryTopItems {
		ranked = ranked[:summaryTopItems]
	}
	summary.TopItems = ranked

	return summary, nil
}

func (s *salesService) validateSale(sale domain.Sale) error {
	if !sale.Unit.Valid() {
		return fmt.Errorf("%w: unknown business unit %q", ErrSalesInvalidInput, sale.Unit)
	}
	if !sale.Method.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrSalesInvalidInput, sale.Method)
	}
	if len(sale.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrSalesInvalidInput)
	}
	var total int64
	for _, line := range sale.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: line product id is required", ErrSalesInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line quantity must be > 0", ErrSalesInvalidInput)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: line price must be >= 0", ErrSalesInvalidInput)
		}
		total += line.Total
	}
	if total != sale.Total {
		return fmt.Errorf("%w: total %d does not match line sum %d", ErrSalesInvalidInput, sale.Total, total)
	}
	if sale.Method == domain.PaymentCash && sale.CashReceived < sale.Total {
		return fmt.Errorf("%w: cash received below total", ErrSalesInvalidInput)
	}
	return nil
}

// reportLowStock logs products that fell to or below their minimum after the
// sale, so the back office can restock without polling the report.
func (s *salesService) reportLowStock(ctx context.Context, result repositories.RecordSaleResult) {
	if s.products == nil {
		return
	}
	for productID, stock := range result.Stocks {
		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			continue
		}
		if product.MinimumStock > 0 && stock <= product.MinimumStock {
			s.logger(ctx, eventSaleLowStock, map[string]any{
				"product_id": productID,
				"unit":       string(result.Sale.Unit),
				"stock":      stock,
				"minimum":    product.MinimumStock,
			})
		}
	}
}

func (s *salesService) mapError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrSalesInsufficientStock, stockErr.Message)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrSalesProductNotFound, stockErr.Message)
		case repositories.StockErrorInvalidMovement:
			return fmt.Errorf("%w: %s", ErrSalesDuplicate, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrSalesNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrSalesDuplicate, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrSalesUnavailable, err)
		}
	}
	return err
}
