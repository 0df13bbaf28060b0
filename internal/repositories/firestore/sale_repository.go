package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/gelomax/api/internal/domain"
	pfirestore "github.com/gelomax/api/internal/platform/firestore"
	"github.com/gelomax/api/internal/repositories"
)

const (
	salesCollection     = "sales"
	movementsCollection = "stock_movements"
)

// SaleRepository persists finalized sales with transactional stock decrement.
type SaleRepository struct {
	provider  *pfirestore.Provider
	sales     *pfirestore.BaseRepository[saleDocument]
	products  *pfirestore.BaseRepository[productDocument]
	movements *pfirestore.BaseRepository[movementDocument]
}

// NewSaleRepository constructs a Firestore-backed sale repository.
func NewSaleRepository(provider *pfirestore.Provider) (*SaleRepository, error) {
	if provider == nil {
		return nil, errors.New("sale repository: firestore provider is required")
	}
	return &SaleRepository{
		provider:  provider,
		sales:     pfirestore.NewBaseRepository[saleDocument](provider, salesCollection, nil, nil),
		products:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		movements: pfirestore.NewBaseRepository[movementDocument](provider, movementsCollection, nil, nil),
	}, nil
}

// Record stores the sale, decrements unit stock for every line, and journals
// the consumption, all inside one transaction.
func (r *SaleRepository) Record(ctx context.Context, req repositories.RecordSaleRequest) (repositories.RecordSaleResult, error) {
	if r == nil || r.provider == nil {
		return repositories.RecordSaleResult{}, errors.New("sale repository not initialised")
	}
	sale := req.Sale
	if strings.TrimSpace(sale.ID) == "" {
		return repositories.RecordSaleResult{}, errors.New("sale repository: sale id is required")
	}
	if !sale.Unit.Valid() {
		return repositories.RecordSaleResult{}, errors.New("sale repository: unit is required")
	}
	if len(sale.Lines) == 0 {
		return repositories.RecordSaleResult{}, errors.New("sale repository: at least one line is required")
	}

	now := req.Now.UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	var result repositories.RecordSaleResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		saleRef, err := r.sales.DocumentRef(ctx, sale.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Get(saleRef); err == nil {
			return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("sale %s already recorded", sale.ID), nil)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		stocks := make(map[string]int, len(sale.Lines))
		for _, line := range sale.Lines {
			productID := strings.TrimSpace(line.ProductID)
			if productID == "" {
				return repositories.NewStockError(repositories.StockErrorInvalidMovement, "sale line product id is required", nil)
			}
			if line.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("quantity for %s must be > 0", productID), nil)
			}

			productRef, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
				}
				return err
			}
			var productDoc productDocument
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}

			current := productDoc.stockFor(sale.Unit)
			if current < line.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", productID), nil)
			}
			productDoc.setStock(sale.Unit, current-line.Quantity)
			productDoc.UpdatedAt = now
			if err := tx.Set(productRef, productDoc); err != nil {
				return err
			}
			stocks[productID] = current - line.Quantity

			movementID := fmt.Sprintf("%s-%s", sale.ID, productID)
			movementRef, err := r.movements.DocumentRef(ctx, movementID)
			if err != nil {
				return err
			}
			movement := movementDocument{
				ProductID: productID,
				Unit:      string(sale.Unit),
				Kind:      string(domain.MovementSale),
				Delta:     -line.Quantity,
				Reference: sale.ID,
				CreatedAt: now,
			}
			if err := tx.Set(movementRef, movement); err != nil {
				return err
			}
		}

		if err := tx.Create(saleRef, encodeSaleDocument(sale)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("sale %s already recorded", sale.ID), err)
			}
			return err
		}

		result = repositories.RecordSaleResult{
			Sale:   sale,
			Stocks: stocks,
		}
		return nil
	})
	if err != nil {
		return repositories.RecordSaleResult{}, wrapStockError("sales.record", err)
	}
	return result, nil
}

// FindByID fetches a single sale.
func (r *SaleRepository) FindByID(ctx context.Context, saleID string) (domain.Sale, error) {
	if r == nil || r.sales == nil {
		return domain.Sale{}, errors.New("sale repository not initialised")
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, errors.New("sale repository: sale id is required")
	}
	doc, err := r.sales.Get(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return doc.Data.toDomain(saleID, doc.CreateTime), nil
}

// List returns sales ordered by most recent first.
func (r *SaleRepository) List(ctx context.Context, filter repositories.SaleListFilter) (domain.CursorPage[domain.Sale], error) {
	if r == nil || r.sales == nil {
		return domain.CursorPage[domain.Sale]{}, errors.New("sale repository not initialised")
	}

	limit, fetchLimit := fetchLimits(filter.Pagination.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Sale]{}, fmt.Errorf("sale repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.sales.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Unit.Valid() {
			q = q.Where("unit", "==", string(filter.Unit))
		}
		if filter.Method.Valid() {
			q = q.Where("method", "==", string(filter.Method))
		}
		if filter.From != nil && !filter.From.IsZero() {
			q = q.Where("createdAt", ">=", filter.From.UTC())
		}
		if filter.To != nil && !filter.To.IsZero() {
			q = q.Where("createdAt", "<", filter.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Sale]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeListToken(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Sale, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}

	return domain.CursorPage[domain.Sale]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// UpdateInvoiceStatus transitions the sale's fiscal document state.
func (r *SaleRepository) UpdateInvoiceStatus(ctx context.Context, saleID string, invoiceStatus domain.InvoiceStatus, now time.Time) error {
	if r == nil || r.sales == nil {
		return errors.New("sale repository not initialised")
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return errors.New("sale repository: sale id is required")
	}
	updates := []firestore.Update{
		{Path: "invoiceStatus", Value: string(invoiceStatus)},
		{Path: "invoiceUpdatedAt", Value: now.UTC()},
	}
	if _, err := r.sales.Update(ctx, saleID, updates); err != nil {
		return err
	}
	return nil
}

type saleDocument struct {
	Unit             string             `firestore:"unit"`
	CustomerID       string             `firestore:"customerId,omitempty"`
	CustomerLabel    string             `firestore:"customerLabel"`
	Lines            []saleLineDocument `firestore:"lines"`
	TotalCents       int64              `firestore:"totalCents"`
	Method           string             `firestore:"method"`
	CashReceived     int64              `firestore:"cashReceivedCents,omitempty"`
	Change           int64              `firestore:"changeCents,omitempty"`
	Authorization    string             `firestore:"authorization,omitempty"`
	InvoiceEligible  bool               `firestore:"invoiceEligible"`
	InvoiceStatus    string             `firestore:"invoiceStatus"`
	InvoiceUpdatedAt *time.Time         `firestore:"invoiceUpdatedAt,omitempty"`
	OperatorID       string             `firestore:"operatorId"`
	CreatedAt        time.Time          `firestore:"createdAt"`
}

type saleLineDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPriceCents"`
	Negotiated  bool   `firestore:"negotiated"`
	Total       int64  `firestore:"totalCents"`
}

func encodeSaleDocument(sale domain.Sale) saleDocument {
	lines := make([]saleLineDocument, len(sale.Lines))
	for i, line := range sale.Lines {
		lines[i] = saleLineDocument{
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: strings.TrimSpace(line.ProductName),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Negotiated:  line.Negotiated,
			Total:       line.Total,
		}
	}
	invoiceStatus := sale.InvoiceStatus
	if invoiceStatus == "" {
		invoiceStatus = domain.InvoiceStatusNone
	}
	return saleDocument{
		Unit:            string(sale.Unit),
		CustomerID:      strings.TrimSpace(sale.CustomerID),
		CustomerLabel:   strings.TrimSpace(sale.CustomerLabel),
		Lines:           lines,
		TotalCents:      sale.Total,
		Method:          string(sale.Method),
		CashReceived:    sale.CashReceived,
		Change:          sale.Change,
		Authorization:   strings.TrimSpace(sale.Authorization),
		InvoiceEligible: sale.InvoiceEligible,
		InvoiceStatus:   string(invoiceStatus),
		OperatorID:      strings.TrimSpace(sale.OperatorID),
		CreatedAt:       sale.CreatedAt.UTC(),
	}
}

func (d saleDocument) toDomain(id string, createdAt time.Time) domain.Sale {
	lines := make([]domain.SaleLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.SaleLine{
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: strings.TrimSpace(line.ProductName),
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Negotiated:  line.Negotiated,
			Total:       line.Total,
		}
	}
	return domain.Sale{
		ID:              strings.TrimSpace(id),
		Unit:            domain.BusinessUnit(strings.TrimSpace(d.Unit)),
		CustomerID:      strings.TrimSpace(d.CustomerID),
		CustomerLabel:   strings.TrimSpace(d.CustomerLabel),
		Lines:           lines,
		Total:           d.TotalCents,
		Method:          domain.PaymentMethod(strings.TrimSpace(d.Method)),
		CashReceived:    d.CashReceived,
		Change:          d.Change,
		Authorization:   strings.TrimSpace(d.Authorization),
		InvoiceEligible: d.InvoiceEligible,
		InvoiceStatus:   domain.InvoiceStatus(strings.TrimSpace(d.InvoiceStatus)),
		OperatorID:      strings.TrimSpace(d.OperatorID),
		CreatedAt:       chooseTime(d.CreatedAt, createdAt),
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
