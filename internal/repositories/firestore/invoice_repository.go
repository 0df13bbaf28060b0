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
)

const invoicesCollection = "invoices"

// InvoiceRepository stores fiscal document records and their lifecycle state.
type InvoiceRepository struct {
	base *pfirestore.BaseRepository[invoiceDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[invoiceDocument](provider, invoicesCollection, nil, nil)
	return &InvoiceRepository{base: base}, nil
}

// Insert creates the invoice record, failing when the ID already exists.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.base == nil {
		return errors.New("invoice repository not initialised")
	}
	invoiceID := strings.TrimSpace(invoice.ID)
	if invoiceID == "" {
		return errors.New("invoice repository: invoice id is required")
	}
	if strings.TrimSpace(invoice.SaleID) == "" {
		return errors.New("invoice repository: sale id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, invoiceID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeInvoiceDocument(invoice)); err != nil {
		return pfirestore.WrapError("invoices.insert", err)
	}
	return nil
}

// Update replaces the invoice record.
func (r *InvoiceRepository) Update(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.base == nil {
		return errors.New("invoice repository not initialised")
	}
	invoiceID := strings.TrimSpace(invoice.ID)
	if invoiceID == "" {
		return errors.New("invoice repository: invoice id is required")
	}
	if _, err := r.base.Set(ctx, invoiceID, encodeInvoiceDocument(invoice)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single invoice.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, errors.New("invoice repository: invoice id is required")
	}
	doc, err := r.base.Get(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	return doc.Data.toDomain(invoiceID, doc.CreateTime), nil
}

// FindBySale resolves the invoice attached to a sale, if any.
func (r *InvoiceRepository) FindBySale(ctx context.Context, saleID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Invoice{}, errors.New("invoice repository: sale id is required")
	}
	return r.findOne(ctx, "invoices.findBySale", "saleId", saleID)
}

// FindByAccessKey resolves the invoice carrying the given fiscal access key.
func (r *InvoiceRepository) FindByAccessKey(ctx context.Context, accessKey string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	accessKey = strings.TrimSpace(accessKey)
	if accessKey == "" {
		return domain.Invoice{}, errors.New("invoice repository: access key is required")
	}
	return r.findOne(ctx, "invoices.findByAccessKey", "accessKey", accessKey)
}

// ListPending returns invoices awaiting the fiscal provider, oldest first.
func (r *InvoiceRepository) ListPending(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Invoice], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Invoice]{}, errors.New("invoice repository not initialised")
	}

	limit, fetchLimit := fetchLimits(pager.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Invoice]{}, fmt.Errorf("invoice repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.InvoiceStatusPending))
		q = q.OrderBy("requestedAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Invoice]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeListToken(chooseTime(last.Data.RequestedAt, last.CreateTime), last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Invoice, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}

	return domain.CursorPage[domain.Invoice]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func (r *InvoiceRepository) findOne(ctx context.Context, op, field, value string) (domain.Invoice, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(docs) == 0 {
		return domain.Invoice{}, pfirestore.WrapError(op, status.Errorf(codes.NotFound, "no invoice with %s %s", field, value))
	}
	doc := docs[0]
	return doc.Data.toDomain(doc.ID, doc.CreateTime), nil
}

type invoiceDocument struct {
	SaleID      string     `firestore:"saleId"`
	Document    string     `firestore:"document,omitempty"`
	AccessKey   string     `firestore:"accessKey,omitempty"`
	Status      string     `firestore:"status"`
	Detail      string     `firestore:"detail,omitempty"`
	XMLPath     string     `firestore:"xmlPath,omitempty"`
	RequestedAt time.Time  `firestore:"requestedAt"`
	ResolvedAt  *time.Time `firestore:"resolvedAt,omitempty"`
}

func encodeInvoiceDocument(invoice domain.Invoice) invoiceDocument {
	return invoiceDocument{
		SaleID:      strings.TrimSpace(invoice.SaleID),
		Document:    strings.TrimSpace(invoice.Document),
		AccessKey:   strings.TrimSpace(invoice.AccessKey),
		Status:      string(invoice.Status),
		Detail:      strings.TrimSpace(invoice.Detail),
		XMLPath:     strings.TrimSpace(invoice.XMLPath),
		RequestedAt: invoice.RequestedAt.UTC(),
		ResolvedAt:  normalizeTimePointer(invoice.ResolvedAt),
	}
}

func (d invoiceDocument) toDomain(id string, createdAt time.Time) domain.Invoice {
	return domain.Invoice{
		ID:          strings.TrimSpace(id),
		SaleID:      strings.TrimSpace(d.SaleID),
		Document:    strings.TrimSpace(d.Document),
		AccessKey:   strings.TrimSpace(d.AccessKey),
		Status:      domain.InvoiceStatus(strings.TrimSpace(d.Status)),
		Detail:      strings.TrimSpace(d.Detail),
		XMLPath:     strings.TrimSpace(d.XMLPath),
		RequestedAt: chooseTime(d.RequestedAt, createdAt),
		ResolvedAt:  normalizeTimePointer(d.ResolvedAt),
	}
}
