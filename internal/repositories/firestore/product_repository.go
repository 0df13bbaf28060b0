package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/gelomax/api/internal/domain"
	pfirestore "github.com/gelomax/api/internal/platform/firestore"
	"github.com/gelomax/api/internal/platform/textutil"
	"github.com/gelomax/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists the catalog with per-unit stock counts.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// Insert stores a new product document. The ID must be unique.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update replaces the persisted product state with the provided snapshot.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(product.ID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	if _, err := r.base.Set(ctx, productID, encodeProductDocument(product)); err != nil {
		return err
	}
	return nil
}

// Deactivate retires the product from the catalog while keeping the record.
func (r *ProductRepository) Deactivate(ctx context.Context, productID string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	at = at.UTC()
	updates := []firestore.Update{
		{Path: "active", Value: false},
		{Path: "updatedAt", Value: at},
	}
	if _, err := r.base.Update(ctx, productID, updates); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(productID, doc.CreateTime, doc.UpdateTime), nil
}

// List returns products ordered by folded name, optionally narrowed by
// category, active flag, and a folded name prefix.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	limit, fetchLimit := fetchLimits(filter.Pagination.PageSize)

	var tokenName, tokenID string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		var err error
		tokenName, tokenID, err = decodeStringToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: invalid page token: %w", err)
		}
	}

	category := strings.ToLower(strings.TrimSpace(filter.Category))
	search := textutil.Fold(filter.Search)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if search != "" {
			q = q.Where("nameFolded", ">=", search).Where("nameFolded", "<", prefixUpperBound(search))
		}
		q = q.OrderBy("nameFolded", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if tokenID != "" {
			q = q.StartAfter(tokenName, tokenID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	return buildProductPage(docs, limit, fetchLimit), nil
}

// ListBelowMinimum returns products whose unit stock sits at or below the
// configured minimum. Firestore cannot compare two fields, so the minimum
// filter is applied after the indexed fetch.
func (r *ProductRepository) ListBelowMinimum(ctx context.Context, filter repositories.LowStockFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}
	if !filter.Unit.Valid() {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository: unit is required")
	}

	limit, _ := fetchLimits(filter.Pagination.PageSize)

	var startAfter string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		_, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: invalid page token: %w", err)
		}
		startAfter = tokenID
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("active", "==", true).Where("minimumStock", ">", 0)
		q = q.OrderBy("minimumStock", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	items := make([]domain.Product, 0, len(docs))
	skipping := startAfter != ""
	nextToken := ""
	for _, doc := range docs {
		if skipping {
			if doc.ID == startAfter {
				skipping = false
			}
			continue
		}
		product := doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime)
		if product.StockFor(filter.Unit) > product.MinimumStock {
			continue
		}
		if limit > 0 && len(items) == limit {
			last := items[len(items)-1]
			nextToken = encodeListToken(last.UpdatedAt, last.ID)
			break
		}
		items = append(items, product)
	}

	return domain.CursorPage[domain.Product]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func buildProductPage(docs []pfirestore.Document[productDocument], limit, fetchLimit int) domain.CursorPage[domain.Product] {
	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeStringToken(last.Data.NameFolded, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Product, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Product]{
		Items:         items,
		NextPageToken: nextToken,
	}
}

type productDocument struct {
	Name           string    `firestore:"name"`
	NameFolded     string    `firestore:"nameFolded"`
	Category       string    `firestore:"category"`
	WholesalePrice int64     `firestore:"wholesalePriceCents"`
	RetailPrice    int64     `firestore:"retailPriceCents"`
	MatrizStock    int       `firestore:"matrizStock"`
	FilialStock    int       `firestore:"filialStock"`
	MinimumStock   int       `firestore:"minimumStock"`
	Active         bool      `firestore:"active"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func encodeProductDocument(product domain.Product) productDocument {
	name := strings.TrimSpace(product.Name)
	return productDocument{
		Name:           name,
		NameFolded:     textutil.Fold(name),
		Category:       strings.ToLower(strings.TrimSpace(product.Category)),
		WholesalePrice: product.WholesalePrice,
		RetailPrice:    product.RetailPrice,
		MatrizStock:    product.MatrizStock,
		FilialStock:    product.FilialStock,
		MinimumStock:   product.MinimumStock,
		Active:         product.Active,
		CreatedAt:      product.CreatedAt.UTC(),
		UpdatedAt:      product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string, createdAt, updatedAt time.Time) domain.Product {
	return domain.Product{
		ID:             strings.TrimSpace(id),
		Name:           strings.TrimSpace(d.Name),
		Category:       strings.TrimSpace(d.Category),
		WholesalePrice: d.WholesalePrice,
		RetailPrice:    d.RetailPrice,
		MatrizStock:    d.MatrizStock,
		FilialStock:    d.FilialStock,
		MinimumStock:   d.MinimumStock,
		Active:         d.Active,
		CreatedAt:      chooseTime(d.CreatedAt, createdAt),
		UpdatedAt:      chooseTime(d.UpdatedAt, updatedAt),
	}
}

// stockField resolves the document field holding the unit's stock count.
func stockField(unit domain.BusinessUnit) string {
	if unit == domain.UnitMatriz {
		return "matrizStock"
	}
	return "filialStock"
}

func (d productDocument) stockFor(unit domain.BusinessUnit) int {
	if unit == domain.UnitMatriz {
		return d.MatrizStock
	}
	return d.FilialStock
}

func (d *productDocument) setStock(unit domain.BusinessUnit, value int) {
	if unit == domain.UnitMatriz {
		d.MatrizStock = value
		return
	}
	d.FilialStock = value
}
