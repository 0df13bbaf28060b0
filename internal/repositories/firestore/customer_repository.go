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

const customersCollection = "customers"

// CustomerRepository stores customer records for sale attachment and billing.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil)
	return &CustomerRepository{base: base}, nil
}

// Insert stores a new customer document. The ID must be unique.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	customerID := strings.TrimSpace(customer.ID)
	if customerID == "" {
		return errors.New("customer repository: customer id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, customerID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeCustomerDocument(customer)); err != nil {
		return pfirestore.WrapError("customers.insert", err)
	}
	return nil
}

// Update replaces the persisted customer state with the provided snapshot.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	customerID := strings.TrimSpace(customer.ID)
	if customerID == "" {
		return errors.New("customer repository: customer id is required")
	}
	if _, err := r.base.Set(ctx, customerID, encodeCustomerDocument(customer)); err != nil {
		return err
	}
	return nil
}

// Delete removes the customer record. Recorded sales keep their label snapshot.
func (r *CustomerRepository) Delete(ctx context.Context, customerID string) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errors.New("customer repository: customer id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, customerID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("customers.delete", err)
	}
	return nil
}

// FindByID fetches a single customer.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer repository: customer id is required")
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(customerID, doc.CreateTime, doc.UpdateTime), nil
}

// List returns customers ordered by folded name, optionally narrowed by a
// folded name or document prefix.
func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.CursorPage[domain.Customer], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Customer]{}, errors.New("customer repository not initialised")
	}

	limit, fetchLimit := fetchLimits(filter.Pagination.PageSize)

	var tokenName, tokenID string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		var err error
		tokenName, tokenID, err = decodeStringToken(token)
		if err != nil {
			return domain.CursorPage[domain.Customer]{}, fmt.Errorf("customer repository: invalid page token: %w", err)
		}
	}

	search := textutil.Fold(filter.Search)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
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
		return domain.CursorPage[domain.Customer]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeStringToken(last.Data.NameFolded, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Customer, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime))
	}

	return domain.CursorPage[domain.Customer]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type customerDocument struct {
	Name       string    `firestore:"name"`
	NameFolded string    `firestore:"nameFolded"`
	Document   string    `firestore:"document"`
	Phone      string    `firestore:"phone"`
	Email      string    `firestore:"email"`
	Address    string    `firestore:"address"`
	City       string    `firestore:"city"`
	Notes      string    `firestore:"notes"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func encodeCustomerDocument(customer domain.Customer) customerDocument {
	name := strings.TrimSpace(customer.Name)
	return customerDocument{
		Name:       name,
		NameFolded: textutil.Fold(name),
		Document:   strings.TrimSpace(customer.Document),
		Phone:      strings.TrimSpace(customer.Phone),
		Email:      strings.TrimSpace(customer.Email),
		Address:    strings.TrimSpace(customer.Address),
		City:       strings.TrimSpace(customer.City),
		Notes:      strings.TrimSpace(customer.Notes),
		CreatedAt:  customer.CreatedAt.UTC(),
		UpdatedAt:  customer.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string, createdAt, updatedAt time.Time) domain.Customer {
	return domain.Customer{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(d.Name),
		Document:  strings.TrimSpace(d.Document),
		Phone:     strings.TrimSpace(d.Phone),
		Email:     strings.TrimSpace(d.Email),
		Address:   strings.TrimSpace(d.Address),
		City:      strings.TrimSpace(d.City),
		Notes:     strings.TrimSpace(d.Notes),
		CreatedAt: chooseTime(d.CreatedAt, createdAt),
		UpdatedAt: chooseTime(d.UpdatedAt, updatedAt),
	}
}
