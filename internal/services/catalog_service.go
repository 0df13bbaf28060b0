package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/repositories"
)

const (
	eventProductCreated     = "catalog.product_created"
	eventProductUpdated     = "catalog.product_updated"
	eventProductDeactivated = "catalog.product_deactivated"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogProductNotFound indicates the product could not be located.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates a conflicting concurrent update.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates a transient persistence outage.
	ErrCatalogUnavailable = errors.New("catalog: temporarily unavailable")
)

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	repo   repositories.ProductRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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

	return &catalogService{
		repo: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd ProductCreateCommand) (domain.Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	category := strings.ToLower(strings.TrimSpace(cmd.Category))
	if category == "" {
		return domain.Product{}, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	if err := validatePrices(cmd.WholesalePrice, cmd.RetailPrice); err != nil {
		return domain.Product{}, err
	}
	if cmd.MatrizStock < 0 || cmd.FilialStock < 0 || cmd.MinimumStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock counts must be >= 0", ErrCatalogInvalidInput)
	}

	now := s.clock()
	product := domain.Product{
		ID:             s.newID(),
		Name:           name,
		Category:       category,
		WholesalePrice: cmd.WholesalePrice,
		RetailPrice:    cmd.RetailPrice,
		MatrizStock:    cmd.MatrizStock,
		FilialStock:    cmd.FilialStock,
		MinimumStock:   cmd.MinimumStock,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, product); err != nil {
		return domain.Product{}, s.mapError(err)
	}

	s.logger(ctx, eventProductCreated, map[string]any{
		"product_id": product.ID,
		"category":   product.Category,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd ProductUpdateCommand) (domain.Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	category := strings.ToLower(strings.TrimSpace(cmd.Category))
	if category == "" {
		return domain.Product{}, fmt.Errorf("%w: category is required", ErrCatalogInvalidInput)
	}
	if err := validatePrices(cmd.WholesalePrice, cmd.RetailPrice); err != nil {
		return domain.Product{}, err
	}
	if cmd.MinimumStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: minimum stock must be >= 0", ErrCatalogInvalidInput)
	}

	existing, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapError(err)
	}

	updated := existing
	updated.Name = name
	updated.Category = category
	updated.WholesalePrice = cmd.WholesalePrice
	updated.RetailPrice = cmd.RetailPrice
	updated.MinimumStock = cmd.MinimumStock
	updated.Active = cmd.Active
	updated.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, updated); err != nil {
		return domain.Product{}, s.mapError(err)
	}

	s.logger(ctx, eventProductUpdated, map[string]any{
		"product_id": updated.ID,
	})
	return updated, nil
}

func (s *catalogService) DeactivateProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.Deactivate(ctx, productID, s.clock()); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, eventProductDeactivated, map[string]any{
		"product_id": productID,
	})
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, query ProductListQuery) (domain.CursorPage[domain.Product], error) {
	filter := repositories.ProductListFilter{
		Category:   strings.ToLower(strings.TrimSpace(query.Category)),
		ActiveOnly: query.ActiveOnly,
		Search:     strings.TrimSpace(query.Search),
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: strings.TrimSpace(query.PageToken),
		},
	}
	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapError(err)
	}
	return page, nil
}

func (s *catalogService) ListLowStock(ctx context.Context, query LowStockQuery) (domain.CursorPage[domain.Product], error) {
	if !query.Unit.Valid() {
		return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: unknown business unit %q", ErrCatalogInvalidInput, query.Unit)
	}
	page, err := s.repo.ListBelowMinimum(ctx, repositories.LowStockFilter{
		Unit: query.Unit,
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: strings.TrimSpace(query.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.mapError(err)
	}
	return page, nil
}

func (s *catalogService) mapError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

func validatePrices(wholesale, retail int64) error {
	if wholesale < 0 || retail < 0 {
		return fmt.Errorf("%w: prices must be >= 0", ErrCatalogInvalidInput)
	}
	return nil
}
