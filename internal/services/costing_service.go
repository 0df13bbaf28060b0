package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/repositories"
)

const (
	eventRecipeUpserted = "costing.recipe_upserted"
	eventRecipeDeleted  = "costing.recipe_deleted"
)

var (
	// ErrCostingInvalidInput signals the caller provided invalid arguments.
	ErrCostingInvalidInput = errors.New("costing: invalid input")
	// ErrCostingRecipeNotFound indicates the recipe could not be located.
	ErrCostingRecipeNotFound = errors.New("costing: recipe not found")
	// ErrCostingProductNotFound indicates the product could not be located.
	ErrCostingProductNotFound = errors.New("costing: product not found")
	// ErrCostingUnavailable indicates a transient persistence outage.
	ErrCostingUnavailable = errors.New("costing: temporarily unavailable")
)

// CostingServiceDeps bundles the collaborators required to construct a costing service.
type CostingServiceDeps struct {
	Recipes     repositories.RecipeRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type costingService struct {
	recipes  repositories.RecipeRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCostingService wires dependencies into a concrete CostingService implementation.
func NewCostingService(deps CostingServiceDeps) (CostingService, error) {
	if deps.Recipes == nil {
		return nil, errors.New("costing service: recipe repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("costing service: product repository is required")
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

	return &costingService{
		recipes:  deps.Recipes,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *costingService) UpsertRecipe(ctx context.Context, cmd RecipeUpsertCommand) (domain.Recipe, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.Recipe{}, fmt.Errorf("%w: product id is required", ErrCostingInvalidInput)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Recipe{}, fmt.Errorf("%w: name is required", ErrCostingInvalidInput)
	}
	if cmd.Yield <= 0 {
		return domain.Recipe{}, fmt.Errorf("%w: yield must be > 0", ErrCostingInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return domain.Recipe{}, fmt.Errorf("%w: at least one ingredient is required", ErrCostingInvalidInput)
	}
	items := make([]domain.RecipeItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		itemName := strings.TrimSpace(item.Name)
		if itemName == "" {
			return domain.Recipe{}, fmt.Errorf("%w: ingredient name is required", ErrCostingInvalidInput)
		}
		if item.Quantity <= 0 {
			return domain.Recipe{}, fmt.Errorf("%w: ingredient quantity must be > 0", ErrCostingInvalidInput)
		}
		if item.UnitCost < 0 {
			return domain.Recipe{}, fmt.Errorf("%w: ingredient cost must be >= 0", ErrCostingInvalidInput)
		}
		items = append(items, domain.RecipeItem{
			Name:     itemName,
			Quantity: item.Quantity,
			Unit:     strings.TrimSpace(item.Unit),
			UnitCost: item.UnitCost,
		})
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return domain.Recipe{}, s.mapProductError(err)
	}

	now := s.clock()
	recipe := domain.Recipe{
		ID:        strings.TrimSpace(cmd.RecipeID),
		ProductID: productID,
		Name:      name,
		Yield:     cmd.Yield,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if recipe.ID == "" {
		recipe.ID = s.newID()
	} else if existing, err := s.recipes.FindByID(ctx, recipe.ID); err == nil {
		recipe.CreatedAt = existing.CreatedAt
	}

	if err := s.recipes.Upsert(ctx, recipe); err != nil {
		return domain.Recipe{}, s.mapError(err)
	}

	s.logger(ctx, eventRecipeUpserted, map[string]any{
		"recipe_id":  recipe.ID,
		"product_id": recipe.ProductID,
	})
	return recipe, nil
}

func (s *costingService) DeleteRecipe(ctx context.Context, recipeID string) error {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return fmt.Errorf("%w: recipe id is required", ErrCostingInvalidInput)
	}
	if err := s.recipes.Delete(ctx, recipeID); err != nil {
		return s.mapError(err)
	}
	s.logger(ctx, eventRecipeDeleted, map[string]any{
		"recipe_id": recipeID,
	})
	return nil
}

func (s *costingService) GetRecipe(ctx context.Context, recipeID string) (domain.Recipe, error) {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return domain.Recipe{}, fmt.Errorf("%w: recipe id is required", ErrCostingInvalidInput)
	}
	recipe, err := s.recipes.FindByID(ctx, recipeID)
	if err != nil {
		return domain.Recipe{}, s.mapError(err)
	}
	return recipe, nil
}

func (s *costingService) ListRecipes(ctx context.Context, query RecipeListQuery) (domain.CursorPage[domain.Recipe], error) {
	page, err := s.recipes.List(ctx, domain.Pagination{
		PageSize:  query.PageSize,
		PageToken: strings.TrimSpace(query.PageToken),
	})
	if err != nil {
		return domain.CursorPage[domain.Recipe]{}, s.mapError(err)
	}
	return page, nil
}

// CostProduct computes the batch cost from the recipe, splits it over the
// yield, and reports the margin at both price points. Unit cost is rounded
// half-up to the nearest centavo.
func (s *costingService) CostProduct(ctx context.Context, productID string) (ProductCosting, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ProductCosting{}, fmt.Errorf("%w: product id is required", ErrCostingInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return ProductCosting{}, s.mapProductError(err)
	}
	recipe, err := s.recipes.FindByProduct(ctx, productID)
	if err != nil {
		return ProductCosting{}, s.mapError(err)
	}
	if recipe.Yield <= 0 {
		return ProductCosting{}, fmt.Errorf("%w: recipe yield must be > 0", ErrCostingInvalidInput)
	}

	var batchCost float64
	for _, item := range recipe.Items {
		batchCost += item.Quantity * float64(item.UnitCost)
	}
	batchCents := int64(math.Round(batchCost))
	unitCents := int64(math.Round(batchCost / float64(recipe.Yield)))

	costing := ProductCosting{
		ProductID:       product.ID,
		RecipeID:        recipe.ID,
		BatchCostCents:  batchCents,
		Yield:           recipe.Yield,
		UnitCostCents:   unitCents,
		WholesaleMargin: product.WholesalePrice - unitCents,
		RetailMargin:    product.RetailPrice - unitCents,
	}
	if product.WholesalePrice > 0 {
		costing.WholesalePercent = float64(costing.WholesaleMargin) / float64(product.WholesalePrice) * 100
	}
	if product.RetailPrice > 0 {
		costing.RetailPercent = float64(costing.RetailMargin) / float64(product.RetailPrice) * 100
	}
	return costing, nil
}

func (s *costingService) mapError(err error) error {
	return mapCostingError(err, ErrCostingRecipeNotFound)
}

func (s *costingService) mapProductError(err error) error {
	return mapCostingError(err, ErrCostingProductNotFound)
}

func mapCostingError(err, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCostingUnavailable, err)
		}
	}
	return err
}
