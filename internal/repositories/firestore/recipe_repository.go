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
	"github.com/gelomax/api/internal/platform/textutil"
)

const recipesCollection = "recipes"

// RecipeRepository stores manufacturing recipes used for unit costing.
type RecipeRepository struct {
	base *pfirestore.BaseRepository[recipeDocument]
}

// NewRecipeRepository constructs a Firestore-backed recipe repository.
func NewRecipeRepository(provider *pfirestore.Provider) (*RecipeRepository, error) {
	if provider == nil {
		return nil, errors.New("recipe repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[recipeDocument](provider, recipesCollection, nil, nil)
	return &RecipeRepository{base: base}, nil
}

// Upsert writes the recipe, replacing any previous version.
func (r *RecipeRepository) Upsert(ctx context.Context, recipe domain.Recipe) error {
	if r == nil || r.base == nil {
		return errors.New("recipe repository not initialised")
	}
	recipeID := strings.TrimSpace(recipe.ID)
	if recipeID == "" {
		return errors.New("recipe repository: recipe id is required")
	}
	if strings.TrimSpace(recipe.ProductID) == "" {
		return errors.New("recipe repository: product id is required")
	}
	if _, err := r.base.Set(ctx, recipeID, encodeRecipeDocument(recipe)); err != nil {
		return err
	}
	return nil
}

// Delete removes the recipe.
func (r *RecipeRepository) Delete(ctx context.Context, recipeID string) error {
	if r == nil || r.base == nil {
		return errors.New("recipe repository not initialised")
	}
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return errors.New("recipe repository: recipe id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, recipeID)
	if err != nil {
		return err
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError("recipes.delete", err)
	}
	return nil
}

// FindByID fetches a single recipe.
func (r *RecipeRepository) FindByID(ctx context.Context, recipeID string) (domain.Recipe, error) {
	if r == nil || r.base == nil {
		return domain.Recipe{}, errors.New("recipe repository not initialised")
	}
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return domain.Recipe{}, errors.New("recipe repository: recipe id is required")
	}
	doc, err := r.base.Get(ctx, recipeID)
	if err != nil {
		return domain.Recipe{}, err
	}
	return doc.Data.toDomain(recipeID, doc.CreateTime), nil
}

// FindByProduct resolves the recipe attached to a product, if any.
func (r *RecipeRepository) FindByProduct(ctx context.Context, productID string) (domain.Recipe, error) {
	if r == nil || r.base == nil {
		return domain.Recipe{}, errors.New("recipe repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Recipe{}, errors.New("recipe repository: product id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).Limit(1)
	})
	if err != nil {
		return domain.Recipe{}, err
	}
	if len(docs) == 0 {
		return domain.Recipe{}, pfirestore.WrapError("recipes.findByProduct", status.Errorf(codes.NotFound, "no recipe for product %s", productID))
	}
	doc := docs[0]
	return doc.Data.toDomain(doc.ID, doc.CreateTime), nil
}

// List returns recipes ordered by name.
func (r *RecipeRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Recipe], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Recipe]{}, errors.New("recipe repository not initialised")
	}

	limit, fetchLimit := fetchLimits(pager.PageSize)

	var tokenName, tokenID string
	hasToken := false
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		var err error
		tokenName, tokenID, err = decodeStringToken(token)
		if err != nil {
			return domain.CursorPage[domain.Recipe]{}, fmt.Errorf("recipe repository: invalid page token: %w", err)
		}
		hasToken = true
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("nameFolded", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if hasToken {
			q = q.StartAfter(tokenName, tokenID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Recipe]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeStringToken(last.Data.NameFolded, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Recipe, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}

	return domain.CursorPage[domain.Recipe]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type recipeDocument struct {
	ProductID  string               `firestore:"productId"`
	Name       string               `firestore:"name"`
	NameFolded string               `firestore:"nameFolded"`
	Yield      int                  `firestore:"yield"`
	Items      []recipeItemDocument `firestore:"items"`
	CreatedAt  time.Time            `firestore:"createdAt"`
	UpdatedAt  time.Time            `firestore:"updatedAt"`
}

type recipeItemDocument struct {
	Name     string  `firestore:"name"`
	Quantity float64 `firestore:"quantity"`
	Unit     string  `firestore:"unit"`
	UnitCost int64   `firestore:"unitCostCents"`
}

func encodeRecipeDocument(recipe domain.Recipe) recipeDocument {
	items := make([]recipeItemDocument, len(recipe.Items))
	for i, item := range recipe.Items {
		items[i] = recipeItemDocument{
			Name:     strings.TrimSpace(item.Name),
			Quantity: item.Quantity,
			Unit:     strings.TrimSpace(item.Unit),
			UnitCost: item.UnitCost,
		}
	}
	name := strings.TrimSpace(recipe.Name)
	return recipeDocument{
		ProductID:  strings.TrimSpace(recipe.ProductID),
		Name:       name,
		NameFolded: textutil.Fold(name),
		Yield:      recipe.Yield,
		Items:      items,
		CreatedAt:  recipe.CreatedAt.UTC(),
		UpdatedAt:  recipe.UpdatedAt.UTC(),
	}
}

func (d recipeDocument) toDomain(id string, createdAt time.Time) domain.Recipe {
	items := make([]domain.RecipeItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.RecipeItem{
			Name:     strings.TrimSpace(item.Name),
			Quantity: item.Quantity,
			Unit:     strings.TrimSpace(item.Unit),
			UnitCost: item.UnitCost,
		}
	}
	return domain.Recipe{
		ID:        strings.TrimSpace(id),
		ProductID: strings.TrimSpace(d.ProductID),
		Name:      strings.TrimSpace(d.Name),
		Yield:     d.Yield,
		Items:     items,
		CreatedAt: chooseTime(d.CreatedAt, createdAt),
		UpdatedAt: chooseTime(d.UpdatedAt, createdAt),
	}
}
