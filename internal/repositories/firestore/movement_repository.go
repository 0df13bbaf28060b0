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

// MovementRepository owns the inventory journal and the non-sale stock mutations.
type MovementRepository struct {
	provider  *pfirestore.Provider
	movements *pfirestore.BaseRepository[movementDocument]
	products  *pfirestore.BaseRepository[productDocument]
}

// NewMovementRepository constructs a Firestore-backed movement repository.
func NewMovementRepository(provider *pfirestore.Provider) (*MovementRepository, error) {
	if provider == nil {
		return nil, errors.New("movement repository: firestore provider is required")
	}
	return &MovementRepository{
		provider:  provider,
		movements: pfirestore.NewBaseRepository[movementDocument](provider, movementsCollection, nil, nil),
		products:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

// Apply mutates one unit's stock and journals the change in a single transaction.
func (r *MovementRepository) Apply(ctx context.Context, req repositories.ApplyMovementRequest) (repositories.ApplyMovementResult, error) {
	if r == nil || r.provider == nil {
		return repositories.ApplyMovementResult{}, errors.New("movement repository not initialised")
	}
	movement := req.Movement
	if err := validateMovement(movement); err != nil {
		return repositories.ApplyMovementResult{}, err
	}

	now := req.Now.UTC()
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = now
	}
	movement.CreatedAt = movement.CreatedAt.UTC()

	var result repositories.ApplyMovementResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef, err := r.products.DocumentRef(ctx, movement.ProductID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", movement.ProductID), err)
			}
			return err
		}
		var productDoc productDocument
		if err := snap.DataTo(&productDoc); err != nil {
			return fmt.Errorf("decode product %s: %w", movement.ProductID, err)
		}

		current := productDoc.stockFor(movement.Unit)
		next := current + movement.Delta
		if next < 0 {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", movement.ProductID), nil)
		}
		productDoc.setStock(movement.Unit, next)
		productDoc.UpdatedAt = now
		if err := tx.Set(productRef, productDoc); err != nil {
			return err
		}

		movementRef, err := r.movements.DocumentRef(ctx, movement.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(movementRef, encodeMovementDocument(movement)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("movement %s already journaled", movement.ID), err)
			}
			return err
		}

		result = repositories.ApplyMovementResult{
			Movement: movement,
			Stock:    next,
		}
		return nil
	})
	if err != nil {
		return repositories.ApplyMovementResult{}, wrapStockError("movements.apply", err)
	}
	return result, nil
}

// Transfer moves quantity between units and journals both sides atomically.
func (r *MovementRepository) Transfer(ctx context.Context, req repositories.TransferRequest) (repositories.TransferResult, error) {
	if r == nil || r.provider == nil {
		return repositories.TransferResult{}, errors.New("movement repository not initialised")
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return repositories.TransferResult{}, repositories.NewStockError(repositories.StockErrorInvalidMovement, "transfer product id is required", nil)
	}
	if !req.From.Valid() || !req.To.Valid() {
		return repositories.TransferResult{}, repositories.NewStockError(repositories.StockErrorInvalidMovement, "transfer units must be valid", nil)
	}
	if req.From == req.To {
		return repositories.TransferResult{}, repositories.NewStockError(repositories.StockErrorInvalidMovement, "transfer source and destination must differ", nil)
	}
	if req.Quantity <= 0 {
		return repositories.TransferResult{}, repositories.NewStockError(repositories.StockErrorInvalidMovement, "transfer quantity must be > 0", nil)
	}
	if req.IDFactory == nil {
		return repositories.TransferResult{}, errors.New("movement repository: id factory is required")
	}

	now := req.Now.UTC()
	outbound := domain.StockMovement{
		ID:        req.IDFactory(),
		ProductID: productID,
		Unit:      req.From,
		Kind:      domain.MovementTransfer,
		Delta:     -req.Quantity,
		Reference: "",
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: now,
	}
	inbound := domain.StockMovement{
		ID:        req.IDFactory(),
		ProductID: productID,
		Unit:      req.To,
		Kind:      domain.MovementTransfer,
		Delta:     req.Quantity,
		Reference: outbound.ID,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: now,
	}
	outbound.Reference = inbound.ID

	var result repositories.TransferResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
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

		fromStock := productDoc.stockFor(req.From)
		if fromStock < req.Quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s at %s", productID, req.From), nil)
		}
		toStock := productDoc.stockFor(req.To)
		productDoc.setStock(req.From, fromStock-req.Quantity)
		productDoc.setStock(req.To, toStock+req.Quantity)
		productDoc.UpdatedAt = now
		if err := tx.Set(productRef, productDoc); err != nil {
			return err
		}

		for _, movement := range []domain.StockMovement{outbound, inbound} {
			movementRef, err := r.movements.DocumentRef(ctx, movement.ID)
			if err != nil {
				return err
			}
			if err := tx.Create(movementRef, encodeMovementDocument(movement)); err != nil {
				return err
			}
		}

		result = repositories.TransferResult{
			Outbound:  outbound,
			Inbound:   inbound,
			FromStock: fromStock - req.Quantity,
			ToStock:   toStock + req.Quantity,
		}
		return nil
	})
	if err != nil {
		return repositories.TransferResult{}, wrapStockError("movements.transfer", err)
	}
	return result, nil
}

// List returns journal entries ordered by most recent first.
func (r *MovementRepository) List(ctx context.Context, filter repositories.MovementListFilter) (domain.CursorPage[domain.StockMovement], error) {
	if r == nil || r.movements == nil {
		return domain.CursorPage[domain.StockMovement]{}, errors.New("movement repository not initialised")
	}

	limit, fetchLimit := fetchLimits(filter.Pagination.PageSize)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.StockMovement]{}, fmt.Errorf("movement repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.movements.Query(ctx, func(q firestore.Query) firestore.Query {
		if productID := strings.TrimSpace(filter.ProductID); productID != "" {
			q = q.Where("productId", "==", productID)
		}
		if filter.Unit.Valid() {
			q = q.Where("unit", "==", string(filter.Unit))
		}
		if filter.Kind != "" {
			q = q.Where("kind", "==", string(filter.Kind))
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
		return domain.CursorPage[domain.StockMovement]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeListToken(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.StockMovement, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, doc.Data.toDomain(doc.ID, doc.CreateTime))
	}

	return domain.CursorPage[domain.StockMovement]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func validateMovement(movement domain.StockMovement) error {
	if strings.TrimSpace(movement.ID) == "" {
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, "movement id is required", nil)
	}
	if strings.TrimSpace(movement.ProductID) == "" {
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, "movement product id is required", nil)
	}
	if !movement.Unit.Valid() {
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, "movement unit must be valid", nil)
	}
	if movement.Delta == 0 {
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, "movement delta must be non-zero", nil)
	}
	switch movement.Kind {
	case domain.MovementAdjustment:
		return nil
	case domain.MovementProduction:
		if movement.Delta <= 0 {
			return repositories.NewStockError(repositories.StockErrorInvalidMovement, "production delta must be > 0", nil)
		}
		return nil
	case domain.MovementSale, domain.MovementTransfer:
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("movement kind %s is managed by its own flow", movement.Kind), nil)
	default:
		return repositories.NewStockError(repositories.StockErrorInvalidMovement, fmt.Sprintf("unknown movement kind %q", movement.Kind), nil)
	}
}

type movementDocument struct {
	ProductID string    `firestore:"productId"`
	Unit      string    `firestore:"unit"`
	Kind      string    `firestore:"kind"`
	Delta     int       `firestore:"delta"`
	Reference string    `firestore:"reference,omitempty"`
	Note      string    `firestore:"note,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeMovementDocument(movement domain.StockMovement) movementDocument {
	return movementDocument{
		ProductID: strings.TrimSpace(movement.ProductID),
		Unit:      string(movement.Unit),
		Kind:      string(movement.Kind),
		Delta:     movement.Delta,
		Reference: strings.TrimSpace(movement.Reference),
		Note:      strings.TrimSpace(movement.Note),
		CreatedAt: movement.CreatedAt.UTC(),
	}
}

func (d movementDocument) toDomain(id string, createdAt time.Time) domain.StockMovement {
	return domain.StockMovement{
		ID:        strings.TrimSpace(id),
		ProductID: strings.TrimSpace(d.ProductID),
		Unit:      domain.BusinessUnit(strings.TrimSpace(d.Unit)),
		Kind:      domain.StockMovementKind(strings.TrimSpace(d.Kind)),
		Delta:     d.Delta,
		Reference: strings.TrimSpace(d.Reference),
		Note:      strings.TrimSpace(d.Note),
		CreatedAt: chooseTime(d.CreatedAt, createdAt),
	}
}
