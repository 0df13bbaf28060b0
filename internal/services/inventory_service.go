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
	eventStockAdjusted   = "inventory.stock_adjusted"
	eventStockProduced   = "inventory.stock_produced"
	eventStockTransfered = "inventory.stock_transferred"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryProductNotFound indicates the product could not be located.
	ErrInventoryProductNotFound = errors.New("inventory: product not found")
	// ErrInventoryInsufficientStock indicates the mutation would drive stock below zero.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryUnavailable indicates a transient persistence outage.
	ErrInventoryUnavailable = errors.New("inventory: temporarily unavailable")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Movements   repositories.MovementRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.MovementRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Movements == nil {
		return nil, errors.New("inventory service: movement repository is required")
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

	return &inventoryService{
		repo: deps.Movements,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, cmd StockAdjustCommand) (StockMutation, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return StockMutation{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if !cmd.Unit.Valid() {
		return StockMutation{}, fmt.Errorf("%w: unknown business unit %q", ErrInventoryInvalidInput, cmd.Unit)
	}
	if cmd.Delta == 0 {
		return StockMutation{}, fmt.Errorf("%w: delta must be non-zero", ErrInventoryInvalidInput)
	}

	now := s.clock()
	result, err := s.repo.Apply(ctx, repositories.ApplyMovementRequest{
		Movement: domain.StockMovement{
			ID:        s.newID(),
			ProductID: productID,
			Unit:      cmd.Unit,
			Kind:      domain.MovementAdjustment,
			Delta:     cmd.Delta,
			Note:      strings.TrimSpace(cmd.Note),
			CreatedAt: now,
		},
		Now: now,
	})
	if err != nil {
		return StockMutation{}, s.mapError(err)
	}

	s.logger(ctx, eventStockAdjusted, map[string]any{
		"product_id": productID,
		"unit":       string(cmd.Unit),
		"delta":      cmd.Delta,
		"stock":      result.Stock,
	})
	return StockMutation{Movement: result.Movement, Stock: result.Stock}, nil
}

func (s *inventoryService) RecordProduction(ctx context.Context, cmd ProductionCommand) (StockMutation, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return StockMutation{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return StockMutation{}, fmt.Errorf("%w: quantity must be > 0", ErrInventoryInvalidInput)
	}

	now := s.clock()
	result, err := s.repo.Apply(ctx, repositories.ApplyMovementRequest{
		Movement: domain.StockMovement{
			ID:        s.newID(),
			ProductID: productID,
			Unit:      domain.UnitMatriz,
			Kind:      domain.MovementProduction,
			Delta:     cmd.Quantity,
			Note:      strings.TrimSpace(cmd.Note),
			CreatedAt: now,
		},
		Now: now,
	})
	if err != nil {
		return StockMutation{}, s.mapError(err)
	}

	s.logger(ctx, eventStockProduced, map[string]any{
		"product_id": productID,
		"quantity":   cmd.Quantity,
		"stock":      result.Stock,
	})
	return StockMutation{Movement: result.Movement, Stock: result.Stock}, nil
}

func (s *inventoryService) TransferStock(ctx context.Context, cmd StockTransferCommand) (StockTransfer, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return StockTransfer{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if !cmd.From.Valid() || !cmd.To.Valid() {
		return StockTransfer{}, fmt.Errorf("%w: transfer units must be valid", ErrInventoryInvalidInput)
	}
	if cmd.From == cmd.To {
		return StockTransfer{}, fmt.Errorf("%w: source and destination must differ", ErrInventoryInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return StockTransfer{}, fmt.Errorf("%w: quantity must be > 0", ErrInventoryInvalidInput)
	}

	result, err := s.repo.Transfer(ctx, repositories.TransferRequest{
		ProductID: productID,
		From:      cmd.From,
		To:        cmd.To,
		Quantity:  cmd.Quantity,
		Note:      strings.TrimSpace(cmd.Note),
		Now:       s.clock(),
		IDFactory: s.newID,
	})
	if err != nil {
		return StockTransfer{}, s.mapError(err)
	}

	s.logger(ctx, eventStockTransfered, map[string]any{
		"product_id": productID,
		"from":       string(cmd.From),
		"to":         string(cmd.To),
		"quantity":   cmd.Quantity,
	})
	return StockTransfer{
		Outbound:  result.Outbound,
		Inbound:   result.Inbound,
		FromStock: result.FromStock,
		ToStock:   result.ToStock,
	}, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, query MovementListQuery) (domain.CursorPage[domain.StockMovement], error) {
	page, err := s.repo.List(ctx, repositories.MovementListFilter{
		ProductID: strings.TrimSpace(query.ProductID),
		Unit:      query.Unit,
		Kind:      query.Kind,
		Pagination: domain.Pagination{
			PageSize:  query.PageSize,
			PageToken: strings.TrimSpace(query.PageToken),
		},
	})
	if err != nil {
		return domain.CursorPage[domain.StockMovement]{}, s.mapError(err)
	}
	return page, nil
}

func (s *inventoryService) mapError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, stockErr.Message)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryProductNotFound, stockErr.Message)
		case repositories.StockErrorInvalidMovement:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}
	return err
}
