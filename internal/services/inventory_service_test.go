package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/repositories"
)

func TestInventoryServiceAdjustStockJournalsMovement(t *testing.T) {
	now := time.Date(2025, 6, 3, 7, 30, 0, 0, time.UTC)
	var captured repositories.ApplyMovementRequest
	repo := &stubMovementRepo{
		applyFn: func(_ context.Context, req repositories.ApplyMovementRequest) (repositories.ApplyMovementResult, error) {
			captured = req
			return repositories.ApplyMovementResult{Movement: req.Movement, Stock: 12}, nil
		},
	}

	svc, err := NewInventoryService(InventoryServiceDeps{
		Movements:   repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "mov_1" },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	result, err := svc.AdjustStock(context.Background(), StockAdjustCommand{
		ProductID: "prod_1",
		Unit:      domain.UnitFilial,
		Delta:     -3,
		Note:      " quebra ",
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if result.Stock != 12 {
		t.Fatalf("expected stock 12, got %d", result.Stock)
	}
	if captured.Movement.ID != "mov_1" || captured.Movement.Kind != domain.MovementAdjustment {
		t.Fatalf("unexpected movement %+v", captured.Movement)
	}
	if captured.Movement.Note != "quebra" {
		t.Fatalf("expected trimmed note, got %q", captured.Movement.Note)
	}
	if !captured.Now.Equal(now) {
		t.Fatalf("expected clock in request, got %v", captured.Now)
	}
}

func TestInventoryServiceRecordProductionTargetsMatriz(t *testing.T) {
	var captured repositories.ApplyMovementRequest
	repo := &stubMovementRepo{
		applyFn: func(_ context.Context, req repositories.ApplyMovementRequest) (repositories.ApplyMovementResult, error) {
			captured = req
			return repositories.ApplyMovementResult{Movement: req.Movement, Stock: 70}, nil
		},
	}
	svc, err := NewInventoryService(InventoryServiceDeps{Movements: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	if _, err := svc.RecordProduction(context.Background(), ProductionCommand{
		ProductID: "prod_1",
		Quantity:  20,
	}); err != nil {
		t.Fatalf("record production: %v", err)
	}
	if captured.Movement.Unit != domain.UnitMatriz {
		t.Fatalf("expected production at matriz, got %s", captured.Movement.Unit)
	}
	if captured.Movement.Kind != domain.MovementProduction || captured.Movement.Delta != 20 {
		t.Fatalf("unexpected movement %+v", captured.Movement)
	}
}

func TestInventoryServiceTransferValidation(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{Movements: &stubMovementRepo{}})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	cases := []struct {
		name string
		cmd  StockTransferCommand
	}{
		{name: "missing product", cmd: StockTransferCommand{From: domain.UnitMatriz, To: domain.UnitFilial, Quantity: 1}},
		{name: "same unit", cmd: StockTransferCommand{ProductID: "p", From: domain.UnitMatriz, To: domain.UnitMatriz, Quantity: 1}},
		{name: "invalid unit", cmd: StockTransferCommand{ProductID: "p", From: "deposito", To: domain.UnitFilial, Quantity: 1}},
		{name: "zero quantity", cmd: StockTransferCommand{ProductID: "p", From: domain.UnitMatriz, To: domain.UnitFilial}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.TransferStock(context.Background(), tc.cmd); !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestInventoryServiceMapsStockErrors(t *testing.T) {
	cases := []struct {
		name string
		code repositories.StockErrorCode
		want error
	}{
		{name: "insufficient", code: repositories.StockErrorInsufficient, want: ErrInventoryInsufficientStock},
		{name: "product missing", code: repositories.StockErrorProductNotFound, want: ErrInventoryProductNotFound},
		{name: "invalid movement", code: repositories.StockErrorInvalidMovement, want: ErrInventoryInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubMovementRepo{
				applyFn: func(context.Context, repositories.ApplyMovementRequest) (repositories.ApplyMovementResult, error) {
					return repositories.ApplyMovementResult{}, repositories.NewStockError(tc.code, "boom", nil)
				},
			}
			svc, err := NewInventoryService(InventoryServiceDeps{Movements: repo})
			if err != nil {
				t.Fatalf("new inventory service: %v", err)
			}
			_, err = svc.AdjustStock(context.Background(), StockAdjustCommand{
				ProductID: "prod_1",
				Unit:      domain.UnitMatriz,
				Delta:     -1,
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInventoryServiceTransferUsesIDFactory(t *testing.T) {
	ids := []string{"mov_out", "mov_in"}
	var generated []string
	repo := &stubMovementRepo{
		transferFn: func(_ context.Context, req repositories.TransferRequest) (repositories.TransferResult, error) {
			generated = append(generated, req.IDFactory(), req.IDFactory())
			return repositories.TransferResult{FromStock: 3, ToStock: 9}, nil
		},
	}
	next := 0
	svc, err := NewInventoryService(InventoryServiceDeps{
		Movements: repo,
		IDGenerator: func() string {
			id := ids[next%len(ids)]
			next++
			return id
		},
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	result, err := svc.TransferStock(context.Background(), StockTransferCommand{
		ProductID: "prod_1",
		From:      domain.UnitMatriz,
		To:        domain.UnitFilial,
		Quantity:  4,
	})
	if err != nil {
		t.Fatalf("transfer stock: %v", err)
	}
	if len(generated) != 2 || generated[0] != "mov_out" || generated[1] != "mov_in" {
		t.Fatalf("expected generator-backed ids, got %v", generated)
	}
	if result.FromStock != 3 || result.ToStock != 9 {
		t.Fatalf("unexpected stocks %+v", result)
	}
}
