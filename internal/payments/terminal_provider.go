package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gelomax/api/internal/pos"
)

const defaultTerminalDelay = 2 * time.Second

// TerminalProviderConfig configures the simulated terminal.
type TerminalProviderConfig struct {
	Delay  time.Duration
	Clock  func() time.Time
	Prefix string
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// TerminalProvider simulates a payment terminal: it waits a fixed settlement
// delay and always approves, issuing a fresh authorization code. Used for
// Pix and cash, and for every method in development.
type TerminalProvider struct {
	delay  time.Duration
	clock  func() time.Time
	prefix string
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewTerminalProvider constructs the simulated terminal provider.
func NewTerminalProvider(cfg TerminalProviderConfig) *TerminalProvider {
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultTerminalDelay
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "TRM"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &TerminalProvider{
		delay:  delay,
		clock:  func() time.Time { return clock().UTC() },
		prefix: prefix,
		logger: logger,
	}
}

// Settle waits the configured delay and approves the payment. The wait is
// context-aware so a dying server does not hold goroutines hostage.
func (p *TerminalProvider) Settle(ctx context.Context, req pos.SettlementRequest) (pos.Settlement, error) {
	if p == nil {
		return pos.Settlement{}, errors.New("terminal: provider is nil")
	}
	if req.Amount <= 0 {
		return pos.Settlement{}, errors.New("terminal: amount must be positive")
	}

	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return pos.Settlement{}, ctx.Err()
	case <-timer.C:
	}

	settlement := pos.Settlement{
		Authorization: p.prefix + "-" + ulid.Make().String(),
		SettledAt:     p.clock(),
	}
	p.logger(ctx, "payments.terminal_settled", map[string]any{
		"saleId": req.SaleID,
		"method": string(req.Method),
		"amount": req.Amount,
	})
	return settlement, nil
}
