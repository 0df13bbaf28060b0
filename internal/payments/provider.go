package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/pos"
)

// ErrUnsupportedMethod is returned when no provider is registered for the
// requested payment method.
var ErrUnsupportedMethod = errors.New("payments: unsupported payment method")

// Provider settles one payment. Implementations wrap a real acquirer or a
// simulated terminal; the checkout state machine only sees pos.Settler.
type Provider interface {
	Settle(ctx context.Context, req pos.SettlementRequest) (pos.Settlement, error)
}

// Manager routes settlement requests to providers by payment method and
// exposes the aggregated pos.Settler contract.
type Manager struct {
	routes   map[domain.PaymentMethod]Provider
	fallback Provider
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithMethodProvider registers a provider for a specific payment method.
func WithMethodProvider(method domain.PaymentMethod, provider Provider) ManagerOption {
	return func(m *Manager) {
		if provider == nil || !method.Valid() {
			return
		}
		m.routes[method] = provider
	}
}

// NewManager constructs a Manager with a fallback provider used for methods
// without an explicit route.
func NewManager(fallback Provider, opts ...ManagerOption) (*Manager, error) {
	if fallback == nil {
		return nil, errors.New("payments: fallback provider is required")
	}
	m := &Manager{
		routes:   make(map[domain.PaymentMethod]Provider),
		fallback: fallback,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Settle delegates to the provider routed for the request's method.
func (m *Manager) Settle(ctx context.Context, req pos.SettlementRequest) (pos.Settlement, error) {
	if m == nil {
		return pos.Settlement{}, errors.New("payments: manager is nil")
	}
	if !req.Method.Valid() {
		return pos.Settlement{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}
	provider, ok := m.routes[req.Method]
	if !ok {
		provider = m.fallback
	}
	return provider.Settle(ctx, req)
}
