package pos

import (
	"context"
	"fmt"
	"time"

	"github.com/gelomax/api/internal/domain"
)

// Stage enumerates the checkout state machine positions.
type Stage string

const (
	// StageMethodSelect is the initial stage: the operator picks a payment
	// method and, for cash, enters the received amount.
	StageMethodSelect Stage = "method_select"
	// StageProcessing is the settlement suspension; every other mutation on
	// the register is rejected until it completes.
	StageProcessing Stage = "processing"
	// StageReceipt is the terminal stage holding the finalized sale for
	// receipt rendering until Finish.
	StageReceipt Stage = "receipt"
	// StageAborted marks a discarded session; a stale reference to it can no
	// longer drive any transition.
	StageAborted Stage = "aborted"
)

// SettlementRequest describes one payment to settle.
type SettlementRequest struct {
	SaleID string
	Unit   domain.BusinessUnit
	Method domain.PaymentMethod
	Amount int64
}

// Settlement is the provider's confirmation of a settled payment.
type Settlement struct {
	Authorization string
	SettledAt     time.Time
}

// Settler confirms a payment before the sale is finalized. It is the single
// suspension point of the checkout flow; a real payment terminal can be
// substituted without changing the transition contract.
type Settler interface {
	Settle(ctx context.Context, req SettlementRequest) (Settlement, error)
}

// Recorder receives ownership of finalized sales. Stock decrement happens
// behind this boundary, never in this package.
type Recorder interface {
	RecordSale(ctx context.Context, sale domain.Sale) (domain.Sale, error)
}

// CheckoutSession drives one checkout attempt over the register's cart.
// All precondition violations are rejected synchronously without mutating
// state. The settlement suspension is entered without holding the register
// lock so concurrent operations are rejected rather than blocked.
type CheckoutSession struct {
	register     *Register
	stage        Stage
	method       domain.PaymentMethod
	cashReceived int64
	receipt      *domain.Sale
}

// Stage returns the current state machine position.
func (s *CheckoutSession) Stage() Stage {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	return s.stage
}

// Method returns the selected payment method, empty when none is selected.
func (s *CheckoutSession) Method() domain.PaymentMethod {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	return s.method
}

// SelectMethod picks the payment method. Allowed only in method selection.
func (s *CheckoutSession) SelectMethod(method domain.PaymentMethod) error {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	if s.stage != StageMethodSelect {
		return fmt.Errorf("%w: select method in %s", ErrInvalidStateTransition, s.stage)
	}
	if !method.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidStateTransition, method)
	}
	s.method = method
	if method != domain.PaymentCash {
		s.cashReceived = 0
	}
	return nil
}

// SetCashReceived records the cash amount handed over by the customer.
func (s *CheckoutSession) SetCashReceived(amount int64) error {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	if s.stage != StageMethodSelect {
		return fmt.Errorf("%w: set cash in %s", ErrInvalidStateTransition, s.stage)
	}
	if amount < 0 {
		return ErrInvalidCashAmount
	}
	s.cashReceived = amount
	return nil
}

// Change returns the cash change for display, floored at zero. A shortfall
// never reaches Confirm; the zero floor is display-level defence only.
func (s *CheckoutSession) Change() int64 {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	if s.method != domain.PaymentCash {
		return 0
	}
	change := s.cashReceived - s.register.cart.Total()
	if change < 0 {
		return 0
	}
	return change
}

// CanConfirm reports whether Confirm would pass its preconditions.
func (s *CheckoutSession) CanConfirm() bool {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	return s.canConfirmLocked()
}

func (s *CheckoutSession) canConfirmLocked() bool {
	if s.stage != StageMethodSelect || !s.method.Valid() {
		return false
	}
	if s.register.cart.Empty() {
		return false
	}
	if s.method == domain.PaymentCash && s.cashReceived < s.register.cart.Total() {
		return false
	}
	return true
}

// Confirm settles the payment and finalizes the transaction: it snapshots
// line prices into an immutable sale, hands it to the ledger, and moves to
// the receipt stage. Settlement or ledger failures return the session to
// method selection for a manual retry.
func (s *CheckoutSession) Confirm(ctx context.Context) (domain.Sale, error) {
	reg := s.register

	reg.mu.Lock()
	if s.stage != StageMethodSelect {
		stage := s.stage
		reg.mu.Unlock()
		return domain.Sale{}, fmt.Errorf("%w: confirm in %s", ErrInvalidStateTransition, stage)
	}
	if !s.method.Valid() {
		reg.mu.Unlock()
		return domain.Sale{}, fmt.Errorf("%w: payment method not selected", ErrInvalidStateTransition)
	}
	if reg.cart.Empty() {
		reg.mu.Unlock()
		return domain.Sale{}, ErrEmptyCart
	}
	total := reg.cart.Total()
	if s.method == domain.PaymentCash && s.cashReceived < total {
		received := s.cashReceived
		reg.mu.Unlock()
		return domain.Sale{}, fmt.Errorf("%w: received %d of %d", ErrInvalidCashAmount, received, total)
	}
	sale := s.buildSaleLocked(total)
	s.stage = StageProcessing
	reg.mu.Unlock()

	settlement, err := reg.settler.Settle(ctx, SettlementRequest{
		SaleID: sale.ID,
		Unit:   sale.Unit,
		Method: sale.Method,
		Amount: sale.Total,
	})
	if err != nil {
		reg.mu.Lock()
		s.stage = StageMethodSelect
		reg.mu.Unlock()
		return domain.Sale{}, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	sale.Authorization = settlement.Authorization

	recorded, err := reg.recorder.RecordSale(ctx, sale)
	if err != nil {
		reg.mu.Lock()
		s.stage = StageMethodSelect
		reg.mu.Unlock()
		return domain.Sale{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	reg.mu.Lock()
	s.receipt = &recorded
	s.stage = StageReceipt
	reg.mu.Unlock()
	return recorded, nil
}

// Abort discards the session before processing begins; the cart is preserved.
func (s *CheckoutSession) Abort() error {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	if s.stage != StageMethodSelect {
		return fmt.Errorf("%w: abort in %s", ErrInvalidStateTransition, s.stage)
	}
	s.stage = StageAborted
	s.register.session = nil
	return nil
}

// Finish ends the session from the receipt stage, clearing the cart and the
// attached customer for the next client.
func (s *CheckoutSession) Finish() error {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	if s.stage != StageReceipt {
		return fmt.Errorf("%w: finish in %s", ErrInvalidStateTransition, s.stage)
	}
	s.register.cart.Clear()
	s.register.customer = nil
	s.register.session = nil
	return nil
}

// Receipt returns the finalized sale retained for rendering, valid from the
// receipt stage until Finish.
func (s *CheckoutSession) Receipt() (domain.Sale, bool) {
	s.register.mu.Lock()
	defer s.register.mu.Unlock()
	if s.receipt == nil {
		return domain.Sale{}, false
	}
	return *s.receipt, true
}

func (s *CheckoutSession) buildSaleLocked(total int64) domain.Sale {
	reg := s.register
	lines := reg.cart.Lines()
	saleLines := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		price := reg.cart.resolvePrice(line)
		saleLines = append(saleLines, domain.SaleLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			Negotiated:  line.Negotiated != nil,
			Total:       price * int64(line.Quantity),
		})
	}

	sale := domain.Sale{
		ID:            reg.newID(),
		Unit:          reg.unit,
		CustomerLabel: reg.customerLabelLocked(),
		Lines:         saleLines,
		Total:         total,
		Method:        s.method,
		OperatorID:    reg.operatorID,
		InvoiceStatus: domain.InvoiceStatusNone,
		CreatedAt:     reg.now(),
	}
	if reg.customer != nil {
		sale.CustomerID = reg.customer.ID
		sale.InvoiceEligible = reg.customer.Document != ""
	}
	if reg.unit == domain.UnitFilial {
		sale.InvoiceEligible = true
	}
	if s.method == domain.PaymentCash {
		sale.CashReceived = s.cashReceived
		sale.Change = s.cashReceived - total
	}
	return sale
}
