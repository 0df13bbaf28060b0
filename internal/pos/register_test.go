package pos

import (
	"errors"
	"testing"

	"github.com/gelomax/api/internal/domain"
)

func TestNewRegisterValidation(t *testing.T) {
	if _, err := NewRegister(RegisterDeps{Unit: "deposito"}); err == nil {
		t.Fatalf("expected error for unknown unit")
	}
	if _, err := NewRegister(RegisterDeps{Unit: domain.UnitFilial, Recorder: &stubRecorder{}}); err == nil {
		t.Fatalf("expected error when settler missing")
	}
	if _, err := NewRegister(RegisterDeps{Unit: domain.UnitFilial, Settler: &stubSettler{}}); err == nil {
		t.Fatalf("expected error when recorder missing")
	}
}

func TestNegotiationFlow(t *testing.T) {
	reg := newTestRegister(t, domain.UnitMatriz, nil, nil)

	pending, err := reg.AddItem("prod_gelo_cubo", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending == nil {
		t.Fatalf("expected wholesale ice to open a negotiation")
	}
	if pending.Quantity() != 1 {
		t.Fatalf("quantity must default to 1, got %d", pending.Quantity())
	}

	// Price zero keeps the dialog open and the cart untouched.
	if err := reg.ConfirmNegotiation(4, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if reg.Negotiation() == nil {
		t.Fatalf("negotiation must stay open after an invalid price")
	}
	if !reg.cart.Empty() {
		t.Fatalf("cart must be untouched after an invalid price")
	}

	if err := reg.ConfirmNegotiation(4, 1250); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Negotiation() != nil {
		t.Fatalf("pending state must be discarded on confirm")
	}
	lines := reg.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if lines[0].Negotiated == nil || *lines[0].Negotiated != 1250 {
		t.Fatalf("expected negotiated price 1250, got %#v", lines[0].Negotiated)
	}
	if got := reg.Total(); got != 5000 {
		t.Fatalf("expected line total 5000, got %d", got)
	}
}

func TestNegotiationCancel(t *testing.T) {
	reg := newTestRegister(t, domain.UnitMatriz, nil, nil)
	if _, err := reg.AddItem("prod_gelo_cubo", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg.CancelNegotiation()
	if reg.Negotiation() != nil {
		t.Fatalf("cancel must discard the pending state")
	}
	if !reg.cart.Empty() {
		t.Fatalf("cancel must not mutate the cart")
	}
	if err := reg.ConfirmNegotiation(1, 1000); !errors.Is(err, ErrNoNegotiation) {
		t.Fatalf("expected ErrNoNegotiation, got %v", err)
	}
}

func TestSwitchUnitClearsCart(t *testing.T) {
	reg := newTestRegister(t, domain.UnitFilial, nil, nil)
	if _, err := reg.AddItem("prod_agua", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.SwitchUnit(domain.UnitMatriz); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.cart.Empty() {
		t.Fatalf("unit switch must clear the cart")
	}
	if reg.Unit() != domain.UnitMatriz {
		t.Fatalf("expected matriz unit")
	}

	// Switching to the current unit is a no-op and keeps the cart.
	if err := reg.ConfirmNegotiationFor(t, "prod_gelo_cubo", 1, 900); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.SwitchUnit(domain.UnitMatriz); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.cart.Empty() {
		t.Fatalf("same-unit switch must not clear the cart")
	}
}

func TestSwitchUnitRejectedDuringCheckout(t *testing.T) {
	reg := newTestRegister(t, domain.UnitFilial, nil, nil)
	if _, err := reg.AddItem("prod_agua", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reg.BeginCheckout(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.SwitchUnit(domain.UnitMatriz); !errors.Is(err, ErrCheckoutInProgress) {
		t.Fatalf("expected ErrCheckoutInProgress, got %v", err)
	}
}

func TestSearchCustomers(t *testing.T) {
	reg := newTestRegister(t, domain.UnitFilial, nil, nil)

	t.Run("folded name match", func(t *testing.T) {
		got := reg.SearchCustomers("jose")
		if len(got) != 1 || got[0].ID != "cust_jose" {
			t.Fatalf("expected José match, got %#v", got)
		}
	})

	t.Run("document match", func(t *testing.T) {
		got := reg.SearchCustomers("0001-90")
		if len(got) != 1 || got[0].ID != "cust_bar" {
			t.Fatalf("expected document match, got %#v", got)
		}
	})

	t.Run("empty query returns all", func(t *testing.T) {
		if got := reg.SearchCustomers(""); len(got) != 2 {
			t.Fatalf("expected all customers, got %d", len(got))
		}
	})

	t.Run("attach unknown customer", func(t *testing.T) {
		if err := reg.AttachCustomer("cust_nope"); !errors.Is(err, ErrCustomerNotFound) {
			t.Fatalf("expected ErrCustomerNotFound, got %v", err)
		}
	})
}
