package pos

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/platform/textutil"
)

const (
	// LabelWholesaleDefault labels wholesale sales with no attached customer.
	LabelWholesaleDefault = "Cliente Atacado"
	// LabelRetailDefault labels retail walk-in sales.
	LabelRetailDefault = "Consumidor Final"
)

// RegisterDeps wires the collaborators a register needs.
type RegisterDeps struct {
	Unit        domain.BusinessUnit
	Products    []domain.Product
	Customers   []domain.Customer
	Settler     Settler
	Recorder    Recorder
	OperatorID  string
	Clock       func() time.Time
	IDGenerator func() string
}

// Register owns one point-of-sale session: the active unit, the catalog
// view, the cart, a pending negotiation, the attached customer, and at most
// one checkout session. Mutations are serialized; while a checkout is
// processing, everything except reads is rejected.
type Register struct {
	mu         sync.Mutex
	unit       domain.BusinessUnit
	catalog    Catalog
	customers  []domain.Customer
	cart       *Cart
	pending    *Negotiation
	customer   *domain.Customer
	session    *CheckoutSession
	settler    Settler
	recorder   Recorder
	operatorID string
	now        func() time.Time
	newID      func() string
}

// NewRegister constructs a register validating required dependencies.
func NewRegister(deps RegisterDeps) (*Register, error) {
	if !deps.Unit.Valid() {
		return nil, fmt.Errorf("pos: unknown business unit %q", deps.Unit)
	}
	if deps.Settler == nil {
		return nil, errors.New("pos: settler is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("pos: recorder is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	catalog := NewCatalog(deps.Products)
	reg := &Register{
		unit:       deps.Unit,
		catalog:    catalog,
		customers:  append([]domain.Customer(nil), deps.Customers...),
		settler:    deps.Settler,
		recorder:   deps.Recorder,
		operatorID: deps.OperatorID,
		now:        func() time.Time { return clock().UTC() },
		newID:      idGen,
	}
	reg.cart = NewCart(deps.Unit, catalog)
	return reg, nil
}

// Unit returns the active business unit.
func (r *Register) Unit() domain.BusinessUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unit
}

// SwitchUnit changes the active unit and clears the cart. Rejected while a
// checkout session exists.
func (r *Register) SwitchUnit(unit domain.BusinessUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !unit.Valid() {
		return fmt.Errorf("pos: unknown business unit %q", unit)
	}
	if r.session != nil {
		if r.session.stage == StageProcessing {
			return ErrRegisterBusy
		}
		return ErrCheckoutInProgress
	}
	if unit == r.unit {
		return nil
	}
	r.unit = unit
	r.cart = NewCart(unit, r.catalog)
	r.pending = nil
	return nil
}

// FilterCatalog returns the visible items for the active unit and query.
func (r *Register) FilterCatalog(query string) []domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog.Filter(r.unit, query)
}

// RefreshCatalog replaces the product snapshot the register reads prices and
// stock from.
func (r *Register) RefreshCatalog(products []domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog = NewCatalog(products)
	r.cart.source = r.catalog
}

// AddItem puts the product in the cart at its catalog price, or opens a
// negotiation when the item requires an operator-entered price at the
// wholesale unit. The returned negotiation is nil when the item was added
// directly.
func (r *Register) AddItem(productID string, quantity int) (*Negotiation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardMutable(); err != nil {
		return nil, err
	}
	product, ok := r.catalog.Find(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if RequiresNegotiation(product, r.unit) {
		r.pending = newNegotiation(product)
		return r.pending, nil
	}
	if err := r.cart.Add(productID, quantity, nil); err != nil {
		return nil, err
	}
	return nil, nil
}

// Negotiation returns the pending negotiation, if any.
func (r *Register) Negotiation() *Negotiation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// ConfirmNegotiation validates the operator inputs and admits the line. The
// dialog stays open on an invalid price.
func (r *Register) ConfirmNegotiation(quantity int, price int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardMutable(); err != nil {
		return err
	}
	if r.pending == nil {
		return ErrNoNegotiation
	}
	if err := r.pending.set(quantity, price); err != nil {
		return err
	}
	negotiated := r.pending.price
	if err := r.cart.Add(r.pending.product.ID, r.pending.quantity, &negotiated); err != nil {
		return err
	}
	r.pending = nil
	return nil
}

// CancelNegotiation discards the pending state without touching the cart.
func (r *Register) CancelNegotiation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
}

// RemoveLine deletes the cart line matching the composite key exactly.
func (r *Register) RemoveLine(productID string, negotiated *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardMutable(); err != nil {
		return err
	}
	r.cart.Remove(productID, negotiated)
	return nil
}

// AdjustLine changes the matching line's quantity by delta.
func (r *Register) AdjustLine(productID string, delta int, negotiated *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardMutable(); err != nil {
		return err
	}
	return r.cart.Adjust(productID, delta, negotiated)
}

// Lines returns the cart snapshot in insertion order.
func (r *Register) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cart.Lines()
}

// Total returns the cart total in centavos.
func (r *Register) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cart.Total()
}

// SearchCustomers matches the query against customer names and documents,
// ignoring case and diacritics.
func (r *Register) SearchCustomers(query string) []domain.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]domain.Customer, 0, 8)
	for _, c := range r.customers {
		if textutil.ContainsFold(c.Name, query) || textutil.ContainsFold(c.Document, query) {
			matches = append(matches, c)
		}
	}
	return matches
}

// AttachCustomer associates a known customer with the in-progress
// transaction. Advisory metadata only; pricing and stock are unaffected.
func (r *Register) AttachCustomer(customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.guardMutable(); err != nil {
		return err
	}
	for i := range r.customers {
		if r.customers[i].ID == customerID {
			customer := r.customers[i]
			r.customer = &customer
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCustomerNotFound, customerID)
}

// DetachCustomer reverts to the unit-default labelling.
func (r *Register) DetachCustomer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customer = nil
}

// Customer returns the attached customer, if any.
func (r *Register) Customer() (domain.Customer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.customer == nil {
		return domain.Customer{}, false
	}
	return *r.customer, true
}

// RefreshCustomers replaces the customer list used by search.
func (r *Register) RefreshCustomers(customers []domain.Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers = append([]domain.Customer(nil), customers...)
}

// BeginCheckout opens a checkout session over the current cart. Entering
// with an empty cart or while a session exists is rejected.
func (r *Register) BeginCheckout() (*CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		if r.session.stage == StageProcessing {
			return nil, ErrRegisterBusy
		}
		return nil, ErrCheckoutInProgress
	}
	if r.cart.Empty() {
		return nil, ErrEmptyCart
	}
	r.session = &CheckoutSession{register: r, stage: StageMethodSelect}
	return r.session, nil
}

// Checkout returns the active checkout session.
func (r *Register) Checkout() (*CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil, ErrNoCheckout
	}
	return r.session, nil
}

func (r *Register) customerLabelLocked() string {
	if r.customer != nil && r.customer.Name != "" {
		return r.customer.Name
	}
	if r.unit == domain.UnitMatriz {
		return LabelWholesaleDefault
	}
	return LabelRetailDefault
}

func (r *Register) guardMutable() error {
	if r.session != nil && r.session.stage == StageProcessing {
		return ErrRegisterBusy
	}
	return nil
}
