package pos

import "errors"

var (
	// ErrStockExceeded indicates the requested quantity exceeds the stock
	// available for the item at the active unit. The cart is left unchanged.
	ErrStockExceeded = errors.New("pos: requested quantity exceeds available stock")

	// ErrInvalidQuantity indicates a non-positive quantity was supplied.
	ErrInvalidQuantity = errors.New("pos: quantity must be greater than zero")

	// ErrInvalidPrice indicates a negotiated price is missing, zero, or negative.
	ErrInvalidPrice = errors.New("pos: negotiated price must be greater than zero")

	// ErrInvalidCashAmount indicates the cash received is less than the sale total.
	ErrInvalidCashAmount = errors.New("pos: cash received is less than the total")

	// ErrInvalidStateTransition indicates an operation was invoked outside its
	// allowed checkout stage. State is never mutated.
	ErrInvalidStateTransition = errors.New("pos: operation not allowed in current stage")

	// ErrProductNotFound indicates the referenced product is not in the catalog.
	ErrProductNotFound = errors.New("pos: product not found")

	// ErrLineNotFound indicates no cart line matches the given composite key.
	ErrLineNotFound = errors.New("pos: cart line not found")

	// ErrNegotiationRequired indicates the item is sold at the wholesale unit
	// only with an operator-entered price and must go through negotiation.
	ErrNegotiationRequired = errors.New("pos: item requires a negotiated price")

	// ErrNoNegotiation indicates no negotiation dialog is currently open.
	ErrNoNegotiation = errors.New("pos: no negotiation in progress")

	// ErrEmptyCart indicates checkout cannot start because the cart is empty.
	ErrEmptyCart = errors.New("pos: cart is empty")

	// ErrCheckoutInProgress indicates the register already owns an active
	// checkout session.
	ErrCheckoutInProgress = errors.New("pos: checkout already in progress")

	// ErrNoCheckout indicates no checkout session is active on the register.
	ErrNoCheckout = errors.New("pos: no checkout in progress")

	// ErrRegisterBusy indicates the register is suspended waiting for
	// settlement and rejects every other mutation.
	ErrRegisterBusy = errors.New("pos: register is settling a payment")

	// ErrCustomerNotFound indicates the referenced customer is unknown.
	ErrCustomerNotFound = errors.New("pos: customer not found")

	// ErrSettlementFailed wraps settlement provider failures surfaced to the
	// operator; the session returns to method selection for a manual retry.
	ErrSettlementFailed = errors.New("pos: settlement failed")

	// ErrLedgerUnavailable wraps ledger recording failures; the session
	// returns to method selection so the sale can be retried.
	ErrLedgerUnavailable = errors.New("pos: sales ledger unavailable")
)
