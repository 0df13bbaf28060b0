package pos

import (
	"github.com/gelomax/api/internal/domain"
)

// Negotiation holds an item awaiting an operator-entered quantity and unit
// price before it is admitted to the cart. It exists only while the dialog
// is open and is discarded on confirm or cancel.
type Negotiation struct {
	product  domain.Product
	quantity int
	price    int64
}

func newNegotiation(product domain.Product) *Negotiation {
	return &Negotiation{product: product, quantity: 1}
}

// Product returns the item under negotiation.
func (n *Negotiation) Product() domain.Product {
	return n.product
}

// Quantity returns the operator-entered quantity, defaulting to 1.
func (n *Negotiation) Quantity() int {
	return n.quantity
}

// Price returns the operator-entered unit price in centavos; zero means the
// price has not been entered yet.
func (n *Negotiation) Price() int64 {
	return n.price
}

// set validates and stores the operator inputs. Price must be strictly
// positive; quantity below 1 keeps the minimum of 1.
func (n *Negotiation) set(quantity int, price int64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}
	if quantity < 1 {
		quantity = 1
	}
	n.quantity = quantity
	n.price = price
	return nil
}
