package pos

import (
	"fmt"

	"github.com/gelomax/api/internal/domain"
)

// lineKey is the composite identity of a cart line: the product plus the
// negotiated price, with "no negotiated price" as a distinct value. Two adds
// of the same product at different negotiated prices yield two lines; adds
// with an identical key merge.
type lineKey struct {
	productID  string
	negotiated bool
	price      int64
}

func newLineKey(productID string, negotiated *int64) lineKey {
	key := lineKey{productID: productID}
	if negotiated != nil {
		key.negotiated = true
		key.price = *negotiated
	}
	return key
}

// Line is one cart entry: a product at one price point and quantity.
type Line struct {
	ProductID   string
	ProductName string
	Quantity    int
	Negotiated  *int64
}

// Cart is an ordered collection of lines owned by a register. It never
// mutates stock; it only refuses mutations that would exceed it.
type Cart struct {
	unit   domain.BusinessUnit
	source ProductSource
	lines  []Line
	index  map[lineKey]int
}

// NewCart constructs an empty cart bound to a unit and product source.
func NewCart(unit domain.BusinessUnit, source ProductSource) *Cart {
	return &Cart{
		unit:   unit,
		source: source,
		index:  make(map[lineKey]int),
	}
}

// Add appends or merges a line for the product. Negotiated carries the
// operator-entered unit price for wholesale ice sales and must be positive
// when present. The mutation is rejected with ErrStockExceeded when the
// resulting quantity would exceed the current stock at the active unit.
func (c *Cart) Add(productID string, quantity int, negotiated *int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	product, ok := c.source.Find(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if negotiated != nil && *negotiated <= 0 {
		return ErrInvalidPrice
	}
	if negotiated == nil && RequiresNegotiation(product, c.unit) {
		return fmt.Errorf("%w: %s", ErrNegotiationRequired, product.Name)
	}

	stock := product.StockFor(c.unit)
	key := newLineKey(productID, negotiated)
	if idx, exists := c.index[key]; exists {
		next := c.lines[idx].Quantity + quantity
		if next > stock {
			return fmt.Errorf("%w: %s has %d in stock", ErrStockExceeded, product.Name, stock)
		}
		c.lines[idx].Quantity = next
		return nil
	}

	if quantity > stock {
		return fmt.Errorf("%w: %s has %d in stock", ErrStockExceeded, product.Name, stock)
	}
	c.lines = append(c.lines, Line{
		ProductID:   productID,
		ProductName: product.Name,
		Quantity:    quantity,
		Negotiated:  clonePrice(negotiated),
	})
	c.index[key] = len(c.lines) - 1
	return nil
}

// Remove deletes the line matching the composite key exactly. Removing an
// absent line is a no-op.
func (c *Cart) Remove(productID string, negotiated *int64) {
	key := newLineKey(productID, negotiated)
	idx, ok := c.index[key]
	if !ok {
		return
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	c.reindex()
}

// Adjust changes the matching line's quantity by delta. The line is removed
// when the result drops to zero or below, and the mutation is rejected with
// ErrStockExceeded when the result exceeds current stock.
func (c *Cart) Adjust(productID string, delta int, negotiated *int64) error {
	key := newLineKey(productID, negotiated)
	idx, ok := c.index[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
	}
	next := c.lines[idx].Quantity + delta
	if next <= 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		c.reindex()
		return nil
	}
	product, found := c.source.Find(productID)
	if !found {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if stock := product.StockFor(c.unit); next > stock {
		return fmt.Errorf("%w: %s has %d in stock", ErrStockExceeded, product.Name, stock)
	}
	c.lines[idx].Quantity = next
	return nil
}

// Total sums resolved unit price times quantity over all lines. The resolved
// price prefers the negotiated price over the unit-appropriate catalog price.
func (c *Cart) Total() int64 {
	var total int64
	for _, line := range c.lines {
		total += c.resolvePrice(line) * int64(line.Quantity)
	}
	return total
}

// Lines returns a snapshot of the cart in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	for i := range out {
		out[i].Negotiated = clonePrice(out[i].Negotiated)
	}
	return out
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Clear drops every line. Called on unit switch and transaction completion.
func (c *Cart) Clear() {
	c.lines = c.lines[:0]
	c.index = make(map[lineKey]int)
}

func (c *Cart) resolvePrice(line Line) int64 {
	if line.Negotiated != nil {
		return *line.Negotiated
	}
	product, ok := c.source.Find(line.ProductID)
	if !ok {
		return 0
	}
	return product.PriceFor(c.unit)
}

func (c *Cart) reindex() {
	c.index = make(map[lineKey]int, len(c.lines))
	for i, line := range c.lines {
		c.index[newLineKey(line.ProductID, line.Negotiated)] = i
	}
}

func clonePrice(value *int64) *int64 {
	if value == nil {
		return nil
	}
	dup := *value
	return &dup
}
