package pos

import (
	"github.com/gelomax/api/internal/domain"
	"github.com/gelomax/api/internal/platform/textutil"
)

// ProductSource resolves catalog products by identity. The register reads
// prices and stock through it on every cart mutation so figures are always
// current.
type ProductSource interface {
	Find(id string) (domain.Product, bool)
}

// Catalog is a read-only view over the sellable product set.
type Catalog struct {
	products []domain.Product
	byID     map[string]int
}

// NewCatalog builds a catalog over a snapshot of the product set.
func NewCatalog(products []domain.Product) Catalog {
	items := make([]domain.Product, len(products))
	copy(items, products)
	index := make(map[string]int, len(items))
	for i, p := range items {
		index[p.ID] = i
	}
	return Catalog{products: items, byID: index}
}

// Find returns the product with the given identity.
func (c Catalog) Find(id string) (domain.Product, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return c.products[idx], true
}

// Filter returns the visible subset for the unit and free-text query. The
// match is a case and diacritic insensitive substring over name and identity.
// The wholesale unit never exposes goods outside the ice category family.
func (c Catalog) Filter(unit domain.BusinessUnit, query string) []domain.Product {
	visible := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if !p.Active {
			continue
		}
		if unit == domain.UnitMatriz && !p.IsIce() {
			continue
		}
		if query != "" && !textutil.ContainsFold(p.Name, query) && !textutil.ContainsFold(p.ID, query) {
			continue
		}
		visible = append(visible, p)
	}
	return visible
}

// RequiresNegotiation reports whether adding the product at the unit must go
// through price negotiation: ice-family items sold at the wholesale unit.
func RequiresNegotiation(p domain.Product, unit domain.BusinessUnit) bool {
	return unit == domain.UnitMatriz && p.IsIce()
}
