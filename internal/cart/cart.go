// Package cart is the shopping cart state manager. A Store owns one cart,
// rehydrates it from storage on construction and persists the full snapshot
// after every mutation.
package cart

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultKey is the storage key the cart snapshot lives under.
const DefaultKey = "cart"

var (
	// ErrInvalidProduct is returned when a product has no identifier or a negative price.
	ErrInvalidProduct = errors.New("invalid product")
	// ErrInvalidQuantity is returned for negative add quantities and for adds
	// that would push a line past the largest representable quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// MergeQuantity returns have+add, or ErrInvalidQuantity when the sum does not
// fit in an int.
func MergeQuantity(have, add int) (int, error) {
	if add > math.MaxInt-have {
		return 0, ErrInvalidQuantity
	}
	return have + add, nil
}

// Product is the catalog descriptor handed to Add.
type Product struct {
	ID    string
	Price decimal.Decimal
	Name  string
	Brand string
	Image string
}

func (p Product) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProduct
	}
	if p.Price.IsNegative() {
		return ErrInvalidProduct
	}
	return nil
}

// LineItem is one product in the cart. UnitPrice and the display fields are
// copied from the product when it is first added.
type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Name      string          `json:"name,omitempty"`
	Brand     string          `json:"brand,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal is Quantity * UnitPrice.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is an immutable copy of the cart.
type Snapshot struct {
	Items   []LineItem
	Version uint64
}

// Total sums the line totals of the snapshot.
func (s Snapshot) Total() decimal.Decimal {
	return subtotal(s.Items)
}

// Count is the number of units across all lines.
func (s Snapshot) Count() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Op names the mutation that produced an Event.
type Op string

const (
	OpAdd            Op = "add"
	OpUpdateQuantity Op = "update_quantity"
	OpRemove         Op = "remove"
	OpClear          Op = "clear"
)

// Event is delivered to listeners after a mutation has been persisted.
type Event struct {
	Op       Op
	Snapshot Snapshot
}

// Listener observes cart mutations.
type Listener func(Event)

// persisted is the on-storage shape; the subtotal is derived and never stored.
type persisted struct {
	Items []LineItem `json:"items"`
}
