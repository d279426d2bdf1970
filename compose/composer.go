package compose

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/deliorder/types"
)

// ErrMaxOrderLimit is returned when appending to a full composer.
var ErrMaxOrderLimit = fmt.Errorf("a package holds at most %d orders", types.MaxOrders)

// ErrEmptyPackage is returned when sealing a composer with no orders.
var ErrEmptyPackage = errors.New("a package needs at least one order")

// OrderError ties a build failure to the order's position.
type OrderError struct {
	Index int
	Err   error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %d: %v", e.Index+1, e.Err)
}

// Unwrap returns the underlying error.
func (e *OrderError) Unwrap() error {
	return e.Err
}

// Composer is the composition context for one package. A composing
// session owns one and passes it explicitly; there is no ambient
// "current package".
//
// Composer is not safe for concurrent use.
type Composer struct {
	records []types.OrderRecord
	orders  []types.Order
}

// NewComposer returns an empty composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Append validates rec and adds it. A full composer or an invalid record
// leaves the composer unchanged.
func (c *Composer) Append(rec types.OrderRecord) error {
	if len(c.orders) >= types.MaxOrders {
		return ErrMaxOrderLimit
	}
	o, err := Build(rec)
	if err != nil {
		return err
	}
	c.records = append(c.records, rec)
	c.orders = append(c.orders, o)
	return nil
}

// Remove drops the order at index i.
func (c *Composer) Remove(i int) error {
	if i < 0 || i >= len(c.orders) {
		return fmt.Errorf("no order at position %d", i+1)
	}
	c.records = append(c.records[:i], c.records[i+1:]...)
	c.orders = append(c.orders[:i], c.orders[i+1:]...)
	return nil
}

// Clear discards every order.
func (c *Composer) Clear() {
	c.records = nil
	c.orders = nil
}

// Len returns the number of orders composed so far.
func (c *Composer) Len() int {
	return len(c.orders)
}

// Full reports whether another order would exceed the package limit.
func (c *Composer) Full() bool {
	return len(c.orders) >= types.MaxOrders
}

// Records returns a copy of the composed records in order.
func (c *Composer) Records() []types.OrderRecord {
	out := make([]types.OrderRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Orders returns a copy of the composed orders in order.
func (c *Composer) Orders() []types.Order {
	out := make([]types.Order, len(c.orders))
	copy(out, c.orders)
	return out
}

// Seal produces a draft package stamped with now. The composer keeps its
// orders; call Clear to start the next package.
func (c *Composer) Seal(author string, now time.Time) (*types.Package, error) {
	if len(c.orders) == 0 {
		return nil, ErrEmptyPackage
	}
	pkg := types.NewPackage(author, c.Orders(), now)
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return pkg, nil
}
