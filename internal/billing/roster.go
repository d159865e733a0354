package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Roster is the ordered set of customers managed together. Aggregates are
// recomputed on every call.
type Roster struct {
	customers []*Customer
	byID      map[string]*Customer
}

func NewRoster() *Roster {
	return &Roster{byID: make(map[string]*Customer)}
}

func (r *Roster) Add(c *Customer) error {
	if c == nil || c.ID == "" {
		return ErrCustomerIDRequired
	}
	if _, ok := r.byID[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrCustomerExists, c.ID)
	}
	if c.Ledger == nil {
		c.Ledger = NewLedger(Clock{}, nil)
	}
	r.customers = append(r.customers, c)
	r.byID[c.ID] = c
	return nil
}

func (r *Roster) Customer(id string) (*Customer, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c, nil
}

// Customers returns the customers in insertion order.
func (r *Roster) Customers() []*Customer {
	out := make([]*Customer, len(r.customers))
	copy(out, r.customers)
	return out
}

func (r *Roster) Len() int {
	return len(r.customers)
}

func (r *Roster) TotalArrears(now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.customers {
		total = total.Add(c.Ledger.Arrears(now))
	}
	return total
}

// OverdueCount counts overdue records across all customers.
func (r *Roster) OverdueCount(now time.Time) int {
	n := 0
	for _, c := range r.customers {
		n += c.Ledger.OverdueCount(now)
	}
	return n
}

func (r *Roster) CustomerArrears(id string, now time.Time) (decimal.Decimal, error) {
	c, err := r.Customer(id)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Ledger.Arrears(now), nil
}

func (r *Roster) Summary(now time.Time) Summary {
	s := Summary{
		Customers:    len(r.customers),
		TotalArrears: decimal.Zero,
	}
	for _, c := range r.customers {
		arrears := c.Ledger.Arrears(now)
		if arrears.IsPositive() {
			s.CustomersInArrears++
		}
		s.TotalArrears = s.TotalArrears.Add(arrears)
		s.OverdueRecords += c.Ledger.OverdueCount(now)
	}
	return s
}
