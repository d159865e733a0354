package billing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Period is one billing cycle: a calendar month of a year.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t, read in t's own location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Add returns the period months after p (negative moves back).
func (p Period) Add(months int) Period {
	t := time.Date(p.Year, p.Month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) Valid() bool {
	return p.Year > 0 && p.Month >= time.January && p.Month <= time.December
}

func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

// PaymentRecord is the monthly fee owed for one period.
type PaymentRecord struct {
	Period  Period
	Paid    bool
	DueDate time.Time // end of the period's last day, billing location
	Amount  decimal.Decimal
}

// Overdue reports whether the record is unpaid and its due instant is
// strictly before now.
func (r PaymentRecord) Overdue(now time.Time) bool {
	return !r.Paid && r.DueDate.Before(now)
}

// RecordStatus is the badge a record shows in the payment history.
type RecordStatus string

const (
	StatusPaid    RecordStatus = "paid"
	StatusOverdue RecordStatus = "overdue"
	StatusPending RecordStatus = "pending"
)

func (r PaymentRecord) Status(now time.Time) RecordStatus {
	switch {
	case r.Paid:
		return StatusPaid
	case r.Overdue(now):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// Customer is a billed household or business and its ledger.
type Customer struct {
	ID       string
	Name     string
	Unit     string
	Location string
	Ledger   *Ledger
}

// CustomerProfile describes a customer before it has a ledger.
type CustomerProfile struct {
	ID       string
	Name     string
	Unit     string
	Location string
}

// Summary holds the roster-wide figures shown on the payments view.
type Summary struct {
	Customers          int             `json:"customers"`
	CustomersInArrears int             `json:"customers_in_arrears"`
	OverdueRecords     int             `json:"overdue_records"`
	TotalArrears       decimal.Decimal `json:"total_arrears"`
}

// OverdueLabel is the line shown under the arrears total.
func OverdueLabel(overdue int) string {
	switch overdue {
	case 0:
		return "All payments up to date"
	case 1:
		return "1 overdue payment"
	default:
		return strconv.Itoa(overdue) + " overdue payments"
	}
}
