package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger owns one customer's payment records, oldest first.
type Ledger struct {
	clock   Clock
	records []PaymentRecord
	dirty   bool
}

func NewLedger(clock Clock, records []PaymentRecord) *Ledger {
	owned := make([]PaymentRecord, len(records))
	copy(owned, records)
	return &Ledger{clock: clock, records: owned}
}

func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of the records.
func (l *Ledger) Records() []PaymentRecord {
	out := make([]PaymentRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Record(index int) (PaymentRecord, error) {
	if index < 0 || index >= len(l.records) {
		return PaymentRecord{}, fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, len(l.records))
	}
	return l.records[index], nil
}

// Toggle flips the paid flag of the record at index and returns the
// updated record. The ledger is left untouched on error.
func (l *Ledger) Toggle(index int) (PaymentRecord, error) {
	if _, err := l.Record(index); err != nil {
		return PaymentRecord{}, err
	}
	l.records[index].Paid = !l.records[index].Paid
	l.dirty = true
	return l.records[index], nil
}

// Dirty reports whether the ledger changed since it was last persisted.
func (l *Ledger) Dirty() bool {
	return l.dirty
}

func (l *Ledger) MarkClean() {
	l.dirty = false
}

// Current returns the record for the period containing now.
func (l *Ledger) Current(now time.Time) (PaymentRecord, int, bool) {
	period := l.clock.PeriodOf(now)
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Period == period {
			return l.records[i], i, true
		}
	}
	return PaymentRecord{}, -1, false
}

// Arrears sums the amounts of overdue records.
func (l *Ledger) Arrears(now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.records {
		if r.Overdue(now) {
			total = total.Add(r.Amount)
		}
	}
	return total
}

func (l *Ledger) OverdueCount(now time.Time) int {
	n := 0
	for _, r := range l.records {
		if r.Overdue(now) {
			n++
		}
	}
	return n
}

func (l *Ledger) Status(index int, now time.Time) (RecordStatus, error) {
	r, err := l.Record(index)
	if err != nil {
		return "", err
	}
	return r.Status(now), nil
}

// Extend appends an unpaid record for every period after the newest one
// up to and including the period containing now. Existing records are
// kept as they are. It returns the number of records added.
func (l *Ledger) Extend(now time.Time, fee decimal.Decimal) int {
	if len(l.records) == 0 {
		return 0
	}
	target := l.clock.PeriodOf(now)
	added := 0
	for p := l.records[len(l.records)-1].Period.Add(1); !target.Before(p); p = p.Add(1) {
		l.records = append(l.records, PaymentRecord{
			Period:  p,
			DueDate: l.clock.DueDate(p),
			Amount:  fee,
		})
		added++
	}
	if added > 0 {
		l.dirty = true
	}
	return added
}
