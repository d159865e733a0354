package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RosterFormatVersion is the version written into every encoded roster.
const RosterFormatVersion = 1

const dueDateLayout = "2006-01-02"

type rosterBlob struct {
	Version   int            `json:"version"`
	Customers []customerBlob `json:"customers"`
}

type customerBlob struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Unit     string       `json:"unit"`
	Location string       `json:"location,omitempty"`
	Records  []recordBlob `json:"records"`
}

type recordBlob struct {
	PeriodLabel string      `json:"periodLabel"`
	Year        int         `json:"year"`
	Paid        *bool       `json:"paid"`
	DueDate     string      `json:"dueDate"`
	Amount      json.Number `json:"amount"`
}

// EncodeRoster renders the roster in its stored form.
func EncodeRoster(r *Roster) ([]byte, error) {
	blob := rosterBlob{Version: RosterFormatVersion, Customers: []customerBlob{}}
	for _, c := range r.Customers() {
		cb := customerBlob{
			ID:       c.ID,
			Name:     c.Name,
			Unit:     c.Unit,
			Location: c.Location,
			Records:  []recordBlob{},
		}
		for _, rec := range c.Ledger.Records() {
			paid := rec.Paid
			cb.Records = append(cb.Records, recordBlob{
				PeriodLabel: rec.Period.Month.String(),
				Year:        rec.Period.Year,
				Paid:        &paid,
				DueDate:     rec.DueDate.Format(dueDateLayout),
				Amount:      json.Number(rec.Amount.String()),
			})
		}
		blob.Customers = append(blob.Customers, cb)
	}
	return json.Marshal(blob)
}

// DecodeRoster parses a stored roster. Due dates are rebuilt as end-of-day
// instants in clock's location. Every validation failure matches
// ErrMalformedStoredData.
func DecodeRoster(data []byte, clock Clock) (*Roster, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var blob rosterBlob
	if err := dec.Decode(&blob); err != nil {
		return nil, errors.Join(ErrMalformedStoredData, err)
	}
	if blob.Version != RosterFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedStoredData, blob.Version)
	}

	roster := NewRoster()
	for i, cb := range blob.Customers {
		if cb.ID == "" {
			return nil, fmt.Errorf("%w: customer %d has no id", ErrMalformedStoredData, i)
		}
		if len(cb.Records) == 0 {
			return nil, fmt.Errorf("%w: customer %s has no records", ErrMalformedStoredData, cb.ID)
		}
		records := make([]PaymentRecord, 0, len(cb.Records))
		for j, rb := range cb.Records {
			rec, err := decodeRecord(rb, clock)
			if err != nil {
				return nil, fmt.Errorf("%w: customer %s record %d: %v", ErrMalformedStoredData, cb.ID, j, err)
			}
			// Months are consecutive with no gaps or repeats.
			if n := len(records); n > 0 && rec.Period != records[n-1].Period.Add(1) {
				return nil, fmt.Errorf("%w: customer %s record %d: %s does not follow %s",
					ErrMalformedStoredData, cb.ID, j, rec.Period, records[n-1].Period)
			}
			records = append(records, rec)
		}
		err := roster.Add(&Customer{
			ID:       cb.ID,
			Name:     cb.Name,
			Unit:     cb.Unit,
			Location: cb.Location,
			Ledger:   NewLedger(clock, records),
		})
		if err != nil {
			return nil, errors.Join(ErrMalformedStoredData, err)
		}
	}
	return roster, nil
}

func decodeRecord(rb recordBlob, clock Clock) (PaymentRecord, error) {
	month, ok := parseMonth(rb.PeriodLabel)
	if !ok {
		return PaymentRecord{}, fmt.Errorf("unknown month %q", rb.PeriodLabel)
	}
	period := Period{Year: rb.Year, Month: month}
	if !period.Valid() {
		return PaymentRecord{}, fmt.Errorf("invalid period %s", period)
	}
	if rb.Paid == nil {
		return PaymentRecord{}, errors.New("missing paid flag")
	}

	day, err := time.ParseInLocation(dueDateLayout, rb.DueDate, clock.Location())
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("due date: %v", err)
	}
	due := clock.DueDate(period)
	if day.Year() != due.Year() || day.Month() != due.Month() || day.Day() != due.Day() {
		return PaymentRecord{}, fmt.Errorf("due date %s is not the last day of %s", rb.DueDate, period)
	}

	if rb.Amount == "" {
		return PaymentRecord{}, errors.New("missing amount")
	}
	amount, err := decimal.NewFromString(rb.Amount.String())
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("amount: %v", err)
	}
	if !amount.IsPositive() {
		return PaymentRecord{}, fmt.Errorf("amount %s must be positive", amount)
	}

	return PaymentRecord{
		Period:  period,
		Paid:    *rb.Paid,
		DueDate: due,
		Amount:  amount,
	}, nil
}

func parseMonth(label string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if m.String() == label {
			return m, true
		}
	}
	return 0, false
}
