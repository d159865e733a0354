package billing

import (
	"hash/fnv"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// WindowMonths is the length of a freshly generated ledger.
const WindowMonths = 12

// Seeder decides the initial paid flag of a generated record.
type Seeder func(customerID string, period Period) bool

// UnpaidSeeder leaves every generated record unpaid.
func UnpaidSeeder(string, Period) bool { return false }

// DemoSeeder marks roughly seven in ten records paid. The choice is a hash
// of the customer, period and salt, so the same inputs always agree. Only
// for demo rosters.
func DemoSeeder(salt string) Seeder {
	return func(customerID string, period Period) bool {
		h := fnv.New32a()
		h.Write([]byte(customerID))
		h.Write([]byte{'|'})
		h.Write([]byte(strconv.Itoa(period.Year)))
		h.Write([]byte{'|'})
		h.Write([]byte(strconv.Itoa(int(period.Month))))
		h.Write([]byte{'|'})
		h.Write([]byte(salt))
		return h.Sum32()%10 >= 3
	}
}

// Generator fabricates the trailing-window ledger of a customer that has
// no saved state.
type Generator struct {
	clock Clock
	seed  Seeder
}

func NewGenerator(clock Clock, seed Seeder) Generator {
	if seed == nil {
		seed = UnpaidSeeder
	}
	return Generator{clock: clock, seed: seed}
}

// Generate returns WindowMonths records, oldest first, ending with the
// period containing now.
func (g Generator) Generate(customerID string, now time.Time, fee decimal.Decimal) []PaymentRecord {
	seed := g.seed
	if seed == nil {
		seed = UnpaidSeeder
	}
	current := g.clock.PeriodOf(now)
	records := make([]PaymentRecord, 0, WindowMonths)
	for i := WindowMonths - 1; i >= 0; i-- {
		period := current.Add(-i)
		records = append(records, PaymentRecord{
			Period:  period,
			Paid:    seed(customerID, period),
			DueDate: g.clock.DueDate(period),
			Amount:  fee,
		})
	}
	return records
}

// NewCustomer builds a customer from profile with a generated ledger.
func (g Generator) NewCustomer(profile CustomerProfile, now time.Time, fee decimal.Decimal) *Customer {
	return &Customer{
		ID:       profile.ID,
		Name:     profile.Name,
		Unit:     profile.Unit,
		Location: profile.Location,
		Ledger:   NewLedger(g.clock, g.Generate(profile.ID, now, fee)),
	}
}
