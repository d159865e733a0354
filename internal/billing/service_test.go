package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sdrshn-nmbr/cleancity/internal/db"
	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// faultyStore wraps a Store and fails loads or saves on demand.
type faultyStore struct {
	Store
	loadErr error
	saveErr error
	saves   int
}

func (f *faultyStore) Load(ctx context.Context, key string) ([]byte, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Store.Load(ctx, key)
}

func (f *faultyStore) Save(ctx context.Context, key string, value []byte) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, key, value)
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(db.Options{Storage: storage.NewMemoryStorage(), Retry: db.NoRetry()})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func fixedNow(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

var testProfiles = []CustomerProfile{
	{ID: "amani", Name: "Amani Otieno", Unit: "B4"},
	{ID: "wanjiru", Name: "Wanjiru Kamau", Unit: "C1"},
}

func newBillingService(t *testing.T, store Store, now time.Time, feed *Feed) *Service {
	t.Helper()
	opts := ServiceOptions{
		Clock:     NewClock(nairobi),
		Now:       fixedNow(now),
		Customers: testProfiles,
	}
	if feed != nil {
		opts.Notifier = feed
	}
	service, err := NewService(store, opts)
	require.NoError(t, err)
	return service
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, ServiceOptions{})
	assert.ErrorIs(t, err, ErrStoreRequired)

	database := newTestDB(t)
	_, err = NewService(database, ServiceOptions{MonthlyFee: fee.Neg()})
	assert.ErrorIs(t, err, ErrInvalidFee)

	_, err = NewService(database, ServiceOptions{Customers: []CustomerProfile{{Name: "nobody"}}})
	assert.ErrorIs(t, err, ErrCustomerIDRequired)

	_, err = NewService(database, ServiceOptions{Customers: []CustomerProfile{{ID: "a"}, {ID: "a"}}})
	assert.ErrorIs(t, err, ErrCustomerExists)
}

func TestServiceRequiresLoad(t *testing.T) {
	service := newBillingService(t, newTestDB(t), at(2024, time.March, 10, 0, 0, 0), nil)

	_, err := service.Toggle(context.Background(), "amani", 0)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = service.ListCustomers()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = service.Summary()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = service.Ledger("amani")
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadGeneratesAndSaves(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	now := at(2024, time.March, 10, 0, 0, 0)
	service := newBillingService(t, database, now, nil)

	report, err := service.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, report.Source)
	assert.Equal(t, 2, report.Customers)

	data, err := database.Load(ctx, RosterKey(""))
	require.NoError(t, err)
	stored, err := DecodeRoster(data, NewClock(nairobi))
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Len())

	customers, err := service.ListCustomers()
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "amani", customers[0].ID)
	assert.Equal(t, WindowMonths, customers[0].Records)
	assert.Equal(t, 11, customers[0].OverdueRecords)
	require.NotNil(t, customers[0].Current)
	assert.Equal(t, "March 2024", customers[0].Current.Period)
	assert.Equal(t, StatusPending, customers[0].Current.Status)

	summary, err := service.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CustomersInArrears)
	assert.True(t, summary.TotalArrears.Equal(fee.Mul(decimal.NewFromInt(22))), "got %s", summary.TotalArrears)
}

func TestToggleSurvivesReload(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	now := at(2024, time.March, 10, 0, 0, 0)
	feed := NewFeed(10)
	service := newBillingService(t, database, now, feed)
	_, err := service.Load(ctx)
	require.NoError(t, err)

	n, err := service.Toggle(ctx, "amani", 3)
	require.NoError(t, err)
	assert.True(t, n.Paid)
	assert.Equal(t, TitleMarkedPaid, n.Title)
	assert.Equal(t, "July 2023 - KES 250", n.Description)
	assert.Equal(t, "Amani Otieno", n.CustomerName)
	assert.NotEmpty(t, n.ID)

	recent := feed.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, n.ID, recent[0].ID)

	reloaded := newBillingService(t, database, now, nil)
	report, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceStored, report.Source)

	view, err := reloaded.Ledger("amani")
	require.NoError(t, err)
	require.Len(t, view.Records, WindowMonths)
	for i, r := range view.Records {
		assert.Equal(t, i == 3, r.Paid, "record %d", i)
	}
	assert.Equal(t, StatusPaid, view.Records[3].Status)
	assert.True(t, view.Records[11].Current)
	assert.Equal(t, "KES", view.Currency)
}

func TestToggleRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: newTestDB(t)}
	now := at(2024, time.March, 10, 0, 0, 0)
	feed := NewFeed(10)
	service := newBillingService(t, store, now, feed)
	_, err := service.Load(ctx)
	require.NoError(t, err)
	before, err := service.Summary()
	require.NoError(t, err)

	store.saveErr = errDiskFull
	_, err = service.Toggle(ctx, "amani", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, errDiskFull)

	view, err := service.Ledger("amani")
	require.NoError(t, err)
	assert.False(t, view.Records[3].Paid)
	after, err := service.Summary()
	require.NoError(t, err)
	assert.True(t, before.TotalArrears.Equal(after.TotalArrears))

	recent := feed.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, TitleSaveFailed, recent[0].Title)
	assert.NotEmpty(t, recent[0].Error)
	assert.False(t, recent[0].Paid)

	store.saveErr = nil
	_, err = service.Toggle(ctx, "amani", 3)
	require.NoError(t, err)
	view, err = service.Ledger("amani")
	require.NoError(t, err)
	assert.True(t, view.Records[3].Paid)
}

func TestToggleRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: newTestDB(t)}
	feed := NewFeed(10)
	service := newBillingService(t, store, at(2024, time.March, 10, 0, 0, 0), feed)
	_, err := service.Load(ctx)
	require.NoError(t, err)
	saves := store.saves

	_, err = service.Toggle(ctx, "nobody", 0)
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	_, err = service.Toggle(ctx, "amani", 12)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = service.Ledger("nobody")
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	assert.Equal(t, saves, store.saves)
	assert.Empty(t, feed.Recent(0))
}

func TestLoadRegeneratesMalformedData(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	require.NoError(t, database.Save(ctx, RosterKey(""), []byte(`{"version":1,"customers":[{"id":""}]}`)))

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	service, err := NewService(database, ServiceOptions{
		Clock:     NewClock(nairobi),
		Now:       fixedNow(at(2024, time.March, 10, 0, 0, 0)),
		Customers: testProfiles,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	report, err := service.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceRegenerated, report.Source)
	assert.Equal(t, 1.0, counterValue(t, metrics.Regenerations))

	data, err := database.Load(ctx, RosterKey(""))
	require.NoError(t, err)
	_, err = DecodeRoster(data, NewClock(nairobi))
	assert.NoError(t, err)
}

func TestLoadRegeneratesIncompleteLedgers(t *testing.T) {
	ctx := context.Background()
	blobs := map[string]string{
		"empty records": `{"version":1,"customers":[
			{"id":"amani","name":"Amani Otieno","unit":"B4","records":[]}]}`,
		"missing records": `{"version":1,"customers":[
			{"id":"amani","name":"Amani Otieno","unit":"B4"}]}`,
		"month gap": `{"version":1,"customers":[
			{"id":"amani","name":"Amani Otieno","unit":"B4","records":[
				{"periodLabel":"January","year":2024,"paid":true,"dueDate":"2024-01-31","amount":250},
				{"periodLabel":"June","year":2024,"paid":false,"dueDate":"2024-06-30","amount":250}]}]}`,
	}
	for name, blob := range blobs {
		t.Run(name, func(t *testing.T) {
			database := newTestDB(t)
			require.NoError(t, database.Save(ctx, RosterKey(""), []byte(blob)))

			service := newBillingService(t, database, at(2024, time.June, 10, 0, 0, 0), nil)
			report, err := service.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, SourceRegenerated, report.Source)

			customers, err := service.ListCustomers()
			require.NoError(t, err)
			require.Len(t, customers, len(testProfiles))
			for _, c := range customers {
				assert.Equal(t, WindowMonths, c.Records, "records of %s", c.ID)
				require.NotNil(t, c.Current, "current record of %s", c.ID)
				assert.Equal(t, "June 2024", c.Current.Period)
			}
		})
	}
}

func TestLoadReadFailureLeavesServiceUnloaded(t *testing.T) {
	store := &faultyStore{Store: newTestDB(t), loadErr: errDiskFull}
	service := newBillingService(t, store, at(2024, time.March, 10, 0, 0, 0), nil)

	_, err := service.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Zero(t, store.saves)

	_, err = service.Summary()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadBootstrapSaveFailureKeepsRoster(t *testing.T) {
	store := &faultyStore{Store: newTestDB(t), saveErr: errDiskFull}
	service := newBillingService(t, store, at(2024, time.March, 10, 0, 0, 0), nil)

	report, err := service.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Equal(t, SourceGenerated, report.Source)

	customers, err := service.ListCustomers()
	require.NoError(t, err)
	assert.Len(t, customers, 2)
}

func TestLoadExtendsWindowAndAddsProfiles(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)

	first := newBillingService(t, database, at(2024, time.January, 10, 0, 0, 0), nil)
	_, err := first.Load(ctx)
	require.NoError(t, err)
	_, err = first.Toggle(ctx, "amani", 11)
	require.NoError(t, err)

	later, err := NewService(database, ServiceOptions{
		Clock: NewClock(nairobi),
		Now:   fixedNow(at(2024, time.March, 5, 0, 0, 0)),
		Customers: append(append([]CustomerProfile{}, testProfiles...),
			CustomerProfile{ID: "otieno", Name: "Otieno", Unit: "D2"}),
	})
	require.NoError(t, err)
	report, err := later.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceStored, report.Source)
	assert.Equal(t, 4, report.Extended)
	assert.Equal(t, 1, report.Added)

	view, err := later.Ledger("amani")
	require.NoError(t, err)
	require.Len(t, view.Records, 14)
	assert.Equal(t, "January 2024", view.Records[11].Period)
	assert.True(t, view.Records[11].Paid)
	assert.Equal(t, "March 2024", view.Records[13].Period)
	assert.True(t, view.Records[13].Current)

	again := newBillingService(t, database, at(2024, time.March, 5, 0, 0, 0), nil)
	report, err = again.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Extended)
	assert.Equal(t, 3, report.Customers)
}

func TestToggleUpdatesMetrics(t *testing.T) {
	ctx := context.Background()
	store := &faultyStore{Store: newTestDB(t)}
	metrics := NewMetrics(prometheus.NewRegistry())
	service, err := NewService(store, ServiceOptions{
		Clock:     NewClock(nairobi),
		Now:       fixedNow(at(2024, time.March, 10, 0, 0, 0)),
		Customers: testProfiles[:1],
		Metrics:   metrics,
	})
	require.NoError(t, err)
	_, err = service.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11.0, gaugeValue(t, metrics.OverdueRecords))

	_, err = service.Toggle(ctx, "amani", 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, gaugeValue(t, metrics.OverdueRecords))
	assert.Equal(t, 2500.0, gaugeValue(t, metrics.TotalArrears))
	assert.Equal(t, 1.0, counterValue(t, metrics.Toggles.WithLabelValues("saved")))

	store.saveErr = errDiskFull
	_, err = service.Toggle(ctx, "amani", 1)
	require.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, metrics.Toggles.WithLabelValues("failed")))
	assert.Equal(t, 1.0, counterValue(t, metrics.PersistenceFailures))
	assert.Equal(t, 10.0, gaugeValue(t, metrics.OverdueRecords))
}

func TestCycleStatus(t *testing.T) {
	service := newBillingService(t, newTestDB(t), at(2024, time.January, 28, 19, 54, 53), nil)
	cycle := service.Cycle()
	assert.Equal(t, "January 2024", cycle.Period)
	assert.Equal(t, "3d 4h 5m 6s", cycle.Display)
	assert.False(t, cycle.Countdown.Ended)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
