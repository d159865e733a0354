package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultCurrency = "KES"

// DefaultMonthlyFee is the flat monthly collection fee.
var DefaultMonthlyFee = decimal.NewFromInt(250)

// Store is the persistence adapter holding the roster blob. Load returns an
// error matching storage.ErrKeyNotFound when nothing has been saved.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

type ServiceOptions struct {
	Deployment string
	MonthlyFee decimal.Decimal
	Currency   string
	Clock      Clock
	Seeder     Seeder
	Now        func() time.Time
	Notifier   Notifier
	Metrics    *Metrics
	Logger     *zap.Logger
	// Customers seeds the roster. Profiles missing from a stored roster
	// are added with a generated ledger on load.
	Customers []CustomerProfile
}

// Service owns the roster and serializes every operation on it.
type Service struct {
	mu       sync.Mutex
	store    Store
	key      string
	fee      decimal.Decimal
	currency string
	clock    Clock
	gen      Generator
	now      func() time.Time
	notifier Notifier
	metrics  *Metrics
	log      *zap.Logger
	profiles []CustomerProfile
	roster   *Roster
}

func NewService(store Store, opts ServiceOptions) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	fee := opts.MonthlyFee
	if fee.IsZero() {
		fee = DefaultMonthlyFee
	}
	if !fee.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFee, fee)
	}
	currency := opts.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, Notification) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]bool, len(opts.Customers))
	profiles := make([]CustomerProfile, 0, len(opts.Customers))
	for _, p := range opts.Customers {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: profile %q", ErrCustomerIDRequired, p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: %s", ErrCustomerExists, p.ID)
		}
		seen[p.ID] = true
		profiles = append(profiles, p)
	}

	return &Service{
		store:    store,
		key:      RosterKey(opts.Deployment),
		fee:      fee,
		currency: currency,
		clock:    opts.Clock,
		gen:      NewGenerator(opts.Clock, opts.Seeder),
		now:      nowFn,
		notifier: notifier,
		metrics:  opts.Metrics,
		log:      logger.Named("billing"),
		profiles: profiles,
	}, nil
}

// LoadSource says where the roster in memory came from.
type LoadSource string

const (
	SourceStored      LoadSource = "stored"
	SourceGenerated   LoadSource = "generated"
	SourceRegenerated LoadSource = "regenerated"
)

type LoadReport struct {
	Source    LoadSource
	Customers int
	// Extended counts records appended to stored ledgers to reach the
	// current period.
	Extended int
	// Added counts configured customers missing from the stored roster.
	Added int
}

// Load reads the roster from the store. When nothing is stored, or the
// stored blob is malformed, a fresh roster is generated from the configured
// profiles and saved. A read failure leaves the service unloaded so that
// stored data is never overwritten by a generated roster. A failed bootstrap
// save keeps the roster usable in memory and returns an error matching
// ErrPersistenceFailure.
func (s *Service) Load(ctx context.Context) (LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var report LoadReport

	data, err := s.store.Load(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		s.roster = s.generate(now)
		report.Source = SourceGenerated
	case err != nil:
		return report, errors.Join(ErrPersistenceFailure, err)
	default:
		roster, decodeErr := DecodeRoster(data, s.clock)
		if decodeErr != nil {
			s.log.Warn("discarding malformed roster", zap.String("key", s.key), zap.Error(decodeErr))
			s.metrics.regenerated()
			s.roster = s.generate(now)
			report.Source = SourceRegenerated
			break
		}
		report.Source = SourceStored
		for _, c := range roster.Customers() {
			report.Extended += c.Ledger.Extend(now, s.fee)
		}
		for _, p := range s.profiles {
			if _, err := roster.Customer(p.ID); err == nil {
				continue
			}
			if err := roster.Add(s.gen.NewCustomer(p, now, s.fee)); err != nil {
				return report, err
			}
			report.Added++
		}
		s.roster = roster
	}

	report.Customers = s.roster.Len()
	s.metrics.observeSummary(s.roster.Summary(now))
	s.log.Info("roster loaded",
		zap.String("key", s.key),
		zap.String("source", string(report.Source)),
		zap.Int("customers", report.Customers),
		zap.Int("extended", report.Extended),
		zap.Int("added", report.Added),
	)

	if report.Source == SourceStored && report.Extended == 0 && report.Added == 0 {
		return report, nil
	}
	if err := s.persist(ctx); err != nil {
		s.metrics.persistenceFailure()
		return report, errors.Join(ErrPersistenceFailure, err)
	}
	return report, nil
}

func (s *Service) generate(now time.Time) *Roster {
	roster := NewRoster()
	for _, p := range s.profiles {
		// Profile ids are unique, checked in NewService.
		_ = roster.Add(s.gen.NewCustomer(p, now, s.fee))
	}
	return roster
}

// persist saves the whole roster and marks every ledger clean.
func (s *Service) persist(ctx context.Context) error {
	data, err := EncodeRoster(s.roster)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.key, data); err != nil {
		return err
	}
	for _, c := range s.roster.Customers() {
		c.Ledger.MarkClean()
	}
	return nil
}

// Toggle flips the paid flag of one record and saves the roster. The
// notification is sent only after the save succeeds. If the save fails the
// flip is undone, a failure notification is sent and the returned error
// matches ErrPersistenceFailure.
func (s *Service) Toggle(ctx context.Context, customerID string, index int) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return Notification{}, ErrNotLoaded
	}
	c, err := s.roster.Customer(customerID)
	if err != nil {
		s.metrics.toggle("rejected")
		return Notification{}, err
	}

	wasDirty := c.Ledger.Dirty()
	rec, err := c.Ledger.Toggle(index)
	if err != nil {
		s.metrics.toggle("rejected")
		return Notification{}, err
	}
	now := s.now()

	if err := s.persist(ctx); err != nil {
		rec, _ = c.Ledger.Toggle(index)
		if !wasDirty {
			c.Ledger.MarkClean()
		}
		failure := errors.Join(ErrPersistenceFailure, err)
		s.metrics.toggle("failed")
		s.metrics.persistenceFailure()
		s.log.Warn("toggle rolled back",
			zap.String("customer", customerID),
			zap.Int("index", index),
			zap.Error(err),
		)
		s.notifier.Notify(ctx, newNotification(c, rec, s.currency, now, failure))
		return Notification{}, failure
	}

	s.metrics.toggle("saved")
	s.metrics.observeSummary(s.roster.Summary(now))
	n := newNotification(c, rec, s.currency, now, nil)
	s.notifier.Notify(ctx, n)
	return n, nil
}

// CustomerSummary is one row of the customer listing.
type CustomerSummary struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	Location       string          `json:"location,omitempty"`
	Records        int             `json:"records"`
	OverdueRecords int             `json:"overdue_records"`
	Arrears        decimal.Decimal `json:"arrears"`
	Current        *RecordView     `json:"current,omitempty"`
}

// RecordView is a payment record as shown in the payment history.
type RecordView struct {
	Index   int             `json:"index"`
	Period  string          `json:"period"`
	Paid    bool            `json:"paid"`
	DueDate string          `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
	Status  RecordStatus    `json:"status"`
	Current bool            `json:"current"`
}

type LedgerView struct {
	Customer CustomerSummary `json:"customer"`
	Currency string          `json:"currency"`
	Records  []RecordView    `json:"records"`
}

func (s *Service) ListCustomers() ([]CustomerSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return nil, ErrNotLoaded
	}
	now := s.now()
	customers := s.roster.Customers()
	out := make([]CustomerSummary, 0, len(customers))
	for _, c := range customers {
		out = append(out, summarize(c, now))
	}
	return out, nil
}

func (s *Service) Ledger(customerID string) (LedgerView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return LedgerView{}, ErrNotLoaded
	}
	c, err := s.roster.Customer(customerID)
	if err != nil {
		return LedgerView{}, err
	}
	now := s.now()
	_, current, _ := c.Ledger.Current(now)
	records := c.Ledger.Records()
	view := LedgerView{
		Customer: summarize(c, now),
		Currency: s.currency,
		Records:  make([]RecordView, 0, len(records)),
	}
	for i, rec := range records {
		view.Records = append(view.Records, recordView(i, rec, now, i == current))
	}
	return view, nil
}

func (s *Service) Summary() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster == nil {
		return Summary{}, ErrNotLoaded
	}
	return s.roster.Summary(s.now()), nil
}

// CycleStatus describes the billing cycle containing the current instant.
type CycleStatus struct {
	Period    string    `json:"period"`
	CycleEnd  time.Time `json:"cycle_end"`
	Countdown Countdown `json:"countdown"`
	Display   string    `json:"display"`
}

// Cycle needs no loaded roster.
func (s *Service) Cycle() CycleStatus {
	return s.CycleAt(s.now())
}

func (s *Service) CycleAt(now time.Time) CycleStatus {
	countdown := s.clock.Countdown(now)
	return CycleStatus{
		Period:    s.clock.PeriodOf(now).String(),
		CycleEnd:  s.clock.CycleEnd(now),
		Countdown: countdown,
		Display:   countdown.String(),
	}
}

func (s *Service) Clock() Clock {
	return s.clock
}

func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Currency() string {
	return s.currency
}

func summarize(c *Customer, now time.Time) CustomerSummary {
	cs := CustomerSummary{
		ID:             c.ID,
		Name:           c.Name,
		Unit:           c.Unit,
		Location:       c.Location,
		Records:        c.Ledger.Len(),
		OverdueRecords: c.Ledger.OverdueCount(now),
		Arrears:        c.Ledger.Arrears(now),
	}
	if rec, idx, ok := c.Ledger.Current(now); ok {
		view := recordView(idx, rec, now, true)
		cs.Current = &view
	}
	return cs
}

func recordView(index int, rec PaymentRecord, now time.Time, current bool) RecordView {
	return RecordView{
		Index:   index,
		Period:  rec.Period.String(),
		Paid:    rec.Paid,
		DueDate: rec.DueDate.Format(dueDateLayout),
		Amount:  rec.Amount,
		Status:  rec.Status(now),
		Current: current,
	}
}
