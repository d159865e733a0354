package billing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TitleMarkedPaid   = "Payment Marked as Paid"
	TitleMarkedUnpaid = "Payment Marked as Unpaid"
	TitleSaveFailed   = "Payment Not Saved"
)

// Notification reports the outcome of a toggle to whoever is watching.
type Notification struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Period       string          `json:"period"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Paid         bool            `json:"paid"`
	Error        string          `json:"error,omitempty"`
	At           time.Time       `json:"at"`
}

func newNotification(c *Customer, rec PaymentRecord, currency string, at time.Time, err error) Notification {
	n := Notification{
		ID:           xid.New().String(),
		CustomerID:   c.ID,
		CustomerName: c.Name,
		Period:       rec.Period.String(),
		Amount:       rec.Amount,
		Currency:     currency,
		Paid:         rec.Paid,
		At:           at,
	}
	switch {
	case err != nil:
		n.Title = TitleSaveFailed
		n.Error = err.Error()
	case rec.Paid:
		n.Title = TitleMarkedPaid
	default:
		n.Title = TitleMarkedUnpaid
	}
	n.Description = n.Period + " - " + currency + " " + rec.Amount.String()
	return n
}

// Notifier receives toggle notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// MultiNotifier fans a notification out to each notifier in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("customer", n.CustomerID),
		zap.String("period", n.Period),
		zap.Bool("paid", n.Paid),
		zap.Stringer("amount", n.Amount),
	}
	if n.Error != "" {
		l.Logger.Warn(n.Title, append(fields, zap.String("error", n.Error))...)
		return
	}
	l.Logger.Info(n.Title, fields...)
}

// DefaultFeedSize is the number of notifications a Feed keeps.
const DefaultFeedSize = 50

// Feed keeps the most recent notifications in memory.
type Feed struct {
	mu    sync.Mutex
	items []Notification
	next  int
	full  bool
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{items: make([]Notification, size)}
}

func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
}

// Recent returns up to limit notifications, newest first. A non-positive
// limit returns everything held.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := f.next
	if f.full {
		count = len(f.items)
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]Notification, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (f.next - 1 - i + len(f.items)) % len(f.items)
		out = append(out, f.items[idx])
	}
	return out
}
