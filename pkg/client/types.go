package client

import (
	"context"

	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"github.com/shopspring/decimal"
)

type (
	CustomerSummary = billing.CustomerSummary
	LedgerView      = billing.LedgerView
	RecordView      = billing.RecordView
	Notification    = billing.Notification
	CycleStatus     = billing.CycleStatus
)

// ArrearsSummary is the roster-wide arrears report.
type ArrearsSummary struct {
	Currency           string          `json:"currency"`
	Customers          int             `json:"customers"`
	CustomersInArrears int             `json:"customers_in_arrears"`
	OverdueRecords     int             `json:"overdue_records"`
	TotalArrears       decimal.Decimal `json:"total_arrears"`
	Label              string          `json:"label"`
}

type CompactStats struct {
	EntriesTotal   uint32
	EntriesWritten uint32
	BytesBefore    uint64
	BytesAfter     uint64
}

// Client is implemented by LocalClient and HTTPClient.
type Client interface {
	Customers(ctx context.Context) ([]CustomerSummary, error)
	Ledger(ctx context.Context, customerID string) (LedgerView, error)
	Toggle(ctx context.Context, customerID string, index int) (Notification, error)
	Arrears(ctx context.Context) (ArrearsSummary, error)
	Cycle(ctx context.Context) (CycleStatus, error)
	Close() error
}

var (
	_ Client = (*LocalClient)(nil)
	_ Client = (*HTTPClient)(nil)
)
