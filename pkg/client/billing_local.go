package client

import (
	"context"
	"errors"

	"github.com/sdrshn-nmbr/cleancity/internal/billing"
)

func (c *LocalClient) Customers(ctx context.Context) ([]CustomerSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	customers, err := c.service.ListCustomers()
	if err != nil {
		return nil, mapBillingError(err)
	}
	return customers, nil
}

func (c *LocalClient) Ledger(ctx context.Context, customerID string) (LedgerView, error) {
	if err := ctx.Err(); err != nil {
		return LedgerView{}, err
	}
	if customerID == "" {
		return LedgerView{}, ErrInvalidArgument
	}
	view, err := c.service.Ledger(customerID)
	if err != nil {
		return LedgerView{}, mapBillingError(err)
	}
	return view, nil
}

func (c *LocalClient) Toggle(ctx context.Context, customerID string, index int) (Notification, error) {
	if err := ctx.Err(); err != nil {
		return Notification{}, err
	}
	if customerID == "" {
		return Notification{}, ErrInvalidArgument
	}
	n, err := c.service.Toggle(ctx, customerID, index)
	if err != nil {
		return Notification{}, mapBillingError(err)
	}
	return n, nil
}

func (c *LocalClient) Arrears(ctx context.Context) (ArrearsSummary, error) {
	if err := ctx.Err(); err != nil {
		return ArrearsSummary{}, err
	}
	summary, err := c.service.Summary()
	if err != nil {
		return ArrearsSummary{}, mapBillingError(err)
	}
	return ArrearsSummary{
		Currency:           c.service.Currency(),
		Customers:          summary.Customers,
		CustomersInArrears: summary.CustomersInArrears,
		OverdueRecords:     summary.OverdueRecords,
		TotalArrears:       summary.TotalArrears,
		Label:              billing.OverdueLabel(summary.OverdueRecords),
	}, nil
}

func (c *LocalClient) Cycle(ctx context.Context) (CycleStatus, error) {
	if err := ctx.Err(); err != nil {
		return CycleStatus{}, err
	}
	return c.service.Cycle(), nil
}

func (c *LocalClient) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.feed.Recent(limit), nil
}

// mapBillingError keeps the service error in the chain so callers can
// match either sentinel.
func mapBillingError(err error) error {
	switch {
	case errors.Is(err, billing.ErrCustomerNotFound):
		return errors.Join(ErrCustomerNotFound, err)
	case errors.Is(err, billing.ErrOutOfRange):
		return errors.Join(ErrOutOfRange, err)
	case errors.Is(err, billing.ErrPersistenceFailure),
		errors.Is(err, billing.ErrNotLoaded):
		return errors.Join(ErrUnavailable, err)
	default:
		return err
	}
}
