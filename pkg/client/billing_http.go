package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *HTTPClient) Customers(ctx context.Context) ([]CustomerSummary, error) {
	var resp struct {
		Customers []CustomerSummary `json:"customers"`
	}
	err := c.doJSON(ctx, requestSpec{
		method:     http.MethodGet,
		path:       "/api/customers",
		idempotent: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Customers, nil
}

func (c *HTTPClient) Ledger(ctx context.Context, customerID string) (LedgerView, error) {
	if customerID == "" {
		return LedgerView{}, ErrInvalidArgument
	}
	var view LedgerView
	err := c.doJSON(ctx, requestSpec{
		method:     http.MethodGet,
		path:       "/api/customers/" + url.PathEscape(customerID),
		idempotent: true,
	}, &view)
	if err != nil {
		return LedgerView{}, err
	}
	return view, nil
}

// Toggle flips one record. Only a 503, sent after the server rolled the
// flip back, is retried.
func (c *HTTPClient) Toggle(ctx context.Context, customerID string, index int) (Notification, error) {
	if customerID == "" {
		return Notification{}, ErrInvalidArgument
	}
	var n Notification
	err := c.doJSON(ctx, requestSpec{
		method: http.MethodPost,
		path:   "/api/customers/" + url.PathEscape(customerID) + "/records/" + strconv.Itoa(index) + "/toggle",
	}, &n)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

func (c *HTTPClient) Arrears(ctx context.Context) (ArrearsSummary, error) {
	var summary ArrearsSummary
	err := c.doJSON(ctx, requestSpec{
		method:     http.MethodGet,
		path:       "/api/arrears",
		idempotent: true,
	}, &summary)
	if err != nil {
		return ArrearsSummary{}, err
	}
	return summary, nil
}

func (c *HTTPClient) Cycle(ctx context.Context) (CycleStatus, error) {
	var cycle CycleStatus
	err := c.doJSON(ctx, requestSpec{
		method:     http.MethodGet,
		path:       "/api/cycle",
		idempotent: true,
	}, &cycle)
	if err != nil {
		return CycleStatus{}, err
	}
	return cycle, nil
}

func (c *HTTPClient) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	err := c.doJSON(ctx, requestSpec{
		method:     http.MethodGet,
		path:       "/api/notifications",
		query:      query,
		idempotent: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}
