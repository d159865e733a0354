package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"github.com/sdrshn-nmbr/cleancity/internal/db"
	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

// switchStore fails saves while failing is set.
type switchStore struct {
	billing.Store
	failing bool
}

func (s *switchStore) Save(ctx context.Context, key string, value []byte) error {
	if s.failing {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, key, value)
}

type fixture struct {
	handler http.Handler
	store   *switchStore
	service *billing.Service
	metrics *billing.Metrics
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, load bool) fixture {
	t.Helper()
	database, err := db.Open(db.Options{Storage: storage.NewMemoryStorage(), Retry: db.NoRetry()})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	reg := prometheus.NewRegistry()
	metrics := billing.NewMetrics(reg)
	feed := billing.NewFeed(10)
	store := &switchStore{Store: database}
	service, err := billing.NewService(store, billing.ServiceOptions{
		Clock:    billing.NewClock(nairobi),
		Now:      func() time.Time { return time.Date(2024, time.March, 10, 12, 0, 0, 0, nairobi) },
		Notifier: feed,
		Metrics:  metrics,
		Customers: []billing.CustomerProfile{
			{ID: "greenview", Name: "Greenview Apartments", Unit: "Block A"},
			{ID: "kiosk", Name: "Mama Njeri Kiosk", Unit: "Stall 14"},
		},
	})
	require.NoError(t, err)
	if load {
		_, err = service.Load(context.Background())
		require.NoError(t, err)
	}

	return fixture{
		handler: NewHandler(HandlerOptions{Service: service, Feed: feed, Gatherer: reg}),
		store:   store,
		service: service,
		metrics: metrics,
		reg:     reg,
	}
}

func (f fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCustomerRoutes(t *testing.T) {
	f := newFixture(t, true)

	resp := f.do(t, http.MethodGet, "/api/customers")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[customersResponse](t, resp)
	assert.Equal(t, "KES", list.Currency)
	require.Len(t, list.Customers, 2)
	assert.Equal(t, "greenview", list.Customers[0].ID)
	assert.Equal(t, 11, list.Customers[0].OverdueRecords)

	resp = f.do(t, http.MethodGet, "/api/customers/kiosk")
	require.Equal(t, http.StatusOK, resp.Code)
	view := decode[billing.LedgerView](t, resp)
	require.Len(t, view.Records, billing.WindowMonths)
	assert.Equal(t, "April 2023", view.Records[0].Period)
	assert.Equal(t, "2023-04-30", view.Records[0].DueDate)
	assert.Equal(t, billing.StatusOverdue, view.Records[0].Status)
	assert.Equal(t, billing.StatusPending, view.Records[11].Status)

	resp = f.do(t, http.MethodGet, "/api/customers/nobody")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestToggleRoute(t *testing.T) {
	f := newFixture(t, true)

	resp := f.do(t, http.MethodPost, "/api/customers/greenview/records/3/toggle")
	require.Equal(t, http.StatusOK, resp.Code)
	n := decode[billing.Notification](t, resp)
	assert.True(t, n.Paid)
	assert.Equal(t, billing.TitleMarkedPaid, n.Title)
	assert.Equal(t, "July 2023 - KES 250", n.Description)

	resp = f.do(t, http.MethodGet, "/api/notifications?limit=5")
	require.Equal(t, http.StatusOK, resp.Code)
	feed := decode[notificationsResponse](t, resp)
	require.Len(t, feed.Notifications, 1)
	assert.Equal(t, n.ID, feed.Notifications[0].ID)

	resp = f.do(t, http.MethodGet, "/api/arrears")
	require.Equal(t, http.StatusOK, resp.Code)
	arrears := decode[arrearsResponse](t, resp)
	assert.Equal(t, 21, arrears.OverdueRecords)
	assert.Equal(t, "21 overdue payments", arrears.Label)
	assert.Equal(t, "5250", arrears.TotalArrears.String())
}

func TestToggleErrorMapping(t *testing.T) {
	f := newFixture(t, true)

	cases := []struct {
		path string
		want int
	}{
		{"/api/customers/greenview/records/abc/toggle", http.StatusBadRequest},
		{"/api/customers/greenview/records/12/toggle", http.StatusBadRequest},
		{"/api/customers/greenview/records/-1/toggle", http.StatusBadRequest},
		{"/api/customers/nobody/records/0/toggle", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := f.do(t, http.MethodPost, tc.path)
		assert.Equal(t, tc.want, resp.Code, tc.path)
		assert.Contains(t, resp.Body.String(), `"error"`)
	}

	f.store.failing = true
	resp := f.do(t, http.MethodPost, "/api/customers/greenview/records/0/toggle")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	view, err := f.service.Ledger("greenview")
	require.NoError(t, err)
	assert.False(t, view.Records[0].Paid)

	resp = f.do(t, http.MethodGet, "/api/customers/greenview/records/0/toggle")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestUnloadedServiceIsUnavailable(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/customers").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/cycle").Code)
}

func TestCycleAndHealthRoutes(t *testing.T) {
	f := newFixture(t, true)

	resp := f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, http.MethodGet, "/api/cycle")
	require.Equal(t, http.StatusOK, resp.Code)
	cycle := decode[billing.CycleStatus](t, resp)
	assert.Equal(t, "March 2024", cycle.Period)
	assert.Equal(t, "21d 11h 59m 59s", cycle.Display)

	resp = f.do(t, http.MethodGet, "/api/notifications?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodPost, "/api/customers/kiosk/records/0/toggle")

	resp := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `cleancity_billing_toggles_total{outcome="saved"} 1`)
	assert.Contains(t, body, "cleancity_billing_overdue_records 21")
}

func TestServerServesAndStops(t *testing.T) {
	f := newFixture(t, true)
	srv := New(Options{
		CountdownInterval: 10 * time.Millisecond,
		Metrics:           f.metrics,
		Handler:           HandlerOptions{Service: f.service, Gatherer: f.reg},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "ok"))

	require.Eventually(t, func() bool {
		var m dto.Metric
		if err := f.metrics.CycleSecondsLeft.Write(&m); err != nil {
			return false
		}
		return m.GetGauge().GetValue() > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
