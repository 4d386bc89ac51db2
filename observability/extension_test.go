package observability_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/payment"
	"github.com/xraph/tally/reward"
	"github.com/xraph/tally/score"
	"github.com/xraph/tally/types"
)

type fakeMetric struct{ n float64 }

func (f *fakeMetric) Inc()              { f.n++ }
func (f *fakeMetric) Add(v float64)     { f.n += v }
func (f *fakeMetric) Observe(v float64) { f.n += v }

type fakeFactory map[string]*fakeMetric

func (f fakeFactory) get(name string) *fakeMetric {
	if m, ok := f[name]; ok {
		return m
	}
	m := &fakeMetric{}
	f[name] = m
	return m
}

func (f fakeFactory) Counter(name string) observability.Counter     { return f.get(name) }
func (f fakeFactory) Histogram(name string) observability.Histogram { return f.get(name) }

func TestMetricsExtensionCountsHooks(t *testing.T) {
	f := fakeFactory{}
	m := observability.NewMetricsExtension(f)
	ctx := context.Background()

	inv := &invoice.Invoice{Currency: "eur", Total: types.EUR(12200)}
	require.NoError(t, m.OnInvoiceCreated(ctx, inv))
	require.NoError(t, m.OnInvoicePaid(ctx, inv))
	require.NoError(t, m.OnPaymentRecorded(ctx, &payment.Payment{Amount: types.EUR(500)}, inv))
	require.NoError(t, m.OnScoreRecorded(ctx, &score.Score{Points: 40}))

	red := &reward.Redemption{Status: reward.StatusRejected}
	require.NoError(t, m.OnRedemptionTransitioned(ctx, red, reward.StatusPending))
	red.Status = reward.StatusDelivered
	require.NoError(t, m.OnRedemptionTransitioned(ctx, red, reward.StatusAwaitingPickup))

	assert.Equal(t, 1.0, f["tally.invoice.created"].n)
	assert.Equal(t, 12200.0, f["tally.invoice.total_cents"].n)
	assert.Equal(t, 1.0, f["tally.invoice.paid"].n)
	assert.Equal(t, 500.0, f["tally.payment.amount_cents"].n)
	assert.Equal(t, 40.0, f["tally.score.points"].n)
	assert.Equal(t, 1.0, f["tally.redemption.rejected"].n)
	assert.Equal(t, 1.0, f["tally.redemption.delivered"].n)
	assert.Equal(t, 0.0, f["tally.redemption.approved"].n)
}

func TestPrometheusFactoryServesMetrics(t *testing.T) {
	pf := observability.NewPrometheusFactory(prometheus.NewRegistry())
	m := observability.NewMetricsExtension(pf)

	// Same name, same collector: no duplicate registration panic.
	require.NotPanics(t, func() { pf.Counter("tally.invoice.paid") })

	require.NoError(t, m.OnInvoicePaid(context.Background(), &invoice.Invoice{}))
	require.NoError(t, m.OnInvoicePaid(context.Background(), &invoice.Invoice{}))

	srv := httptest.NewServer(pf.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tally_invoice_paid 2")
	assert.Contains(t, string(body), "tally_invoice_total_cents_bucket")
}
