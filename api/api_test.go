package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/auth"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/member"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/store/memory"
)

type server struct {
	srv   *httptest.Server
	admin string
	alice string
	other string
}

func setup(t *testing.T) *server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	metrics := observability.NewPrometheusFactory(prometheus.NewRegistry())
	engine := tally.New(memory.New(),
		tally.WithLogger(logger),
		tally.WithClock(func() time.Time { return now }),
		tally.WithPlugin(observability.NewMetricsExtension(metrics)),
	)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop() })

	am, err := auth.NewManager("test-secret")
	require.NoError(t, err)

	token := func(tenant, name string, role member.Role) string {
		m := &member.Member{TenantID: tenant, Name: name, Role: role}
		require.NoError(t, engine.ImportMember(context.Background(), m))
		tok, err := am.Issue(tenant, m.ID.String(), string(role))
		require.NoError(t, err)
		return tok
	}

	h := api.NewHandler(engine, am, api.WithLogger(logger), api.WithMetrics(metrics.Handler()))
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &server{
		srv:   srv,
		admin: token("acme", "Ada", member.RoleAdmin),
		alice: token("acme", "Alice", member.RoleEmployee),
		other: token("globex", "Gus", member.RoleAdmin),
	}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func amount(v any) float64 {
	return v.(map[string]any)["amount"].(float64)
}

func invoiceBody(cents int64) map[string]any {
	return map[string]any{
		"customer": map[string]any{"name": "Rossi Impianti SRL"},
		"lines": []map[string]any{
			{"description": "Manutenzione", "quantity": 1, "unit_price": cents},
		},
	}
}

func TestAuthRequired(t *testing.T) {
	s := setup(t)

	code, body := s.do(t, "GET", "/api/fatture", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, body["error"], "bearer")

	code, _ = s.do(t, "GET", "/api/fatture", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	am, err := auth.NewManager("test-secret")
	require.NoError(t, err)
	stranger, err := am.Issue("acme", id.NewMemberID().String(), "admin")
	require.NoError(t, err)
	code, _ = s.do(t, "GET", "/api/fatture", stranger, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestInvoicePaymentFlow(t *testing.T) {
	s := setup(t)

	code, inv := s.do(t, "POST", "/api/fatture", s.admin, invoiceBody(10000))
	require.Equal(t, http.StatusCreated, code, inv)
	assert.Equal(t, "1/2025", inv["number"])
	assert.Equal(t, "unpaid", inv["payment_status"])
	invID := inv["id"].(string)

	code, next := s.do(t, "GET", "/api/fatture/numero-disponibile?year=2025", s.alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2/2025", next["number"])

	code, res := s.do(t, "POST", "/api/pagamenti", s.alice, map[string]any{
		"invoice_id": invID, "amount": 6000, "method": "bonifico",
	})
	require.Equal(t, http.StatusCreated, code, res)
	updated := res["invoice"].(map[string]any)
	assert.Equal(t, "partially_paid", updated["payment_status"])
	assert.Equal(t, 4000.0, amount(updated["amount_due"]))

	code, over := s.do(t, "POST", "/api/pagamenti", s.alice, map[string]any{
		"invoice_id": invID, "amount": 5000, "method": "contanti",
	})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, 10000.0, amount(over["total"]))
	assert.Equal(t, 6000.0, amount(over["already_paid"]))
	assert.Equal(t, 4000.0, amount(over["remaining"]))

	code, residual := s.do(t, "GET", "/api/pagamenti/fattura/"+invID+"/residuo", s.alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 4000.0, amount(residual["remaining"]))
	assert.Len(t, residual["payments"], 1)

	code, _ = s.do(t, "DELETE", "/api/fatture/"+invID, s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, res = s.do(t, "POST", "/api/pagamenti", s.alice, map[string]any{
		"invoice_id": invID, "amount": 4000, "method": "carta",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "paid", res["invoice"].(map[string]any)["payment_status"])

	code, _ = s.do(t, "PUT", "/api/fatture/"+invID, s.admin, map[string]any{"notes": "late edit"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, list := s.do(t, "GET", "/api/fatture?status=paid", s.alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, list["count"])
}

func TestTenantIsolation(t *testing.T) {
	s := setup(t)

	_, inv := s.do(t, "POST", "/api/fatture", s.admin, invoiceBody(500))
	invID := inv["id"].(string)

	code, _ := s.do(t, "GET", "/api/fatture/"+invID, s.other, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, "GET", "/api/fatture/not-an-id", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRewardsFlow(t *testing.T) {
	s := setup(t)

	code, _ := s.do(t, "POST", "/api/rewards", s.alice, map[string]any{"name": "Buono Amazon"})
	assert.Equal(t, http.StatusForbidden, code)

	code, rw := s.do(t, "POST", "/api/rewards", s.admin, map[string]any{
		"name": "Buono Amazon", "cost_lifetime": 100,
	})
	require.Equal(t, http.StatusCreated, code, rw)
	assert.Equal(t, 1.0, rw["quantity"])
	rewardID := rw["id"].(string)

	code, short := s.do(t, "POST", "/api/rewards/"+rewardID+"/redeem", s.alice, nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "lifetime", short["budget"])
	assert.Equal(t, 0.0, short["have"])
	assert.Equal(t, 100.0, short["need"])

	_, me := s.do(t, "GET", "/api/members/me", s.alice, nil)
	code, _ = s.do(t, "POST", "/api/scores", s.admin, map[string]any{
		"user_id": me["id"], "points": 150, "reason": "ticket chiusi",
	})
	require.Equal(t, http.StatusCreated, code)

	code, red := s.do(t, "POST", "/api/rewards/"+rewardID+"/redeem", s.alice, nil)
	require.Equal(t, http.StatusCreated, code, red)
	assert.Equal(t, "pending", red["status"])
	redID := red["id"].(string)

	code, _ = s.do(t, "POST", "/api/rewards/"+rewardID+"/redeem", s.alice, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, red = s.do(t, "PUT", "/api/rewards/redemptions/"+redID, s.admin, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved", red["status"])

	code, body := s.do(t, "POST", "/api/rewards/redemptions/"+redID+"/choose-pickup", s.alice, map[string]any{
		"pickup": "consegna_casa", "delivery": map[string]any{"address": "Via Roma 1"},
	})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "city")

	code, red = s.do(t, "POST", "/api/rewards/redemptions/"+redID+"/choose-pickup", s.alice, map[string]any{
		"pickup": "ritiro_persona",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "awaiting_pickup", red["status"])

	code, red = s.do(t, "PUT", "/api/rewards/redemptions/"+redID+"/mark-delivered", s.admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "delivered", red["status"])

	code, ntf := s.do(t, "GET", "/api/notifications?unread=true", s.alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, ntf["notifications"], 2)
}

func TestHealthAndMetrics(t *testing.T) {
	s := setup(t)

	code, body := s.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	s.do(t, "POST", "/api/fatture", s.admin, invoiceBody(500))

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tally_invoice_created 1")
}
