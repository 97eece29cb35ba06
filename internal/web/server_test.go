package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/pool"
	"github.com/elys-network/fluxpool/internal/pricefeed"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

const testAPIKey = "gateway-secret"

type testServer struct {
	ws      *WebServer
	journal *state.MemoryJournal
	clock   time.Time
	apiKey  string // sent in X-API-Key when set
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithKey(t, testAPIKey)
}

func newTestServerWithKey(t *testing.T, apiKey string) *testServer {
	t.Helper()
	journal := state.NewMemoryJournal()
	feed := pricefeed.NewStaticFeed()
	feed.Set("atom-feed", pricefeed.Quote{Price: 10, PublishTime: t0})
	feed.Set("osmo-feed", pricefeed.Quote{Price: 2, PublishTime: t0})

	p, err := pool.NewPool(pool.Config{
		Store:   state.NewMemoryStore(),
		Feed:    feed,
		Ledger:  vault.NewMemoryLedger(),
		Journal: journal,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Instantiate(ctx, t0, types.PoolConfig{
		Admin:           "admin",
		SwapFeeRate:     sdkmath.LegacyMustNewDecFromStr("0.01"),
		Window:          time.Hour,
		UnbondingPeriod: time.Minute,
	})
	require.NoError(t, err)
	_, err = p.RegisterOrUpdateAsset(ctx, t0, "admin", "uatom", "ATOM", "atom-feed")
	require.NoError(t, err)
	_, err = p.RegisterOrUpdateAsset(ctx, t0, "admin", "uosmo", "OSMO", "osmo-feed")
	require.NoError(t, err)

	ts := &testServer{journal: journal, clock: t0, apiKey: apiKey}
	ts.ws = NewWebServer(Config{Pool: p, Journal: journal, APIKey: apiKey, Now: func() time.Time { return ts.clock }})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.apiKey != "" {
		req.Header.Set("X-API-Key", ts.apiKey)
	}
	rec := httptest.NewRecorder()
	ts.ws.Handler().ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
}

func TestDepositAndQuery(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/deposit", map[string]string{
		"provider": "alice", "asset": "uatom", "amount": "100",
	})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, "deposit", body["action"])

	rec, body = ts.do(t, http.MethodGet, "/api/providers?address=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = ts.do(t, http.MethodGet, "/api/outbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])

	rec, body = ts.do(t, http.MethodGet, "/api/liquidity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	liquidity := body["liquidity"].([]interface{})
	require.Len(t, liquidity, 2)
	assert.Equal(t, "100", liquidity[0].(map[string]interface{})["amount"])
}

func TestSwapEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/api/deposit", map[string]string{
		"provider": "alice", "asset": "uosmo", "amount": "10000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ts.clock = t0.Add(time.Minute)
	rec, body := ts.do(t, http.MethodPost, "/api/swap", map[string]string{
		"sender": "carol", "amount_in": "100", "asset_in": "uatom", "asset_out": "uosmo",
	})
	require.Equal(t, http.StatusOK, rec.Code, body)
	attrs := body["attributes"].(map[string]interface{})
	assert.Equal(t, "495", attrs["amount_out"])

	rec, _ = ts.do(t, http.MethodPost, "/api/swap", map[string]string{
		"sender": "carol", "amount_in": "100", "asset_in": "uatom", "asset_out": "uatom",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/unbond", map[string]string{
		"provider": "nobody", "asset": "uatom", "amount": "1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/deposit", map[string]string{
		"provider": "alice", "asset": "uatom", "amount": "lots",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/config", map[string]string{
		"sender": "alice", "swap_fee_rate": "0.5",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/admin/config", map[string]string{
		"sender": "admin", "window": "soon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/operations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/admin/config", map[string]string{
		"sender": "admin", "unbonding_period": "2m",
	})
	require.Equal(t, http.StatusOK, rec.Code, body)

	rec, body = ts.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2*time.Minute, body["unbonding_period"])

	rec, body = ts.do(t, http.MethodPost, "/api/admin/assets", map[string]string{
		"sender": "admin", "asset": "ujuno", "symbol": "JUNO", "price_feed": "juno-feed",
	})
	require.Equal(t, http.StatusOK, rec.Code, body)

	rec, body = ts.do(t, http.MethodGet, "/api/tokens?asset=ujuno", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestOperationsJournal(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, http.MethodPost, "/api/deposit", map[string]string{
		"provider": "alice", "asset": "uatom", "amount": "5",
	})
	id := body["operation_id"].(string)

	rec, body := ts.do(t, http.MethodGet, "/api/operations/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deposit", body["action"])

	rec, body = ts.do(t, http.MethodGet, "/api/operations?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, body = ts.do(t, http.MethodGet, "/api/operations/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["total_operations"])
}

func TestOperationsRequireAPIKey(t *testing.T) {
	ts := newTestServer(t)

	// the admin address is public, naming it in the body is not enough
	ts.apiKey = "guess"
	rec, _ := ts.do(t, http.MethodPost, "/api/admin/config", map[string]string{
		"sender": "admin", "swap_fee_rate": "0.99",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.apiKey = ""
	rec, _ = ts.do(t, http.MethodPost, "/api/deposit", map[string]string{
		"provider": "mallory", "asset": "uatom", "amount": "1000000",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := ts.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.010000000000000000", body["swap_fee_rate"])

	rec, body = ts.do(t, http.MethodGet, "/api/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestOperationsDisabledWithoutAPIKey(t *testing.T) {
	ts := newTestServerWithKey(t, "")

	rec, _ := ts.do(t, http.MethodPost, "/api/deposit", map[string]string{
		"provider": "alice", "asset": "uatom", "amount": "1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/tokens", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/swap", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	ts.ws.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, statusFor(pool.ErrUnauthorized))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(pricefeed.ErrStalePrice))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
