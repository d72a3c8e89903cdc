package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-traderv1/internal/engine"
	"pattern-traderv1/internal/model"
)

func testAPI(t *testing.T) (*API, *http.ServeMux) {
	t.Helper()
	e := engine.New(engine.DefaultParams("BTCUSDT", time.Hour, 10000), nil)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var candles []model.Candle
	for i := 0; i < 5; i++ {
		candles = append(candles, model.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 101, Low: 99, Close: 100, Volume: 1000,
		})
	}
	require.NoError(t, e.Run(context.Background(), engine.NewSliceSource(candles)))

	api := &API{Engine: e, Hub: NewHub(), Started: time.Now()}
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return api, mux
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	_, mux := testAPI(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var status map[string]any
	resp := getJSON(t, srv, "/api/status", &status)

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "BTCUSDT", status["instrument"])
	assert.Equal(t, "1h0m0s", status["timeframe"])
	assert.Equal(t, float64(5), status["cycles"])
	assert.Equal(t, float64(10000), status["equity"])
	assert.Equal(t, false, status["position_open"])
}

func TestPositionEndpointWhenFlat(t *testing.T) {
	_, mux := testAPI(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out map[string]any
	getJSON(t, srv, "/api/position", &out)
	assert.Equal(t, false, out["open"])
}

func TestEquityEndpoint(t *testing.T) {
	_, mux := testAPI(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var curve []model.EquityPoint
	getJSON(t, srv, "/api/equity", &curve)
	require.Len(t, curve, 5)
	assert.Equal(t, 4, curve[4].Index)
	assert.InDelta(t, 10000.0, curve[0].Equity, 1e-9)
}

func TestAnalyticsEndpointNullsWithoutTrades(t *testing.T) {
	_, mux := testAPI(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out map[string]any
	getJSON(t, srv, "/api/analytics", &out)
	assert.Equal(t, float64(0), out["total_trades"])
	assert.Nil(t, out["win_rate"], "ratio fields marshal as null when undefined")
	assert.Nil(t, out["profit_factor"])
}

func TestTradesEndpointRejectsBadLimit(t *testing.T) {
	_, mux := testAPI(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/trades?limit=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketReceivesTradeBroadcast(t *testing.T) {
	api, mux := testAPI(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait until the hub has adopted the connection.
	require.Eventually(t, func() bool { return api.Hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	api.Hub.TradeClosed(model.Trade{
		Direction: model.Long, Pattern: "breakout",
		ExitReason: model.ExitTarget, RealizedPnL: 350,
	}, 10350)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &envelope))
	assert.Equal(t, "trade", envelope.Channel)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "breakout", payload["pattern"])
	assert.Equal(t, float64(10350), payload["equity"])
}
