package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-traderv1/internal/model"
	"pattern-traderv1/internal/risk"
)

// chanNotifier records alerts on a channel so tests can wait for the
// sink's async delivery.
type chanNotifier struct {
	alerts chan Alert
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{alerts: make(chan Alert, 8)}
}

func (n *chanNotifier) Send(_ context.Context, a Alert) error {
	n.alerts <- a
	return nil
}

func (n *chanNotifier) next(t *testing.T) Alert {
	t.Helper()
	select {
	case a := <-n.alerts:
		return a
	case <-time.After(time.Second):
		t.Fatal("no alert delivered")
		return Alert{}
	}
}

func (n *chanNotifier) none(t *testing.T) {
	t.Helper()
	select {
	case a := <-n.alerts:
		t.Fatalf("unexpected alert: %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSinkAlertsOnOpenAndClose(t *testing.T) {
	n := newChanNotifier()
	sink := NewTradeSink(n, "BTCUSDT")

	sink.PositionOpened(model.Position{
		Direction: model.Long, Pattern: "breakout",
		EntryPrice: 102, Size: 2, StopPrice: 98, TargetPrice: 109,
	})
	a := n.next(t)
	assert.Equal(t, AlertInfo, a.Level)
	assert.Equal(t, "BTCUSDT long opened", a.Title)
	assert.Contains(t, a.Message, "pattern=breakout")

	sink.TradeClosed(model.Trade{
		Direction: model.Long, Pattern: "breakout",
		ExitReason: model.ExitStop, RealizedPnL: -200, PnLPercent: -2,
	}, 9800)
	a = n.next(t)
	assert.Equal(t, AlertWarning, a.Level, "losing trade escalates to warning")
	assert.Contains(t, a.Title, "(stop)")
	assert.Contains(t, a.Message, "equity=9800.00")
}

func TestSinkLiquidationIsCritical(t *testing.T) {
	n := newChanNotifier()
	sink := NewTradeSink(n, "BTCUSDT")

	sink.TradeClosed(model.Trade{
		Direction: model.Short, ExitReason: model.ExitLiquidation, RealizedPnL: -9000,
	}, 1000)
	assert.Equal(t, AlertCritical, n.next(t).Level)
}

func TestSinkOnlyLossLimitRejectionsAlert(t *testing.T) {
	n := newChanNotifier()
	sink := NewTradeSink(n, "BTCUSDT")

	sink.SignalRejected("momentum", risk.ReasonDailyTradeLimit)
	sink.EquityAppended(model.EquityPoint{Index: 3, Equity: 10000})
	n.none(t)

	sink.SignalRejected("momentum", risk.ReasonDailyLossLimit)
	a := n.next(t)
	assert.Equal(t, AlertCritical, a.Level)
	assert.Equal(t, "BTCUSDT trading halted", a.Title)
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level: AlertWarning, Title: "BTCUSDT long closed (stop)", Message: "pnl=-200.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "BTCUSDT long closed (stop)", got["title"])
}

func TestWebhookNotifierSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestEscapeMarkdown(t *testing.T) {
	out := escapeMarkdown("pnl=-2.00 (stop)")
	assert.True(t, strings.Contains(out, `\-`) && strings.Contains(out, `\(`))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}
