package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pattern-traderv1/internal/model"
)

func TestSinkKeepsCountersCurrent(t *testing.T) {
	m := New(prometheus.NewRegistry())
	s := m.Sink()

	s.EquityAppended(model.EquityPoint{Index: 0, Equity: 10000})
	s.EquityAppended(model.EquityPoint{Index: 1, Equity: 10000})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CyclesTotal))
	assert.Equal(t, 10000.0, testutil.ToFloat64(m.Equity))

	s.PositionOpened(model.Position{Pattern: "breakout", Direction: model.Long})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PositionOpen))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(m.PositionsOpened.WithLabelValues("breakout", "long")))

	s.TradeClosed(model.Trade{
		Pattern: "breakout", ExitReason: model.ExitStop, RealizedPnL: -200,
	}, 9800)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PositionOpen))
	assert.Equal(t, 9800.0, testutil.ToFloat64(m.Equity))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.RealizedLoss))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(m.TradesTotal.WithLabelValues("breakout", "stop")))

	s.SignalRejected("momentum", "daily trade limit")
	assert.Equal(t, 1.0,
		testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("daily trade limit")))
}

func TestHealthzReportsDegradedWithoutFeed(t *testing.T) {
	h := NewHealthStatus()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	h.SetFeedOK(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
