package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"pattern-traderv1/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// API serves the dashboard's read-only view of one engine.
type API struct {
	Engine  *engine.Engine
	Hub     *Hub
	Started time.Time
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade: %v", err)
			return
		}
		a.Hub.Register(conn)
	})

	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/position", a.handlePosition)
	mux.HandleFunc("/api/trades", a.handleTrades)
	mux.HandleFunc("/api/equity", a.handleEquity)
	mux.HandleFunc("/api/analytics", a.handleAnalytics)
}

func writeJSON(w http.ResponseWriter, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	p := a.Engine.Params()
	_, open := a.Engine.Position()
	status := map[string]any{
		"instrument":     p.Instrument,
		"timeframe":      p.Timeframe.String(),
		"equity":         a.Engine.Equity(),
		"cycles":         a.Engine.Cycles(),
		"position_open":  open,
		"daily_counters": a.Engine.Counters(),
		"clients":        a.Hub.ClientCount(),
		"uptime_seconds": int(time.Since(a.Started).Seconds()),
	}
	if rej, ok := a.Engine.LastRejection(); ok {
		status["last_rejection"] = rej
	}
	writeJSON(w, status)
}

func (a *API) handlePosition(w http.ResponseWriter, _ *http.Request) {
	pos, open := a.Engine.Position()
	if !open {
		writeJSON(w, map[string]any{"open": false})
		return
	}
	writeJSON(w, map[string]any{"open": true, "position": pos})
}

func (a *API) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			SetCORS(w)
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, a.Engine.Trades(limit))
}

func (a *API) handleEquity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Engine.EquityCurve())
}

func (a *API) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Engine.Performance())
}
