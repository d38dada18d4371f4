package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gt06_gateway/internal/bridge"
	"gt06_gateway/internal/configstore"
	"gt06_gateway/internal/events"
	"gt06_gateway/internal/serialtransport"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	state    string
	counters map[string]any
}

func (f fakeEngine) State() string            { return f.state }
func (f fakeEngine) Counters() map[string]any { return f.counters }

func TestHandleCountersReportsEngineCounters(t *testing.T) {
	log := events.NewLog(10)
	store := configstore.New(nil)
	engine := fakeEngine{state: "Online", counters: map[string]any{
		"packets_sent":     3,
		"packets_received": 5,
		"last_activity":    time.Now(),
	}}
	api := New(log, store, WithEngine(engine))
	router := api.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/counters", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["packets_sent"].(float64) != 3 || body["packets_received"].(float64) != 5 {
		t.Errorf("got body %+v", body)
	}
}

func TestHandleHealthReportsEngineState(t *testing.T) {
	log := events.NewLog(10)
	store := configstore.New(nil)
	engine := fakeEngine{state: "Online", counters: map[string]any{}}
	api := New(log, store, WithEngine(engine))
	router := api.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["state"] != "Online" {
		t.Errorf("got state %v, want Online", body["state"])
	}
}

func TestHandleBridgeStateWithoutBridgeReportsUnavailable(t *testing.T) {
	log := events.NewLog(10)
	store := configstore.New(nil)
	api := New(log, store)
	router := api.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bridge", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", w.Code)
	}
}

func TestHandleBridgeStateReportsLinkState(t *testing.T) {
	log := events.NewLog(10)
	store := configstore.New(nil)
	mem := serialtransport.NewMem()
	b := bridge.New(mem, log)
	if err := b.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Stop()
	b.HandleCommand("please STOP")

	api := New(log, store, WithBridge(b))
	router := api.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bridge", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["serial_connected"] != true {
		t.Errorf("got serial_connected %v, want true", body["serial_connected"])
	}
	if body["last_line_tx"] != "CMD:BLOQUEAR" {
		t.Errorf("got last_line_tx %v, want CMD:BLOQUEAR", body["last_line_tx"])
	}
	if body["commands_forwarded"].(float64) != 1 {
		t.Errorf("got commands_forwarded %v, want 1", body["commands_forwarded"])
	}
}
