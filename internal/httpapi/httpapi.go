// Package httpapi exposes the engine's observability surface over HTTP:
// current client/bridge state, running counters, the event log (both a
// snapshot and a live websocket feed), recent persisted positions, and
// a config read/write endpoint guarded by a bcrypt-hashed operator
// token.
package httpapi

import (
	"net/http"
	"strconv"

	"gt06_gateway/internal/bridge"
	"gt06_gateway/internal/client"
	"gt06_gateway/internal/configstore"
	"gt06_gateway/internal/events"
	"gt06_gateway/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// StateProvider is implemented by whichever engine (client or server
// mode) hosts the API: it exposes read-only state for the dashboard
// contract without httpapi depending on either engine's concrete type.
type StateProvider interface {
	State() string
	Counters() map[string]any
}

// Server wires gin handlers over an events.Log, an optional
// configstore.Store and an optional *gorm.DB for position history.
type Server struct {
	log    *events.Log
	store  *configstore.Store
	db     *gorm.DB
	engine StateProvider
	bridge *bridge.Bridge
	hub    *Hub

	tokenHash []byte // empty disables auth on the config write endpoint
}

// Option configures a Server.
type Option func(*Server)

// WithDB enables the /api/v1/positions/:imei endpoint.
func WithDB(db *gorm.DB) Option { return func(s *Server) { s.db = db } }

// WithEngine wires the live client/server state into /health and
// /api/v1/counters.
func WithEngine(p StateProvider) Option { return func(s *Server) { s.engine = p } }

// WithBridge enables /api/v1/bridge, surfacing the serial bridge's link
// state. Without it, the endpoint reports that no bridge is configured.
func WithBridge(b *bridge.Bridge) Option { return func(s *Server) { s.bridge = b } }

// WithAPIToken enables bearer-token auth on the config write endpoint.
// An empty token leaves auth disabled.
func WithAPIToken(token string) Option {
	return func(s *Server) {
		if token == "" {
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err == nil {
			s.tokenHash = hash
		}
	}
}

// New returns a Server backed by log and store, plus any Options.
func New(log *events.Log, store *configstore.Store, opts ...Option) *Server {
	s := &Server{log: log, store: store, hub: newHub(log)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/api/v1/events", s.handleEvents)
	r.GET("/api/v1/counters", s.handleCounters)
	r.GET("/api/v1/config", s.handleGetConfig)
	r.PUT("/api/v1/config", s.requireToken(), s.handlePutConfig)
	r.GET("/api/v1/positions/:imei", s.handlePositions)
	r.GET("/api/v1/bridge", s.handleBridgeState)
	r.GET("/ws/events", s.hub.handleWebsocket)

	go s.hub.run()
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.engine != nil {
		resp["state"] = s.engine.State()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEvents(c *gin.Context) {
	n := 100
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	c.JSON(http.StatusOK, s.log.Recent(n))
}

func (s *Server) handleCounters(c *gin.Context) {
	if s.engine == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.engine.Counters())
}

// handleBridgeState reports the serial bridge's BridgeState: whether the
// link is open, the last line seen in each direction, and the running
// forward/response counters. Reports unavailable if no bridge is wired.
func (s *Server) handleBridgeState(c *gin.Context) {
	if s.bridge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no serial bridge configured"})
		return
	}
	state := s.bridge.State()
	c.JSON(http.StatusOK, gin.H{
		"serial_connected":   state.SerialConnected,
		"last_line_rx":       state.LastLineRX,
		"last_line_tx":       state.LastLineTX,
		"commands_forwarded": state.CommandsForwarded,
		"responses_received": state.ResponsesReceived,
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type configPatch struct {
	Host                 *string `json:"host"`
	Port                 *int    `json:"port"`
	IMEI                 *string `json:"imei"`
	HeartbeatSeconds     *int    `json:"heartbeat_seconds"`
	LocationSeconds      *int    `json:"location_seconds"`
	ReconnectSeconds     *int    `json:"reconnect_seconds"`
	MaxReconnectAttempts *int    `json:"max_reconnect_attempts"`
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var patch configPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	put := func(key string, value *int) {
		if value != nil {
			s.store.Put(key, strconv.Itoa(*value))
		}
	}
	if patch.Host != nil {
		s.store.Put("host", *patch.Host)
	}
	put("port", patch.Port)
	if patch.IMEI != nil {
		s.store.Put("imei", *patch.IMEI)
	}
	put("heartbeat_seconds", patch.HeartbeatSeconds)
	put("location_seconds", patch.LocationSeconds)
	put("reconnect_seconds", patch.ReconnectSeconds)
	put("max_reconnect_attempts", patch.MaxReconnectAttempts)

	cfg, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handlePositions(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return
	}
	imei := c.Param("imei")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var rows []models.GPSData
	err := s.db.Where("imei = ?", imei).Order("timestamp desc").Limit(limit).Find(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// requireToken returns middleware that rejects requests missing a
// matching "Authorization: Bearer <token>" header, unless auth is
// disabled (no token configured).
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.tokenHash) == 0 {
			c.Next()
			return
		}
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := header[len(prefix):]
		if bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// ClientCounters adapts client.Counters to the generic map Counters()
// returns, so callers don't need a type switch per engine mode.
func ClientCounters(c client.Counters) map[string]any {
	return map[string]any{
		"packets_sent":       c.PacketsSent,
		"packets_received":   c.PacketsReceived,
		"heartbeats_ok":      c.HeartbeatsOK,
		"locations_ok":       c.LocationsOK,
		"commands_received":  c.CommandsReceived,
		"reconnect_attempts": c.ReconnectAttempts,
		"last_activity":      c.LastActivity,
	}
}
