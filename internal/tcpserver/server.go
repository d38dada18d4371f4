// Package tcpserver implements the GT06 server state machine: it accepts
// concurrent inbound tracker connections, reassembles and decodes each
// one's frame stream, and emits the protocol-appropriate ACK for every
// inbound packet.
package tcpserver

import (
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gt06_gateway/internal/events"
	"gt06_gateway/internal/models"
	"gt06_gateway/internal/protocol"
	"gt06_gateway/internal/reassembler"

	"gorm.io/gorm"
)

// DefaultPort is the standard GT06 listen port.
const DefaultPort = 5023

// StatusByte is the fixed status value this server places in every ACK's
// content (0x00 = OK, the only status the reference server ever sends).
const StatusByte = 0x00

// Server accepts inbound GT06 connections. Each connection gets its own
// reassembler, counters and dispatch loop, independent of all others.
type Server struct {
	log *events.Log
	db  *gorm.DB // optional: nil disables device/position persistence

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	conns    map[*Connection]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithDB enables persisting accepted devices and decoded positions via
// GORM. Without it, the server runs wire-only.
func WithDB(db *gorm.DB) Option { return func(s *Server) { s.db = db } }

// Counters tracks the running per-connection totals mirroring the
// client engine's observability surface: every inbound frame updates
// PacketsReceived and LastActivity regardless of session state, every
// ACK or COMMAND-RESPONSE written back updates PacketsSent.
type Counters struct {
	PacketsSent     int
	PacketsReceived int
	LastActivity    time.Time
}

// Connection is one accepted peer's session state.
type Connection struct {
	conn     net.Conn
	remote   string
	loggedIn atomic.Bool
	imei     atomic.Value // string
	server   *Server

	mu       sync.Mutex
	counters Counters
}

func (c *Connection) recordReceived() {
	c.mu.Lock()
	c.counters.PacketsReceived++
	c.counters.LastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) recordSent() {
	c.mu.Lock()
	c.counters.PacketsSent++
	c.counters.LastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// New returns a Server bound to no listener yet; call Serve to start
// accepting.
func New(log *events.Log, opts ...Option) *Server {
	s := &Server{log: log, conns: make(map[*Connection]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve binds addr (e.g. ":5023") and accepts connections until the
// listener is closed. It blocks the calling goroutine.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcpserver: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Emit(events.KindConnected, fmt.Sprintf("listening on %s", addr), nil)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		c := &Connection{conn: conn, remote: conn.RemoteAddr().String(), server: s}
		s.track(c)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			c.run(s.log)
		}()
	}
}

// Close stops accepting new connections and closes all tracked ones.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.conn.Close()
	}
	s.wg.Wait()
	return nil
}

// ActiveConnections returns the number of connections currently tracked.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *Connection) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (c *Connection) run(log *events.Log) {
	defer c.conn.Close()
	log.Emit(events.KindConnected, fmt.Sprintf("accepted connection from %s", c.remote), nil)

	r := reassembler.New()
	buf := make([]byte, 2048)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			log.Emit(events.KindDisconnected, fmt.Sprintf("connection from %s closed: %v", c.remote, err), nil)
			return
		}
		for _, raw := range r.Feed(buf[:n]) {
			f, err := protocol.ParseFrame(raw)
			if err != nil {
				log.Emit(events.KindWarning, fmt.Sprintf("FramingError from %s: %v", c.remote, err), nil)
				continue
			}
			c.recordReceived()
			log.Emit(events.KindPacketReceived, fmt.Sprintf("received protocol 0x%02X from %s", f.Protocol, c.remote), map[string]any{
				"type": f.Protocol, "len": len(f.Raw), "hex": hex.EncodeToString(f.Raw),
			})
			if !f.ChecksumOK {
				log.Emit(events.KindWarning, fmt.Sprintf("ChecksumMismatch from %s", c.remote), map[string]any{"checksum_ok": false})
			}
			c.dispatch(log, f)
		}
	}
}

func (c *Connection) dispatch(log *events.Log, f protocol.Frame) {
	switch f.Protocol {
	case protocol.ProtoLogin:
		imei, err := protocol.DecodeLoginContent(f.Content)
		if err != nil {
			log.Emit(events.KindWarning, fmt.Sprintf("DecodeError: %v", err), nil)
			return
		}
		c.imei.Store(imei)
		c.loggedIn.Store(true)
		log.Emit(events.KindConnected, fmt.Sprintf("IMEI %s logged in from %s", imei, c.remote), map[string]any{"imei": imei})
		c.recordDevice(imei)
		c.ack(log, protocol.ProtoLogin, f.Serial)

	case protocol.ProtoHeartbeat:
		c.ack(log, protocol.ProtoHeartbeat, f.Serial)

	case protocol.ProtoLocation:
		pos, err := protocol.DecodeLocationContent(f.Content)
		if err != nil {
			log.Emit(events.KindWarning, fmt.Sprintf("DecodeError: %v", err), nil)
			return
		}
		log.Emit(events.KindLocationAck, fmt.Sprintf("position from %s", c.remote), map[string]any{
			"lat": pos.LatDeg, "lon": pos.LonDeg, "speed": pos.SpeedKMH,
		})
		c.recordPosition(pos, "", f)
		c.ack(log, protocol.ProtoLocation, f.Serial)

	case protocol.ProtoAlarm:
		kind, pos, err := protocol.DecodeAlarmContent(f.Content)
		if err != nil {
			log.Emit(events.KindWarning, fmt.Sprintf("DecodeError: %v", err), nil)
			return
		}
		log.Emit(events.KindLocationAck, fmt.Sprintf("alarm from %s", c.remote), map[string]any{
			"alarm_kind": kind, "lat": pos.LatDeg, "lon": pos.LonDeg,
		})
		c.recordPosition(pos, string(kind), f)
		c.ack(log, protocol.ProtoAlarm, f.Serial)

	case protocol.ProtoCommand:
		cmd, err := protocol.DecodeCommandContent(f.Content)
		if err != nil {
			log.Emit(events.KindWarning, fmt.Sprintf("DecodeError: %v", err), nil)
			return
		}
		log.Emit(events.KindCommandReceived, cmd.Text, map[string]any{"text": cmd.Text})
		ack := protocol.EncodeCommandResponse(cmd.Text, f.Serial)
		if _, err := c.conn.Write(ack); err != nil {
			log.Emit(events.KindError, fmt.Sprintf("TransportError: ACK write to %s failed: %v", c.remote, err), nil)
			return
		}
		c.recordSent()

	default:
		log.Emit(events.KindWarning, fmt.Sprintf("unknown protocol 0x%02X from %s, ACKing anyway", f.Protocol, c.remote), nil)
		c.ack(log, f.Protocol, f.Serial)
	}
}

// recordDevice upserts a Device row for imei, stamping LastSeen. A nil
// db (persistence disabled) makes this a no-op.
func (c *Connection) recordDevice(imei string) {
	if c.server.db == nil {
		return
	}
	now := time.Now().UTC()
	device := models.Device{IMEI: imei, FirstSeen: now, LastSeen: now}
	c.server.db.Where(models.Device{IMEI: imei}).
		Assign(models.Device{LastSeen: now}).
		FirstOrCreate(&device)
}

// recordPosition inserts a GPSData row decoded from a LOCATION or ALARM
// frame. A nil db (persistence disabled) makes this a no-op.
func (c *Connection) recordPosition(pos protocol.Position, alarmKind string, f protocol.Frame) {
	if c.server.db == nil {
		return
	}
	imei, _ := c.imei.Load().(string)
	row := models.GPSData{
		IMEI:         imei,
		Latitude:     pos.LatDeg,
		Longitude:    pos.LonDeg,
		SpeedKMH:     pos.SpeedKMH,
		CourseDeg:    pos.CourseDeg,
		GPSValid:     pos.GPSValid,
		Satellites:   int(pos.Satellites),
		AlarmActive:  alarmKind != "",
		AlarmKind:    alarmKind,
		ProtocolName: fmt.Sprintf("0x%02X", f.Protocol),
		RawHex:       hex.EncodeToString(f.Raw),
	}
	c.server.db.Create(&row)
}

// ack echoes the inbound serial with a single status byte, the
// STATUS-style ACK every handled protocol (and the unknown-protocol
// fallback) sends.
func (c *Connection) ack(log *events.Log, proto byte, serial uint16) {
	frame := protocol.BuildFrame(proto, []byte{StatusByte}, serial)
	if _, err := c.conn.Write(frame); err != nil {
		log.Emit(events.KindError, fmt.Sprintf("TransportError: ACK write to %s failed: %v", c.remote, err), nil)
		return
	}
	c.recordSent()
}

// State reports "listening" once Serve has bound a port, matching the
// StateProvider contract httpapi's /health endpoint reads.
func (s *Server) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return "stopped"
	}
	return fmt.Sprintf("listening (%d connections)", len(s.conns))
}

// Counters aggregates PacketsSent/PacketsReceived across every tracked
// connection and reports the most recent LastActivity, satisfying
// httpapi's StateProvider contract for server mode.
func (s *Server) Counters() map[string]any {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var total Counters
	for _, c := range conns {
		snap := c.snapshot()
		total.PacketsSent += snap.PacketsSent
		total.PacketsReceived += snap.PacketsReceived
		if snap.LastActivity.After(total.LastActivity) {
			total.LastActivity = snap.LastActivity
		}
	}
	return map[string]any{
		"active_connections": len(conns),
		"packets_sent":       total.PacketsSent,
		"packets_received":   total.PacketsReceived,
		"last_activity":      total.LastActivity,
	}
}
