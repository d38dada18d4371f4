// Package client implements the GT06 client state machine (connect ->
// login -> heartbeat/location loop -> command dispatch -> reconnect)
// against a Traccar-like server.
package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"gt06_gateway/internal/events"
	"gt06_gateway/internal/protocol"
	"gt06_gateway/internal/reassembler"
	"gt06_gateway/internal/seqclock"
)

// CommandHandler receives CommandReceived text so a collaborator (the
// serial bridge) can act on it. The client always sends the CMD-ACK
// itself, before HandleCommand is invoked.
type CommandHandler interface {
	HandleCommand(text string)
}

// Dialer opens the TCP connection; production code uses net.Dialer,
// tests substitute a fake.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, network, addr)
}

// Counters tracks the running totals the engine's observability surface
// reports. Reset on Connect; PacketsSent/PacketsReceived/LastActivity
// track every frame over the wire, not just the protocol-specific ones.
type Counters struct {
	PacketsSent       int
	PacketsReceived   int
	HeartbeatsOK      int
	LocationsOK       int
	CommandsReceived  int
	ReconnectAttempts int
	LastActivity      time.Time
}

// Client is the GT06 client engine. It owns exactly one TCP connection at
// a time and is driven entirely by its own goroutines; callers interact
// with it only through Connect/Disconnect/SendPosition/SendAlarm and the
// Events log.
type Client struct {
	cfg    Config
	dialer Dialer
	clock  seqclock.Clock
	log    *events.Log
	onCmd  CommandHandler

	mu                sync.Mutex
	state             State
	shouldBeConnected bool
	conn              net.Conn
	counter           *seqclock.Counter
	lastPosition      *protocol.Position
	counters          Counters
	lastError         error

	generation int // bumped on every Disconnect/new connect attempt, to invalidate stale goroutines
	cancelRun  context.CancelFunc
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithDialer overrides the TCP dialer (for tests).
func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithClock overrides the clock source (for tests).
func WithClock(clk seqclock.Clock) Option { return func(c *Client) { c.clock = clk } }

// WithCommandHandler registers the collaborator that receives
// CommandReceived text after the CMD-ACK has been sent.
func WithCommandHandler(h CommandHandler) Option { return func(c *Client) { c.onCmd = h } }

// New validates cfg and returns a Client in the Disconnected state. An
// invalid cfg is a ConfigError: the returned Client is left in the
// terminal Error state (observable via State(), logged as an Error
// event) and the error is also returned directly, since ConfigError is
// fatal and synchronous.
func New(cfg Config, log *events.Log, opts ...Option) (*Client, error) {
	if err := cfg.Normalize(); err != nil {
		c := &Client{cfg: cfg, log: log, state: Error}
		log.Emit(events.KindError, fmt.Sprintf("ConfigError: %v", err), nil)
		return c, err
	}
	c := &Client{
		cfg:     cfg,
		dialer:  netDialer{},
		clock:   seqclock.SystemClock{},
		log:     log,
		state:   Disconnected,
		counter: seqclock.NewCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters returns a snapshot of the running counters.
func (c *Client) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Emit(events.Kind(s.String()), fmt.Sprintf("state -> %s", s), nil)
}

// Connect is a no-op if already Connecting/LoggingIn/Online. Otherwise it
// marks the client as wanting a connection and starts the connection
// goroutine, which owns the socket, timers and read loop for its
// generation.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == Connecting || c.state == LoggingIn || c.state == Online {
		c.mu.Unlock()
		return
	}
	c.shouldBeConnected = true
	c.state = Connecting
	c.generation++
	gen := c.generation
	c.counters = Counters{}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.mu.Unlock()

	go c.runConnection(ctx, gen)
}

// Disconnect clears should_be_connected, cancels timers and the read
// loop, and closes the socket.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.shouldBeConnected = false
	if c.cancelRun != nil {
		c.cancelRun()
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.setState(Disconnected)
}

func (c *Client) runConnection(ctx context.Context, gen int) {
	c.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	conn, err := c.dialer.DialContext(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		c.log.Emit(events.KindError, fmt.Sprintf("TransportError: connect to %s failed: %v", addr, err), nil)
		c.recordError(err)
		c.scheduleReconnect(ctx, gen)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(Connected)

	if err := c.login(conn); err != nil {
		c.log.Emit(events.KindError, fmt.Sprintf("login failed: %v", err), nil)
		c.recordError(err)
		conn.Close()
		c.scheduleReconnect(ctx, gen)
		return
	}

	c.setState(Online)
	c.mu.Lock()
	c.counters.ReconnectAttempts = 0
	c.mu.Unlock()

	c.runOnline(ctx, conn, gen)
}

func (c *Client) login(conn net.Conn) error {
	serial := c.counter.Next()
	frame, err := protocol.EncodeLogin(c.cfg.IMEI, serial)
	if err != nil {
		return err
	}
	c.setState(LoggingIn)
	if err := c.writeFrame(conn, protocol.ProtoLogin, frame); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.LoginTimeout))
	defer conn.SetReadDeadline(time.Time{})

	r := reassembler.New()
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return fmt.Errorf("client: TransportError: waiting for LOGIN-ACK: %w", err)
		}
		for _, raw := range r.Feed(buf[:n]) {
			f, err := protocol.ParseFrame(raw)
			if err != nil {
				c.log.Emit(events.KindWarning, fmt.Sprintf("FramingError: %v", err), nil)
				continue
			}
			c.recordPacketReceived(f)
			if f.Protocol == protocol.ProtoLogin {
				return nil
			}
		}
	}
}

func (c *Client) runOnline(ctx context.Context, conn net.Conn, gen int) {
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	location := time.NewTicker(c.cfg.LocationInterval)
	defer heartbeat.Stop()
	defer location.Stop()

	readErrCh := make(chan error, 1)
	go c.readLoop(conn, readErrCh)

	// First heartbeat fires immediately on entering Online.
	c.sendHeartbeat(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.sendHeartbeat(conn)
		case <-location.C:
			c.sendLocationIfKnown(conn)
		case err := <-readErrCh:
			conn.Close()
			c.log.Emit(events.KindDisconnected, fmt.Sprintf("stream closed: %v", err), nil)
			c.setState(Disconnected)
			c.scheduleReconnect(ctx, gen)
			return
		}
	}
}

func (c *Client) readLoop(conn net.Conn, errCh chan<- error) {
	r := reassembler.New()
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		for _, raw := range r.Feed(buf[:n]) {
			f, err := protocol.ParseFrame(raw)
			if err != nil {
				c.log.Emit(events.KindWarning, fmt.Sprintf("FramingError: %v", err), nil)
				continue
			}
			c.recordPacketReceived(f)
			if !f.ChecksumOK {
				c.log.Emit(events.KindWarning, "ChecksumMismatch: dispatching anyway", map[string]any{"checksum_ok": false})
			}
			c.dispatch(conn, f)
		}
	}
}

func (c *Client) dispatch(conn net.Conn, f protocol.Frame) {
	switch f.Protocol {
	case protocol.ProtoHeartbeat:
		c.mu.Lock()
		c.counters.HeartbeatsOK++
		c.mu.Unlock()
		c.log.Emit(events.KindHeartbeatAck, "heartbeat acknowledged", nil)

	case protocol.ProtoLocation:
		c.mu.Lock()
		c.counters.LocationsOK++
		c.mu.Unlock()
		c.log.Emit(events.KindLocationAck, "location acknowledged", nil)

	case protocol.ProtoCommand:
		cmd, err := protocol.DecodeCommandContent(f.Content)
		if err != nil {
			c.log.Emit(events.KindWarning, fmt.Sprintf("DecodeError: %v", err), nil)
			return
		}
		c.mu.Lock()
		c.counters.CommandsReceived++
		c.mu.Unlock()
		c.log.Emit(events.KindCommandReceived, cmd.Text, map[string]any{"text": cmd.Text})

		ackSerial := c.counter.Next()
		ackFrame := protocol.EncodeCommandResponse("CMD OK:"+cmd.Text, ackSerial)
		if err := c.writeFrame(conn, protocol.ProtoCommandResponse, ackFrame); err != nil {
			c.log.Emit(events.KindError, fmt.Sprintf("BridgeError: failed to send CMD-ACK: %v", err), nil)
			return
		}
		c.log.Emit(events.KindCommandAck, "CMD OK:"+cmd.Text, nil)

		if c.onCmd != nil {
			c.onCmd.HandleCommand(cmd.Text)
		}

	case protocol.ProtoCommandResponse:
		c.log.Emit(events.KindCommandAck, "command-response echo received", nil)

	default:
		// Any other frame: emit a generic ACK echoing the serial, do not
		// drop the connection.
		ack := protocol.BuildFrame(f.Protocol, nil, f.Serial)
		_ = c.writeFrame(conn, f.Protocol, ack)
	}
}

func (c *Client) sendHeartbeat(conn net.Conn) {
	serial := c.counter.Next()
	frame := protocol.EncodeHeartbeat(protocol.TerminalInfo{ACCOn: true, GPSPositioned: true}, 4, 4, serial)
	if err := c.writeFrame(conn, protocol.ProtoHeartbeat, frame); err != nil {
		c.log.Emit(events.KindError, fmt.Sprintf("TransportError: heartbeat send failed: %v", err), nil)
	}
}

func (c *Client) sendLocationIfKnown(conn net.Conn) {
	c.mu.Lock()
	pos := c.lastPosition
	c.mu.Unlock()
	if pos == nil {
		return
	}
	serial := c.counter.Next()
	frame := protocol.EncodeLocation(*pos, serial)
	if err := c.writeFrame(conn, protocol.ProtoLocation, frame); err != nil {
		c.log.Emit(events.KindError, fmt.Sprintf("TransportError: location send failed: %v", err), nil)
	}
}

// SendPosition is allowed in any state; if the client isn't Online, the
// position is dropped with a Warning event rather than queued.
func (c *Client) SendPosition(pos protocol.Position) {
	c.mu.Lock()
	c.lastPosition = &pos
	online := c.state == Online
	conn := c.conn
	c.mu.Unlock()

	if !online || conn == nil {
		c.log.Emit(events.KindWarning, "send_position dropped: client not Online", nil)
		return
	}
	serial := c.counter.Next()
	frame := protocol.EncodeLocation(pos, serial)
	if err := c.writeFrame(conn, protocol.ProtoLocation, frame); err != nil {
		c.log.Emit(events.KindError, fmt.Sprintf("TransportError: send_position failed: %v", err), nil)
	}
}

// SendAlarm is allowed in any state; if the client isn't Online, the
// alarm is dropped with a Warning event rather than queued.
func (c *Client) SendAlarm(kind protocol.AlarmKind, pos protocol.Position) {
	c.mu.Lock()
	online := c.state == Online
	conn := c.conn
	c.mu.Unlock()

	if !online || conn == nil {
		c.log.Emit(events.KindWarning, "send_alarm dropped: client not Online", nil)
		return
	}
	serial := c.counter.Next()
	frame := protocol.EncodeAlarm(kind, pos, serial)
	if err := c.writeFrame(conn, protocol.ProtoAlarm, frame); err != nil {
		c.log.Emit(events.KindError, fmt.Sprintf("TransportError: send_alarm failed: %v", err), nil)
	}
}

func (c *Client) writeFrame(conn net.Conn, proto byte, frame []byte) error {
	if _, err := conn.Write(frame); err != nil {
		return err
	}
	c.mu.Lock()
	c.counters.PacketsSent++
	c.counters.LastActivity = c.clock.Now()
	c.mu.Unlock()
	c.log.Emit(events.KindPacketSent, fmt.Sprintf("sent protocol 0x%02X", proto), map[string]any{
		"type": proto, "len": len(frame), "hex": hex.EncodeToString(frame),
	})
	return nil
}

// recordPacketReceived updates packets_received and last_activity_ts for
// every inbound frame, regardless of state, then logs it.
func (c *Client) recordPacketReceived(f protocol.Frame) {
	c.mu.Lock()
	c.counters.PacketsReceived++
	c.counters.LastActivity = c.clock.Now()
	c.mu.Unlock()
	c.log.Emit(events.KindPacketReceived, fmt.Sprintf("received protocol 0x%02X", f.Protocol), map[string]any{
		"type": f.Protocol, "len": len(f.Raw), "hex": hex.EncodeToString(f.Raw),
	})
}

func (c *Client) recordError(err error) {
	c.mu.Lock()
	c.lastError = err
	c.mu.Unlock()
}

// LastError returns the most recently recorded transport/login error, if
// any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

func (c *Client) scheduleReconnect(ctx context.Context, gen int) {
	c.mu.Lock()
	if !c.shouldBeConnected || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.counters.ReconnectAttempts++
	attempts := c.counters.ReconnectAttempts
	max := c.cfg.MaxReconnectAttempts
	c.mu.Unlock()

	c.setState(Disconnected)

	if max > 0 && attempts >= max {
		c.log.Emit(events.KindWarning, fmt.Sprintf("max_reconnect_attempts (%d) reached, giving up", max), nil)
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(c.cfg.ReconnectInterval):
	}

	c.mu.Lock()
	if !c.shouldBeConnected || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	go c.runConnection(ctx, gen)
}
