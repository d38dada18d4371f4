// Package bridge translates decoded inbound server commands into a
// newline-terminated text protocol for an attached microcontroller, and
// classifies the microcontroller's text replies back into events.
package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gt06_gateway/internal/events"
	"gt06_gateway/internal/serialtransport"
)

// textRule is one row of the case-insensitive substring mapping table.
// Rules are evaluated in order; the first match wins.
type textRule struct {
	contains []string
	outbound string
}

// textRules is the command->line mapping table, evaluated top to bottom.
var textRules = []textRule{
	{contains: []string{"STOP", "CUT", "BLOQUEAR", "BLOCK", "KILL", "DYD"}, outbound: "CMD:BLOQUEAR"},
	{contains: []string{"RESUME", "RESTORE", "DESBLOQUEAR", "UNBLOCK", "START", "HFYD"}, outbound: "CMD:DESBLOQUEAR"},
	{contains: []string{"WHERE", "LOCATE", "POSICAO", "POSITION", "GPS"}, outbound: "CMD:POSICAO"},
	{contains: []string{"RESET", "REINICIAR", "REBOOT", "RESTART"}, outbound: "CMD:REINICIAR"},
	{contains: []string{"STATUS", "ESTADO", "INFO"}, outbound: "CMD:STATUS"},
	{contains: []string{"INTERVAL", "INTERVALO"}, outbound: "CMD:INTERVALO"},
}

// TranslateText maps an inbound command's text to its outbound serial
// line, per the case-insensitive substring table. Text that matches no
// rule falls back to "CMD:<original text>".
func TranslateText(text string) string {
	upper := strings.ToUpper(text)
	for _, rule := range textRules {
		for _, needle := range rule.contains {
			if strings.Contains(upper, needle) {
				return rule.outbound
			}
		}
	}
	return "CMD:" + text
}

// TranslateOutput maps the structured OUTPUT pseudo-command (output=N,
// state=S) to its outbound line: N=1,S=1 -> ENGINE_STOP; N=1,S=0 ->
// ENGINE_RESUME; anything else -> CUSTOM,OUTPUT=N,STATE=S.
func TranslateOutput(n, state int) string {
	if n == 1 && state == 1 {
		return "ENGINE_STOP"
	}
	if n == 1 && state == 0 {
		return "ENGINE_RESUME"
	}
	return fmt.Sprintf("CUSTOM,OUTPUT=%d,STATE=%d", n, state)
}

// ReplyKind classifies a line the microcontroller sends back.
type ReplyKind string

const (
	ReplyACK    ReplyKind = "ACK"
	ReplyError  ReplyKind = "ERROR"
	ReplyStatus ReplyKind = "STATUS"
	ReplyLog    ReplyKind = "LOG"
	ReplyOther  ReplyKind = "other"
)

// ClassifyReply buckets a trimmed reply line by its prefix.
func ClassifyReply(line string) ReplyKind {
	upper := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(upper, "ACK"):
		return ReplyACK
	case strings.HasPrefix(upper, "ERROR"):
		return ReplyError
	case strings.HasPrefix(upper, "STATUS"):
		return ReplyStatus
	case strings.HasPrefix(upper, "LOG"):
		return ReplyLog
	default:
		return ReplyOther
	}
}

// Counters tracks the bridge's running totals.
type Counters struct {
	CommandsReceived  int
	CommandsForwarded int
	ResponsesReceived int
}

// BridgeState is the bridge's externally observable link state: whether
// the serial transport is currently open, the last line seen in each
// direction, and the running forward/response counters.
type BridgeState struct {
	SerialConnected   bool
	LastLineRX        string
	LastLineTX        string
	CommandsForwarded int
	ResponsesReceived int
}

// Bridge owns the transport, the mapping table and the counters. It
// implements client.CommandHandler so the engine can fan commands out to
// it directly.
type Bridge struct {
	transport serialtransport.Transport
	log       *events.Log

	mu              sync.Mutex
	counters        Counters
	serialConnected bool
	lastLineRX      string
	lastLineTX      string
	stopCh          chan struct{}
}

// New returns a Bridge over transport, logging to log. Start must be
// called to begin consuming reply lines.
func New(transport serialtransport.Transport, log *events.Log) *Bridge {
	return &Bridge{transport: transport, log: log}
}

// Start opens the transport (if not already open) and begins the reply
// reader loop.
func (b *Bridge) Start() error {
	if !b.transport.IsOpen() {
		if err := b.transport.Open(); err != nil {
			return fmt.Errorf("bridge: open transport: %w", err)
		}
		b.log.Emit(events.KindBridgeConnected, "serial transport opened", nil)
	}

	b.mu.Lock()
	b.serialConnected = true
	b.stopCh = make(chan struct{})
	stop := b.stopCh
	b.mu.Unlock()

	go b.readLoop(stop)
	return nil
}

// Stop closes the transport and stops the reply reader.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	b.serialConnected = false
	b.mu.Unlock()
	b.transport.Close()
	b.log.Emit(events.KindBridgeDisconnected, "serial transport closed", nil)
}

func (b *Bridge) readLoop(stop chan struct{}) {
	lines := b.transport.Lines()
	for {
		select {
		case <-stop:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			b.mu.Lock()
			b.counters.ResponsesReceived++
			b.lastLineRX = line
			b.mu.Unlock()
			kind := ClassifyReply(line)
			b.log.Emit(events.KindBridgeRx, line, map[string]any{"line": line, "classified": string(kind)})
		}
	}
}

// HandleCommand implements client.CommandHandler: it's invoked after the
// engine has already sent the CMD-ACK back over TCP. A text that parses
// as a structured "output=N,state=S" pair uses the structured mapping;
// everything else uses the text substring mapping. If the link isn't
// open, the bridge attempts one synchronous auto-reconnect before
// dropping the command.
func (b *Bridge) HandleCommand(text string) {
	b.mu.Lock()
	b.counters.CommandsReceived++
	b.mu.Unlock()

	var line string
	if n, state, ok := ParseOutputCommand(text); ok {
		line = TranslateOutput(n, state)
	} else {
		line = TranslateText(text)
	}

	if !b.transport.IsOpen() {
		if err := b.transport.Open(); err != nil {
			b.mu.Lock()
			b.serialConnected = false
			b.mu.Unlock()
			b.log.Emit(events.KindError, fmt.Sprintf("BridgeError: reconnect failed, dropping command %q: %v", text, err), nil)
			return
		}
		b.mu.Lock()
		b.serialConnected = true
		b.mu.Unlock()
		b.log.Emit(events.KindBridgeConnected, "serial transport reconnected", nil)
	}

	if err := b.transport.Write(line); err != nil {
		b.log.Emit(events.KindError, fmt.Sprintf("BridgeError: write failed, dropping command %q: %v", text, err), nil)
		return
	}
	b.mu.Lock()
	b.counters.CommandsForwarded++
	b.lastLineTX = line
	b.mu.Unlock()
	b.log.Emit(events.KindBridgeTx, line, map[string]any{"line": line})
}

// Counters returns a snapshot of the running totals.
func (b *Bridge) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

// State returns a snapshot of the bridge's link state for the HTTP
// observability surface.
func (b *Bridge) State() BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BridgeState{
		SerialConnected:   b.serialConnected,
		LastLineRX:        b.lastLineRX,
		LastLineTX:        b.lastLineTX,
		CommandsForwarded: b.counters.CommandsForwarded,
		ResponsesReceived: b.counters.ResponsesReceived,
	}
}

// ClearStats zeroes commands_received, commands_forwarded and
// responses_received.
func (b *Bridge) ClearStats() {
	b.mu.Lock()
	b.counters = Counters{}
	b.mu.Unlock()
}

// ParseOutputCommand parses an "output=N,state=S" command text into its
// two integers, for callers that need to distinguish it from free text
// before dispatch.
func ParseOutputCommand(text string) (n, state int, ok bool) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	var nStr, sStr string
	for _, p := range parts {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) != 2 {
			return 0, 0, false
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "output":
			nStr = strings.TrimSpace(kv[1])
		case "state":
			sStr = strings.TrimSpace(kv[1])
		default:
			return 0, 0, false
		}
	}
	if nStr == "" || sStr == "" {
		return 0, 0, false
	}
	nVal, err1 := strconv.Atoi(nStr)
	sVal, err2 := strconv.Atoi(sStr)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return nVal, sVal, true
}
