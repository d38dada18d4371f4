// Package events defines the structured observability records the engine
// emits — connection-lifecycle transitions, wire traffic, bridge activity
// and warnings — and a bounded log that keeps the most recent ones around
// for any host (console, HTTP API, websocket hub) to consume.
package events

import (
	"sync"
	"time"
)

// Kind enumerates every event the engine can emit.
type Kind string

const (
	KindConnecting         Kind = "Connecting"
	KindConnected          Kind = "Connected"
	KindLoggingIn          Kind = "LoggingIn"
	KindOnline             Kind = "Online"
	KindDisconnected       Kind = "Disconnected"
	KindError              Kind = "Error"
	KindPacketSent         Kind = "PacketSent"
	KindPacketReceived     Kind = "PacketReceived"
	KindHeartbeatAck       Kind = "HeartbeatAck"
	KindLocationAck        Kind = "LocationAck"
	KindCommandReceived    Kind = "CommandReceived"
	KindCommandAck         Kind = "CommandAck"
	KindWarning            Kind = "Warning"
	KindBridgeConnected    Kind = "BridgeConnected"
	KindBridgeDisconnected Kind = "BridgeDisconnected"
	KindBridgeTx           Kind = "BridgeTx"
	KindBridgeRx           Kind = "BridgeRx"
)

// Event is a single observability record. Detail carries kind-specific
// structured data (e.g. {"type":0x12,"len":24,"hex":"..."} for a packet
// event, or {"line":"..."} for a bridge event) — left as a generic map so
// the log and its transports stay decoupled from any one event's shape.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Kind      Kind           `json:"kind"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Log is a fixed-capacity ring buffer of Events: oldest entries are
// evicted once capacity is reached.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []Event
	start    int // index of the oldest entry in entries
	size     int
	subs     []chan Event
}

// DefaultCapacity is the ring buffer size used when none is specified.
const DefaultCapacity = 500

// NewLog returns an empty Log with the given capacity, or DefaultCapacity
// if capacity <= 0.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		entries:  make([]Event, capacity),
	}
}

// Append records an event, evicting the oldest entry if the log is full,
// and fans it out to any active subscribers.
func (l *Log) Append(e Event) {
	l.mu.Lock()
	if l.size < l.capacity {
		l.entries[(l.start+l.size)%l.capacity] = e
		l.size++
	} else {
		l.entries[l.start] = e
		l.start = (l.start + 1) % l.capacity
	}
	subs := append([]chan Event(nil), l.subs...)
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber: drop rather than block the emitter.
		}
	}
}

// Emit is a convenience wrapper that stamps the current time and appends.
func (l *Log) Emit(kind Kind, message string, detail map[string]any) {
	l.Append(Event{Timestamp: time.Now().UTC(), Kind: kind, Message: message, Detail: detail})
}

// Recent returns up to n of the most recently appended events, oldest
// first. n <= 0 returns everything currently buffered.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (l.start + l.size - n + i) % l.capacity
		out[i] = l.entries[idx]
	}
	return out
}

// Subscribe returns a channel that receives every event appended after
// this call. The caller must drain it; a full channel drops events rather
// than blocking the emitter. Unsubscribe removes it again.
func (l *Log) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe and
// closes it.
func (l *Log) Unsubscribe(ch chan Event) {
	l.mu.Lock()
	for i, c := range l.subs {
		if c == ch {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			break
		}
	}
	l.mu.Unlock()
	close(ch)
}
