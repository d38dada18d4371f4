package bridge

import (
	"testing"
	"time"

	"gt06_gateway/internal/events"
	"gt06_gateway/internal/serialtransport"
)

func TestTranslateTextFirstMatchWins(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"please STOP the vehicle", "CMD:BLOQUEAR"},
		{"DYD#", "CMD:BLOQUEAR"},
		{"RESUME now", "CMD:DESBLOQUEAR"},
		{"HFYD#", "CMD:DESBLOQUEAR"},
		{"where is it", "CMD:POSICAO"},
		{"reboot please", "CMD:REINICIAR"},
		{"give me status", "CMD:STATUS"},
		{"set interval", "CMD:INTERVALO"},
		{"totally unmapped text", "CMD:totally unmapped text"},
	}
	for _, tt := range tests {
		if got := TranslateText(tt.text); got != tt.want {
			t.Errorf("TranslateText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestTranslateTextIsCaseInsensitive(t *testing.T) {
	if got := TranslateText("stop now"); got != "CMD:BLOQUEAR" {
		t.Errorf("got %q", got)
	}
}

func TestTranslateOutput(t *testing.T) {
	tests := []struct {
		n, state int
		want     string
	}{
		{1, 1, "ENGINE_STOP"},
		{1, 0, "ENGINE_RESUME"},
		{2, 1, "CUSTOM,OUTPUT=2,STATE=1"},
	}
	for _, tt := range tests {
		if got := TranslateOutput(tt.n, tt.state); got != tt.want {
			t.Errorf("TranslateOutput(%d,%d) = %q, want %q", tt.n, tt.state, got, tt.want)
		}
	}
}

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		line string
		want ReplyKind
	}{
		{"ACK:BLOQUEAR", ReplyACK},
		{"ERROR:NO_GPS", ReplyError},
		{"STATUS:ONLINE", ReplyStatus},
		{"LOG:booted", ReplyLog},
		{"garbage", ReplyOther},
	}
	for _, tt := range tests {
		if got := ClassifyReply(tt.line); got != tt.want {
			t.Errorf("ClassifyReply(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestParseOutputCommand(t *testing.T) {
	n, state, ok := ParseOutputCommand("output=1, state=1")
	if !ok || n != 1 || state != 1 {
		t.Fatalf("got n=%d state=%d ok=%v", n, state, ok)
	}

	if _, _, ok := ParseOutputCommand("not an output command"); ok {
		t.Error("expected ok=false for unrelated text")
	}
}

func TestHandleCommandForwardsAndCounts(t *testing.T) {
	mem := serialtransport.NewMem()
	log := events.NewLog(100)
	b := New(mem, log)
	if err := b.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Stop()

	b.HandleCommand("please STOP")

	counters := b.Counters()
	if counters.CommandsReceived != 1 || counters.CommandsForwarded != 1 {
		t.Errorf("got counters %+v", counters)
	}
	if len(mem.Sent) != 1 || mem.Sent[0] != "CMD:BLOQUEAR" {
		t.Errorf("got sent lines %v", mem.Sent)
	}

	state := b.State()
	if !state.SerialConnected {
		t.Error("expected serial_connected=true after Start and a successful write")
	}
	if state.LastLineTX != "CMD:BLOQUEAR" {
		t.Errorf("got last_line_tx %q, want %q", state.LastLineTX, "CMD:BLOQUEAR")
	}
	if state.CommandsForwarded != 1 {
		t.Errorf("got commands_forwarded %d, want 1", state.CommandsForwarded)
	}
}

func TestBridgeStateTracksDisconnectAndReceivedLine(t *testing.T) {
	mem := serialtransport.NewMem()
	log := events.NewLog(100)
	b := New(mem, log)
	if err := b.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mem.Inject("STATUS:ONLINE")
	deadline := time.After(2 * time.Second)
	for b.State().LastLineRX == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for last_line_rx to be stamped")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if b.State().LastLineRX != "STATUS:ONLINE" {
		t.Errorf("got last_line_rx %q, want %q", b.State().LastLineRX, "STATUS:ONLINE")
	}

	b.Stop()
	if b.State().SerialConnected {
		t.Error("expected serial_connected=false after Stop")
	}
}

func TestHandleCommandReconnectsWhenClosed(t *testing.T) {
	mem := serialtransport.NewMem()
	log := events.NewLog(100)
	b := New(mem, log)
	// Deliberately skip Start(): the transport starts closed.

	b.HandleCommand("STATUS")

	if !mem.IsOpen() {
		t.Error("expected bridge to auto-reconnect the transport")
	}
	if len(mem.Sent) != 1 {
		t.Errorf("got %d sent lines, want 1", len(mem.Sent))
	}
}

func TestClearStatsZeroesCounters(t *testing.T) {
	mem := serialtransport.NewMem()
	log := events.NewLog(100)
	b := New(mem, log)
	b.Start()
	defer b.Stop()

	b.HandleCommand("STATUS")
	b.ClearStats()

	counters := b.Counters()
	if counters != (Counters{}) {
		t.Errorf("expected zeroed counters, got %+v", counters)
	}
}

func TestReplyLinesAreClassifiedAndCounted(t *testing.T) {
	mem := serialtransport.NewMem()
	log := events.NewLog(100)
	ch := log.Subscribe(16)
	defer log.Unsubscribe(ch)

	b := New(mem, log)
	if err := b.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Stop()

	mem.Inject("ACK:BLOQUEAR")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == events.KindBridgeRx {
				goto found
			}
		case <-deadline:
			t.Fatal("timed out waiting for BridgeRx event")
		}
	}
found:
	if b.Counters().ResponsesReceived != 1 {
		t.Errorf("got %d responses received, want 1", b.Counters().ResponsesReceived)
	}
}
