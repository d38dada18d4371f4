package protocol

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeIMEIRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		imei    string
		wantErr bool
	}{
		{name: "15 digits", imei: "356932080000000"},
		{name: "too short", imei: "12345", wantErr: true},
		{name: "non-digit", imei: "35693208000000x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bcd, err := EncodeIMEI(tt.imei)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := DecodeIMEI(bcd); got != tt.imei {
				t.Errorf("round trip mismatch: got %q, want %q", got, tt.imei)
			}
		})
	}
}

func TestEncodeIMEIKnownBytes(t *testing.T) {
	bcd, err := EncodeIMEI("356932080000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x03, 0x56, 0x93, 0x20, 0x80, 0x00, 0x00, 0x00}
	if hex.EncodeToString(bcd[:]) != hex.EncodeToString(want) {
		t.Errorf("got % X, want % X", bcd, want)
	}
}

func TestXORChecksum(t *testing.T) {
	if got := XORChecksum([]byte{0x01, 0x02, 0x03}); got != 0x00 {
		t.Errorf("got 0x%02X, want 0x00", got)
	}
	if got := XORChecksum([]byte{0xFF, 0x0F}); got != 0xF0 {
		t.Errorf("got 0x%02X, want 0xF0", got)
	}
}

func TestBuildFrameChecksumAndMarkers(t *testing.T) {
	frame := BuildFrame(ProtoHeartbeat, []byte{0x01, 0x02, 0x03}, 7)

	if frame[0] != StartMarker[0] || frame[1] != StartMarker[1] {
		t.Fatal("missing start marker")
	}
	if frame[len(frame)-2] != StopMarker[0] || frame[len(frame)-1] != StopMarker[1] {
		t.Fatal("missing stop marker")
	}

	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.ChecksumOK {
		t.Error("expected checksum to validate")
	}
	if parsed.Protocol != ProtoHeartbeat {
		t.Errorf("protocol mismatch: got 0x%02X", parsed.Protocol)
	}
	if parsed.Serial != 7 {
		t.Errorf("serial mismatch: got %d", parsed.Serial)
	}
}

func TestParseFrameBadChecksumStillReturnsFrame(t *testing.T) {
	frame := BuildFrame(ProtoHeartbeat, []byte{0x01}, 1)
	frame[len(frame)-3] ^= 0xFF // corrupt the checksum byte

	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.ChecksumOK {
		t.Error("expected checksum to fail, but it validated")
	}
}

func TestParseFrameTooShort(t *testing.T) {
	if _, err := ParseFrame([]byte{0x78, 0x78, 0x01}); err == nil {
		t.Fatal("expected error for undersized frame")
	}
}

func TestEncodeCoordinateKnownValue(t *testing.T) {
	raw := EncodeCoordinate(23.55052)
	want := uint32(23.55052 * 30000 * 60)
	if diff := int64(raw) - int64(want); diff < -1 || diff > 1 {
		t.Errorf("got %d, want ~%d", raw, want)
	}

	back := DecodeCoordinate(raw)
	if back < 23.550 || back > 23.551 {
		t.Errorf("round trip drifted too far: got %f", back)
	}
}

func TestCourseStatusRoundTrip(t *testing.T) {
	cs := CourseStatus{CourseDeg: 123, South: true, West: false, GPSValid: true}
	word := EncodeCourseStatus(cs)
	back := DecodeCourseStatus(word)

	if back.CourseDeg != 120 { // wire resolution is 10 degrees
		t.Errorf("course got %v, want 120", back.CourseDeg)
	}
	if back.South != cs.South || back.West != cs.West || back.GPSValid != cs.GPSValid {
		t.Errorf("flags mismatch: got %+v", back)
	}
}

func TestClampSpeedKMH(t *testing.T) {
	tests := []struct {
		in   float64
		want byte
	}{
		{in: -5, want: 0},
		{in: 0, want: 0},
		{in: 120.4, want: 120},
		{in: 400, want: 255},
	}
	for _, tt := range tests {
		if got := ClampSpeedKMH(tt.in); got != tt.want {
			t.Errorf("ClampSpeedKMH(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, time.March, 5, 13, 45, 9, 0, time.UTC)
	enc := EncodeDateTime(in)
	out, err := DecodeDateTime(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("got %v, want %v", out, in)
	}
}

func TestDecodeDateTimeRejectsImplausibleValues(t *testing.T) {
	if _, err := DecodeDateTime([6]byte{24, 13, 1, 0, 0, 0}); err == nil {
		t.Fatal("expected error for month 13")
	}
}

func TestLoginEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := EncodeLogin("356932080000000", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Protocol != ProtoLogin {
		t.Fatalf("protocol mismatch: got 0x%02X", parsed.Protocol)
	}
	imei, err := DecodeLoginContent(parsed.Content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imei != "356932080000000" {
		t.Errorf("got %q", imei)
	}
}

func TestLocationEncodeDecodeRoundTrip(t *testing.T) {
	pos := Position{
		LatDeg:     -23.55052,
		LonDeg:     46.63331,
		SpeedKMH:   42,
		CourseDeg:  270,
		TimeUTC:    time.Date(2024, time.March, 5, 13, 45, 9, 0, time.UTC),
		GPSValid:   true,
		Satellites: 11,
	}
	frame := EncodeLocation(pos, 5)
	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Protocol != ProtoLocation {
		t.Fatalf("protocol mismatch: got 0x%02X", parsed.Protocol)
	}

	got, err := DecodeLocationContent(parsed.Content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LatDeg > -23.549 || got.LatDeg < -23.552 {
		t.Errorf("latitude drifted: got %v", got.LatDeg)
	}
	if got.LonDeg < 46.632 || got.LonDeg > 46.634 {
		t.Errorf("longitude drifted: got %v", got.LonDeg)
	}
	if got.SpeedKMH != 42 {
		t.Errorf("speed mismatch: got %v", got.SpeedKMH)
	}
	if got.CourseDeg != 270 {
		t.Errorf("course mismatch: got %v", got.CourseDeg)
	}
	if !got.GPSValid {
		t.Error("expected GPSValid true")
	}
	if got.Satellites != 11 {
		t.Errorf("satellites mismatch: got %d", got.Satellites)
	}
	if !got.TimeUTC.Equal(pos.TimeUTC) {
		t.Errorf("time mismatch: got %v, want %v", got.TimeUTC, pos.TimeUTC)
	}
}

func TestHeartbeatEncodeDecodeRoundTrip(t *testing.T) {
	info := TerminalInfo{ACCOn: true, GPSPositioned: true, GPSRealTime: false}
	frame := EncodeHeartbeat(info, 4, 3, 9)
	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotInfo, voltage, signal, err := DecodeHeartbeatContent(parsed.Content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotInfo != info {
		t.Errorf("terminal info mismatch: got %+v, want %+v", gotInfo, info)
	}
	if voltage != 4 || signal != 3 {
		t.Errorf("voltage/signal mismatch: got %d/%d", voltage, signal)
	}
}

func TestAlarmEncodeDecodeRoundTrip(t *testing.T) {
	pos := Position{
		LatDeg:    23.1,
		LonDeg:    -46.2,
		SpeedKMH:  0,
		CourseDeg: 10,
		TimeUTC:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		GPSValid:  true,
	}
	frame := EncodeAlarm(AlarmSOS, pos, 2)
	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kind, gotPos, err := DecodeAlarmContent(parsed.Content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != AlarmSOS {
		t.Errorf("alarm kind mismatch: got %v", kind)
	}
	if gotPos.LonDeg > -46.1 || gotPos.LonDeg < -46.3 {
		t.Errorf("longitude drifted: got %v", gotPos.LonDeg)
	}
}

func TestCommandResponseEncodeDecodeRoundTrip(t *testing.T) {
	frame := EncodeCommandResponse("RELAY,1#", 8)
	parsed, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Protocol != ProtoCommandResponse {
		t.Fatalf("protocol mismatch: got 0x%02X", parsed.Protocol)
	}
}

func TestDecodeCommandContent(t *testing.T) {
	content := []byte{0x00, 0x01, 0x00, 0x04, 'T', 'E', 'S', 'T'}
	cmd, err := DecodeCommandContent(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Text != "TEST" {
		t.Errorf("got %q", cmd.Text)
	}
	if cmd.ServerFlag != 0x00 || cmd.Subtype != 0x01 {
		t.Errorf("flag/subtype mismatch: got %d/%d", cmd.ServerFlag, cmd.Subtype)
	}
}

func TestDecodeCommandContentRejectsOverrunLength(t *testing.T) {
	content := []byte{0x00, 0x01, 0x00, 0xFF, 'A'}
	if _, err := DecodeCommandContent(content); err == nil {
		t.Fatal("expected error for text_len overrunning content")
	}
}

func TestDecodeCommandContentLossyFallback(t *testing.T) {
	raw := []byte{0xFF, 0xFE}
	content := []byte{0x00, 0x01, 0x00, byte(len(raw))}
	content = append(content, raw...)

	cmd, err := DecodeCommandContent(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(cmd.Text, "�") == 0 {
		t.Errorf("expected replacement characters in lossy text, got %q", cmd.Text)
	}
	if hex.EncodeToString(cmd.RawText) != hex.EncodeToString(raw) {
		t.Errorf("raw text should be preserved verbatim: got % X", cmd.RawText)
	}
}

func TestCRC16VariantsAreIndependentOfXORChecksum(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	if CRC16X25(data) == 0 && CRC16CCITTAlt(data) == 0 {
		t.Fatal("both CRC variants returned zero, suspicious")
	}
}
