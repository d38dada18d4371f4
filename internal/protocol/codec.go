package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// TerminalInfo is the single status byte that opens HEARTBEAT content.
type TerminalInfo struct {
	ACCOn         bool // bit 0
	GPSPositioned bool // bit 1
	GPSRealTime   bool // bit 6
}

// Byte packs TerminalInfo into its wire representation.
func (t TerminalInfo) Byte() byte {
	var b byte
	if t.ACCOn {
		b |= 1 << 0
	}
	if t.GPSPositioned {
		b |= 1 << 1
	}
	if t.GPSRealTime {
		b |= 1 << 6
	}
	return b
}

// DecodeTerminalInfo unpacks the status byte.
func DecodeTerminalInfo(b byte) TerminalInfo {
	return TerminalInfo{
		ACCOn:         b&(1<<0) != 0,
		GPSPositioned: b&(1<<1) != 0,
		GPSRealTime:   b&(1<<6) != 0,
	}
}

// EncodeLogin builds a LOGIN (0x01) frame: content is the 8-byte BCD IMEI.
func EncodeLogin(imei string, serial uint16) ([]byte, error) {
	bcd, err := EncodeIMEI(imei)
	if err != nil {
		return nil, err
	}
	return BuildFrame(ProtoLogin, bcd[:], serial), nil
}

// DecodeLoginContent unpacks a LOGIN frame's content back into the 15-digit
// IMEI string.
func DecodeLoginContent(content []byte) (string, error) {
	if len(content) < 8 {
		return "", fmt.Errorf("protocol: LOGIN content too short (%d bytes)", len(content))
	}
	var bcd [8]byte
	copy(bcd[:], content[:8])
	return DecodeIMEI(bcd), nil
}

// positionContent builds the shared GPS body: YY MM DD hh mm ss, sats, lat,
// lon, speed, course/status. Used by both LOCATION and ALARM frames.
func positionContent(pos Position) []byte {
	dt := EncodeDateTime(pos.TimeUTC)
	sats := pos.Satellites
	if sats == 0 {
		sats = DefaultSatellites
	}

	cs := CourseStatus{
		CourseDeg: pos.CourseDeg,
		South:     pos.LatDeg < 0,
		West:      pos.LonDeg < 0,
		GPSValid:  pos.GPSValid,
	}

	buf := make([]byte, 0, 18)
	buf = append(buf, dt[:]...)
	buf = append(buf, sats)

	var latBuf, lonBuf [4]byte
	binary.BigEndian.PutUint32(latBuf[:], EncodeCoordinate(pos.LatDeg))
	binary.BigEndian.PutUint32(lonBuf[:], EncodeCoordinate(pos.LonDeg))
	buf = append(buf, latBuf[:]...)
	buf = append(buf, lonBuf[:]...)

	buf = append(buf, ClampSpeedKMH(pos.SpeedKMH))

	var csBuf [2]byte
	binary.BigEndian.PutUint16(csBuf[:], EncodeCourseStatus(cs))
	buf = append(buf, csBuf[:]...)

	return buf
}

// decodePositionContent is the inverse of positionContent, reading from the
// front of a LOCATION or ALARM body (6+1+4+4+1+2 = 18 bytes).
func decodePositionContent(content []byte) (Position, []byte, error) {
	if len(content) < 18 {
		return Position{}, nil, fmt.Errorf("protocol: position body too short (%d bytes)", len(content))
	}
	var dt [6]byte
	copy(dt[:], content[0:6])
	t, err := DecodeDateTime(dt)
	if err != nil {
		return Position{}, nil, err
	}

	sats := content[6]
	latRaw := binary.BigEndian.Uint32(content[7:11])
	lonRaw := binary.BigEndian.Uint32(content[11:15])
	speed := content[15]
	csWord := binary.BigEndian.Uint16(content[16:18])
	cs := DecodeCourseStatus(csWord)

	lat := DecodeCoordinate(latRaw)
	lon := DecodeCoordinate(lonRaw)
	if cs.South {
		lat = -lat
	}
	if cs.West {
		lon = -lon
	}

	pos := Position{
		LatDeg:     lat,
		LonDeg:     lon,
		SpeedKMH:   float64(speed),
		CourseDeg:  cs.CourseDeg,
		TimeUTC:    t,
		GPSValid:   cs.GPSValid,
		Satellites: sats,
	}
	return pos, content[18:], nil
}

// EncodeLocation builds a LOCATION (0x12) frame.
func EncodeLocation(pos Position, serial uint16) []byte {
	return BuildFrame(ProtoLocation, positionContent(pos), serial)
}

// DecodeLocationContent unpacks a LOCATION frame's content.
func DecodeLocationContent(content []byte) (Position, error) {
	pos, _, err := decodePositionContent(content)
	return pos, err
}

// EncodeHeartbeat builds a HEARTBEAT (0x13) frame: terminal_info(1),
// voltage_level(1, 0..6), gsm_signal(1, 0..4), alarm/lang(2).
func EncodeHeartbeat(info TerminalInfo, voltageLevel, gsmSignal byte, serial uint16) []byte {
	content := []byte{info.Byte(), voltageLevel, gsmSignal, 0x00, 0x00}
	return BuildFrame(ProtoHeartbeat, content, serial)
}

// DecodeHeartbeatContent unpacks a HEARTBEAT frame's content.
func DecodeHeartbeatContent(content []byte) (info TerminalInfo, voltageLevel, gsmSignal byte, err error) {
	if len(content) < 3 {
		return TerminalInfo{}, 0, 0, fmt.Errorf("protocol: HEARTBEAT content too short (%d bytes)", len(content))
	}
	return DecodeTerminalInfo(content[0]), content[1], content[2], nil
}

// EncodeAlarm builds an ALARM (0x16) frame: datetime, alarm_type, sats,
// lat, lon, speed, course/status, alarm_status(4).
func EncodeAlarm(kind AlarmKind, pos Position, serial uint16) []byte {
	dt := EncodeDateTime(pos.TimeUTC)
	content := make([]byte, 0, 24)
	content = append(content, dt[:]...)
	content = append(content, byte(kind))
	content = append(content, positionContent(pos)[6:]...) // sats..course/status
	content = append(content, 0x00, 0x00, 0x00, 0x00)       // alarm_status
	return BuildFrame(ProtoAlarm, content, serial)
}

// DecodeAlarmContent unpacks an ALARM frame's content into its alarm kind
// and embedded position.
func DecodeAlarmContent(content []byte) (AlarmKind, Position, error) {
	if len(content) < 7 {
		return 0, Position{}, fmt.Errorf("protocol: ALARM content too short (%d bytes)", len(content))
	}
	var dt [6]byte
	copy(dt[:], content[0:6])
	kind := AlarmKind(content[6])

	// The rest of the body shares positionContent's layout minus datetime.
	rest := make([]byte, 0, 18)
	rest = append(rest, dt[:]...)
	rest = append(rest, content[7:]...)
	pos, _, err := decodePositionContent(rest)
	return kind, pos, err
}

// EncodeCommandResponse builds a COMMAND RESPONSE (0x21) frame: server_flag
// (fixed 0x00), subtype (fixed 0x01 text), text_len (2 BE), text.
func EncodeCommandResponse(text string, serial uint16) []byte {
	content := make([]byte, 0, 4+len(text))
	content = append(content, CommandResponseServerFlag, CommandResponseSubtypeText)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(text)))
	content = append(content, lenBuf[:]...)
	content = append(content, text...)
	return BuildFrame(ProtoCommandResponse, content, serial)
}

// DecodeCommandContent unpacks a COMMAND (0x80) frame's content:
// flag(1) | subtype(1) | text_len(2 BE) | text(text_len). A text_len that
// runs past the available bytes is rejected outright rather than given a
// truncated or garbage text.
func DecodeCommandContent(content []byte) (CommandFrame, error) {
	if len(content) < 4 {
		return CommandFrame{}, fmt.Errorf("protocol: COMMAND content too short (%d bytes)", len(content))
	}
	flag := content[0]
	subtype := content[1]
	textLen := int(binary.BigEndian.Uint16(content[2:4]))
	if 4+textLen > len(content) {
		return CommandFrame{}, fmt.Errorf("protocol: COMMAND text_len %d exceeds available %d bytes", textLen, len(content)-4)
	}
	raw := content[4 : 4+textLen]

	text := string(raw)
	if !utf8.ValidString(text) {
		text = toValidUTF8(raw)
	}

	return CommandFrame{
		ServerFlag: flag,
		Subtype:    subtype,
		Text:       text,
		RawText:    append([]byte(nil), raw...),
	}, nil
}

// toValidUTF8 lossily decodes raw bytes, replacing invalid sequences with
// the Unicode replacement character — the raw hex is still available via
// CommandFrame.RawText for observability.
func toValidUTF8(raw []byte) string {
	buf := make([]rune, 0, len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		buf = append(buf, r)
		i += size
	}
	return string(buf)
}
