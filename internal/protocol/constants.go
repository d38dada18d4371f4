// Package protocol implements the GT06 (Concox) binary wire format: frame
// layout, checksum, BCD IMEI encoding, coordinate scaling and the
// course/status bitfield. It is the bit-exact codec shared by client and
// server state machines.
package protocol

// Protocol numbers, as they appear in byte offset 3 of a GT06 frame.
const (
	ProtoLogin           byte = 0x01
	ProtoLocation        byte = 0x12
	ProtoHeartbeat       byte = 0x13
	ProtoAlarm           byte = 0x16
	ProtoCommand         byte = 0x80 // server -> device, decoded by a client
	ProtoCommandResponse byte = 0x21 // device -> server, ack of a command
)

// StartMarker and StopMarker delimit every standard (0x7878) GT06 frame.
var (
	StartMarker = [2]byte{0x78, 0x78}
	StopMarker  = [2]byte{0x0D, 0x0A}
)

// ExtendedStartMarker identifies the "extended" 0x7979 frame family. Only
// the standard 0x7878 frame is handled here; the reassembler scans only for
// the 0x7878 marker, so an extended frame's bytes are skipped as unframed
// data.
var ExtendedStartMarker = [2]byte{0x79, 0x79}

// CommandResponseSubtypeText is the only subtype this codec produces for
// protocol 0x21 — an ASCII text body echoing a command.
const CommandResponseSubtypeText byte = 0x01

// CommandResponseServerFlag is the fixed server-flag value of every
// COMMAND RESPONSE frame this codec builds.
const CommandResponseServerFlag byte = 0x00

// DefaultSatellites is used for a Position whose caller did not report a
// satellite count.
const DefaultSatellites uint8 = 8
