// Command serial-sim opens the microcontroller end of a serial link and
// echoes back scripted ACK/ERROR replies to whatever the bridge (C6)
// writes to it, so the bridge has something to drive without real
// hardware attached. Point it at the other end of a virtual null-modem
// pair (e.g. socat PTY,link=/tmp/ttyV0 PTY,link=/tmp/ttyV1) and point
// BRIDGE_SERIAL_PORT at the first.
package main

import (
	"flag"
	"log"
	"strings"

	"gt06_gateway/internal/serialtransport"
	"gt06_gateway/pkg/colors"
)

func main() {
	port := flag.String("port", "", "serial port to open (required)")
	baud := flag.Int("baud", 9600, "baud rate")
	flag.Parse()

	if *port == "" {
		log.Fatal("serial-sim: -port is required")
	}

	transport := serialtransport.New(*port, *baud)
	if err := transport.Open(); err != nil {
		log.Fatalf("serial-sim: open %s: %v", *port, err)
	}
	defer transport.Close()

	colors.PrintSuccess("serial-sim listening on %s @ %d baud", *port, *baud)

	for line := range transport.Lines() {
		colors.PrintData("📥", "received %q", line)
		reply := scriptedReply(line)
		if reply == "" {
			continue
		}
		if err := transport.Write(reply); err != nil {
			colors.PrintError("write failed: %v", err)
			continue
		}
		colors.PrintData("📤", "replied %q", reply)
	}
}

// scriptedReply mirrors the reference microcontroller firmware's reply
// convention: every recognized command gets a single ACK line echoing it
// back (no STATUS line is sent); anything else gets ERROR:UNRECOGNIZED.
func scriptedReply(line string) string {
	switch {
	case strings.HasPrefix(line, "CMD:"):
		return "ACK:" + strings.TrimPrefix(line, "CMD:")
	case line == "ENGINE_STOP":
		return "ACK:ENGINE_STOP"
	case line == "ENGINE_RESUME":
		return "ACK:ENGINE_RESUME"
	case strings.HasPrefix(line, "CUSTOM,"):
		return "ACK:" + line
	default:
		return "ERROR:UNRECOGNIZED"
	}
}
