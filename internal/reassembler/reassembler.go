// Package reassembler turns an unbounded, arbitrarily sliced or coalesced
// TCP byte stream into whole GT06 frames. It never decodes a frame itself
// — that's internal/protocol's job — it only finds frame boundaries.
package reassembler

import "gt06_gateway/internal/protocol"

// Reassembler owns a single growable buffer and extracts complete frames
// from whatever bytes Feed hands it, across however many reads it takes.
type Reassembler struct {
	buf []byte
}

// New returns an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{buf: make([]byte, 0, 4096)}
}

// Feed appends newly read bytes and returns every complete frame that can
// now be extracted, in order. Partial frames remain buffered for the next
// call. Feed never drops bytes that belong to a frame still in flight.
func (r *Reassembler) Feed(data []byte) [][]byte {
	r.buf = append(r.buf, data...)

	var frames [][]byte
	for {
		frame, ok := r.extractOne()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}
	return frames
}

// extractOne finds and removes exactly one complete frame from the front
// of the buffer, or reports ok=false if the buffer doesn't yet hold one.
func (r *Reassembler) extractOne() ([]byte, bool) {
	for {
		start := indexOfMarker(r.buf, protocol.StartMarker)
		if start < 0 {
			// No start marker anywhere: keep at most the last byte, in case
			// it's the first half of a split marker, and drop the rest.
			if len(r.buf) > 1 {
				r.buf = r.buf[len(r.buf)-1:]
			}
			return nil, false
		}
		if start > 0 {
			r.buf = r.buf[start:]
		}

		if len(r.buf) < 3 {
			return nil, false
		}

		lenByte := r.buf[2]
		packetLen := int(lenByte) + 6
		if len(r.buf) < packetLen {
			return nil, false
		}

		if r.buf[packetLen-2] != protocol.StopMarker[0] || r.buf[packetLen-1] != protocol.StopMarker[1] {
			// Framing desync: drop one byte and resync from the next
			// candidate start marker.
			r.buf = r.buf[1:]
			continue
		}

		frame := append([]byte(nil), r.buf[:packetLen]...)
		r.buf = r.buf[packetLen:]
		return frame, true
	}
}

func indexOfMarker(buf []byte, marker [2]byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == marker[0] && buf[i+1] == marker[1] {
			return i
		}
	}
	return -1
}

// Pending reports how many unconsumed bytes remain buffered — useful for
// diagnostics and for bounding memory on a runaway sender.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Reset discards any buffered bytes, e.g. after a connection is torn down.
func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
}
