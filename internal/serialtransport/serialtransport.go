// Package serialtransport provides the byte-stream-with-line-termination
// collaborator the bridge talks to: open/close, write(bytes), and a
// line-oriented read stream. The engine does not assume USB specifically
// — Transport is satisfied by anything with these semantics.
package serialtransport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// Transport is what the bridge needs from its local link.
type Transport interface {
	Open() error
	Close() error
	Write(line string) error
	// Lines returns a channel of trimmed, newline-delimited replies. It
	// is closed when the transport is closed or the link drops.
	Lines() <-chan string
	IsOpen() bool
}

// SerialTransport is the go.bug.st/serial-backed Transport used in
// production, talking to a USB-attached microcontroller.
type SerialTransport struct {
	portName string
	mode     *serial.Mode

	mu     sync.Mutex
	port   serial.Port
	lines  chan string
	closed chan struct{}
}

// New returns a SerialTransport for portName (e.g. "/dev/ttyUSB0" or
// "COM4") at the given baud rate, 8N1.
func New(portName string, baud int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		mode:     &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
	}
}

// Open opens the serial port and starts the background line reader.
func (s *SerialTransport) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}

	port, err := serial.Open(s.portName, s.mode)
	if err != nil {
		return fmt.Errorf("serialtransport: open %s: %w", s.portName, err)
	}
	s.port = port
	s.lines = make(chan string, 32)
	s.closed = make(chan struct{})

	go s.readLoop(port, s.lines, s.closed)
	return nil
}

func (s *SerialTransport) readLoop(port serial.Port, lines chan<- string, closed chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		select {
		case lines <- line:
		case <-closed:
			return
		}
	}
}

// Close closes the underlying port and stops the reader.
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	close(s.closed)
	err := s.port.Close()
	s.port = nil
	return err
}

// Write sends line, appending the required "\n" terminator.
func (s *SerialTransport) Write(line string) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return fmt.Errorf("serialtransport: write on closed port")
	}
	_, err := io.WriteString(port, line+"\n")
	return err
}

// Lines returns the channel of incoming trimmed reply lines.
func (s *SerialTransport) Lines() <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// IsOpen reports whether the port is currently open.
func (s *SerialTransport) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}
