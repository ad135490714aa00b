package serialmux

import (
	"bytes"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// MockSerialPort is a SerialPorter whose reads come from a generated feed
// and whose writes are captured.
type MockSerialPort struct {
	io.Reader
	closer io.Closer

	mu       sync.Mutex
	commands bytes.Buffer
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands.Write(p)
}

// Commands returns everything written to the port so far.
func (m *MockSerialPort) Commands() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands.String()
}

func (m *MockSerialPort) Close() error {
	return m.closer.Close()
}

// NewReplaySerialMux creates a SerialMux whose port emits lines one at a time
// every interval, looping once the end is reached. It backs --dev mode.
func NewReplaySerialMux(lines []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	mockPort := &MockSerialPort{Reader: r, closer: r}

	go func() {
		defer w.Close()
		if len(lines) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(lines) {
			<-ticker.C
			if _, err := io.WriteString(w, lines[i]+"\n"); err != nil {
				// reader closed
				return
			}
		}
	}()

	log.Printf("Replaying %d mock encoder lines every %v", len(lines), interval)
	return NewSerialMux(mockPort)
}

// ScriptedPort is an in-memory SerialPorter for tests. Reads drain data
// queued with Feed, writes are kept for Written, and a one-shot ReadError or
// WriteError fails the next call.
type ScriptedPort struct {
	mu    sync.Mutex
	ready *sync.Cond
	in    bytes.Buffer
	out   bytes.Buffer

	ReadError  error
	WriteError error
	// BlockReads makes Read wait for Feed or Close instead of returning EOF
	// on an empty queue.
	BlockReads bool
	Closed     bool
}

// NewScriptedPort returns an open port with nothing queued.
func NewScriptedPort() *ScriptedPort {
	p := &ScriptedPort{}
	p.ready = sync.NewCond(&p.mu)
	return p
}

var errPortClosed = errors.New("serial port closed")

func (p *ScriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeErr(&p.ReadError); err != nil {
		return 0, err
	}
	for p.BlockReads && !p.Closed && p.in.Len() == 0 {
		p.ready.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *ScriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.takeErr(&p.WriteError); err != nil {
		return 0, err
	}
	return p.out.Write(b)
}

// takeErr reports a closed port first, then consumes a one-shot error.
func (p *ScriptedPort) takeErr(slot *error) error {
	if p.Closed {
		return errPortClosed
	}
	err := *slot
	*slot = nil
	return err
}

func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.ready.Broadcast()
	return nil
}

// Feed queues data for Read and wakes a blocked reader.
func (p *ScriptedPort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(data)
	p.ready.Signal()
}

// Written returns a copy of everything written so far.
func (p *ScriptedPort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}
