package telemetry

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// ManagerAddr is the fixed loopback address child processes connect to.
// The main process that calls NewManager first binds the listener; a later
// NewManager call on the same host fails to bind and returns an error, and
// other processes connect with DialManager instead.
const ManagerAddr = "127.0.0.1:4315"

const maxFrameBytes = 16 << 20

// Event is one metric reading forwarded across the process boundary.
type Event struct {
	Instrument string            `json:"instrument"`
	Value      float64           `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Manager owns the loopback listener in the main process and fans inbound
// events from child-process Clients into a local sink.
type Manager struct {
	listener net.Listener
	logger   *logrus.Entry

	mu   sync.Mutex
	sink func(Event)
}

// NewManager binds the loopback listener and begins accepting child
// connections. The manager's lifetime is the main process's: callers
// should hold it until shutdown and then call Close.
func NewManager(sink func(Event), logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	ln, err := net.Listen("tcp", ManagerAddr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: bind ipc manager on %s: %w", ManagerAddr, err)
	}
	m := &Manager{
		listener: ln,
		logger:   logger.WithField("component", "telemetry.ipc.manager"),
		sink:     sink,
	}
	go m.acceptLoop()
	return m, nil
}

func (m *Manager) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.serve(conn)
	}
}

func (m *Manager) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		ev, err := readFrame(r)
		if err != nil {
			return
		}
		if m.sink != nil {
			m.sink(ev)
		}
	}
}

func (m *Manager) Close() error {
	return m.listener.Close()
}

// Client is held by a worker process (e.g. a sync-engine shard running as a
// subprocess) to forward metric events to the main process's Manager.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// DialManager connects to a Manager already bound in the main process.
func DialManager(ctx context.Context) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ManagerAddr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial ipc manager at %s: %w", ManagerAddr, err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one length-prefixed JSON frame to the manager.
func (c *Client) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("telemetry: marshal ipc event: %w", err)
	}
	if len(data) > maxFrameBytes {
		return fmt.Errorf("telemetry: ipc event too large: %d bytes", len(data))
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(header); err != nil {
		return fmt.Errorf("telemetry: write ipc frame header: %w", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("telemetry: write ipc frame body: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func readFrame(r *bufio.Reader) (Event, error) {
	header := make([]byte, 4)
	if _, err := readFull(r, header); err != nil {
		return Event{}, err
	}
	size := binary.BigEndian.Uint32(header)
	if size > maxFrameBytes {
		return Event{}, fmt.Errorf("telemetry: ipc frame exceeds max size: %d bytes", size)
	}

	body := make([]byte, size)
	if _, err := readFull(r, body); err != nil {
		return Event{}, err
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("telemetry: decode ipc frame: %w", err)
	}
	return ev, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
