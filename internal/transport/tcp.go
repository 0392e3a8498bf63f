package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

// Default timeouts and buffer sizing for ASCII links.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial
	// connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultIOTimeout is the per-operation read/write timeout.
	defaultIOTimeout = 5 * time.Second

	// defaultTerminator ends outgoing commands and incoming responses.
	defaultTerminator = "\n"

	// rawBufferSize bounds a single ReadRaw transfer.
	rawBufferSize = 64 * 1024
)

// TCPConfig holds the settings for one ASCII socket link.
type TCPConfig struct {
	// Resource is the instrument address.
	// Supported formats:
	//   - "tcp://192.168.1.20:5025"
	//   - "192.168.1.20:5025"
	Resource string

	// ConnectTimeout is the maximum time to wait for the connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// IOTimeout is the per-operation timeout. Default: 5 seconds.
	IOTimeout time.Duration

	// Terminator ends commands and responses. Default: "\n".
	Terminator string
}

// TCP is a line-oriented socket link to one instrument. Not safe for
// concurrent use; the owning driver serializes access.
type TCP struct {
	conn       net.Conn
	reader     *bufio.Reader
	terminator string
	timeout    time.Duration
	closed     bool
	logger     Logger
}

var _ Transport = (*TCP)(nil)

// Dial connects to an instrument's socket interface.
//
// Parameters:
//   - ctx: Context for cancellation of the initial connection
//   - cfg: Link configuration
//
// Returns:
//   - *TCP: Connected link ready for use
//   - error: If the resource is invalid or the dial fails
func Dial(ctx context.Context, cfg TCPConfig) (*TCP, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	if cfg.Terminator == "" {
		cfg.Terminator = defaultTerminator
	}

	address, err := parseResource(cfg.Resource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}

	return &TCP{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		terminator: cfg.Terminator,
		timeout:    cfg.IOTimeout,
		logger:     noopLogger{},
	}, nil
}

// parseResource extracts host:port from a resource string.
func parseResource(resource string) (string, error) {
	if resource == "" {
		return "", errors.New("empty resource")
	}
	if strings.Contains(resource, "://") {
		u, err := url.Parse(resource)
		if err != nil {
			return "", fmt.Errorf("invalid resource %q: %w", resource, err)
		}
		if u.Scheme != "tcp" {
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		if u.Port() == "" {
			return "", fmt.Errorf("resource %q needs a port", resource)
		}
		return u.Host, nil
	}
	if _, _, err := net.SplitHostPort(resource); err != nil {
		return "", fmt.Errorf("invalid resource %q: %w", resource, err)
	}
	return resource, nil
}

// SetLogger installs a logger for wire tracing. Passing nil restores the
// no-op logger.
func (t *TCP) SetLogger(l Logger) {
	if l == nil {
		t.logger = noopLogger{}
		return
	}
	t.logger = l
}

// Timeout reports the per-operation I/O timeout.
func (t *TCP) Timeout() time.Duration { return t.timeout }

// SetTimeout adjusts the per-operation I/O timeout.
func (t *TCP) SetTimeout(d time.Duration) { t.timeout = d }

// Write sends one command with the terminator appended.
func (t *TCP) Write(cmd string) error {
	if t.closed {
		return ErrClosed
	}
	t.logger.Debug("instrument write", "cmd", cmd)
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return fmt.Errorf("transport: set deadline: %w", err)
	}
	if _, err := t.conn.Write([]byte(cmd + t.terminator)); err != nil {
		return t.ioError("write", err)
	}
	return nil
}

// Ask sends one query and returns the trimmed response line.
func (t *TCP) Ask(cmd string) (string, error) {
	if err := t.Write(cmd); err != nil {
		return "", err
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return "", fmt.Errorf("transport: set deadline: %w", err)
	}
	line, err := t.reader.ReadString(t.terminator[len(t.terminator)-1])
	if err != nil {
		return "", t.ioError("read", err)
	}
	resp := strings.TrimRight(line, "\r\n")
	t.logger.Debug("instrument response", "cmd", cmd, "resp", resp)
	return resp, nil
}

// WriteRaw sends bytes unmodified.
func (t *TCP) WriteRaw(p []byte) error {
	if t.closed {
		return ErrClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return fmt.Errorf("transport: set deadline: %w", err)
	}
	if _, err := t.conn.Write(p); err != nil {
		return t.ioError("write", err)
	}
	return nil
}

// ReadRaw reads the pending response bytes without terminator handling.
func (t *TCP) ReadRaw() ([]byte, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return nil, fmt.Errorf("transport: set deadline: %w", err)
	}
	buf := make([]byte, rawBufferSize)
	n, err := t.reader.Read(buf)
	if err != nil {
		return nil, t.ioError("read", err)
	}
	return buf[:n], nil
}

// Close releases the link. Safe to call more than once.
func (t *TCP) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// ioError maps network failures onto the package sentinels, preserving the
// underlying cause.
func (t *TCP) ioError(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	return fmt.Errorf("transport: %s: %w", op, err)
}
