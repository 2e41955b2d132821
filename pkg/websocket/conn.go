package websocket

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is a connection's position in its lifecycle:
// handshaking, open, closing, and closed, in that order.
type State int

const (
	// StateHandshaking is the initial state: the HTTP upgrade
	// request has not been fully processed yet.
	StateHandshaking State = iota
	// StateOpen means the handshake succeeded, and
	// the connection is exchanging WebSocket frames.
	StateOpen
	// StateClosing means a close frame was sent, and no further
	// application frames will be processed or written.
	StateClosing
	// StateClosed is terminal: the underlying transport is
	// closed, and there is no further I/O of any kind.
	StateClosed
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Config holds a connection's echo behavior settings.
type Config struct {
	// EchoDelay is the wait between receiving a
	// text message and echoing it back.
	EchoDelay time.Duration
	// EchoSuffix is an optional string appended
	// to every echoed payload.
	EchoSuffix string
}

// Conn represents the state of a single open WebSocket
// connection from a client to this server.
type Conn struct {
	logger *zerolog.Logger
	conn   net.Conn
	br     *bufio.Reader
	bw     *bufio.Writer

	// mu guards state and serializes all frame writes. An echo that hasn't
	// acquired mu before the transition to [StateClosing] is never written.
	mu    sync.Mutex
	state State

	echoes *echoScheduler

	// done is closed when the session ends, to stop the echo scheduler.
	done chan struct{}
}

// Serve performs the opening handshake and then runs the connection's frame
// loop until the client closes the connection, disconnects, or violates the
// protocol. It blocks for the connection's entire lifetime.
//
// Failures are always fatal to this one connection, and never retried: the
// transport is closed and Serve returns. The logger is taken from ctx.
func Serve(ctx context.Context, conn net.Conn, cfg Config) {
	c := &Conn{
		logger: zerolog.Ctx(ctx),
		conn:   conn,
		br:     bufio.NewReader(conn),
		bw:     bufio.NewWriter(conn),
		state:  StateHandshaking,
		done:   make(chan struct{}),
	}
	c.echoes = newEchoScheduler(c, cfg.EchoDelay, cfg.EchoSuffix)
	defer c.teardown()

	resp, err := Upgrade(c.br)
	if err != nil {
		c.logger.Warn().Err(err).Msg("WebSocket handshake failed")
		return
	}
	if _, err := c.conn.Write(resp); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send WebSocket handshake response")
		return
	}

	c.setState(StateHandshaking, StateOpen)
	c.logger.Debug().Msg("WebSocket connection open")

	go c.echoes.run()
	c.readFrames()
}

// readFrames consumes client frames until the connection ends, and applies
// the per-opcode session logic: text frames schedule a delayed echo, a close
// frame completes the closing handshake, and any other opcode is ignored.
func (c *Conn) readFrames() {
	for {
		f, err := ReadFrame(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug().Msg("client disconnected")
			} else {
				c.logger.Warn().Err(err).Msg("failed to read WebSocket frame")
			}
			return
		}

		c.logger.Trace().Str("opcode", f.Opcode.String()).
			Int("length", len(f.Payload)).Msg("received WebSocket frame")

		switch f.Opcode {
		case OpcodeText:
			c.echoes.schedule(f.Payload)

		// "If an endpoint receives a Close frame and did not previously send
		// a Close frame, the endpoint MUST send a Close frame in response."
		case OpcodeClose:
			status, reason := parseClose(f.Payload)
			c.logger.Debug().Str("close_status", status.String()).
				Str("close_reason", reason).Msg("received WebSocket close frame")
			c.acknowledgeClose(status)
			return

		default:
			// Out of scope for this server (no fragmentation,
			// no binary data, no ping/pong keep-alives).
			c.logger.Trace().Str("opcode", f.Opcode.String()).Msg("ignoring frame")
		}
	}
}

// acknowledgeClose completes the closing handshake: it echoes back the
// client's status code (or reports a normal closure if the client didn't
// send one), and closes the transport. This server doesn't wait for
// anything from the client after sending the acknowledgment.
func (c *Conn) acknowledgeClose(status StatusCode) {
	if status == StatusNotReceived {
		status = StatusNormalClosure
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return
	}

	c.state = StateClosing
	if err := c.writeFrame(Frame{Opcode: OpcodeClose, Payload: closePayload(status, "")}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send WebSocket close frame")
	}

	c.state = StateClosed
	c.conn.Close()
}

// sendEcho writes a text frame back to the client, unless the connection
// has left [StateOpen] in the meantime - in that case the echo is dropped.
// Called only by the connection's echo scheduler.
func (c *Conn) sendEcho(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		c.logger.Trace().Str("state", c.state.String()).Msg("dropped echo")
		return
	}

	if err := c.writeFrame(Frame{Opcode: OpcodeText, Payload: payload}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send WebSocket echo frame")
		c.state = StateClosed
		c.conn.Close()
		return
	}

	c.logger.Debug().Int("length", len(payload)).Msg("sent WebSocket echo frame")
}

// writeFrame encodes and writes a single server frame. Server frames are
// never masked. The caller must hold c.mu.
func (c *Conn) writeFrame(f Frame) error {
	if _, err := c.bw.Write(f.Bytes()); err != nil {
		return err
	}
	return c.bw.Flush()
}

// setState transitions the connection from one expected state to the next.
func (c *Conn) setState(from, to State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != from {
		return
	}
	c.state = to
}

// teardown moves the connection to its terminal state, closes the
// transport, and stops the echo scheduler. Pending echoes are discarded:
// a connection that closes must never emit frames afterward.
func (c *Conn) teardown() {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateClosed
		c.conn.Close()
	}
	c.mu.Unlock()

	close(c.done)
	c.logger.Debug().Msg("WebSocket connection closed")
}
