package websocket

import "time"

// pendingEcho is a scheduled, not-yet-sent echo awaiting its deadline.
type pendingEcho struct {
	payload  []byte
	deadline time.Time
}

// echoScheduler defers the echo of received text payloads by a fixed delay,
// without ever blocking the connection's frame-reading path: a client can
// send more text frames, or a close frame, while echoes are still pending.
//
// Each connection owns exactly one scheduler; its queue dies with the
// connection, and nothing fires after the connection is closed.
type echoScheduler struct {
	conn   *Conn
	delay  time.Duration
	suffix string
	in     chan pendingEcho
}

func newEchoScheduler(c *Conn, delay time.Duration, suffix string) *echoScheduler {
	return &echoScheduler{
		conn:   c,
		delay:  delay,
		suffix: suffix,
		in:     make(chan pendingEcho, 16),
	}
}

// schedule enqueues an echo of the given payload, due after the scheduler's
// fixed delay. [echoScheduler.run] keeps draining the channel while waiting
// on deadlines, so this doesn't stall the caller's read loop.
func (s *echoScheduler) schedule(payload []byte) {
	if s.suffix != "" {
		payload = append(payload, s.suffix...)
	}

	select {
	case s.in <- pendingEcho{payload: payload, deadline: time.Now().Add(s.delay)}:
	case <-s.conn.done:
	}
}

// run owns the connection's pending-echo queue, as a per-connection
// goroutine. Deadlines increase monotonically (the delay is fixed), so
// firing in FIFO order is firing in deadline order. Entries don't block
// or coalesce each other: N received text frames produce N echoes.
func (s *echoScheduler) run() {
	var queue []pendingEcho
	for {
		if len(queue) == 0 {
			select {
			case p := <-s.in:
				queue = append(queue, p)
			case <-s.conn.done:
				return
			}
		}

		t := time.NewTimer(time.Until(queue[0].deadline))
		select {
		case <-t.C:
			s.conn.sendEcho(queue[0].payload)
			queue = queue[1:]
		case p := <-s.in:
			queue = append(queue, p)
			t.Stop()
		case <-s.conn.done:
			t.Stop()
			return
		}
	}
}
