package server

import (
	"context"
	"errors"
	"net"
	"runtime/debug"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/delecho/pkg/websocket"
)

// acceptErrorPause is how long the accept loop waits after
// a failed accept, before trying again.
const acceptErrorPause = time.Second

type server struct {
	addr string
	conn websocket.Config
}

func newServer(cmd *cli.Command) *server {
	return &server{
		addr: cmd.String("server-addr"),
		conn: websocket.Config{
			EchoDelay:  cmd.Duration("echo-delay"),
			EchoSuffix: cmd.String("echo-suffix"),
		},
	}
}

// run starts a TCP listener for WebSocket connections.
// This is blocking, to keep the delecho server running.
func (s *server) run() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		log.Err(err).Send()
		return err
	}

	log.Info().Msgf("WebSocket server listening on %s", ln.Addr())
	return s.serve(ln)
}

// serve accepts connections until the listener is closed. Each connection is
// handled by its own goroutine: connections share nothing, so a failure in
// any of them never affects the others, or the accept loop.
func (s *server) serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("failed to accept TCP connection")
			time.Sleep(acceptErrorPause)
			continue
		}

		go s.serveConn(conn)
	}
}

// serveConn handles a single client connection, from TCP
// accept to socket close.
func (s *server) serveConn(conn net.Conn) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Bytes("stack", debug.Stack()).
				Msg("connection handler panic")
		}
		conn.Close()
	}()

	l := log.With().Str("conn_id", shortuuid.New()).
		Str("remote_addr", conn.RemoteAddr().String()).Logger()
	l.Info().Msg("accepted TCP connection")

	websocket.Serve(l.WithContext(context.Background()), conn, s.conn)
}
