// wsprobe is a manual smoke test for a running delecho server: it opens a
// WebSocket connection, sends a few text messages, waits for their delayed
// echoes, and completes the closing handshake.
//
// Usage: wsprobe [address] (default "127.0.0.1:7778").
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tzrikka/delecho/pkg/websocket"
)

const defaultAddr = "127.0.0.1:7778"

func main() {
	initZeroLog()

	addr := defaultAddr
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial server")
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	handshake(conn, br, addr)

	start := time.Now()
	for _, msg := range []string{"hello", "world"} {
		send(conn, websocket.OpcodeText, []byte(msg))
		log.Info().Str("payload", msg).Msg("sent text message")
	}

	for range 2 {
		opcode, payload := receive(br)
		log.Info().Str("opcode", opcode.String()).Str("payload", string(payload)).
			Dur("elapsed", time.Since(start)).Msg("received echo")
	}

	send(conn, websocket.OpcodeClose, []byte{0x03, 0xE8})
	opcode, payload := receive(br)
	if opcode != websocket.OpcodeClose {
		log.Fatal().Str("opcode", opcode.String()).Msg("expected a close acknowledgment")
	}
	log.Info().Uint16("status", binary.BigEndian.Uint16(payload)).
		Msg("close handshake completed")
}

func initZeroLog() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05.000",
	}).With().Caller().Logger()
}

func handshake(conn net.Conn, br *bufio.Reader, addr string) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		log.Fatal().Err(err).Msg("failed to generate nonce")
	}

	req := fmt.Sprintf("GET / HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n",
		addr, base64.StdEncoding.EncodeToString(nonce))
	if _, err := conn.Write([]byte(req)); err != nil {
		log.Fatal().Err(err).Msg("failed to send handshake request")
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read handshake response")
		}
		if strings.HasPrefix(line, "HTTP/1.1") && !strings.HasPrefix(line, "HTTP/1.1 101") {
			log.Fatal().Str("status_line", strings.TrimSpace(line)).Msg("handshake rejected")
		}
		if line == "\r\n" {
			log.Info().Msg("WebSocket connection open")
			return
		}
	}
}

func send(conn net.Conn, opcode websocket.Opcode, payload []byte) {
	f := websocket.Frame{Opcode: opcode, Masked: true, Payload: payload}
	if _, err := rand.Read(f.MaskKey[:]); err != nil {
		log.Fatal().Err(err).Msg("failed to generate mask key")
	}

	if _, err := conn.Write(f.Bytes()); err != nil {
		log.Fatal().Err(err).Msg("failed to send frame")
	}
}

// receive reads one unmasked server frame. The probe's payloads are
// short, so only the 7-bit length field is handled.
func receive(br *bufio.Reader) (websocket.Opcode, []byte) {
	var hdr [2]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		log.Fatal().Err(err).Msg("failed to read frame header")
	}

	payload := make([]byte, hdr[1]&0x7F)
	if _, err := io.ReadFull(br, payload); err != nil {
		log.Fatal().Err(err).Msg("failed to read frame payload")
	}

	return websocket.Opcode(hdr[0] & 0x0F), payload
}
