package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Defined in https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	// ErrBadHandshake indicates an opening handshake request
	// that is not a well-formed HTTP GET upgrade request.
	ErrBadHandshake = errors.New("malformed WebSocket handshake request")
	// ErrMissingHeader indicates a missing or
	// invalid required WebSocket request header.
	ErrMissingHeader = errors.New("missing or invalid handshake header")
	// ErrUnsupportedVersion indicates a "Sec-WebSocket-Version"
	// request header with any value other than "13".
	ErrUnsupportedVersion = errors.New("unsupported WebSocket version")
)

// Upgrade reads a client's opening handshake request, validates it based on
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.1, and returns
// the raw "101 Switching Protocols" HTTP response to send back.
//
// On error, the caller must close the underlying connection without sending
// any response, and without starting a WebSocket session.
func Upgrade(br *bufio.Reader) ([]byte, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHandshake, err)
	}

	if req.Method != http.MethodGet {
		return nil, fmt.Errorf("%w: method %q", ErrBadHandshake, req.Method)
	}
	if !headerContainsToken(req.Header, "Upgrade", "websocket") {
		return nil, fmt.Errorf("%w: Upgrade", ErrMissingHeader)
	}
	if !headerContainsToken(req.Header, "Connection", "Upgrade") {
		return nil, fmt.Errorf("%w: Connection", ErrMissingHeader)
	}
	if v := req.Header.Get("Sec-WebSocket-Version"); v != "13" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}

	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, fmt.Errorf("%w: Sec-WebSocket-Key", ErrMissingHeader)
	}
	// "A base64-encoded value that, when decoded, is 16 bytes in length."
	if nonce, err := base64.StdEncoding.DecodeString(key); err != nil || len(nonce) != 16 {
		return nil, fmt.Errorf("%w: Sec-WebSocket-Key is not a 16-byte nonce", ErrBadHandshake)
	}

	resp := fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: %s\r\n\r\n", acceptKey(key))
	return []byte(resp), nil
}

// acceptKey computes the deterministic "Sec-WebSocket-Accept" response value
// for a client's "Sec-WebSocket-Key", as specified in
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// headerContainsToken checks whether any of the header's values contains
// the given token, in a case-insensitive comparison. Values are treated as
// comma-separated lists, e.g. "Connection: keep-alive, Upgrade".
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}
