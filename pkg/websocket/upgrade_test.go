package websocket

import (
	"bufio"
	"errors"
	"strings"
	"testing"
)

// handshakeRequest builds a minimal, valid upgrade request,
// then applies per-test-case header overrides.
func handshakeRequest(overrides map[string]string) string {
	headers := map[string]string{
		"Host":                  "127.0.0.1:7778",
		"Upgrade":               "websocket",
		"Connection":            "Upgrade",
		"Sec-WebSocket-Key":     "dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version": "13",
	}
	for k, v := range overrides {
		if v == "" {
			delete(headers, k)
			continue
		}
		headers[k] = v
	}

	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for k, v := range headers {
		b.WriteString(k + ": " + v + "\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

func TestUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		request    string
		wantErr    error
		wantInBody string
	}{
		{
			name:       "valid_request",
			request:    handshakeRequest(nil),
			wantInBody: "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n",
		},
		{
			name: "connection_header_with_multiple_tokens",
			request: handshakeRequest(map[string]string{
				"Connection": "keep-alive, Upgrade",
			}),
			wantInBody: "HTTP/1.1 101 Switching Protocols\r\n",
		},
		{
			name: "case_insensitive_header_values",
			request: handshakeRequest(map[string]string{
				"Upgrade":    "WebSocket",
				"Connection": "upgrade",
			}),
			wantInBody: "HTTP/1.1 101 Switching Protocols\r\n",
		},
		{
			name:    "not_http",
			request: "\x81\x05Hello",
			wantErr: ErrBadHandshake,
		},
		{
			name:    "post_method",
			request: "POST / HTTP/1.1\r\nHost: localhost\r\n\r\n",
			wantErr: ErrBadHandshake,
		},
		{
			name:    "missing_upgrade_header",
			request: handshakeRequest(map[string]string{"Upgrade": ""}),
			wantErr: ErrMissingHeader,
		},
		{
			name:    "missing_connection_header",
			request: handshakeRequest(map[string]string{"Connection": ""}),
			wantErr: ErrMissingHeader,
		},
		{
			name:    "connection_without_upgrade_token",
			request: handshakeRequest(map[string]string{"Connection": "keep-alive"}),
			wantErr: ErrMissingHeader,
		},
		{
			name:    "missing_key",
			request: handshakeRequest(map[string]string{"Sec-WebSocket-Key": ""}),
			wantErr: ErrMissingHeader,
		},
		{
			name:    "key_not_base64",
			request: handshakeRequest(map[string]string{"Sec-WebSocket-Key": "not base64!"}),
			wantErr: ErrBadHandshake,
		},
		{
			name:    "key_wrong_nonce_length",
			request: handshakeRequest(map[string]string{"Sec-WebSocket-Key": "c2hvcnQ="}),
			wantErr: ErrBadHandshake,
		},
		{
			name:    "missing_version",
			request: handshakeRequest(map[string]string{"Sec-WebSocket-Version": ""}),
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "wrong_version",
			request: handshakeRequest(map[string]string{"Sec-WebSocket-Version": "8"}),
			wantErr: ErrUnsupportedVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Upgrade(bufio.NewReader(strings.NewReader(tt.request)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Upgrade() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				if resp != nil {
					t.Errorf("Upgrade() returned a response alongside an error: %q", resp)
				}
				return
			}

			got := string(resp)
			if !strings.HasPrefix(got, "HTTP/1.1 101 Switching Protocols\r\n") {
				t.Errorf("Upgrade() status line = %q", got)
			}
			if !strings.HasSuffix(got, "\r\n\r\n") {
				t.Errorf("Upgrade() response isn't terminated by an empty line: %q", got)
			}
			if !strings.Contains(got, tt.wantInBody) {
				t.Errorf("Upgrade() = %q, want it to contain %q", got, tt.wantInBody)
			}
		})
	}
}

func TestAcceptKey(t *testing.T) {
	// The sample value from https://datatracker.ietf.org/doc/html/rfc6455#section-1.3.
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got := acceptKey("dGhlIHNhbXBsZSBub25jZQ=="); got != want {
		t.Errorf("acceptKey() = %q, want %q", got, want)
	}

	// Deterministic: no randomness, no internal state.
	if acceptKey("9Kl3Zz3tA0ibMWQwyn/9kQ==") != acceptKey("9Kl3Zz3tA0ibMWQwyn/9kQ==") {
		t.Error("acceptKey() isn't deterministic")
	}
}
