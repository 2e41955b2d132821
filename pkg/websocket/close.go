package websocket

import (
	"encoding/binary"
	"strconv"
)

// StatusCode indicates a reason for the closure of
// an established WebSocket connection, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.
type StatusCode int

// The subset of https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.1
// that a server handling only text and close frames can send or receive.
const (
	// The purpose for which the connection was established has been fulfilled.
	StatusNormalClosure StatusCode = 1000
	// An endpoint is "going away", such as a server going
	// down or a browser having navigated away from a page.
	StatusGoingAway StatusCode = 1001
	// An endpoint is terminating the connection due to a protocol error.
	StatusProtocolError StatusCode = 1002
	// Reserved value, MUST NOT be set as a status code in a Close control
	// frame by an endpoint. It is designated for use in applications expecting
	// a status code to indicate that no status code was actually present.
	StatusNotReceived StatusCode = 1005
	// An endpoint is terminating the connection because it has received
	// a message that violates its policy.
	StatusPolicyViolation StatusCode = 1008
	// An endpoint is terminating the connection because it has
	// received a message that is too big for it to process.
	StatusMessageTooBig StatusCode = 1009
	// A remote endpoint is terminating the connection because it encountered
	// an unexpected condition that prevented it from fulfilling the request.
	StatusInternalError StatusCode = 1011
)

// String returns the status code's name, or its number if it's unrecognized.
func (s StatusCode) String() string {
	switch s {
	case StatusNormalClosure:
		return "normal closure"
	case StatusGoingAway:
		return "going away"
	case StatusProtocolError:
		return "protocol error"
	case StatusNotReceived:
		return "status not received"
	case StatusPolicyViolation:
		return "policy violation"
	case StatusMessageTooBig:
		return "message too big"
	case StatusInternalError:
		return "internal error"
	default:
		return strconv.Itoa(int(s))
	}
}

// maxCloseReason is the maximum length of a connection closing reason.
// The difference from [maxControlPayload] is due to the status code.
const maxCloseReason = maxControlPayload - 2

// parseClose extracts the status code and optional reason from a received
// close frame's payload. A payload too short to carry a status code is
// reported as [StatusNotReceived].
func parseClose(payload []byte) (StatusCode, string) {
	switch len(payload) {
	case 0, 1:
		return StatusNotReceived, ""
	case 2:
		return StatusCode(binary.BigEndian.Uint16(payload)), ""
	default:
		return StatusCode(binary.BigEndian.Uint16(payload)), string(payload[2:])
	}
}

// closePayload constructs a close frame's payload: a big-endian status
// code, followed by an optional reason truncated to the control-frame
// payload limit.
func closePayload(s StatusCode, reason string) []byte {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	buf := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(s))
	return append(buf, reason...)
}
