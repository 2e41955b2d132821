package websocket

import "strconv"

// Opcode is the 4-bit frame type tag defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2.
type Opcode byte

// This server handles only [OpcodeText] and [OpcodeClose]. All other
// opcodes are decoded as-is, and ignored by the connection session.
const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// String returns the opcode's name, or its number if it's unrecognized.
func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return strconv.Itoa(int(o))
	}
}
