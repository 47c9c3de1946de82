package ble

import "github.com/jkbms/goclient/internal/protocol"

// buildCommand constructs the wire payload for cmd with an optional
// payload, per spec.md §4.4:
//
//	[commandHeader, command.code, payload, zero-padding] truncated to
//	exactly spec.CommandLength bytes, with the last byte replaced by the
//	8-bit checksum of the preceding bytes.
//
// Overflow (header + code + payload > commandLength) is rejected with a
// CommandOverflowError; the caller must not write it to the transport.
func buildCommand(spec *protocol.Spec, cmd protocol.CommandDef, payload []byte) ([]byte, error) {
	used := len(spec.CommandHeader) + len(cmd.Code) + len(payload)
	if used > spec.CommandLength {
		return nil, &protocol.CommandOverflowError{Command: cmd.Name, Want: spec.CommandLength, Got: used}
	}

	buf := make([]byte, spec.CommandLength) // zero-padded by make
	n := copy(buf, spec.CommandHeader)
	n += copy(buf[n:], cmd.Code)
	copy(buf[n:], payload)

	buf[len(buf)-1] = protocol.Checksum8(buf[:len(buf)-1])
	return buf, nil
}

// decodeCommand reverses buildCommand for round-trip verification
// (spec.md §8, property 6): it strips the header and checksum byte and
// returns the code and payload exactly as submitted, modulo trailing
// zero padding (the caller supplies codeLen to know where code ends).
func decodeCommand(spec *protocol.Spec, buf []byte, codeLen int) (code, payload []byte) {
	body := buf[len(spec.CommandHeader) : len(buf)-1]
	code = body[:codeLen]
	payload = trimTrailingZeros(body[codeLen:])
	return code, payload
}

func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
