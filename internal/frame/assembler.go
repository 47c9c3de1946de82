// Package frame implements the reassembly-and-checksum state machine
// (spec.md §4.3) that turns a stream of raw notification fragments into
// complete, checksum-verified response segments ready for decoding.
package frame

import (
	"bytes"
	"log/slog"

	"github.com/jkbms/goclient/internal/protocol"
)

// Emitter receives a fully reassembled, checksum-verified segment,
// already resolved to its Response Definition.
type Emitter interface {
	EmitSegment(kind protocol.ResponseKind, signature, buffer []byte)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(kind protocol.ResponseKind, signature, buffer []byte)

func (f EmitterFunc) EmitSegment(kind protocol.ResponseKind, signature, buffer []byte) {
	f(kind, signature, buffer)
}

// Assembler owns one rolling response buffer and reassembles inbound
// notification fragments into complete segments, per spec.md §4.3.
type Assembler struct {
	spec   *protocol.Spec
	logger *slog.Logger
	buf    []byte
}

// New creates an Assembler bound to spec's segment header and response
// table. A nil logger falls back to slog.Default().
func New(spec *protocol.Spec, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{spec: spec, logger: logger}
}

// Reset discards any partially accumulated buffer contents.
func (a *Assembler) Reset() {
	a.buf = nil
}

// Feed accepts one inbound fragment and, on a complete and
// checksum-verified segment, invokes emit with the resolved response
// kind, signature, and segment bytes. The internal buffer is always
// flushed after a complete segment is evaluated (success or checksum
// failure), per spec.md §4.3 step 8.
func (a *Assembler) Feed(fragment []byte, emit Emitter) {
	switch {
	case bytes.HasPrefix(fragment, a.spec.SegmentHeader):
		a.buf = append([]byte(nil), fragment...)
	case len(a.buf) > 0 && bytes.HasPrefix(a.buf, a.spec.SegmentHeader):
		a.buf = append(a.buf, fragment...)
	default:
		a.logger.Warn("frame: dropping orphan fragment before any segment header", "length", len(fragment))
		return
	}

	headerLen := len(a.spec.SegmentHeader)
	if len(a.buf) <= headerLen {
		return // not even a signature byte yet
	}

	sigByte := a.buf[headerLen]
	resp, ok := a.spec.GetResponseBySignature([]byte{sigByte})
	if !ok {
		// Unrecognized type byte: keep accumulating until a future
		// header reset, per spec.md §4.3 step 4.
		return
	}

	if len(a.buf) < resp.Length {
		return // still incomplete
	}
	if len(a.buf) > resp.Length {
		a.logger.Warn("frame: segment over-length", "kind", resp.Kind, "want", resp.Length, "have", len(a.buf))
	}

	segment := a.buf[:resp.Length]
	if !checksumOK(segment) {
		a.logger.Warn("frame: checksum failure, discarding buffer", "kind", resp.Kind)
		a.buf = nil
		return
	}

	emit.EmitSegment(resp.Kind, segment[headerLen:headerLen+1], segment)
	a.buf = nil
}

// checksumOK verifies the trailing checksum byte: the sum of all
// preceding bytes AND 0xFF.
func checksumOK(segment []byte) bool {
	if len(segment) == 0 {
		return false
	}
	return protocol.Checksum8(segment[:len(segment)-1]) == segment[len(segment)-1]
}
