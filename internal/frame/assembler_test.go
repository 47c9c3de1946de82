package frame

import (
	"testing"

	"github.com/jkbms/goclient/internal/protocol"
)

func testSpec(t *testing.T) *protocol.Spec {
	t.Helper()
	spec, err := protocol.Unpack(protocol.PackedSpec{
		Name:          "test",
		SegmentHeader: []byte{0x55, 0xAA, 0xEB, 0x90},
		CommandHeader: []byte{0xAA, 0x55},
		CommandLength: 10,
		Responses: []protocol.PackedResponse{
			{
				Kind:      "CELL_INFO",
				Signature: []byte{0x01},
				Length:    300,
				Items: []protocol.PackedItem{
					{Key: "raw", ByteLength: 300, Kind: protocol.KindRaw},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	return spec
}

// buildSegment returns a 300-byte segment: header + signature + filler +
// a correct trailing checksum byte.
func buildSegment(t *testing.T, corruptChecksum bool) []byte {
	t.Helper()
	seg := make([]byte, 300)
	copy(seg, []byte{0x55, 0xAA, 0xEB, 0x90, 0x01})
	for i := 5; i < 299; i++ {
		seg[i] = byte(i)
	}
	var sum byte
	for _, b := range seg[:299] {
		sum += b
	}
	seg[299] = sum
	if corruptChecksum {
		seg[299] ^= 0x01
	}
	return seg
}

type recordingEmitter struct {
	calls [][]byte
	kinds []protocol.ResponseKind
}

func (r *recordingEmitter) EmitSegment(kind protocol.ResponseKind, signature, buffer []byte) {
	r.kinds = append(r.kinds, kind)
	cp := make([]byte, len(buffer))
	copy(cp, buffer)
	r.calls = append(r.calls, cp)
}

// Scenario A: fragmented frame reassembly.
func TestAssembler_FragmentedReassembly(t *testing.T) {
	spec := testSpec(t)
	a := New(spec, nil)
	seg := buildSegment(t, false)
	emitter := &recordingEmitter{}

	a.Feed(seg[0:20], emitter)
	a.Feed(seg[20:140], emitter)
	a.Feed(seg[140:300], emitter)

	if len(emitter.calls) != 1 {
		t.Fatalf("EmitSegment called %d times, want 1", len(emitter.calls))
	}
	if emitter.kinds[0] != "CELL_INFO" {
		t.Errorf("kind = %q, want CELL_INFO", emitter.kinds[0])
	}
	if len(a.buf) != 0 {
		t.Error("buffer should be cleared after emission")
	}
}

// Scenario B: checksum failure.
func TestAssembler_ChecksumFailure(t *testing.T) {
	spec := testSpec(t)
	a := New(spec, nil)
	seg := buildSegment(t, true)
	emitter := &recordingEmitter{}

	a.Feed(seg, emitter)

	if len(emitter.calls) != 0 {
		t.Fatalf("EmitSegment called %d times, want 0", len(emitter.calls))
	}
	if len(a.buf) != 0 {
		t.Error("buffer should be flushed after checksum failure")
	}
}

// Scenario C: orphan fragment.
func TestAssembler_OrphanFragmentDropped(t *testing.T) {
	spec := testSpec(t)
	a := New(spec, nil)
	emitter := &recordingEmitter{}

	orphan := make([]byte, 40)
	for i := range orphan {
		orphan[i] = 0xFF
	}
	a.Feed(orphan, emitter)

	if len(emitter.calls) != 0 {
		t.Fatalf("EmitSegment called %d times, want 0", len(emitter.calls))
	}
	if len(a.buf) != 0 {
		t.Error("buffer should remain empty after an orphan fragment")
	}
}

// Scenario D: header reset mid-frame.
func TestAssembler_HeaderResetMidFrame(t *testing.T) {
	spec := testSpec(t)
	a := New(spec, nil)
	seg := buildSegment(t, false)
	emitter := &recordingEmitter{}

	a.Feed(seg[0:100], emitter) // partial, buffered
	if len(a.buf) != 100 {
		t.Fatalf("buf length = %d, want 100", len(a.buf))
	}

	a.Feed(seg, emitter) // fresh fragment starting with header, full segment
	if len(emitter.calls) != 1 {
		t.Fatalf("EmitSegment called %d times, want 1", len(emitter.calls))
	}
	if len(emitter.calls[0]) != 300 {
		t.Errorf("emitted segment length = %d, want 300", len(emitter.calls[0]))
	}
}

func TestAssembler_UnrecognizedSignatureKeepsAccumulating(t *testing.T) {
	spec := testSpec(t)
	a := New(spec, nil)
	emitter := &recordingEmitter{}

	frag := append([]byte{0x55, 0xAA, 0xEB, 0x90, 0x99}, make([]byte, 50)...)
	a.Feed(frag, emitter)

	if len(emitter.calls) != 0 {
		t.Fatal("should not emit for unrecognized signature")
	}
	if len(a.buf) != len(frag) {
		t.Error("buffer should continue accumulating after unrecognized type byte")
	}
}

func TestAssembler_OverLengthLogsButStillEmits(t *testing.T) {
	spec := testSpec(t)
	a := New(spec, nil)
	seg := buildSegment(t, false)
	padded := append(append([]byte(nil), seg...), 0x00, 0x00, 0x00)
	emitter := &recordingEmitter{}

	a.Feed(padded, emitter)

	if len(emitter.calls) != 1 {
		t.Fatalf("EmitSegment called %d times, want 1", len(emitter.calls))
	}
	if len(emitter.calls[0]) != 300 {
		t.Errorf("emitted segment length = %d, want 300 (response length, not fragment length)", len(emitter.calls[0]))
	}
}
