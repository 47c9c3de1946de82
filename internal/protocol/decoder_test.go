package protocol

import (
	"errors"
	"testing"
)

func repeatedKeySpec() PackedSpec {
	return PackedSpec{
		Name:          "test",
		SegmentHeader: []byte{0x55, 0xAA},
		CommandHeader: []byte{0xAA, 0x55},
		CommandLength: 10,
		Responses: []PackedResponse{
			{
				Kind:      "V",
				Signature: []byte{0x01},
				Length:    6,
				Items: []PackedItem{
					{Key: "voltages", ByteLength: 2, Kind: KindNumeric, NumberType: Uint16, Repeatable: true},
					{Key: "voltages", ByteLength: 2, Kind: KindNumeric, NumberType: Uint16, Repeatable: true},
					{Key: "voltages", ByteLength: 2, Kind: KindNumeric, NumberType: Uint16, Repeatable: true},
				},
			},
		},
	}
}

// Scenario H: repeated-key coalescing.
func TestDecode_RepeatedKeyCoalescing(t *testing.T) {
	dec, err := NewDecoder(repeatedKeySpec())
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	buf := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	rec, err := dec.Decode([]byte{0x01}, buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	seq, ok := rec["voltages"].([]any)
	if !ok {
		t.Fatalf("voltages = %T, want []any", rec["voltages"])
	}
	if len(seq) != 3 {
		t.Fatalf("len(voltages) = %d, want 3", len(seq))
	}
	want := []float64{1, 2, 3}
	for i, w := range want {
		if seq[i].(float64) != w {
			t.Errorf("voltages[%d] = %v, want %v", i, seq[i], w)
		}
	}
}

func TestDecode_UnknownSignature(t *testing.T) {
	dec, err := NewDecoder(repeatedKeySpec())
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	_, err = dec.Decode([]byte{0xFF}, []byte{0x00})
	if err == nil {
		t.Fatal("expected unknown-signature error")
	}
	if !errors.Is(err, ErrUnknownSignature) {
		t.Errorf("expected ErrUnknownSignature, got %v", err)
	}
}

func TestDecode_ShortBufferFails(t *testing.T) {
	dec, err := NewDecoder(repeatedKeySpec())
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	_, err = dec.Decode([]byte{0x01}, []byte{0x01, 0x00})
	if err == nil {
		t.Fatal("expected decode failure for short buffer")
	}
	var dferr *DecodeFailureError
	if !errors.As(err, &dferr) {
		t.Fatalf("expected *DecodeFailureError, got %T", err)
	}
	if dferr.Key != "voltages" {
		t.Errorf("DecodeFailureError.Key = %q, want %q", dferr.Key, "voltages")
	}
}

func TestNewDecoder_InvalidProtocolFails(t *testing.T) {
	p := repeatedKeySpec()
	p.Responses[0].Length = 1 // wrong: items sum to 6

	_, err := NewDecoder(p)
	if err == nil {
		t.Fatal("expected construction to fail for invalid protocol")
	}
	if !errors.Is(err, ErrProtocolInvalid) {
		t.Errorf("expected ErrProtocolInvalid, got %v", err)
	}
}

func TestDecode_NumericMultiplierAndPrecision(t *testing.T) {
	precision2 := 2
	p := PackedSpec{
		Name:          "test",
		SegmentHeader: []byte{0x55, 0xAA},
		CommandHeader: []byte{0xAA, 0x55},
		CommandLength: 10,
		Responses: []PackedResponse{
			{
				Kind:      "P",
				Signature: []byte{0x01},
				Length:    4,
				Items: []PackedItem{
					{Key: "packVoltage", ByteLength: 4, Kind: KindNumeric, NumberType: Uint32, Multiplier: 0.001, Precision: &precision2},
				},
			},
		},
	}
	dec, err := NewDecoder(p)
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	// 53_210 millivolts -> 53.21 volts after multiplier+precision.
	buf := []byte{0xDA, 0xCF, 0x00, 0x00} // little-endian uint32(53210)
	rec, err := dec.Decode([]byte{0x01}, buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec["packVoltage"].(float64) != 53.21 {
		t.Errorf("packVoltage = %v, want 53.21", rec["packVoltage"])
	}
}

func TestDecode_TextEncodings(t *testing.T) {
	p := PackedSpec{
		Name:          "test",
		SegmentHeader: []byte{0x55, 0xAA},
		CommandHeader: []byte{0xAA, 0x55},
		CommandLength: 10,
		Responses: []PackedResponse{
			{
				Kind:      "T",
				Signature: []byte{0x01},
				Length:    8,
				Items: []PackedItem{
					{Key: "hex", ByteLength: 2, Kind: KindText, TextEncoding: HexEncoding},
					{Key: "ascii", ByteLength: 6, Kind: KindText, TextEncoding: ASCIIEncoding},
				},
			},
		},
	}
	dec, err := NewDecoder(p)
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	buf := append([]byte{0x0A, 0xFF}, []byte("JK\x00\x00v1")...)
	rec, err := dec.Decode([]byte{0x01}, buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec["hex"].(string) != "0A FF" {
		t.Errorf("hex = %q, want %q", rec["hex"], "0A FF")
	}
	if rec["ascii"].(string) != "JKv1" {
		t.Errorf("ascii = %q, want %q (NUL stripped)", rec["ascii"], "JKv1")
	}
}

func TestDecode_BooleanAnyNonZero(t *testing.T) {
	p := PackedSpec{
		Name:          "test",
		SegmentHeader: []byte{0x55, 0xAA},
		CommandHeader: []byte{0xAA, 0x55},
		CommandLength: 10,
		Responses: []PackedResponse{
			{
				Kind:      "B",
				Signature: []byte{0x01},
				Length:    2,
				Items: []PackedItem{
					{Key: "flag", ByteLength: 2, Kind: KindBoolean},
				},
			},
		},
	}
	dec, err := NewDecoder(p)
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}

	rec, err := dec.Decode([]byte{0x01}, []byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec["flag"] != true {
		t.Errorf("flag = %v, want true", rec["flag"])
	}

	rec, err = dec.Decode([]byte{0x01}, []byte{0x00, 0x00})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec["flag"] != false {
		t.Errorf("flag = %v, want false", rec["flag"])
	}
}
