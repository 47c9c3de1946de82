package protocol

import (
	"strings"
)

// Decoder validates a packed protocol at construction time and decodes
// response buffers into Records according to each Response Definition's
// item layout.
type Decoder struct {
	spec *Spec
}

// NewDecoder unpacks and validates p, returning a usable Decoder or a
// "protocol invalid" error carrying the offending response list.
func NewDecoder(p PackedSpec) (*Decoder, error) {
	spec, err := Unpack(p)
	if err != nil {
		return nil, err
	}
	return &Decoder{spec: spec}, nil
}

// Spec returns the fully-resolved Protocol Specification backing this
// Decoder.
func (d *Decoder) Spec() *Spec {
	return d.spec
}

// Decode resolves a Response Definition by signature and decodes buffer
// into a Record, walking items in declaration order. Repeatable items
// are coalesced into an ordered sequence under their key.
func (d *Decoder) Decode(signature, buffer []byte) (Record, error) {
	resp, ok := d.spec.GetResponseBySignature(signature)
	if !ok {
		return nil, &UnknownSignatureError{Signature: signature}
	}

	rec := make(Record, len(resp.Items))

	for _, item := range resp.Items {
		end := item.Offset + item.ByteLength
		if end > len(buffer) {
			return nil, &DecodeFailureError{Key: item.Key, Offset: item.Offset, Cause: errShortBuffer(item.Offset, item.ByteLength, len(buffer))}
		}
		itemBuf := buffer[item.Offset:end]

		value, err := decodeItem(item, itemBuf, buffer)
		if err != nil {
			return nil, &DecodeFailureError{Key: item.Key, Offset: item.Offset, Cause: err}
		}

		accumulate(rec, item, value)
	}

	return rec, nil
}

// accumulate stores value under item.Key. Repeatable items always
// produce an ordered []any sequence, even on their first occurrence, so
// a decoded record's shape never depends on how many times a key
// happened to repeat in a given response (spec §9 Design Notes).
func accumulate(rec Record, item ItemDescriptor, value any) {
	if !item.Repeatable {
		rec[item.Key] = value
		return
	}
	existing, ok := rec[item.Key]
	if !ok {
		rec[item.Key] = []any{value}
		return
	}
	seq := existing.([]any)
	rec[item.Key] = append(seq, value)
}

// decodeItem computes the decoded value for one item, exhaustively
// switching on the closed ItemKind sum type (spec §9: re-architected
// from the source's runtime string-tag dispatch).
func decodeItem(item ItemDescriptor, itemBuf, whole []byte) (any, error) {
	switch item.Kind {
	case KindRaw:
		if item.Getter != nil {
			return item.Getter(itemBuf, item.ByteLength, item.Offset, whole), nil
		}
		cp := make([]byte, len(itemBuf))
		copy(cp, itemBuf)
		return cp, nil

	case KindText:
		switch item.TextEncoding {
		case HexEncoding:
			return hexBytes(itemBuf), nil
		case UTF8Encoding, ASCIIEncoding:
			return stripNUL(itemBuf), nil
		default:
			return nil, errUnknownTextEncoding(item.TextEncoding)
		}

	case KindNumeric:
		return readNumeric(itemBuf, item.NumberType, item.Endianness, item.Multiplier, item.Precision)

	case KindBoolean:
		for _, b := range itemBuf {
			if b != 0 {
				return true, nil
			}
		}
		return false, nil

	default:
		return nil, errUnknownItemKind(item.Kind)
	}
}

// stripNUL decodes buf as UTF-8 and removes all NUL code points.
func stripNUL(buf []byte) string {
	return strings.Map(dropNUL, string(buf))
}

func dropNUL(r rune) rune {
	if r == 0 {
		return -1
	}
	return r
}
