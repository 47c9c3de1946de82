package protocol

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// PackedItem is the compact, author-friendly description of one item
// within a Response Definition: everything but Offset, which the
// Unpacker computes as the running prefix sum of preceding byte lengths.
type PackedItem struct {
	Key        string
	ByteLength int
	Kind       ItemKind
	Repeatable bool

	Getter GetterFunc

	TextEncoding TextEncoding

	NumberType NumberType
	Endianness Endianness // zero value (LittleEndian) is the default
	Multiplier float64
	Precision  *int
}

// PackedResponse is the compact description of a Response Definition
// before offsets are materialized.
type PackedResponse struct {
	Kind      ResponseKind
	Signature []byte
	Length    int
	Items     []PackedItem
}

// PackedCommand is the compact description of a Command Definition.
type PackedCommand struct {
	Name         CommandName
	Code         []byte
	Timeout      time.Duration
	PostSendWait time.Duration
}

// PackedSpec is the compact, author-friendly protocol description that
// Unpack resolves into a Spec.
type PackedSpec struct {
	Name                   string
	ServiceUUID            uuid.UUID
	CharacteristicUUID     uuid.UUID
	SegmentHeader          []byte
	CommandHeader          []byte
	CommandLength          int
	InactivityTimeout      time.Duration
	ConnectPreviousTimeout time.Duration
	Commands               []PackedCommand
	Responses              []PackedResponse
}

// Unpack resolves a PackedSpec into a fully-materialized Spec: item
// offsets are assigned as the running prefix sum of byte lengths,
// defaults are filled in, and responses are indexed by signature.
// It validates spec.md §3's invariants and returns a *ValidationError
// naming every offending response if any invariant fails; it never
// silently repairs a bad description.
func Unpack(p PackedSpec) (*Spec, error) {
	verr := &ValidationError{}

	spec := &Spec{
		Name:                   p.Name,
		ServiceUUID:            p.ServiceUUID,
		CharacteristicUUID:     p.CharacteristicUUID,
		SegmentHeader:          p.SegmentHeader,
		CommandHeader:          p.CommandHeader,
		CommandLength:          p.CommandLength,
		InactivityTimeout:      p.InactivityTimeout,
		ConnectPreviousTimeout: p.ConnectPreviousTimeout,
		Commands:               make(map[CommandName]CommandDef, len(p.Commands)),
		Responses:              make(map[ResponseKind]ResponseDef, len(p.Responses)),
		responseBySigByte:      make(map[byte]ResponseKind, len(p.Responses)),
	}

	for _, c := range p.Commands {
		if len(c.Code)+len(p.CommandHeader) > p.CommandLength {
			verr.add("command %q: code length %d + header length %d exceeds command length %d",
				c.Name, len(c.Code), len(p.CommandHeader), p.CommandLength)
		}
		spec.Commands[c.Name] = CommandDef{
			Name:         c.Name,
			Code:         c.Code,
			Timeout:      c.Timeout,
			PostSendWait: c.PostSendWait,
		}
	}

	seenFirstByte := make(map[byte]ResponseKind, len(p.Responses))

	for _, r := range p.Responses {
		resolved, sum, itemErrs := unpackItems(r.Items)
		for _, e := range itemErrs {
			verr.add("response %q: %s", r.Kind, e)
		}

		if sum != r.Length {
			verr.add("response %q: item byte lengths sum to %d, declared length is %d", r.Kind, sum, r.Length)
		}

		if len(r.Signature) == 0 {
			verr.add("response %q: signature must not be empty", r.Kind)
		} else {
			first := r.Signature[0]
			if other, dup := seenFirstByte[first]; dup {
				verr.add("response %q: signature first byte 0x%02X collides with response %q", r.Kind, first, other)
			} else {
				seenFirstByte[first] = r.Kind
			}
		}

		def := ResponseDef{
			Name:           r.Kind,
			Kind:           r.Kind,
			Signature:      r.Signature,
			Length:         r.Length,
			Items:          resolved,
			computedLength: sum,
		}
		spec.Responses[r.Kind] = def
		if len(r.Signature) > 0 {
			spec.responseBySigByte[r.Signature[0]] = r.Kind
		}
	}

	if verr.hasOffenses() {
		return nil, verr
	}
	return spec, nil
}

// unpackItems assigns offsets as the running prefix sum of byte lengths,
// fills defaults, and rejects non-repeatable items that appear twice.
// It returns the resolved items, the total byte length, and any
// validation messages (not wrapped, so the caller can prefix them with
// the owning response's name).
func unpackItems(items []PackedItem) ([]ItemDescriptor, int, []string) {
	var errs []string
	resolved := make([]ItemDescriptor, 0, len(items))
	seenKeys := make(map[string]bool, len(items))
	offset := 0

	for _, it := range items {
		if !it.Repeatable && seenKeys[it.Key] {
			errs = append(errs, "item \""+it.Key+"\" is not repeatable but appears more than once")
		}
		seenKeys[it.Key] = true

		resolved = append(resolved, ItemDescriptor{
			Key:          it.Key,
			Offset:       offset,
			ByteLength:   it.ByteLength,
			Kind:         it.Kind,
			Repeatable:   it.Repeatable,
			Getter:       it.Getter,
			TextEncoding: it.TextEncoding,
			NumberType:   it.NumberType,
			Endianness:   it.Endianness,
			Multiplier:   it.Multiplier,
			Precision:    it.Precision,
		})
		offset += it.ByteLength
	}

	return resolved, offset, errs
}
