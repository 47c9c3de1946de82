package protocol

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// TextEncoding selects how a text item's bytes are rendered.
type TextEncoding int

const (
	HexEncoding TextEncoding = iota
	UTF8Encoding
	ASCIIEncoding
)

// NumberType selects the numeric wire format of a numeric item.
type NumberType string

const (
	Int8    NumberType = "int8"
	Uint8   NumberType = "uint8"
	Int16   NumberType = "int16"
	Uint16  NumberType = "uint16"
	Int32   NumberType = "int32"
	Uint32  NumberType = "uint32"
	Float32 NumberType = "float32"
	Float64 NumberType = "float64"
)

// Endianness selects byte order for multi-byte numeric items.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// GetterFunc computes a raw item's decoded value from its slice, declared
// length, offset, and the whole response buffer.
type GetterFunc func(itemBuf []byte, byteLength, offset int, whole []byte) any

// ItemKind is the exhaustive, closed set of item variants (spec §9: sum
// type, not a runtime string-tagged dispatch).
type ItemKind int

const (
	KindRaw ItemKind = iota
	KindText
	KindNumeric
	KindBoolean
)

// ItemDescriptor describes one field within a Response Definition.
type ItemDescriptor struct {
	Key        string
	Offset     int // assigned by the Unpacker, never author-supplied
	ByteLength int
	Kind       ItemKind
	Repeatable bool

	// Raw
	Getter GetterFunc

	// Text
	TextEncoding TextEncoding

	// Numeric
	NumberType NumberType
	Endianness Endianness
	Multiplier float64
	Precision  *int
}

// CommandName is an enumerated command kind, keyed by name in a Spec.
type CommandName string

// CommandDef is one Command Definition.
type CommandDef struct {
	Name         CommandName
	Code         []byte
	Timeout      time.Duration
	PostSendWait time.Duration
}

// ResponseKind is an enumerated response data-type tag.
type ResponseKind string

// ResponseDef is one Response Definition.
type ResponseDef struct {
	Name      ResponseKind
	Kind      ResponseKind
	Signature []byte
	Length    int // declared total length in bytes
	Items     []ItemDescriptor

	// computedLength is the Unpacker-computed sum of item byte lengths,
	// cached for constant-time validation and reuse.
	computedLength int
}

// Spec is a fully-resolved Protocol Specification (spec.md §3).
type Spec struct {
	Name                   string
	ServiceUUID            uuid.UUID
	CharacteristicUUID     uuid.UUID
	SegmentHeader          []byte
	CommandHeader          []byte
	CommandLength          int
	InactivityTimeout      time.Duration
	ConnectPreviousTimeout time.Duration

	Commands  map[CommandName]CommandDef
	Responses map[ResponseKind]ResponseDef

	// responseBySigByte indexes Responses by their first signature byte
	// for O(1) lookup from a raw segment.
	responseBySigByte map[byte]ResponseKind
}

// GetCommandByName looks up a Command Definition by name.
func (s *Spec) GetCommandByName(name CommandName) (CommandDef, bool) {
	cmd, ok := s.Commands[name]
	return cmd, ok
}

// GetResponseBySignature matches on the first signature byte and returns
// the unique Response Definition, or false if none matches.
func (s *Spec) GetResponseBySignature(sig []byte) (ResponseDef, bool) {
	if len(sig) == 0 {
		return ResponseDef{}, false
	}
	kind, ok := s.responseBySigByte[sig[0]]
	if !ok {
		return ResponseDef{}, false
	}
	resp, ok := s.Responses[kind]
	return resp, ok
}

// Record is a decoded response: a mapping from item key to decoded value.
// Repeatable items are coalesced into an ordered slice under their key
// (spec §3); a non-repeatable key occurs at most once, since Unpack
// rejects duplicates.
type Record map[string]any

// SessionStatus enumerates Device Session connection states.
type SessionStatus int

const (
	StatusDisconnected SessionStatus = iota
	StatusScanning
	StatusConnecting
	StatusConnected
)

func (s SessionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusScanning:
		return "scanning"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// DisconnectReason enumerates why a Device Session disconnected.
type DisconnectReason string

const (
	ReasonUser       DisconnectReason = "user"
	ReasonExternal   DisconnectReason = "external"
	ReasonInactivity DisconnectReason = "inactivity"
	ReasonError      DisconnectReason = "error"
)

// DeviceIdentity is a previously (or currently) connected device's id and
// human-readable name.
type DeviceIdentity struct {
	ID   string
	Name string
}

// CachedRecord is the most recently produced record for a response kind,
// stamped with the wall-clock time it was produced.
type CachedRecord struct {
	Record    Record
	Timestamp int64 // epoch milliseconds
}
