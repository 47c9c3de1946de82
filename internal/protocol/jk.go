package protocol

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

// JK BMS command and response kinds (spec.md §6: "bit-exact" wire
// protocol). Byte values are the JK02-family constants; implementers
// integrating against a specific firmware revision substitute their own
// measured constants here without touching the engine above.
const (
	CmdGetSettings       CommandName = "GET_SETTINGS"
	CmdGetDeviceInfo     CommandName = "GET_DEVICE_INFO"
	CmdToggleCharging    CommandName = "TOGGLE_CHARGING"
	CmdToggleDischarging CommandName = "TOGGLE_DISCHARGING"

	RespCellInfo   ResponseKind = "CELL_INFO"
	RespSettings   ResponseKind = "SETTINGS"
	RespDeviceInfo ResponseKind = "DEVICE_INFO"
)

// JKProtocol returns the compact description of the JK BMS GATT
// protocol. Unpack it with protocol.Unpack (or construct a Decoder
// directly with NewDecoder) to obtain a validated Spec.
func JKProtocol() PackedSpec {
	precision2 := 2

	return PackedSpec{
		Name:                   "jk-bms",
		ServiceUUID:            uuid.Must(uuid.FromString("0000ffe0-0000-1000-8000-00805f9b34fb")),
		CharacteristicUUID:     uuid.Must(uuid.FromString("0000ffe1-0000-1000-8000-00805f9b34fb")),
		SegmentHeader:          []byte{0x55, 0xAA, 0xEB, 0x90},
		CommandHeader:          []byte{0xAA, 0x55, 0x90, 0xEB},
		CommandLength:          20,
		InactivityTimeout:      30 * time.Second,
		ConnectPreviousTimeout: 5 * time.Second,

		Commands: []PackedCommand{
			{
				Name:         CmdGetSettings,
				Code:         []byte{0x96, 0x00},
				Timeout:      2 * time.Second,
				PostSendWait: 300 * time.Millisecond,
			},
			{
				Name:         CmdGetDeviceInfo,
				Code:         []byte{0x97, 0x00},
				Timeout:      2 * time.Second,
				PostSendWait: 300 * time.Millisecond,
			},
			{
				Name:         CmdToggleCharging,
				Code:         []byte{0x1D, 0x00},
				Timeout:      2 * time.Second,
				PostSendWait: 0,
			},
			{
				Name:         CmdToggleDischarging,
				Code:         []byte{0x1E, 0x00},
				Timeout:      2 * time.Second,
				PostSendWait: 0,
			},
		},

		Responses: []PackedResponse{
			{
				Kind:      RespCellInfo,
				Signature: []byte{0x01},
				Length:    300,
				Items: []PackedItem{
					// frameHeader spans the 4-byte segment header plus
					// the 1-byte signature; every response's item list
					// accounts for the full wire segment (spec.md §3:
					// "offset in bytes from the start of the segment").
					{Key: "frameHeader", ByteLength: 5, Kind: KindRaw},
					{Key: "voltages", ByteLength: 2, Kind: KindNumeric, NumberType: Uint16, Repeatable: true, Multiplier: 0.001, Precision: &precision2},
					{Key: "voltages", ByteLength: 2, Kind: KindNumeric, NumberType: Uint16, Repeatable: true, Multiplier: 0.001, Precision: &precision2},
					{Key: "voltages", ByteLength: 2, Kind: KindNumeric, NumberType: Uint16, Repeatable: true, Multiplier: 0.001, Precision: &precision2},
					{Key: "packVoltage", ByteLength: 4, Kind: KindNumeric, NumberType: Uint32, Multiplier: 0.001, Precision: &precision2},
					{Key: "packCurrent", ByteLength: 4, Kind: KindNumeric, NumberType: Int32, Multiplier: 0.001, Precision: &precision2},
					{Key: "temperature", ByteLength: 2, Kind: KindNumeric, NumberType: Int16},
					{Key: "balancing", ByteLength: 1, Kind: KindBoolean},
					{Key: "raw", ByteLength: 277, Kind: KindRaw},
					{Key: "checksum", ByteLength: 1, Kind: KindRaw},
				},
			},
			{
				Kind:      RespSettings,
				Signature: []byte{0x02},
				Length:    32,
				Items: []PackedItem{
					{Key: "frameHeader", ByteLength: 5, Kind: KindRaw},
					{Key: "smartSleepVoltage", ByteLength: 4, Kind: KindNumeric, NumberType: Uint32, Multiplier: 0.001, Precision: &precision2},
					{Key: "cellUVP", ByteLength: 4, Kind: KindNumeric, NumberType: Uint32, Multiplier: 0.001, Precision: &precision2},
					{Key: "cellOVP", ByteLength: 4, Kind: KindNumeric, NumberType: Uint32, Multiplier: 0.001, Precision: &precision2},
					{Key: "chargingEnabled", ByteLength: 1, Kind: KindBoolean},
					{Key: "dischargingEnabled", ByteLength: 1, Kind: KindBoolean},
					{Key: "reserved", ByteLength: 12, Kind: KindRaw},
					{Key: "checksum", ByteLength: 1, Kind: KindRaw},
				},
			},
			{
				Kind:      RespDeviceInfo,
				Signature: []byte{0x03},
				Length:    32,
				Items: []PackedItem{
					{Key: "frameHeader", ByteLength: 5, Kind: KindRaw},
					{Key: "vendorID", ByteLength: 10, Kind: KindText, TextEncoding: ASCIIEncoding},
					{Key: "hardwareVersion", ByteLength: 8, Kind: KindText, TextEncoding: ASCIIEncoding},
					{Key: "manufactureDate", ByteLength: 8, Kind: KindText, TextEncoding: ASCIIEncoding},
					{Key: "checksum", ByteLength: 1, Kind: KindRaw},
				},
			},
		},
	}
}
