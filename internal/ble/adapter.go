// Package ble implements the Device Session state machine (spec.md §4.5)
// and the Transport Adapter capability set it depends on (spec.md §6).
// The Session owns GATT connection lifecycle, command framing and
// checksumming, notification demultiplexing into the frame Assembler,
// and the inactivity watchdog; it never talks to a concrete BLE stack
// directly — only through the interfaces in this file.
package ble

import "context"

// Device is a discovered or previously-paired BLE peripheral identity.
type Device interface {
	ID() string
	Name() string
}

// Advertisement is one observed advertisement event from a watched
// device, carrying at least signal strength.
type Advertisement struct {
	RSSI int
}

// Characteristic is a single GATT characteristic: subscribable and
// writable either with or without a write-response round trip.
type Characteristic interface {
	StartNotifications(onChange func(data []byte)) error
	StopNotifications() error
	WriteWithResponse(data []byte) error
	WriteWithoutResponse(data []byte) error
}

// Service is a single GATT primary service, addressable for its
// characteristics by UUID string.
type Service interface {
	Characteristic(uuid string) (Characteristic, error)
}

// Server is an active GATT connection to a peripheral, addressable for
// its primary services by UUID string.
type Server interface {
	PrimaryService(uuid string) (Service, error)
	// OnDisconnect registers a callback invoked when the transport tears
	// the connection down out from under the Session (spec.md §4.5:
	// "transport event --> disconnect('external')").
	OnDisconnect(callback func())
	// Disconnect requests that the transport tear down the GATT
	// connection.
	Disconnect() error
}

// Adapter abstracts the host-provided GATT stack the Device Session
// operates over (spec.md §6's "Transport capability set").
type Adapter interface {
	// ListKnownDevices returns previously paired devices known to the
	// host, used by the reconnect-to-previous path.
	ListKnownDevices(ctx context.Context) ([]Device, error)
	// RequestDevice prompts an interactive device chooser filtered by
	// serviceUUID.
	RequestDevice(ctx context.Context, serviceUUID string) (Device, error)
	// WatchAdvertisements watches for advertisements from device until
	// ctx is cancelled, delivering each on the returned channel. The
	// channel is closed when the watch ends (cancellation or error).
	WatchAdvertisements(ctx context.Context, device Device) (<-chan Advertisement, error)
	// ConnectGATT establishes a GATT connection to device.
	ConnectGATT(ctx context.Context, device Device) (Server, error)
}

// PreviousConnectCapable is an optional capability an Adapter may
// implement to indicate it supports the reconnect-to-previous path
// (ListKnownDevices + WatchAdvertisements). Its absence means
// "interactive only" — spec.md §6's "Host platform quirk", detected by
// capability probe rather than by matching a platform name (Design
// Notes, spec.md §9).
type PreviousConnectCapable interface {
	SupportsPreviousConnect() bool
}

// supportsPreviousConnect probes adapter for PreviousConnectCapable,
// defaulting to false (interactive only) when the adapter doesn't
// express an opinion.
func supportsPreviousConnect(adapter Adapter) bool {
	pc, ok := adapter.(PreviousConnectCapable)
	if !ok {
		return false
	}
	return pc.SupportsPreviousConnect()
}
