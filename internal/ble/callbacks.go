package ble

import "github.com/jkbms/goclient/internal/protocol"

// Observer is the consumer callback set a Device Session reports to
// (spec.md §6). Embed NoopObserver to implement only the methods you
// care about (Design Notes, spec.md §9: "Callback bag").
type Observer interface {
	OnStatusChange(status protocol.SessionStatus)
	OnConnected(identity protocol.DeviceIdentity)
	OnDisconnected(reason protocol.DisconnectReason)
	OnRequestDeviceError(err error)
	OnPreviousUnavailable(device Device)
	OnDataReceived(kind protocol.ResponseKind, record protocol.Record)
	OnError(err error)
}

// NoopObserver implements Observer with no-op methods. Embed it in a
// partial observer to avoid declaring every method.
type NoopObserver struct{}

func (NoopObserver) OnStatusChange(protocol.SessionStatus)             {}
func (NoopObserver) OnConnected(protocol.DeviceIdentity)                {}
func (NoopObserver) OnDisconnected(protocol.DisconnectReason)           {}
func (NoopObserver) OnRequestDeviceError(error)                         {}
func (NoopObserver) OnPreviousUnavailable(Device)                       {}
func (NoopObserver) OnDataReceived(protocol.ResponseKind, protocol.Record) {}
func (NoopObserver) OnError(error)                                      {}

var _ Observer = NoopObserver{}
