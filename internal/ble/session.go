package ble

import (
	"context"
	"log/slog"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/jkbms/goclient/internal/frame"
	"github.com/jkbms/goclient/internal/protocol"
)

// internalKeys names item keys that are implementation detail (catch-all
// raw spans, reserved padding) and are withheld from the public record
// handed to consumers, per spec.md §4.5 "post-decode dispatch".
var internalKeys = map[string]bool{
	"raw":         true,
	"reserved":    true,
	"frameHeader": true,
	"checksum":    true,
}

// Session is the Device Session state machine (spec.md §4.5): it owns
// the GATT connection lifecycle, issues commands, demultiplexes
// notifications into the frame Assembler, and dispatches decoded
// records to an Observer while enforcing an inactivity watchdog.
//
// All Session-owned state is touched only while holding mu, mirroring
// the single-threaded cooperative model of spec.md §5 even though the
// real transport delivers notifications on its own goroutine. cmdMu
// additionally serializes command sends end-to-end (including the
// post-send wait), so commands never overlap on the wire.
type Session struct {
	adapter  Adapter
	decoder  *protocol.Decoder
	spec     *protocol.Spec
	observer Observer
	logger   *slog.Logger

	assembler *frame.Assembler
	wd        *watchdog

	mu       sync.Mutex
	status   protocol.SessionStatus
	identity *protocol.DeviceIdentity
	device   Device
	server   Server
	char     Characteristic
	cache    map[protocol.ResponseKind]protocol.CachedRecord

	cmdMu sync.Mutex
}

// NewSession constructs a disconnected Session bound to decoder's
// protocol, transport adapter, and consumer observer. A nil observer
// installs NoopObserver; a nil logger falls back to slog.Default().
func NewSession(adapter Adapter, decoder *protocol.Decoder, observer Observer, logger *slog.Logger) *Session {
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	spec := decoder.Spec()
	s := &Session{
		adapter:   adapter,
		decoder:   decoder,
		spec:      spec,
		observer:  observer,
		logger:    logger,
		assembler: frame.New(spec, logger),
		cache:     make(map[protocol.ResponseKind]protocol.CachedRecord),
	}
	s.wd = newWatchdog(s.onWatchdogFired)
	return s
}

// Status returns the current connection status.
func (s *Session) Status() protocol.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(status protocol.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.observer.OnStatusChange(status)
}

// Connect walks disconnected -> scanning -> connecting -> connected
// (spec.md §4.5). If previous is non-nil and the transport supports
// reconnect-to-previous, it attempts to find and reconnect to that
// identity without prompting; otherwise it falls back to an interactive
// device request filtered by the protocol's service UUID.
func (s *Session) Connect(ctx context.Context, previous *protocol.DeviceIdentity) error {
	s.mu.Lock()
	if s.status != protocol.StatusDisconnected {
		s.mu.Unlock()
		return ErrAlreadyConnecting
	}
	s.mu.Unlock()

	correlation := uuid.NewV4()
	log := s.logger.With("session", correlation.String())

	s.setStatus(protocol.StatusScanning)

	device, err := s.chooseDevice(ctx, previous, log)
	if err != nil {
		s.setStatus(protocol.StatusDisconnected)
		s.observer.OnRequestDeviceError(err)
		return err
	}
	if device == nil {
		// Previous device unavailable; onPreviousUnavailable already
		// invoked by chooseDevice. No prompting per spec.md §4.5.
		s.setStatus(protocol.StatusDisconnected)
		return nil
	}

	s.setStatus(protocol.StatusConnecting)

	server, char, err := s.establishGATT(ctx, device, log)
	if err != nil {
		log.Warn("ble: transport failure during connect", "error", err)
		s.Disconnect(protocol.ReasonError)
		s.observer.OnRequestDeviceError(err)
		return err
	}

	s.mu.Lock()
	s.device = device
	s.server = server
	s.char = char
	s.identity = &protocol.DeviceIdentity{ID: device.ID(), Name: device.Name()}
	identity := *s.identity
	s.mu.Unlock()

	s.setStatus(protocol.StatusConnected)

	s.sendBootstrap(ctx, log)

	s.observer.OnConnected(identity)
	return nil
}

// chooseDevice resolves the peripheral to connect to: the previous
// identity if supplied and supported, or an interactive request.
// Returns (nil, nil) if a previous identity was requested but is not in
// range (onPreviousUnavailable already invoked).
func (s *Session) chooseDevice(ctx context.Context, previous *protocol.DeviceIdentity, log *slog.Logger) (Device, error) {
	if previous != nil && supportsPreviousConnect(s.adapter) {
		return s.reconnectPrevious(ctx, previous, log)
	}
	return s.adapter.RequestDevice(ctx, s.spec.ServiceUUID.String())
}

func (s *Session) reconnectPrevious(ctx context.Context, previous *protocol.DeviceIdentity, log *slog.Logger) (Device, error) {
	known, err := s.adapter.ListKnownDevices(ctx)
	if err != nil {
		return nil, err
	}

	var matched Device
	for _, d := range known {
		if d.ID() == previous.ID {
			matched = d
			break
		}
	}
	if matched == nil {
		s.observer.OnPreviousUnavailable(nil)
		return nil, nil
	}

	watchCtx, cancel := context.WithTimeout(ctx, s.spec.ConnectPreviousTimeout)
	defer cancel() // aborts always run, even on success (spec.md §5)

	adverts, err := s.adapter.WatchAdvertisements(watchCtx, matched)
	if err != nil {
		log.Warn("ble: watch advertisements failed", "error", err)
		s.observer.OnPreviousUnavailable(matched)
		return nil, nil
	}

	select {
	case _, ok := <-adverts:
		if !ok {
			s.observer.OnPreviousUnavailable(matched)
			return nil, nil
		}
		return matched, nil
	case <-watchCtx.Done():
		s.observer.OnPreviousUnavailable(matched)
		return nil, nil
	}
}

// establishGATT connects to device's GATT server, discovers the
// protocol's service and characteristic, subscribes to notifications,
// and registers the external-disconnect handler.
func (s *Session) establishGATT(ctx context.Context, device Device, log *slog.Logger) (_ Server, _ Characteristic, err error) {
	server, err := s.adapter.ConnectGATT(ctx, device)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			if derr := server.Disconnect(); derr != nil {
				log.Warn("ble: cleanup disconnect after failed establishGATT", "error", derr)
			}
		}
	}()

	service, err := server.PrimaryService(s.spec.ServiceUUID.String())
	if err != nil {
		return nil, nil, err
	}

	char, err := service.Characteristic(s.spec.CharacteristicUUID.String())
	if err != nil {
		return nil, nil, err
	}

	if err := char.StartNotifications(s.handleNotification); err != nil {
		return nil, nil, err
	}

	server.OnDisconnect(func() {
		log.Warn("ble: external disconnect")
		s.Disconnect(protocol.ReasonExternal)
	})

	return server, char, nil
}

// sendBootstrap sends the two commands that prompt the device to begin
// streaming live data, in order, per spec.md §4.5 and §6. Failures are
// logged, not fatal: the characteristic is already live and subsequent
// frames may still succeed.
func (s *Session) sendBootstrap(ctx context.Context, log *slog.Logger) {
	if _, err := s.SendCommand(ctx, protocol.CmdGetSettings, nil); err != nil {
		log.Warn("ble: bootstrap GET_SETTINGS failed", "error", err)
	}
	if _, err := s.SendCommand(ctx, protocol.CmdGetDeviceInfo, nil); err != nil {
		log.Warn("ble: bootstrap GET_DEVICE_INFO failed", "error", err)
	}
}

// Disconnect tears the connection down and returns to disconnected.
// Idempotent: calling it while already disconnected is a no-op (with a
// warning) and does not invoke OnDisconnected a second time (spec.md §8,
// property 7).
func (s *Session) Disconnect(reason protocol.DisconnectReason) error {
	s.mu.Lock()
	if s.status == protocol.StatusDisconnected {
		s.mu.Unlock()
		s.logger.Warn("ble: disconnect called while already disconnected")
		return nil
	}
	char := s.char
	server := s.server
	s.mu.Unlock()

	// Disarm first so the watchdog cannot re-enter Disconnect while the
	// settling waits below are still running.
	s.wd.Stop()

	defer func() {
		if r := recover(); r != nil {
			// Catastrophic failure inside the disconnect flow itself
			// (spec.md §7: DisconnectWhileDisconnecting) escalates by
			// requesting the host reload, modeled as an Observer error.
			s.logger.Error("ble: disconnect panicked, escalating", "panic", r)
			s.observer.OnError(ErrRequestHostReload)
		}
		s.teardown(reason)
		s.observer.OnDisconnected(reason)
	}()

	if reason != protocol.ReasonExternal {
		if char != nil {
			if err := char.StopNotifications(); err != nil {
				s.logger.Warn("ble: stop notifications failed", "error", err)
			}
		}
		time.Sleep(100 * time.Millisecond)
		if server != nil {
			if err := server.Disconnect(); err != nil {
				s.logger.Warn("ble: transport disconnect failed", "error", err)
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return nil
}

// teardown clears all owned handles and cached state and sets status
// disconnected. Always succeeds.
func (s *Session) teardown(reason protocol.DisconnectReason) {
	s.wd.Stop()
	s.assembler.Reset()

	s.mu.Lock()
	s.device = nil
	s.server = nil
	s.char = nil
	s.identity = nil
	s.cache = make(map[protocol.ResponseKind]protocol.CachedRecord)
	s.status = protocol.StatusDisconnected
	s.mu.Unlock()

	s.observer.OnStatusChange(protocol.StatusDisconnected)
}

// onWatchdogFired runs disconnect('inactivity') when the watchdog
// expires without a rearm.
func (s *Session) onWatchdogFired() {
	s.logger.Warn("ble: inactivity watchdog fired")
	s.Disconnect(protocol.ReasonInactivity)
}

// registerActivity arms (or rearms) the inactivity watchdog. Invoked
// before any other work in handleNotification and before writing in
// SendCommand (spec.md §5: "making the watchdog conservative").
func (s *Session) registerActivity() {
	s.wd.Arm(s.spec.InactivityTimeout)
}

// SendCommand resolves name, frames it with payload per spec.md §4.4,
// writes it to the transport, and waits out any post-send spacing
// before returning. Commands are serialized end-to-end by cmdMu: a
// second call blocks until the first (including its post-send wait)
// completes, preserving the non-overlap guarantee of spec.md §5.
func (s *Session) SendCommand(ctx context.Context, name protocol.CommandName, payload []byte) (bool, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	cmd, ok := s.spec.GetCommandByName(name)
	if !ok {
		return false, &protocol.UnknownCommandError{Name: name}
	}

	s.mu.Lock()
	char := s.char
	s.mu.Unlock()
	if char == nil {
		return false, ErrNotConnected
	}

	buf, err := buildCommand(s.spec, cmd, payload)
	if err != nil {
		return false, err
	}

	s.registerActivity()

	if err := s.writeWithTimeout(ctx, char, buf, len(payload) > 0, cmd.Timeout, name); err != nil {
		return false, err
	}

	if cmd.PostSendWait > 0 {
		time.Sleep(cmd.PostSendWait)
	}
	return true, nil
}

// writeWithTimeout writes buf to char, bounding the call by timeout.
// On expiry it returns a CommandTimeoutError; no rollback is attempted
// (spec.md §5: "the device may still have executed the command").
func (s *Session) writeWithTimeout(ctx context.Context, char Characteristic, buf []byte, withResponse bool, timeout time.Duration, name protocol.CommandName) error {
	done := make(chan error, 1)
	go func() {
		if withResponse {
			done <- char.WriteWithResponse(buf)
		} else {
			done <- char.WriteWithoutResponse(buf)
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return &CommandTimeoutError{Command: string(name)}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleNotification is the Characteristic notification callback: it
// rearms the watchdog, then feeds the fragment into the frame Assembler.
func (s *Session) handleNotification(data []byte) {
	s.registerActivity()
	s.assembler.Feed(data, frame.EmitterFunc(s.onSegment))
}

// onSegment decodes a reassembled segment and dispatches the resulting
// record. Decode failures are logged, not raised via OnError, because
// subsequent frames may still succeed (spec.md §7).
func (s *Session) onSegment(kind protocol.ResponseKind, signature, buffer []byte) {
	rec, err := s.decoder.Decode(signature, buffer)
	if err != nil {
		s.logger.Warn("ble: decode failure", "kind", kind, "error", err)
		return
	}
	s.dispatch(kind, rec)
}

// dispatch stamps rec with the current time, computes timeSinceLastOne
// against the cache, partitions internal fields out, stores the public
// record in the cache, and invokes OnDataReceived (spec.md §4.5,
// "post-decode dispatch").
func (s *Session) dispatch(kind protocol.ResponseKind, rec protocol.Record) {
	now := time.Now().UnixMilli()
	public := partitionPublic(rec)

	s.mu.Lock()
	prev, had := s.cache[kind]
	public["timestamp"] = now
	if had {
		public["timeSinceLastOne"] = now - prev.Timestamp
	} else {
		public["timeSinceLastOne"] = nil
	}
	s.cache[kind] = protocol.CachedRecord{Record: public, Timestamp: now}
	observer := s.observer
	s.mu.Unlock()

	observer.OnDataReceived(kind, public)
}

// partitionPublic copies rec, dropping keys in internalKeys.
func partitionPublic(rec protocol.Record) protocol.Record {
	public := make(protocol.Record, len(rec))
	for k, v := range rec {
		if internalKeys[k] {
			continue
		}
		public[k] = v
	}
	return public
}

// ToggleCharging sends TOGGLE_CHARGING with a one-byte payload, then
// always re-requests GET_SETTINGS regardless of the toggle's outcome so
// the caller observes the device's authoritative state (spec.md §4.5).
func (s *Session) ToggleCharging(ctx context.Context, on bool) error {
	defer s.refreshSettings(ctx)
	_, err := s.SendCommand(ctx, protocol.CmdToggleCharging, onOffPayload(on))
	return err
}

// ToggleDischarging is ToggleCharging's counterpart for TOGGLE_DISCHARGING.
func (s *Session) ToggleDischarging(ctx context.Context, on bool) error {
	defer s.refreshSettings(ctx)
	_, err := s.SendCommand(ctx, protocol.CmdToggleDischarging, onOffPayload(on))
	return err
}

func (s *Session) refreshSettings(ctx context.Context) {
	if _, err := s.SendCommand(ctx, protocol.CmdGetSettings, nil); err != nil {
		s.logger.Warn("ble: GET_SETTINGS refresh failed", "error", err)
	}
}

func onOffPayload(on bool) []byte {
	if on {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// CachedRecord returns the most recently dispatched record for kind, if
// any.
func (s *Session) CachedRecord(kind protocol.ResponseKind) (protocol.CachedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cache[kind]
	return rec, ok
}
