package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinygoAdapter implements Adapter over tinygo.org/x/bluetooth, the
// single cross-platform GATT stack this module targets. Unlike a
// platform-specific backend, tinygo exposes no bonded-device store, so
// ListKnownDevices re-scans for currently advertising peripherals
// rather than querying a host pairing database; the Session layers the
// previous-identity match on top (adapter.go's PreviousConnectCapable
// quirk handling), so this is correct on every platform tinygo targets.
type TinygoAdapter struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	servers map[string]*tinygoServer // keyed by device ID, for the adapter-level disconnect handler
}

// NewTinygoAdapter enables the host's default Bluetooth adapter and
// wires its connect/disconnect events to the servers this adapter
// hands out.
func NewTinygoAdapter() (*TinygoAdapter, error) {
	a := &TinygoAdapter{
		adapter: bluetooth.DefaultAdapter,
		servers: make(map[string]*tinygoServer),
	}
	if err := a.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		srv, ok := a.servers[id]
		a.mu.Unlock()
		if ok {
			srv.fireDisconnect()
		}
	})

	return a, nil
}

type tinygoDevice struct {
	addr bluetooth.Address
	name string
	rssi int
}

func (d *tinygoDevice) ID() string   { return d.addr.String() }
func (d *tinygoDevice) Name() string { return d.name }

const knownDeviceScanWindow = 3 * time.Second

// ListKnownDevices performs a bounded, unfiltered scan and returns
// every peripheral currently advertising.
func (a *TinygoAdapter) ListKnownDevices(ctx context.Context) ([]Device, error) {
	return a.scan(ctx, "", knownDeviceScanWindow, false)
}

// RequestDevice scans, filtered to serviceUUID, until the first match
// or ctx is cancelled.
func (a *TinygoAdapter) RequestDevice(ctx context.Context, serviceUUID string) (Device, error) {
	devices, err := a.scan(ctx, serviceUUID, 0, true)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("ble: no device advertising service %s found", serviceUUID)
	}
	return devices[0], nil
}

// WatchAdvertisements scans filtered to device's address, delivering
// one Advertisement per observed packet until ctx is cancelled, at
// which point the channel is closed.
func (a *TinygoAdapter) WatchAdvertisements(ctx context.Context, device Device) (<-chan Advertisement, error) {
	td, ok := device.(*tinygoDevice)
	if !ok {
		return nil, fmt.Errorf("ble: watch advertisements: device not produced by this adapter")
	}

	ch := make(chan Advertisement, 8)
	started := make(chan error, 1)

	go func() {
		err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.Address.String() != td.ID() {
				return
			}
			select {
			case ch <- Advertisement{RSSI: int(result.RSSI)}:
			default:
			}
		})
		select {
		case started <- err:
		default:
		}
		close(ch)
	}()

	go func() {
		<-ctx.Done()
		a.adapter.StopScan()
	}()

	return ch, nil
}

// ConnectGATT connects to device's GATT server and tracks the
// resulting Server so the adapter-level disconnect handler can find it.
func (a *TinygoAdapter) ConnectGATT(ctx context.Context, device Device) (Server, error) {
	td, ok := device.(*tinygoDevice)
	if !ok {
		return nil, fmt.Errorf("ble: connect: device not produced by this adapter")
	}

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		dev, err := a.adapter.Connect(td.addr, bluetooth.ConnectionParams{})
		ch <- connectResult{dev, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", td.ID(), ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", td.ID(), r.err)
		}
		srv := &tinygoServer{device: r.device, id: td.ID()}
		a.mu.Lock()
		a.servers[td.ID()] = srv
		a.mu.Unlock()
		return srv, nil
	}
}

// SupportsPreviousConnect is always true: re-scanning for a previously
// recorded identity works on every platform tinygo targets.
func (a *TinygoAdapter) SupportsPreviousConnect() bool { return true }

// scan runs a bounded (or, with maxDuration 0, ctx-bounded) scan,
// optionally filtered by serviceUUID, stopping at the first match when
// stopOnFirst is set.
func (a *TinygoAdapter) scan(ctx context.Context, serviceUUID string, maxDuration time.Duration, stopOnFirst bool) ([]Device, error) {
	var filter bluetooth.UUID
	hasFilter := serviceUUID != ""
	if hasFilter {
		var err error
		filter, err = bluetooth.ParseUUID(serviceUUID)
		if err != nil {
			return nil, fmt.Errorf("ble: parse service UUID: %w", err)
		}
	}

	scanCtx := ctx
	if maxDuration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, maxDuration)
		defer cancel()
	}

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-scanCtx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if hasFilter && !result.HasServiceUUID(filter) {
			return
		}
		id := result.Address.String()
		mu.Lock()
		if seen[id] {
			mu.Unlock()
			return
		}
		seen[id] = true
		devices = append(devices, &tinygoDevice{addr: result.Address, name: result.LocalName(), rssi: int(result.RSSI)})
		stop := stopOnFirst
		mu.Unlock()
		if stop {
			adapter.StopScan()
		}
	})
	close(done)

	if err != nil && scanCtx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

var (
	_ Adapter                = (*TinygoAdapter)(nil)
	_ PreviousConnectCapable = (*TinygoAdapter)(nil)
)

type tinygoServer struct {
	device bluetooth.Device
	id     string

	mu           sync.Mutex
	onDisconnect func()
}

func (s *tinygoServer) PrimaryService(uuidStr string) (Service, error) {
	u, err := bluetooth.ParseUUID(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	svcs, err := s.device.DiscoverServices([]bluetooth.UUID{u})
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("ble: service %s not found", uuidStr)
	}
	return &tinygoService{svc: svcs[0]}, nil
}

func (s *tinygoServer) OnDisconnect(cb func()) {
	s.mu.Lock()
	s.onDisconnect = cb
	s.mu.Unlock()
}

func (s *tinygoServer) fireDisconnect() {
	s.mu.Lock()
	cb := s.onDisconnect
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (s *tinygoServer) Disconnect() error {
	return s.device.Disconnect()
}

type tinygoService struct {
	svc bluetooth.DeviceService
}

func (s *tinygoService) Characteristic(uuidStr string) (Characteristic, error) {
	u, err := bluetooth.ParseUUID(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	chars, err := s.svc.DiscoverCharacteristics([]bluetooth.UUID{u})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found", uuidStr)
	}
	return &tinygoCharacteristic{char: chars[0]}, nil
}

type tinygoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinygoCharacteristic) StartNotifications(onChange func(data []byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		onChange(buf)
	})
}

func (c *tinygoCharacteristic) StopNotifications() error {
	return c.char.EnableNotifications(nil)
}

func (c *tinygoCharacteristic) WriteWithResponse(data []byte) error {
	_, err := c.char.Write(data)
	return err
}

func (c *tinygoCharacteristic) WriteWithoutResponse(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
