package ble

import (
	"context"
	"sync"
)

// mockDevice is a fixed device identity for tests.
type mockDevice struct {
	id   string
	name string
}

func (d mockDevice) ID() string   { return d.id }
func (d mockDevice) Name() string { return d.name }

// mockCharacteristic records every write and lets a test drive
// notifications directly via deliver. attempts holds every write call,
// including those that failed with writeErr.
type mockCharacteristic struct {
	mu sync.Mutex

	attempts        [][]byte
	onChange        func(data []byte)
	writesWithResp   [][]byte
	writesNoResp     [][]byte
	writeErr         error
	startErr         error
	stopCalls        int
}

func (c *mockCharacteristic) StartNotifications(onChange func(data []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.onChange = onChange
	return nil
}

func (c *mockCharacteristic) StopNotifications() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
	return nil
}

func (c *mockCharacteristic) WriteWithResponse(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, append([]byte(nil), data...))
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writesWithResp = append(c.writesWithResp, append([]byte(nil), data...))
	return nil
}

func (c *mockCharacteristic) WriteWithoutResponse(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, append([]byte(nil), data...))
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writesNoResp = append(c.writesNoResp, append([]byte(nil), data...))
	return nil
}

// deliver feeds fragment to whatever handler StartNotifications
// registered, simulating an inbound notification.
func (c *mockCharacteristic) deliver(fragment []byte) {
	c.mu.Lock()
	cb := c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(fragment)
	}
}

func (c *mockCharacteristic) allWrites() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([][]byte(nil), c.writesWithResp...)
	return append(out, c.writesNoResp...)
}

type mockService struct {
	char *mockCharacteristic
}

func (s *mockService) Characteristic(uuid string) (Characteristic, error) {
	return s.char, nil
}

type mockServer struct {
	mu           sync.Mutex
	service      *mockService
	disconnected bool
	disconnectCb func()
	disconnectErr error
}

func (s *mockServer) PrimaryService(uuid string) (Service, error) {
	return s.service, nil
}

func (s *mockServer) OnDisconnect(cb func()) {
	s.mu.Lock()
	s.disconnectCb = cb
	s.mu.Unlock()
}

func (s *mockServer) Disconnect() error {
	s.mu.Lock()
	s.disconnected = true
	err := s.disconnectErr
	s.mu.Unlock()
	return err
}

// fireExternalDisconnect simulates the transport tearing the connection
// down out from under the Session.
func (s *mockServer) fireExternalDisconnect() {
	s.mu.Lock()
	cb := s.disconnectCb
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// mockAdapter is a fully scripted Adapter: tests configure which device
// RequestDevice/ListKnownDevices return and which Server ConnectGATT
// hands back.
type mockAdapter struct {
	mu sync.Mutex

	known          []Device
	requestDevice  Device
	requestErr     error
	server         *mockServer
	connectErr     error
	advertisements chan Advertisement
	watchErr       error

	supportsPreviousConnect bool
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{supportsPreviousConnect: true}
}

func (a *mockAdapter) ListKnownDevices(ctx context.Context) ([]Device, error) {
	return a.known, nil
}

func (a *mockAdapter) RequestDevice(ctx context.Context, serviceUUID string) (Device, error) {
	if a.requestErr != nil {
		return nil, a.requestErr
	}
	return a.requestDevice, nil
}

func (a *mockAdapter) WatchAdvertisements(ctx context.Context, device Device) (<-chan Advertisement, error) {
	if a.watchErr != nil {
		return nil, a.watchErr
	}
	if a.advertisements == nil {
		ch := make(chan Advertisement)
		close(ch)
		return ch, nil
	}
	return a.advertisements, nil
}

func (a *mockAdapter) ConnectGATT(ctx context.Context, device Device) (Server, error) {
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.server, nil
}

func (a *mockAdapter) SupportsPreviousConnect() bool {
	return a.supportsPreviousConnect
}

var _ Adapter = (*mockAdapter)(nil)

// bareAdapter wraps a mockAdapter but deliberately does not implement
// PreviousConnectCapable, exercising the capability-probe default for
// an Adapter that omits an opinion. It delegates method-by-method
// rather than embedding, since embedding would promote
// SupportsPreviousConnect along with it.
type bareAdapter struct {
	inner *mockAdapter
}

func (a bareAdapter) ListKnownDevices(ctx context.Context) ([]Device, error) {
	return a.inner.ListKnownDevices(ctx)
}

func (a bareAdapter) RequestDevice(ctx context.Context, serviceUUID string) (Device, error) {
	return a.inner.RequestDevice(ctx, serviceUUID)
}

func (a bareAdapter) WatchAdvertisements(ctx context.Context, device Device) (<-chan Advertisement, error) {
	return a.inner.WatchAdvertisements(ctx, device)
}

func (a bareAdapter) ConnectGATT(ctx context.Context, device Device) (Server, error) {
	return a.inner.ConnectGATT(ctx, device)
}

var _ Adapter = bareAdapter{}
