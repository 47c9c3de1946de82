package ble

import (
	"sync"
	"time"
)

// watchdog is a single-shot, rearmable timer with one owner. It never
// leaks past a Stop call (Design Notes, spec.md §9: "Timers"), unlike
// the source's mix of ad hoc single-shot timeouts and cooperative
// awaits. Arm/Stop are called from both the notification-delivery
// goroutine and the command-sending goroutine, so access to timer is
// mutex-guarded.
type watchdog struct {
	mu    sync.Mutex
	timer *time.Timer
	fire  func()
}

// newWatchdog creates a disarmed watchdog that calls fire when it
// expires after being armed.
func newWatchdog(fire func()) *watchdog {
	return &watchdog{fire: fire}
}

// Arm (re)starts the timer for d. Safe to call repeatedly and
// concurrently; each call replaces any pending expiry.
func (w *watchdog) Arm(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, w.fire)
}

// Stop disarms the timer without firing it. Safe to call when already
// disarmed.
func (w *watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
