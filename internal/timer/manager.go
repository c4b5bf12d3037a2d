// Package timer implements the multi-timer scheduler used by the server
// state machine (periodic and one-shot protocol timers). The UDP announcer
// does not use it; it paces announcements with time.Sleep.
//
// There is no timer-manager analogue in the teacher repo, which relies on
// net.Conn read deadlines and a single stats ticker for its own needs
// (tonylturner-cipdip internal/server/core/listener.go statsLoop); this
// package is grounded on that ticker-plus-mutex shape, generalized from one
// fixed ticker to an arbitrary set of independently schedulable timers, and
// on original_source/inc/AliveCheckTimer.h and inc/DoIPTimes.h for the
// single-worker-thread-with-callback model the protocol timers need.
package timer

import (
	"sync"
	"time"
)

// ID identifies a timer entry. It is a plain comparable value owned
// externally; the Manager owns the entry itself. The zero value is never
// issued by Add, so callers can use it as an "unset" sentinel.
type ID uint64

// Callback is invoked when a timer fires. It runs on the manager's worker
// goroutine and must not block for long or call back into the manager
// while holding external locks the manager's callers also need.
type Callback func()

type entry struct {
	id       ID
	deadline time.Time
	interval time.Duration
	periodic bool
	enabled  bool
	callback Callback
}

// Manager is a single-worker-goroutine coordinator owning all timers for
// one logical owner (one connection's state machine).
// The worker sleeps until the earliest enabled deadline, computes the
// expired set under the lock, releases the lock, and invokes callbacks.
type Manager struct {
	mu      sync.Mutex
	entries map[ID]*entry
	nextID  ID
	wake    chan struct{}
	done    chan struct{}
	running bool
	stopped sync.WaitGroup
}

// NewManager creates a Manager and starts its worker goroutine.
func NewManager() *Manager {
	m := &Manager{
		entries: make(map[ID]*entry),
		nextID:  1,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		running: true,
	}
	m.stopped.Add(1)
	go m.run()
	return m
}

// Add registers a new timer that fires callback after d elapses. If
// periodic is true, the timer rearms to now+d after every fire; otherwise
// it is removed after firing once. The timer starts enabled.
func (m *Manager) Add(d time.Duration, callback Callback, periodic bool) ID {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.entries[id] = &entry{
		id:       id,
		deadline: time.Now().Add(d),
		interval: d,
		periodic: periodic,
		enabled:  true,
		callback: callback,
	}
	m.mu.Unlock()
	m.poke()
	return id
}

// Remove cancels and discards a timer. Removal is instantaneous at the API
// level: the entry is gone from the map before Remove returns. A callback
// already in flight for this id is allowed to finish.
func (m *Manager) Remove(id ID) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// Restart resets a timer's deadline to now+interval without changing its
// enabled state.
func (m *Manager) Restart(id ID) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.deadline = time.Now().Add(e.interval)
	}
	m.mu.Unlock()
	m.poke()
}

// Update changes a timer's interval and rearms its deadline to now+d.
func (m *Manager) Update(id ID, d time.Duration) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.interval = d
		e.deadline = time.Now().Add(d)
	}
	m.mu.Unlock()
	m.poke()
}

// Enable re-arms a previously disabled timer for now+interval and marks it
// enabled.
func (m *Manager) Enable(id ID) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.enabled = true
		e.deadline = time.Now().Add(e.interval)
	}
	m.mu.Unlock()
	m.poke()
}

// Disable marks a timer as not eligible to fire. It stays registered and
// can be re-enabled later; HasTimer still reports true.
func (m *Manager) Disable(id ID) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.enabled = false
	}
	m.mu.Unlock()
}

// TimerCount returns the number of registered timers, enabled or not.
func (m *Manager) TimerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// HasTimer reports whether id is still registered.
func (m *Manager) HasTimer(id ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

// Stop halts the worker goroutine and joins it. It is safe to call more
// than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()
	close(m.done)
	m.stopped.Wait()
}

func (m *Manager) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// run is the worker loop: sleep until the earliest enabled deadline (or
// until poked by Add/Restart/Update/Enable), then dispatch whatever has
// expired.
func (m *Manager) run() {
	defer m.stopped.Done()

	for {
		wait := m.nextWait()

		var timerC <-chan time.Time
		if wait >= 0 {
			t := time.NewTimer(wait)
			timerC = t.C
			select {
			case <-m.done:
				t.Stop()
				return
			case <-m.wake:
				t.Stop()
				continue
			case <-timerC:
			}
		} else {
			select {
			case <-m.done:
				return
			case <-m.wake:
				continue
			}
		}

		m.fireExpired()
	}
}

// nextWait returns the duration until the earliest enabled deadline, or -1
// if there are no enabled timers to wait on.
func (m *Manager) nextWait() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest time.Time
	found := false
	for _, e := range m.entries {
		if !e.enabled {
			continue
		}
		if !found || e.deadline.Before(earliest) {
			earliest = e.deadline
			found = true
		}
	}
	if !found {
		return -1
	}
	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	return d
}

// fireExpired snapshots the expired, enabled entries under the lock,
// rearms/removes them, then invokes callbacks outside the lock so a
// callback is free to call back into the manager (e.g. Restart its own
// timer, or Add a new one) without deadlocking.
func (m *Manager) fireExpired() {
	now := time.Now()

	m.mu.Lock()
	var fire []*entry
	for _, e := range m.entries {
		if e.enabled && !e.deadline.After(now) {
			fire = append(fire, e)
		}
	}
	for _, e := range fire {
		if e.periodic {
			e.deadline = now.Add(e.interval)
		} else {
			delete(m.entries, e.id)
		}
	}
	m.mu.Unlock()

	for _, e := range fire {
		invokeSafely(e.callback)
	}
}

// invokeSafely traps a panicking callback so one bad handler cannot kill
// the worker goroutine that every other timer on this manager depends on.
func invokeSafely(cb Callback) {
	defer func() {
		_ = recover()
	}()
	cb()
}
