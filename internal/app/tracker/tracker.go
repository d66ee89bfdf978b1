// Package tracker maintains per-device looping playback state.
package tracker

import "sync"

// Action is the instruction the tracker hands back to the dispatcher
// for a single device.
type Action int

const (
	ActionNone    Action = iota // Nothing to do (dedup or stop without loop)
	ActionPlay                  // One-shot playback, loop state untouched
	ActionStart                 // Start a new loop
	ActionRestart               // Stop the current loop, then start the new one
	ActionStop                  // Stop the active loop
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPlay:
		return "play"
	case ActionStart:
		return "start"
	case ActionRestart:
		return "restart"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Tracker records which sound, if any, is looping on each device.
// State is keyed by device address so refreshed device objects never
// alias stale entries. At most one loop is active per device.
type Tracker struct {
	mu    sync.Mutex
	loops map[string]string // device address -> looping sound name
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{loops: make(map[string]string)}
}

// LoopRequested decides how a loop request applies to one device and
// records the new loop target. Repeating the active sound is a no-op so
// duplicate events never double-trigger playback.
func (t *Tracker) LoopRequested(addr, sound string) Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, active := t.loops[addr]
	if active && current == sound {
		return ActionNone
	}
	t.loops[addr] = sound
	if active {
		return ActionRestart
	}
	return ActionStart
}

// PlayRequested decides how a one-shot play applies to one device.
// One-shots never touch loop bookkeeping: a sound playing over a loop
// leaves the loop as the state to return to on the next stop.
func (t *Tracker) PlayRequested(addr, sound string) Action {
	return ActionPlay
}

// StopRequested decides how a stop applies to one device and clears the
// tracked loop. A stop naming a sound other than the active loop is a
// no-op; an unnamed stop clears whatever is looping. Stopping an idle
// device is not an error.
func (t *Tracker) StopRequested(addr, sound string) Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, active := t.loops[addr]
	if !active {
		return ActionNone
	}
	if sound != "" && sound != current {
		return ActionNone
	}
	delete(t.loops, addr)
	return ActionStop
}

// Looping returns the sound currently looping on the device, if any.
func (t *Tracker) Looping(addr string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sound, ok := t.loops[addr]
	return sound, ok
}

// Reset clears all tracked loops. Used at shutdown after the devices
// have been stopped.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loops = make(map[string]string)
}
