// Package dispatcher receives game-server events and drives playback
// across the selected speakers.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/siacavazzi/amogus-sonos-connector/internal/app/assets"
	"github.com/siacavazzi/amogus-sonos-connector/internal/app/registry"
	"github.com/siacavazzi/amogus-sonos-connector/internal/app/tracker"
	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/gateway"
)

// testChime is played on every successful room join so the player hears
// the connector come online.
const testChime = "test"

// Config holds dispatcher configuration.
type Config struct {
	DefaultLoopDuration time.Duration // Auto-stop window for loops with no duration
}

// Stats are the dispatcher's event counters.
type Stats struct {
	Dispatched uint64 // Events acted upon
	Malformed  uint64 // Events dropped as malformed
}

// Dispatcher owns the event-to-playback dispatch path. Events are
// processed one at a time in arrival order; device fan-out within one
// event runs concurrently inside the registry.
type Dispatcher struct {
	registry *registry.Registry
	resolver *assets.Resolver
	tracker  *tracker.Tracker
	config   Config

	statusMu sync.RWMutex
	status   Status

	dispatched atomic.Uint64
	malformed  atomic.Uint64

	// Armed auto-stop timers, keyed by sound name. Guarded by timerMu.
	timerMu    sync.Mutex
	loopTimers map[string]*time.Timer
}

// New creates a dispatcher.
func New(reg *registry.Registry, res *assets.Resolver, trk *tracker.Tracker, cfg Config) *Dispatcher {
	if cfg.DefaultLoopDuration <= 0 {
		cfg.DefaultLoopDuration = 60 * time.Second
	}
	return &Dispatcher{
		registry:   reg,
		resolver:   res,
		tracker:    trk,
		config:     cfg,
		status:     StatusDisconnected,
		loopTimers: make(map[string]*time.Timer),
	}
}

// Status returns the current connection status.
func (d *Dispatcher) Status() Status {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	return d.status
}

func (d *Dispatcher) setStatus(s Status) {
	d.statusMu.Lock()
	prev := d.status
	d.status = s
	d.statusMu.Unlock()

	if prev != s {
		zlog.Info().Msgf("connection: %s -> %s", prev, s)
	}
}

// GetStats returns a snapshot of the event counters.
func (d *Dispatcher) GetStats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Malformed:  d.malformed.Load(),
	}
}

// pump drains frames from a live subscribed connection until transport
// loss or cancellation. It is the single dispatch path: events are
// handled strictly in arrival order.
func (d *Dispatcher) pump(ctx context.Context, conn Conn) error {
	for {
		msg, err := conn.Read()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.handleMessage(ctx, msg)
	}
}

// handleMessage routes one inbound frame. Anything malformed is logged,
// counted and dropped so a bad payload can never take the process down.
func (d *Dispatcher) handleMessage(ctx context.Context, msg gateway.Message) {
	switch msg.Event {
	case gateway.EventError:
		zlog.Warn().Msgf("server reported error: %s", msg.Data)
		return
	case gateway.EventJoined:
		// Duplicate ack after the handshake; nothing to do.
		return
	}

	ev, err := DecodeEvent(msg)
	if err != nil {
		d.malformed.Add(1)
		zlog.Warn().Msgf("dropping event: %v", err)
		return
	}
	d.Dispatch(ctx, ev)
}

// Dispatch applies one decoded event to the selected devices. Tracker
// state is mutated before any fan-out is issued, so concurrent device
// calls never race on shared state.
func (d *Dispatcher) Dispatch(ctx context.Context, ev SoundEvent) {
	d.dispatched.Add(1)

	switch ev.Kind {
	case KindPlay:
		d.dispatchPlay(ctx, ev)
	case KindLoop:
		d.dispatchLoop(ctx, ev)
	case KindStop:
		d.dispatchStop(ctx, ev)
	}
}

func (d *Dispatcher) dispatchPlay(ctx context.Context, ev SoundEvent) {
	url, err := d.resolver.Resolve(ev.Sound)
	if err != nil {
		d.malformed.Add(1)
		zlog.Warn().Msgf("dropping play event: %v", err)
		return
	}

	targets := make([]string, 0)
	for _, dev := range d.targetDevices(ev.Targets) {
		if d.tracker.PlayRequested(dev.Address, ev.Sound) == tracker.ActionPlay {
			targets = append(targets, dev.Address)
		}
	}
	if len(targets) == 0 {
		return
	}

	zlog.Info().Msgf("playing %q on %d device(s)", ev.Sound, len(targets))
	d.registry.PlayOnAll(ctx, url, false, targets)
}

func (d *Dispatcher) dispatchLoop(ctx context.Context, ev SoundEvent) {
	url, err := d.resolver.Resolve(ev.Sound)
	if err != nil {
		d.malformed.Add(1)
		zlog.Warn().Msgf("dropping loop event: %v", err)
		return
	}

	// Decide every device's action up front; devices already looping
	// this sound are skipped entirely.
	var restarts, starts []string
	for _, dev := range d.targetDevices(ev.Targets) {
		switch d.tracker.LoopRequested(dev.Address, ev.Sound) {
		case tracker.ActionStart:
			starts = append(starts, dev.Address)
		case tracker.ActionRestart:
			restarts = append(restarts, dev.Address)
		}
	}
	if len(restarts) == 0 && len(starts) == 0 {
		zlog.Debug().Msgf("loop %q already active everywhere, skipping", ev.Sound)
		return
	}

	// A superseded loop is stopped before its replacement starts, never
	// two concurrent loops on one device.
	if len(restarts) > 0 {
		d.registry.StopOnAll(ctx, restarts)
	}

	zlog.Info().Msgf("looping %q on %d device(s)", ev.Sound, len(restarts)+len(starts))
	d.registry.PlayOnAll(ctx, url, true, append(restarts, starts...))

	d.armLoopTimer(ev)
}

func (d *Dispatcher) dispatchStop(ctx context.Context, ev SoundEvent) {
	targets := make([]string, 0)
	for _, dev := range d.targetDevices(ev.Targets) {
		if d.tracker.StopRequested(dev.Address, ev.Sound) == tracker.ActionStop {
			targets = append(targets, dev.Address)
		}
	}
	d.disarmLoopTimer(ev.Sound)
	if len(targets) == 0 {
		zlog.Debug().Msg("stop event with nothing looping, skipping")
		return
	}

	zlog.Info().Msgf("stopping playback on %d device(s)", len(targets))
	d.registry.StopOnAll(ctx, targets)
}

// armLoopTimer schedules the loop's auto-stop. The synthetic stop names
// the sound, so a loop superseded in the meantime is left alone.
func (d *Dispatcher) armLoopTimer(ev SoundEvent) {
	duration := ev.Duration
	if duration <= 0 {
		duration = d.config.DefaultLoopDuration
	}

	d.timerMu.Lock()
	defer d.timerMu.Unlock()

	if t, ok := d.loopTimers[ev.Sound]; ok {
		t.Stop()
	}
	sound, targets := ev.Sound, ev.Targets
	d.loopTimers[ev.Sound] = time.AfterFunc(duration, func() {
		zlog.Debug().Msgf("loop %q reached its duration, stopping", sound)
		d.Dispatch(context.Background(), SoundEvent{Kind: KindStop, Sound: sound, Targets: targets})
	})
}

// disarmLoopTimer cancels pending auto-stops. An empty sound cancels
// them all, matching an unnamed stop.
func (d *Dispatcher) disarmLoopTimer(sound string) {
	d.timerMu.Lock()
	defer d.timerMu.Unlock()

	if sound == "" {
		for name, t := range d.loopTimers {
			t.Stop()
			delete(d.loopTimers, name)
		}
		return
	}
	if t, ok := d.loopTimers[sound]; ok {
		t.Stop()
		delete(d.loopTimers, sound)
	}
}

// onSubscribed runs after every successful room join.
func (d *Dispatcher) onSubscribed(ctx context.Context) {
	url, err := d.resolver.Resolve(testChime)
	if err != nil {
		return
	}
	d.registry.PlayOnAll(ctx, url, false, nil)
}

// targetDevices resolves an event's optional device subset against the
// selected working set.
func (d *Dispatcher) targetDevices(targets []string) []device.Device {
	selected := d.registry.Devices()
	if targets == nil {
		return selected
	}
	wanted := make(map[string]bool, len(targets))
	for _, addr := range targets {
		wanted[addr] = true
	}
	result := make([]device.Device, 0, len(selected))
	for _, dev := range selected {
		if wanted[dev.Address] {
			result = append(result, dev)
		}
	}
	return result
}

// Shutdown stops any active loops and clears tracked state. In-flight
// device calls run to completion or time out inside the registry.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.disarmLoopTimer("")

	targets := make([]string, 0)
	for _, dev := range d.registry.Devices() {
		if d.tracker.StopRequested(dev.Address, "") == tracker.ActionStop {
			targets = append(targets, dev.Address)
		}
	}
	if len(targets) > 0 {
		d.registry.StopOnAll(ctx, targets)
	}
	d.tracker.Reset()
	d.setStatus(StatusDisconnected)
}
