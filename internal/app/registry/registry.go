// Package registry holds the selected output devices and fans commands
// out to them.
package registry

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
)

// Control is the per-device command surface the registry depends on.
// A single client implements it for every speaker, addressed by the
// device passed to each call.
type Control interface {
	Play(ctx context.Context, dev device.Device, url string, loop bool) error
	Stop(ctx context.Context, dev device.Device) error
	SetVolume(ctx context.Context, dev device.Device, percent int) error
	Ping(ctx context.Context, dev device.Device) error
}

// Result is one device's outcome for a fanned-out command.
type Result struct {
	Device device.Device
	Err    error
}

// Registry fans playback commands out to the selected devices. One
// device failing never aborts the others; partial success is the
// normal case.
type Registry struct {
	control Control
	timeout time.Duration

	mu      sync.RWMutex
	devices []device.Device
}

// New creates a registry using the given control adapter. Every
// per-device call is bounded by timeout so a dead speaker cannot stall
// the dispatch loop.
func New(control Control, timeout time.Duration) *Registry {
	return &Registry{control: control, timeout: timeout}
}

// Select fixes the working set of devices for the run. An empty set is
// permitted only for a diagnostic no-op run.
func (r *Registry) Select(devices []device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = devices
}

// Devices returns a copy of the selected devices.
func (r *Registry) Devices() []device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]device.Device, len(r.devices))
	copy(result, r.devices)
	return result
}

// PlayOnAll issues a play command to the devices named by addrs, or to
// every selected device when addrs is nil. Per-device results are
// collected, never fire-and-forget.
func (r *Registry) PlayOnAll(ctx context.Context, url string, loop bool, addrs []string) []Result {
	return r.fanOut(ctx, addrs, func(ctx context.Context, dev device.Device) error {
		return r.control.Play(ctx, dev, url, loop)
	})
}

// StopOnAll issues a stop command with the same fan-out contract as
// PlayOnAll.
func (r *Registry) StopOnAll(ctx context.Context, addrs []string) []Result {
	return r.fanOut(ctx, addrs, func(ctx context.Context, dev device.Device) error {
		return r.control.Stop(ctx, dev)
	})
}

// SetVolumeAll sets the volume on every selected device.
func (r *Registry) SetVolumeAll(ctx context.Context, percent int) []Result {
	return r.fanOut(ctx, nil, func(ctx context.Context, dev device.Device) error {
		return r.control.SetVolume(ctx, dev, percent)
	})
}

// Ping issues a liveness check against a single device to aid manual
// identification during selection. Failure is reported, not fatal.
func (r *Registry) Ping(ctx context.Context, dev device.Device) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.control.Ping(ctx, dev)
}

// fanOut runs cmd against the targeted devices concurrently and joins
// before returning, so total latency is bounded by the slowest single
// device rather than the sum.
func (r *Registry) fanOut(ctx context.Context, addrs []string, cmd func(context.Context, device.Device) error) []Result {
	targets := r.targets(addrs)
	results := make([]Result, len(targets))

	var wg sync.WaitGroup
	for i, dev := range targets {
		wg.Add(1)
		go func(i int, dev device.Device) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			err := cmd(callCtx, dev)
			if err != nil {
				zlog.Warn().Msgf("device command failed on %s: %v", dev, err)
			}
			results[i] = Result{Device: dev, Err: err}
		}(i, dev)
	}
	wg.Wait()

	return results
}

// targets resolves the address subset against the selected devices.
// nil means all selected devices; unknown addresses are skipped.
func (r *Registry) targets(addrs []string) []device.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if addrs == nil {
		result := make([]device.Device, len(r.devices))
		copy(result, r.devices)
		return result
	}

	byAddr := make(map[string]device.Device, len(r.devices))
	for _, d := range r.devices {
		byAddr[d.Address] = d
	}

	result := make([]device.Device, 0, len(addrs))
	for _, addr := range addrs {
		if d, ok := byAddr[addr]; ok {
			result = append(result, d)
		}
	}
	return result
}
