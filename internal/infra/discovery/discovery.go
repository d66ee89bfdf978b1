// Package discovery finds Sonos speakers on the local network via mDNS.
package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/grandcat/zeroconf"
	zlog "github.com/rs/zerolog/log"

	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
)

const (
	service = "_sonos._tcp"
	domain  = "local."
)

// Browse scans the local network for the given duration and returns the
// speakers that answered. An empty result is not an error; the caller
// decides whether a zero-device run is acceptable.
func Browse(ctx context.Context, timeout time.Duration) ([]device.Device, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize mDNS resolver")
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]device.Device)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			if entry == nil || len(entry.AddrIPv4) == 0 {
				continue
			}
			addr := entry.AddrIPv4[0].String()
			if _, seen := found[addr]; seen {
				continue
			}
			dev := device.Device{Name: playerName(entry.Instance), Address: addr}
			zlog.Info().Msgf("discovered speaker: %s", dev)
			found[addr] = dev
		}
	}()

	if err := resolver.Browse(browseCtx, service, domain, entries); err != nil {
		return nil, errors.Wrap(err, "mDNS browse failed")
	}

	<-browseCtx.Done()
	<-done

	devices := make([]device.Device, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// playerName extracts the room name from a Sonos mDNS instance name,
// which looks like "Sonos-949F3EC2E336@Living Room".
func playerName(instance string) string {
	if _, name, ok := strings.Cut(instance, "@"); ok && name != "" {
		return name
	}
	return instance
}
