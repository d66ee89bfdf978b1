package dispatcher

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/siacavazzi/amogus-sonos-connector/internal/infra/gateway"
)

// ErrMalformedEvent marks an inbound payload that cannot be acted on.
// Such events are logged, counted and dropped, never fatal.
var ErrMalformedEvent = errors.New("malformed event")

// Kind represents a sound event kind.
type Kind int

const (
	KindPlay Kind = iota // Play the sound once
	KindLoop             // Loop the sound until stopped or superseded
	KindStop             // Stop the active loop
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "play"
	case KindLoop:
		return "loop"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// SoundEvent is a decoded server event, consumed immediately after
// construction.
type SoundEvent struct {
	Kind     Kind
	Sound    string        // Logical sound name; empty only for unnamed stops
	Duration time.Duration // Loop auto-stop window; zero means the default
	Targets  []string      // Optional device address subset; nil means all
}

// soundPayload is the wire shape of play_sound/loop_sound/stop_sound
// data. Unrecognized fields are ignored.
type soundPayload struct {
	Sound    string   `json:"sound"`
	Duration float64  `json:"duration"` // seconds
	Targets  []string `json:"targets"`
}

// DecodeEvent validates and normalizes a gateway frame into a
// SoundEvent.
func DecodeEvent(msg gateway.Message) (SoundEvent, error) {
	var payload soundPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return SoundEvent{}, errors.Wrapf(ErrMalformedEvent, "%s: bad data: %v", msg.Event, err)
		}
	}
	if payload.Duration < 0 {
		return SoundEvent{}, errors.Wrapf(ErrMalformedEvent, "%s: negative duration", msg.Event)
	}

	ev := SoundEvent{
		Sound:    payload.Sound,
		Duration: time.Duration(payload.Duration * float64(time.Second)),
		Targets:  payload.Targets,
	}

	switch msg.Event {
	case gateway.EventPlay:
		ev.Kind = KindPlay
	case gateway.EventLoop:
		ev.Kind = KindLoop
	case gateway.EventStop:
		ev.Kind = KindStop
	default:
		return SoundEvent{}, errors.Wrapf(ErrMalformedEvent, "unknown event %q", msg.Event)
	}

	// Play and loop need a sound name; a stop without one clears
	// whatever is looping.
	if ev.Kind != KindStop && ev.Sound == "" {
		return SoundEvent{}, errors.Wrapf(ErrMalformedEvent, "%s: missing sound name", msg.Event)
	}

	return ev, nil
}
