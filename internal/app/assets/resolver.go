// Package assets resolves logical sound names to fetchable audio URLs.
package assets

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidSound is returned when a sound name fails validation.
var ErrInvalidSound = errors.New("invalid sound name")

// catalog maps logical sound names to their file names at the asset
// source. Names outside the catalog resolve to "<name>.mp3"; a wrong
// name surfaces as a playback failure on the device, not here.
var catalog = map[string]string{
	"test":           "test.mp3",
	"theme":          "theme.mp3",
	"meeting":        "meeting.mp3",
	"start":          "start.mp3",
	"meltdown":       "meltdown.mp3",
	"sus_victory":    "sus_victory.mp3",
	"crew_victory":   "victory.mp3",
	"meltdown_fail":  "meltdown_fail.mp3",
	"meltdown_over":  "meltdown_over.mp3",
	"dead":           "dead.mp3",
	"hack":           "hack.mp3",
	"sus":            "sus.mp3",
	"brainrot":       "brainrot.mp3",
	"annoying_notif": "annoying_notif.mp3",
	"meow":           "meow.mp3",
	"hurry":          "hurry.mp3",
	"veto":           "veto.mp3",
	"fear":           "fear.mp3",
}

// Resolver constructs audio URLs from a fixed base address.
// Resolution is pure string construction; remote existence is never
// verified here.
type Resolver struct {
	baseURL string
}

// NewResolver creates a resolver for the given asset base URL.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve maps a logical sound name to a fully-qualified audio URL.
// It fails only when the name itself is invalid.
func (r *Resolver) Resolve(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	file, ok := catalog[name]
	if !ok {
		file = name + ".mp3"
	}
	return r.baseURL + "/" + file, nil
}

// validateName rejects empty names and anything that could escape the
// asset directory.
func validateName(name string) error {
	if name == "" {
		return errors.Wrap(ErrInvalidSound, "empty name")
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return errors.Wrapf(ErrInvalidSound, "illegal character %q in %q", c, name)
		}
	}
	return nil
}

// Catalog returns the known logical sound names, sorted.
func Catalog() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
