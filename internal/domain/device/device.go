// Package device provides the speaker Device domain entity.
package device

import "strings"

// Device represents one network speaker selected for output.
// Identity is fixed at discovery time; commands are sent through the
// control adapter using the Address.
type Device struct {
	Name    string // Player name as reported by discovery
	Address string // host or host:port; unique within a run
}

// String returns a human-readable identifier for log lines.
func (d Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return d.Name + " (" + d.Address + ")"
}

// bedroomMarkers are name substrings that mark a speaker as a bedroom
// unit, excluded from selection unless --include-bedroom is given.
var bedroomMarkers = []string{"suite", "bedroom"}

// IsBedroom reports whether the device name marks it as a bedroom speaker.
func (d Device) IsBedroom() bool {
	name := strings.ToLower(d.Name)
	for _, marker := range bedroomMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// Filter returns the devices eligible for selection. Bedroom speakers
// are dropped unless includeBedroom is true.
func Filter(devices []Device, includeBedroom bool) []Device {
	if includeBedroom {
		return devices
	}
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		if !d.IsBedroom() {
			result = append(result, d)
		}
	}
	return result
}

// Addresses returns the addresses of the given devices, preserving order.
func Addresses(devices []Device) []string {
	addrs := make([]string, len(devices))
	for i, d := range devices {
		addrs[i] = d.Address
	}
	return addrs
}
