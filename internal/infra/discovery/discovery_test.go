package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerName(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		want     string
	}{
		{name: "room after marker", instance: "Sonos-949F3EC2E336@Living Room", want: "Living Room"},
		{name: "no marker", instance: "Kitchen", want: "Kitchen"},
		{name: "trailing marker", instance: "Sonos-949F3EC2E336@", want: "Sonos-949F3EC2E336@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, playerName(tt.instance))
		})
	}
}
