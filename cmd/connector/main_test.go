package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siacavazzi/amogus-sonos-connector/internal/domain/device"
)

var candidates = []device.Device{
	{Name: "Living Room", Address: "10.0.0.1"},
	{Name: "Kitchen", Address: "10.0.0.2"},
	{Name: "Office", Address: "10.0.0.3"},
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantNames []string
		wantErr   bool
	}{
		{name: "single index", input: "2", wantNames: []string{"Kitchen"}},
		{name: "comma list", input: "1,3", wantNames: []string{"Living Room", "Office"}},
		{name: "spaces tolerated", input: " 3 , 1 ", wantNames: []string{"Office", "Living Room"}},
		{name: "duplicates collapsed", input: "2,2", wantNames: []string{"Kitchen"}},
		{name: "out of range", input: "4", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "not a number", input: "kitchen", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.input, candidates)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			names := make([]string, 0, len(got))
			for _, d := range got {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestParseIndex(t *testing.T) {
	idx, err := parseIndex("2", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = parseIndex("9", 3)
	assert.Error(t, err)
}
