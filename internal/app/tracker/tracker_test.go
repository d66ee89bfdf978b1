package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const addr = "192.168.1.10"

func TestTracker_LoopRequested(t *testing.T) {
	tests := []struct {
		name  string
		setup func(tr *Tracker)
		sound string
		want  Action
	}{
		{
			name:  "start when idle",
			setup: func(tr *Tracker) {},
			sound: "meeting",
			want:  ActionStart,
		},
		{
			name: "identical repeat is a no-op",
			setup: func(tr *Tracker) {
				tr.LoopRequested(addr, "meeting")
			},
			sound: "meeting",
			want:  ActionNone,
		},
		{
			name: "different sound supersedes",
			setup: func(tr *Tracker) {
				tr.LoopRequested(addr, "meeting")
			},
			sound: "meltdown",
			want:  ActionRestart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			tt.setup(tr)
			assert.Equal(t, tt.want, tr.LoopRequested(addr, tt.sound))
			sound, ok := tr.Looping(addr)
			assert.True(t, ok)
			assert.Equal(t, tt.sound, sound)
		})
	}
}

func TestTracker_StopRequested(t *testing.T) {
	tests := []struct {
		name     string
		loop     string // active loop before the stop, empty for none
		stop     string // sound named by the stop event
		want     Action
		wantLoop bool // loop still tracked afterwards
	}{
		{
			name: "stop without loop is a no-op",
			stop: "",
			want: ActionNone,
		},
		{
			name: "unnamed stop clears the loop",
			loop: "meeting",
			stop: "",
			want: ActionStop,
		},
		{
			name: "matching named stop clears the loop",
			loop: "meeting",
			stop: "meeting",
			want: ActionStop,
		},
		{
			name:     "mismatched named stop is a no-op",
			loop:     "meeting",
			stop:     "meltdown",
			want:     ActionNone,
			wantLoop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			if tt.loop != "" {
				tr.LoopRequested(addr, tt.loop)
			}
			assert.Equal(t, tt.want, tr.StopRequested(addr, tt.stop))
			_, ok := tr.Looping(addr)
			assert.Equal(t, tt.wantLoop, ok)
		})
	}
}

func TestTracker_PlayDoesNotTouchLoopState(t *testing.T) {
	tr := New()
	tr.LoopRequested(addr, "theme")

	assert.Equal(t, ActionPlay, tr.PlayRequested(addr, "dead"))

	sound, ok := tr.Looping(addr)
	assert.True(t, ok)
	assert.Equal(t, "theme", sound)
}

func TestTracker_StateIsPerDevice(t *testing.T) {
	tr := New()
	tr.LoopRequested("10.0.0.1", "meeting")

	// Second device never saw the loop, so its stop is a no-op while
	// the first device still stops.
	assert.Equal(t, ActionNone, tr.StopRequested("10.0.0.2", ""))
	assert.Equal(t, ActionStop, tr.StopRequested("10.0.0.1", ""))
}

func TestTracker_Reset(t *testing.T) {
	tr := New()
	tr.LoopRequested(addr, "meeting")
	tr.Reset()

	_, ok := tr.Looping(addr)
	assert.False(t, ok)
}
