package ipa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterPassesControlsThrough(t *testing.T) {
	var got []Event
	r := NewRouter(func(ev Event) { got = append(got, ev) })

	r.Submit(Event{Op: OpSetControls, Frame: 3})
	r.Submit(Event{Op: OpParamsFilled, Frame: 3})

	assert.Len(t, got, 2)
}

func TestRouterHoldsEarlyMetadata(t *testing.T) {
	var got []Event
	r := NewRouter(func(ev Event) { got = append(got, ev) })

	r.Submit(Event{Op: OpMetadataReady, Frame: 5})
	assert.Empty(t, got, "metadata must not overtake its frame")

	r.BufferComplete(5)
	if assert.Len(t, got, 1) {
		assert.Equal(t, OpMetadataReady, got[0].Op)
		assert.EqualValues(t, 5, got[0].Frame)
	}
}

func TestRouterDeliversLateMetadataImmediately(t *testing.T) {
	var got []Event
	r := NewRouter(func(ev Event) { got = append(got, ev) })

	r.BufferComplete(5)
	r.Submit(Event{Op: OpMetadataReady, Frame: 5})

	assert.Len(t, got, 1)
}

func TestRouterForgetFrame(t *testing.T) {
	var got []Event
	r := NewRouter(func(ev Event) { got = append(got, ev) })

	r.BufferComplete(5)
	r.ForgetFrame(5)

	// Frame 5's slot may be reused by a much later frame; metadata for it
	// must be held again until that frame completes.
	r.Submit(Event{Op: OpMetadataReady, Frame: 5})
	assert.Empty(t, got)
}
