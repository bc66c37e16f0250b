// Package ipa defines the boundary to the image processing algorithm
// collaborator. The algorithm is opaque to the rest of the stack: it
// consumes per-frame operation events and produces control metadata on
// its own schedule.
package ipa

// OpKind tags what an event asks for or reports.
type OpKind int

const (
	// OpSetControls asks for device controls to be applied now.
	OpSetControls OpKind = iota + 1
	// OpParamsFilled reports that a parameter buffer has been filled.
	OpParamsFilled
	// OpMetadataReady reports that frame metadata is available.
	OpMetadataReady
)

func (k OpKind) String() string {
	switch k {
	case OpSetControls:
		return "set-controls"
	case OpParamsFilled:
		return "params-filled"
	case OpMetadataReady:
		return "metadata-ready"
	default:
		return "unknown"
	}
}

// Event is one per-frame action request or notification.
type Event struct {
	Op    OpKind
	Frame uint32
	// Controls carries control id/value pairs for OpSetControls and
	// OpMetadataReady events.
	Controls map[uint32]int64
}
