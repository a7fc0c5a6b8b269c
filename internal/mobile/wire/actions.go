// File: internal/mobile/wire/actions.go

package wire

// ActionSequence is one input source's timeline in a W3C actions request.
type ActionSequence struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Actions    []ActionStep      `json:"actions"`
}

// ActionStep is a single step in an action sequence. Optional fields are
// pointers because zero is a meaningful coordinate and duration.
type ActionStep struct {
	Type     string `json:"type"`
	Duration *int   `json:"duration,omitempty"`
	X        *int   `json:"x,omitempty"`
	Y        *int   `json:"y,omitempty"`
	Button   *int   `json:"button,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// TouchSequence wraps steps in a single-finger touch pointer sequence.
func TouchSequence(steps ...ActionStep) []ActionSequence {
	return []ActionSequence{{
		Type:       "pointer",
		ID:         "finger1",
		Parameters: map[string]string{"pointerType": "touch"},
		Actions:    steps,
	}}
}

// PointerMove moves the pointer to viewport coordinates over the given
// duration.
func PointerMove(x, y, durationMillis int) ActionStep {
	return ActionStep{
		Type:     "pointerMove",
		Duration: ptr(durationMillis),
		X:        ptr(x),
		Y:        ptr(y),
		Origin:   "viewport",
	}
}

// PointerDown presses the primary touch point.
func PointerDown() ActionStep {
	return ActionStep{Type: "pointerDown", Button: ptr(0)}
}

// PointerUp releases the primary touch point.
func PointerUp() ActionStep {
	return ActionStep{Type: "pointerUp", Button: ptr(0)}
}

// Pause holds the pointer still for the given duration.
func Pause(durationMillis int) ActionStep {
	return ActionStep{Type: "pause", Duration: ptr(durationMillis)}
}

func ptr[T any](v T) *T {
	return &v
}
