package models

// TickInput is what the event source delivers for one simulation tick. Any
// field may be nil.
type TickInput struct {
	Alert     *RawAlert       `json:"alert,omitempty"`
	Intel     *LearningUpdate `json:"intel,omitempty"`
	Directive *Directive      `json:"directive,omitempty"`
}

// Empty reports whether the tick carries nothing
func (t *TickInput) Empty() bool {
	return t == nil || (t.Alert == nil && t.Intel == nil && t.Directive == nil)
}
