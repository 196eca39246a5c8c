package model

import "castcal/internal/timerange"

// CalendarEvent is a single concrete event as handed to the layout engine.
// Either end of Times may be unbounded when the source did not know it.
type CalendarEvent struct {
	Name  string               `json:"name"`
	Times timerange.Indefinite `json:"times"`

	// SourceID and UID identify where the event came from; layout ignores
	// them.
	SourceID string `json:"source_id,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// NewEvent builds an event without source metadata.
func NewEvent(name string, times timerange.Indefinite) CalendarEvent {
	return CalendarEvent{Name: name, Times: times}
}
