package pipeline

import (
	"context"
	"time"

	"castcal/internal/layout"
	"castcal/internal/model"
	"castcal/internal/timerange"
)

// Static is a fixed event list usable wherever a feed-backed calendar is.
type Static []model.CalendarEvent

// EventsIn returns the events overlapping window, in list order.
func (s Static) EventsIn(_ context.Context, window timerange.Definite) ([]model.CalendarEvent, error) {
	out := make([]model.CalendarEvent, 0, len(s))
	for _, ev := range s {
		if window.Overlaps(ev.Times) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// DemoEvents returns two sample events on day in loc, for previewing a layout
// without any feeds.
func DemoEvents(day layout.Date, loc *time.Location) Static {
	at := func(h, min int) time.Time {
		return time.Date(day.Year, day.Month, day.Day, h, min, 0, 0, loc)
	}

	return Static{
		model.NewEvent("Brunch", timerange.Between(at(9, 0), at(10, 30))),
		model.NewEvent("Reading", timerange.Between(at(13, 0), at(13, 45))),
	}
}
