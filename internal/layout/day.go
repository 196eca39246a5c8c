package layout

import (
	"time"

	"castcal/internal/draw"
	"castcal/internal/model"
	"castcal/internal/timerange"
)

// DayLayout places events inside one day's visible window
// [Start, Start+Duration).
type DayLayout struct {
	Start    time.Time
	Duration time.Duration
	Style    draw.Style
}

// End returns the exclusive end of the visible window.
func (d DayLayout) End() time.Time {
	return d.Start.Add(d.Duration)
}

// Location returns the zone every event is re-expressed in before clamping.
func (d DayLayout) Location() *time.Location {
	return d.Start.Location()
}

// Window returns the visible window as a definite range.
func (d DayLayout) Window() timerange.Definite {
	return timerange.Definite{Start: d.Start, End: d.End()}
}

// Draw returns at most one rectangle for ev, confined to bounds. Events that
// do not overlap the window, or whose clamped extent is shorter than a
// minute, produce nothing.
func (d DayLayout) Draw(ev model.CalendarEvent, bounds draw.Bounds) []draw.Drawing {
	window := d.Window()
	if !window.Overlaps(ev.Times) {
		return nil
	}

	clamped := ev.Times.In(d.Location()).Clamp(window)
	eventMinutes := minutes(clamped.Duration())
	if eventMinutes <= 0 {
		return nil
	}

	dayMinutes := minutes(d.Duration)
	height := Lerp(eventMinutes, 0, dayMinutes, 0, int64(bounds.Height))
	top := Lerp(
		minutes(clamped.Start.Sub(d.Start)),
		0, dayMinutes,
		int64(bounds.Top), int64(bounds.Top)+int64(bounds.Height),
	)

	return []draw.Drawing{
		draw.NewRect(bounds.Width, uint32(height), float32(bounds.Left), float32(top), d.Style),
	}
}

// minutes truncates toward zero.
func minutes(d time.Duration) int64 {
	return int64(d / time.Minute)
}
