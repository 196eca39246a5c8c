package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "castcal/internal/log"
	"castcal/internal/model"
	"castcal/internal/timerange"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Window limits which occurrences are produced.
	Window timerange.Definite

	// Location is the zone every produced instant is expressed in; all-day
	// events are anchored to midnight here. Nil means time.Local.
	Location *time.Location

	// MaxOccurrencesPerEvent caps runaway rules. Zero means 5000.
	MaxOccurrencesPerEvent int
}

// Expansion is the result of Expand.
type Expansion struct {
	Events []model.CalendarEvent
	// Truncated lists UIDs whose recurrence hit the cap.
	Truncated []string
}

// Expand turns parsed events into concrete occurrences overlapping
// cfg.Window. It applies RRULE, EXDATE and RECURRENCE-ID overrides. Output
// is ordered by start (open starts first), then UID, so that layout order
// does not depend on feed order.
func Expand(events []Event, cfg ExpandConfig) (Expansion, error) {
	var result Expansion

	if cfg.Window.End.Before(cfg.Window.Start) {
		return result, errors.New("expand: window ends before it starts")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overrides := make(map[string][]Event)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}

		if ev.RRule == "" || ev.Start.IsOpen() {
			if occ, ok := occurrence(ev, ev.Times(), cfg); ok {
				out = append(out, occ)
			}
			continue
		}

		occs, truncated := expandRecurring(ev, overrides[ev.UID], cfg)
		out = append(out, occs...)
		if truncated {
			result.Truncated = append(result.Truncated, ev.UID)
			appLog.Error("expand: truncated occurrences",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, iok := out[i].Times.Start.Get()
		sj, jok := out[j].Times.Start.Get()
		if iok != jok {
			return !iok
		}
		if iok && !si.Equal(sj) {
			return si.Before(sj)
		}
		return out[i].UID < out[j].UID
	})

	result.Events = out
	return result, nil
}

func expandRecurring(ev Event, overrides []Event, cfg ExpandConfig) ([]model.CalendarEvent, bool) {
	out := make([]model.CalendarEvent, 0)

	start, _ := ev.Start.Get()

	opt, err := rrule.StrToROptionInLocation(ev.RRule, start.Location())
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return out, false
	}
	opt.Dtstart = start

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Error("expand: invalid RRULE", err, "uid", ev.UID, "rrule", ev.RRule)
		return out, false
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(start.Location()))
	}

	// An occurrence starting before the window may still reach into it.
	length := time.Duration(0)
	if end, ok := ev.End.Get(); ok {
		length = end.Sub(start)
	}
	from := cfg.Window.Start.Add(-length).In(start.Location())
	until := cfg.Window.End.In(start.Location())

	starts := set.Between(from, until, true)
	truncated := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		truncated = true
	}

	for _, s := range starts {
		instance := ev
		times := timerange.Indefinite{Start: timerange.At(s)}
		if !ev.End.IsOpen() {
			times.End = timerange.At(s.Add(length))
		}

		if o, ok := findOverride(overrides, s); ok {
			instance = o
			times = o.Times()
		}

		if occ, ok := occurrence(instance, times, cfg); ok {
			out = append(out, occ)
		}
	}

	return out, truncated
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

// occurrence normalizes times into cfg.Location and drops instances that do
// not overlap the window.
func occurrence(ev Event, times timerange.Indefinite, cfg ExpandConfig) (model.CalendarEvent, bool) {
	if ev.AllDay {
		times = anchorAllDay(times, cfg.Location)
	} else {
		times = times.In(cfg.Location)
	}

	if !cfg.Window.Overlaps(times) {
		return model.CalendarEvent{}, false
	}

	return model.CalendarEvent{
		Name:     ev.Summary,
		Times:    times,
		SourceID: ev.Source.ID,
		UID:      ev.UID,
	}, true
}

// anchorAllDay moves date-only bounds to midnight of the same calendar date
// in loc, whatever zone they were parsed in.
func anchorAllDay(times timerange.Indefinite, loc *time.Location) timerange.Indefinite {
	anchor := func(b timerange.Bound) timerange.Bound {
		t, ok := b.Get()
		if !ok {
			return b
		}
		y, m, d := t.Date()
		return timerange.At(time.Date(y, m, d, 0, 0, 0, 0, loc))
	}
	return timerange.Indefinite{Start: anchor(times.Start), End: anchor(times.End)}
}
