package ics

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "castcal/internal/log"
	"castcal/internal/timerange"
)

// Event is one VEVENT before recurrence expansion. Start or End is open
// when the feed did not state it.
type Event struct {
	Source Source

	UID     string
	Seq     int
	Summary string

	Start  timerange.Bound
	End    timerange.Bound
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on VEVENTs that override one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// IsOverride reports whether the event replaces a recurring instance.
func (e Event) IsOverride() bool {
	return e.RecurrenceID != nil
}

// Times returns the event's own range.
func (e Event) Times() timerange.Indefinite {
	return timerange.Indefinite{Start: e.Start, End: e.End}
}

// Parse decodes an ICS payload. Malformed VEVENTs are logged and skipped.
// Recurrences are recorded but not expanded.
func Parse(src Source, body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (Event, error) {
	out := Event{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		out.AllDay = isDateValue(p)
		start, err := propertyTime(p, out.AllDay, ve.GetStartAt)
		if err != nil {
			return out, fmt.Errorf("DTSTART: %w", err)
		}
		out.Start = timerange.At(start)
	}

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDtEnd)
		end, err := propertyTime(p, isDateValue(p), ve.GetEndAt)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = timerange.At(end)
	case ve.GetProperty("DURATION") != nil:
		start, ok := out.Start.Get()
		if !ok {
			break
		}
		d, err := parseDuration(ve.GetProperty("DURATION").Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.End = timerange.At(start.Add(d))
	case out.AllDay:
		// A date-only event without an end covers its single day.
		start, _ := out.Start.Get()
		out.End = timerange.At(start.AddDate(0, 0, 1))
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzidOf(p)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, tzidOf(p)); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

// propertyTime prefers the library's TZID-aware parsing and falls back to
// the basic forms for date-only values.
func propertyTime(p *ical.IANAProperty, allDay bool, viaLibrary func() (time.Time, error)) (time.Time, error) {
	if !allDay {
		if t, err := viaLibrary(); err == nil {
			return t, nil
		}
	}
	return parseICSTime(p.Value, tzidOf(p))
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzidOf(p *ical.IANAProperty) string {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return tzs[0]
	}
	return ""
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms. Floating
// values use tzid when it names a known zone, else time.Local.
func parseICSTime(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	loc := time.Local
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

var durationPattern = regexp.MustCompile(`^([+-])?P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseDuration parses an RFC 5545 DURATION such as "PT1H30M" or "P1D".
func parseDuration(v string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil || v == "P" || strings.HasSuffix(v, "T") {
		return 0, fmt.Errorf("invalid duration %q", v)
	}

	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d += time.Duration(n) * unit
	}

	if m[1] == "-" {
		d = -d
	}
	return d, nil
}
