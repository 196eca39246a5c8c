// Package layout converts calendar events into positioned rectangles for a
// fixed multi-day view.
//
// A Calendar splits the drawing area into one equal-width column per day and
// hands every (day, event) pair to that day's DayLayout, which clamps the
// event to the day's visible window and maps minutes linearly onto pixels.
// Output is day-major, then in input-event order; the renderer paints later
// drawings over earlier ones, so the order is part of the contract.
//
// Overlapping events within a day are not stacked or offset.
package layout

import (
	"errors"
	"fmt"
	"time"

	"castcal/internal/draw"
	"castcal/internal/model"
	"castcal/internal/timerange"
)

var (
	// ErrInvalidConfig is returned for non-positive day counts or durations
	// and a missing time zone.
	ErrInvalidConfig = errors.New("layout: invalid configuration")
	// ErrUnrepresentableTime is returned when a day's start wall clock does
	// not name exactly one instant in the configured zone (inside a DST gap
	// or repeated at a fall-back).
	ErrUnrepresentableTime = errors.New("layout: unrepresentable local time")
)

// Date is a civil calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: day start %q: %v", ErrInvalidConfig, s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Config describes an N-day view. All fields are required.
type Config struct {
	StartDate   Date
	NumDays     int
	DayStart    Clock
	DayDuration time.Duration
	Location    *time.Location
	Style       draw.Style
}

// Validate checks the preconditions that do not depend on the time zone
// database.
func (c Config) Validate() error {
	if c.NumDays <= 0 {
		return fmt.Errorf("%w: num days must be positive, got %d", ErrInvalidConfig, c.NumDays)
	}
	if c.DayDuration <= 0 {
		return fmt.Errorf("%w: day duration must be positive, got %s", ErrInvalidConfig, c.DayDuration)
	}
	if c.Location == nil {
		return fmt.Errorf("%w: time zone is required", ErrInvalidConfig)
	}
	if c.DayStart.Hour < 0 || c.DayStart.Hour > 23 || c.DayStart.Minute < 0 || c.DayStart.Minute > 59 {
		return fmt.Errorf("%w: day start %s out of range", ErrInvalidConfig, c.DayStart)
	}
	return nil
}

// Calendar lays out events over Config.NumDays consecutive days. It holds no
// mutable state and is safe for concurrent use.
type Calendar struct {
	cfg  Config
	days []DayLayout
}

// NewCalendar validates cfg and resolves every day's start instant up front,
// so that a bad configuration is reported before any layout runs.
func NewCalendar(cfg Config) (*Calendar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	days := make([]DayLayout, 0, cfg.NumDays)
	for n := 0; n < cfg.NumDays; n++ {
		start, err := resolveLocal(cfg.StartDate, n, cfg.DayStart, cfg.Location)
		if err != nil {
			return nil, err
		}
		days = append(days, DayLayout{
			Start:    start,
			Duration: cfg.DayDuration,
			Style:    cfg.Style,
		})
	}

	return &Calendar{cfg: cfg, days: days}, nil
}

// Config returns the configuration the calendar was built from.
func (c *Calendar) Config() Config {
	return c.cfg
}

// Days returns the per-day layouts in display order.
func (c *Calendar) Days() []DayLayout {
	out := make([]DayLayout, len(c.days))
	copy(out, c.days)
	return out
}

// DayStart returns the start instant of day n (0-based).
func (c *Calendar) DayStart(n int) time.Time {
	return c.days[n].Start
}

// Window spans from the start of the first day to the end of the last one.
// It is the range callers should ask their calendar source for.
func (c *Calendar) Window() timerange.Definite {
	return timerange.Definite{
		Start: c.days[0].Start,
		End:   c.days[len(c.days)-1].End(),
	}
}

// Column returns the sub-area of bounds assigned to day n. Widths truncate,
// so the columns may leave up to NumDays-1 pixels unused on the right.
func (c *Calendar) Column(n int, bounds draw.Bounds) draw.Bounds {
	num := uint64(len(c.days))
	return draw.Bounds{
		Left:   bounds.Left + uint32(uint64(n)*uint64(bounds.Width)/num),
		Top:    bounds.Top,
		Width:  uint32(uint64(bounds.Width) / num),
		Height: bounds.Height,
	}
}

// Draw lays out events across every configured day. The result is never nil;
// an empty slice means nothing is visible.
func (c *Calendar) Draw(events []model.CalendarEvent, bounds draw.Bounds) []draw.Drawing {
	out := make([]draw.Drawing, 0, len(events))
	for n, day := range c.days {
		column := c.Column(n, bounds)
		for _, ev := range events {
			out = append(out, day.Draw(ev, column)...)
		}
	}
	return out
}

// resolveLocal combines date+offsetDays with clock in loc. The wall clock
// must name exactly one instant: one skipped by a DST gap or repeated by a
// fall-back transition yields ErrUnrepresentableTime.
func resolveLocal(date Date, offsetDays int, clock Clock, loc *time.Location) (time.Time, error) {
	wall := time.Date(date.Year, date.Month, date.Day+offsetDays, clock.Hour, clock.Minute, 0, 0, time.UTC)

	var matches []time.Time
	// Offsets in force two days either side cover both sides of any single
	// transition near wall.
	for _, probe := range []time.Duration{-48 * time.Hour, 0, 48 * time.Hour} {
		_, offset := wall.Add(probe).In(loc).Zone()
		candidate := wall.Add(-time.Duration(offset) * time.Second).In(loc)
		if !sameWallClock(candidate, wall) {
			continue
		}
		if len(matches) == 0 || !matches[0].Equal(candidate) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s %s does not exist in %s",
			ErrUnrepresentableTime, DateOf(wall), clock, loc)
	case 1:
		return matches[0], nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s %s is ambiguous in %s",
			ErrUnrepresentableTime, DateOf(wall), clock, loc)
	}
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}
