package layout

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castcal/internal/draw"
	"castcal/internal/model"
	"castcal/internal/timerange"
)

var testBounds = draw.Bounds{Left: 0, Top: 0, Width: 200, Height: 100}

func berlin(t *testing.T) *time.Location {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func testCalendar(t *testing.T) *Calendar {
	t.Helper()

	cal, err := NewCalendar(Config{
		StartDate:   Date{Year: 2022, Month: time.September, Day: 1},
		NumDays:     2,
		DayStart:    Clock{Hour: 8},
		DayDuration: 10 * time.Hour,
		Location:    berlin(t),
	})
	require.NoError(t, err)
	return cal
}

func eventAt(t *testing.T, startDay, startHour, endDay, endHour int) model.CalendarEvent {
	t.Helper()

	loc := berlin(t)
	return model.NewEvent("foo", timerange.Between(
		time.Date(2022, 9, startDay, startHour, 0, 0, 0, loc),
		time.Date(2022, 9, endDay, endHour, 0, 0, 0, loc),
	))
}

func rect(w, h uint32, x, y float32) (draw.Rectangle, draw.Point) {
	return draw.Rectangle{Width: w, Height: h}, draw.Point{X: x, Y: y}
}

func assertRect(t *testing.T, d draw.Drawing, w, h uint32, x, y float32) {
	t.Helper()

	shape, pos := rect(w, h, x, y)
	assert.Equal(t, shape, d.Shape)
	assert.Equal(t, pos, d.Position)
}

func TestNoEventsDrawsNothing(t *testing.T) {
	t.Parallel()

	got := testCalendar(t).Draw(nil, testBounds)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOpenEventFillsEveryDay(t *testing.T) {
	t.Parallel()

	got := testCalendar(t).Draw([]model.CalendarEvent{model.NewEvent("foo", timerange.Indefinite{})}, testBounds)
	require.Len(t, got, 2)
	assertRect(t, got[0], 100, 100, 0, 0)
	assertRect(t, got[1], 100, 100, 100, 0)
}

func TestSingleEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event [4]int // start day, start hour, end day, end hour
		want  []draw.Drawing
	}{
		{
			name:  "midday",
			event: [4]int{1, 10, 1, 12},
			want:  []draw.Drawing{draw.NewRect(100, 20, 0, 20, draw.Style{})},
		},
		{
			name:  "starts early",
			event: [4]int{1, 0, 1, 12},
			want:  []draw.Drawing{draw.NewRect(100, 40, 0, 0, draw.Style{})},
		},
		{
			name:  "runs late",
			event: [4]int{1, 14, 1, 22},
			want:  []draw.Drawing{draw.NewRect(100, 40, 0, 60, draw.Style{})},
		},
		{name: "day before", event: [4]int{0, 14, 0, 22}}, // 0 September is 31 August
		{name: "day after", event: [4]int{3, 14, 3, 22}},
		{name: "ends at start of first day", event: [4]int{1, 6, 1, 8}},
		{name: "starts at end of first day", event: [4]int{1, 18, 1, 22}},
		{name: "ends at start of second day", event: [4]int{2, 6, 2, 8}},
		{name: "starts at end of second day", event: [4]int{2, 18, 2, 22}},
		{
			name:  "spans both days",
			event: [4]int{1, 12, 2, 12},
			want: []draw.Drawing{
				draw.NewRect(100, 60, 0, 40, draw.Style{}),
				draw.NewRect(100, 40, 100, 0, draw.Style{}),
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ev := eventAt(t, tc.event[0], tc.event[1], tc.event[2], tc.event[3])
			got := testCalendar(t).Draw([]model.CalendarEvent{ev}, testBounds)

			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDisjointEventsDrawTwoFullWidthRectangles(t *testing.T) {
	t.Parallel()

	events := []model.CalendarEvent{
		eventAt(t, 1, 12, 1, 14),
		eventAt(t, 2, 12, 2, 14),
	}

	got := testCalendar(t).Draw(events, testBounds)
	require.Len(t, got, 2)
	assertRect(t, got[0], 100, 20, 0, 40)
	assertRect(t, got[1], 100, 20, 100, 40)
}

func TestOutputIsDayMajor(t *testing.T) {
	t.Parallel()

	events := []model.CalendarEvent{
		eventAt(t, 2, 9, 2, 10),  // day 1 only
		eventAt(t, 1, 12, 2, 12), // both days
		eventAt(t, 1, 9, 1, 10),  // day 0 only
	}

	got := testCalendar(t).Draw(events, testBounds)
	require.Len(t, got, 4)

	// Day 0 in input order, then day 1 in input order.
	assertRect(t, got[0], 100, 60, 0, 40)
	assertRect(t, got[1], 100, 10, 0, 10)
	assertRect(t, got[2], 100, 10, 100, 10)
	assertRect(t, got[3], 100, 40, 100, 0)
}

// Overlapping events are drawn on top of each other; there is no stacking.
func TestOverlappingEventsAreNotStacked(t *testing.T) {
	t.Parallel()

	events := []model.CalendarEvent{
		eventAt(t, 1, 10, 1, 12),
		eventAt(t, 1, 11, 1, 13),
	}

	got := testCalendar(t).Draw(events, testBounds)
	require.Len(t, got, 2)
	assertRect(t, got[0], 100, 20, 0, 20)
	assertRect(t, got[1], 100, 20, 0, 30)
}

func TestEventsOutsideWindowDrawNothing(t *testing.T) {
	t.Parallel()

	cal := testCalendar(t)
	window := cal.Window()

	events := []model.CalendarEvent{
		model.NewEvent("before", timerange.Between(window.Start.Add(-3*time.Hour), window.Start)),
		model.NewEvent("after", timerange.Indefinite{Start: timerange.At(window.End)}),
		model.NewEvent("open before", timerange.Indefinite{End: timerange.At(window.Start.Add(-time.Minute))}),
	}

	assert.Empty(t, cal.Draw(events, testBounds))
}

func TestSpanningEventHeightsSumToDuration(t *testing.T) {
	t.Parallel()

	// 10 hours per day over 100px: one pixel per 6 minutes.
	got := testCalendar(t).Draw([]model.CalendarEvent{eventAt(t, 1, 15, 2, 11)}, testBounds)
	require.Len(t, got, 2)

	visible := 3*time.Hour + 3*time.Hour
	assert.Equal(t, uint32(visible/(6*time.Minute)), got[0].Shape.Height+got[1].Shape.Height)
}

func TestDrawIsDeterministic(t *testing.T) {
	t.Parallel()

	cal := testCalendar(t)
	events := []model.CalendarEvent{eventAt(t, 1, 9, 2, 17), model.NewEvent("open", timerange.Indefinite{})}

	assert.Equal(t, cal.Draw(events, testBounds), cal.Draw(events, testBounds))
}

func TestColumnsTruncate(t *testing.T) {
	t.Parallel()

	cal, err := NewCalendar(Config{
		StartDate:   Date{Year: 2022, Month: time.September, Day: 1},
		NumDays:     3,
		DayStart:    Clock{Hour: 8},
		DayDuration: 10 * time.Hour,
		Location:    time.UTC,
	})
	require.NoError(t, err)

	bounds := draw.Bounds{Left: 10, Top: 5, Width: 200, Height: 50}
	assert.Equal(t, draw.Bounds{Left: 10, Top: 5, Width: 66, Height: 50}, cal.Column(0, bounds))
	assert.Equal(t, draw.Bounds{Left: 76, Top: 5, Width: 66, Height: 50}, cal.Column(1, bounds))
	assert.Equal(t, draw.Bounds{Left: 143, Top: 5, Width: 66, Height: 50}, cal.Column(2, bounds))
}

func TestWindowAndDayStarts(t *testing.T) {
	t.Parallel()

	cal := testCalendar(t)
	loc := berlin(t)

	assert.True(t, cal.DayStart(1).Equal(time.Date(2022, 9, 2, 8, 0, 0, 0, loc)))
	assert.True(t, cal.Window().Start.Equal(time.Date(2022, 9, 1, 8, 0, 0, 0, loc)))
	assert.True(t, cal.Window().End.Equal(time.Date(2022, 9, 2, 18, 0, 0, 0, loc)))
	assert.Len(t, cal.Days(), 2)
}

func TestConfigErrors(t *testing.T) {
	t.Parallel()

	valid := Config{
		StartDate:   Date{Year: 2022, Month: time.September, Day: 1},
		NumDays:     2,
		DayStart:    Clock{Hour: 8},
		DayDuration: 10 * time.Hour,
		Location:    time.UTC,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero days", func(c *Config) { c.NumDays = 0 }},
		{"negative days", func(c *Config) { c.NumDays = -1 }},
		{"zero duration", func(c *Config) { c.DayDuration = 0 }},
		{"negative duration", func(c *Config) { c.DayDuration = -time.Hour }},
		{"no zone", func(c *Config) { c.Location = nil }},
		{"bad clock", func(c *Config) { c.DayStart = Clock{Hour: 24} }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tc.mutate(&cfg)

			cal, err := NewCalendar(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, cal)
		})
	}
}

func TestDSTGapIsAConfigurationError(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2023-03-12 02:30 does not exist in New York.
	_, err = NewCalendar(Config{
		StartDate:   Date{Year: 2023, Month: time.March, Day: 11},
		NumDays:     2,
		DayStart:    Clock{Hour: 2, Minute: 30},
		DayDuration: time.Hour,
		Location:    ny,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrepresentableTime))
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestAmbiguousDayStartIsRejected(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2023-11-05 01:30 happens twice, once in EDT and once in EST.
	cfg := Config{
		StartDate:   Date{Year: 2023, Month: time.November, Day: 5},
		NumDays:     1,
		DayStart:    Clock{Hour: 1, Minute: 30},
		DayDuration: time.Hour,
		Location:    ny,
	}
	_, err = NewCalendar(cfg)
	require.ErrorIs(t, err, ErrUnrepresentableTime)

	// Half an hour later the wall clock is unique again.
	cfg.DayStart = Clock{Hour: 2, Minute: 0}
	cal, err := NewCalendar(cfg)
	require.NoError(t, err)
	assert.True(t, cal.DayStart(0).Equal(time.Date(2023, 11, 5, 7, 0, 0, 0, time.UTC)))
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	c, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 8, Minute: 30}, c)
	assert.Equal(t, "08:30", c.String())

	_, err = ParseClock("8 o'clock")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
