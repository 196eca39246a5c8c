package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "castcal/internal/log"
	"castcal/internal/model"
	"castcal/internal/timerange"
)

// ErrAllFeedsFailed is returned when every configured feed failed to
// produce a body.
var ErrAllFeedsFailed = errors.New("ics: all feeds failed")

// Calendar returns the events overlapping a definite window.
type Calendar interface {
	EventsIn(ctx context.Context, window timerange.Definite) ([]model.CalendarEvent, error)
}

// Feeds is a Calendar backed by ICS subscriptions.
type Feeds struct {
	fetcher  *Fetcher
	sources  []Source
	location *time.Location
}

// NewFeeds returns a Calendar producing events in loc.
func NewFeeds(fetcher *Fetcher, sources []Source, loc *time.Location) *Feeds {
	return &Feeds{fetcher: fetcher, sources: sources, location: loc}
}

// Sources returns the configured subscriptions.
func (f *Feeds) Sources() []Source {
	return f.sources
}

// EventsIn fetches, parses and expands every feed. Individual feed
// failures are logged and skipped; an error is returned only when no feed
// could be read at all.
func (f *Feeds) EventsIn(ctx context.Context, window timerange.Definite) ([]model.CalendarEvent, error) {
	if len(f.sources) == 0 {
		return []model.CalendarEvent{}, nil
	}

	results, errs := f.fetcher.FetchAll(ctx, f.sources)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrAllFeedsFailed, errors.Join(errs...))
	}

	parsed := make([]Event, 0)
	for _, res := range results {
		events, err := Parse(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics parse failed for source", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, events...)
	}

	expansion, err := Expand(parsed, ExpandConfig{
		Window:   window,
		Location: f.location,
	})
	if err != nil {
		return nil, err
	}

	appLog.Info("ics events loaded",
		"sources", len(f.sources),
		"failed", len(errs),
		"events", len(expansion.Events),
		"window", window.String(),
	)
	return expansion.Events, nil
}
