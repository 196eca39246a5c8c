// Package timerange models closed and possibly-open intervals of
// time-zone-aware instants.
package timerange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Bound is one end of an Indefinite range: either Unbounded or bounded at an
// instant. The zero value is Unbounded.
type Bound struct {
	at      time.Time
	bounded bool
}

// Open returns an Unbounded bound.
func Open() Bound {
	return Bound{}
}

// At returns a bound fixed at t.
func At(t time.Time) Bound {
	return Bound{at: t, bounded: true}
}

// Get returns the bound's instant and whether the bound is set.
func (b Bound) Get() (time.Time, bool) {
	return b.at, b.bounded
}

// IsOpen reports whether the bound is Unbounded.
func (b Bound) IsOpen() bool {
	return !b.bounded
}

// In re-expresses a bounded instant in loc. Unbounded stays Unbounded.
func (b Bound) In(loc *time.Location) Bound {
	if !b.bounded {
		return b
	}
	return At(b.at.In(loc))
}

func (b Bound) String() string {
	if !b.bounded {
		return "∞"
	}
	return b.at.Format(time.RFC3339)
}

// MarshalJSON encodes an Unbounded bound as null and a bounded one as an
// RFC 3339 timestamp.
func (b Bound) MarshalJSON() ([]byte, error) {
	if !b.bounded {
		return []byte("null"), nil
	}
	return json.Marshal(b.at)
}

func (b *Bound) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = Open()
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("timerange: bound: %w", err)
	}
	*b = At(t)
	return nil
}

// Definite is a closed interval with both endpoints known.
// Start <= End is assumed by consumers but not enforced.
type Definite struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (r Definite) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// In re-expresses both instants in loc; the interval itself is unchanged.
func (r Definite) In(loc *time.Location) Definite {
	return Definite{Start: r.Start.In(loc), End: r.End.In(loc)}
}

// ToIndefinite returns the same interval with both bounds set.
func (r Definite) ToIndefinite() Indefinite {
	return Indefinite{Start: At(r.Start), End: At(r.End)}
}

// Contains reports whether t lies in the half-open interval [Start, End).
func (r Definite) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Overlaps reports whether other has any extent inside the half-open
// interval [Start, End). A range that ends exactly at Start or starts
// exactly at End does not overlap.
func (r Definite) Overlaps(other Indefinite) bool {
	if start, ok := other.Start.Get(); ok && !start.Before(r.End) {
		return false
	}
	if end, ok := other.End.Get(); ok && !end.After(r.Start) {
		return false
	}
	return true
}

func (r Definite) String() string {
	return fmt.Sprintf("%s .. %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// Indefinite is an interval whose endpoints may each be Unbounded.
type Indefinite struct {
	Start Bound `json:"start"`
	End   Bound `json:"end"`
}

// Between returns an Indefinite bounded at both start and end.
func Between(start, end time.Time) Indefinite {
	return Indefinite{Start: At(start), End: At(end)}
}

// Clamp restricts r to bounds. A missing start becomes bounds.Start and a
// missing end becomes bounds.End; present values are pulled inside bounds.
func (r Indefinite) Clamp(bounds Definite) Definite {
	out := bounds

	if start, ok := r.Start.Get(); ok && start.After(bounds.Start) {
		out.Start = start
	}
	if end, ok := r.End.Get(); ok && end.Before(bounds.End) {
		out.End = end
	}

	return out
}

// In re-expresses every present bound in loc.
func (r Indefinite) In(loc *time.Location) Indefinite {
	return Indefinite{Start: r.Start.In(loc), End: r.End.In(loc)}
}

func (r Indefinite) String() string {
	return fmt.Sprintf("%s .. %s", r.Start, r.End)
}
