// Package pipeline runs one refresh cycle: resolve the layout window, load
// events for it, lay them out and render the result.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"castcal/internal/config"
	"castcal/internal/convert"
	"castcal/internal/draw"
	"castcal/internal/ics"
	"castcal/internal/layout"
	appLog "castcal/internal/log"
	"castcal/internal/model"
	"castcal/internal/render"
	"castcal/internal/timerange"
)

// ErrNoRender is returned by Last before the first successful run.
var ErrNoRender = errors.New("pipeline: nothing rendered yet")

// Result is the output of one refresh.
type Result struct {
	RenderedAt time.Time             `json:"rendered_at"`
	Window     timerange.Definite    `json:"window"`
	Timezone   string                `json:"timezone"`
	Events     []model.CalendarEvent `json:"events"`
	Drawings   []draw.Drawing        `json:"drawings"`
	Image      *image.NRGBA          `json:"-"`
	PNG        []byte                `json:"-"`
}

// Pipeline owns the configuration, the event source and the last render.
// It is safe for concurrent use; runs are serialized.
type Pipeline struct {
	cfg    *config.Config
	source ics.Calendar
	now    func() time.Time

	runMu sync.Mutex

	mu   sync.RWMutex
	last *Result
}

// New returns a pipeline reading events from source.
func New(cfg *config.Config, source ics.Calendar) *Pipeline {
	return &Pipeline{cfg: cfg, source: source, now: time.Now}
}

// FromConfig wires the ICS feeds described by cfg.
func FromConfig(cfg *config.Config) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: c.SourceID(), URL: c.URL})
	}

	fetcher := ics.NewFetcher(cfg.CacheDir, &http.Client{Timeout: 30 * time.Second})
	return New(cfg, ics.NewFeeds(fetcher, sources, loc)), nil
}

// SetClock overrides the time source, for tests and pinned renders.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// Run performs one refresh and stores the result as the last render. When
// cfg.Output is set the PNG is also written there.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	started := time.Now()
	now := p.now()

	lc, err := p.cfg.LayoutConfig(now)
	if err != nil {
		return nil, err
	}
	cal, err := layout.NewCalendar(lc)
	if err != nil {
		return nil, err
	}

	window := cal.Window()
	events, err := p.source.EventsIn(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load events: %w", err)
	}

	drawings := cal.Draw(events, p.cfg.Bounds())

	frame, err := p.cfg.Background.Draw()
	if err != nil {
		return nil, err
	}
	scene := render.NewScene(p.cfg.Canvas.Width, p.cfg.Canvas.Height, frame, drawings...)
	img := render.Rasterize(scene)

	var buf bytes.Buffer
	if err := render.EncodePNG(&buf, img); err != nil {
		return nil, err
	}

	res := &Result{
		RenderedAt: now,
		Window:     window,
		Timezone:   lc.Location.String(),
		Events:     events,
		Drawings:   drawings,
		Image:      img,
		PNG:        buf.Bytes(),
	}

	if p.cfg.Output != "" {
		if err := render.WritePNG(p.cfg.Output, img); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.last = res
	p.mu.Unlock()

	appLog.Info("refresh completed",
		"window", window.String(),
		"events", len(events),
		"drawings", len(drawings),
		"output", p.cfg.Output,
		"took", time.Since(started),
	)
	return res, nil
}

// Last returns the most recent successful render.
func (p *Pipeline) Last() (*Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return nil, ErrNoRender
	}
	return p.last, nil
}

// Dump writes black.bin and red.bin plane files for res into dir.
func Dump(dir string, res *Result) error {
	b := res.Image.Bounds()
	panel := convert.Panel{Width: b.Dx(), Height: b.Dy()}

	black, red, err := convert.Pack(res.Image, panel)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: dump: %w", err)
	}
	for name, data := range map[string][]byte{"black.bin": black, "red.bin": red} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("pipeline: dump %s: %w", name, err)
		}
	}

	appLog.Info("dumped ink planes", "dir", dir, "plane_bytes", panel.PlaneSize())
	return nil
}
