package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"castcal/internal/draw"
	"castcal/internal/layout"
)

// NOTE: the file is YAML with ${VAR} expansion so that private ICS URLs can
// live in the environment (or a .env file) rather than on disk.

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CanvasConfig is the output image size in pixels.
type CanvasConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// StyleConfig is a fill/stroke pair given as hex colors ("#rrggbb").
// An empty color disables that part.
type StyleConfig struct {
	Fill        string `yaml:"fill" json:"fill"`
	Stroke      string `yaml:"stroke" json:"stroke"`
	StrokeWidth int    `yaml:"stroke_width" json:"stroke_width"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone every day column is laid out in
	// (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a standard 5-field cron spec for periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// StartDate pins the first displayed day ("2006-01-02"). Empty means
	// today in Timezone.
	StartDate string `yaml:"start_date,omitempty" json:"start_date,omitempty"`

	// NumDays is the number of day columns.
	NumDays int `yaml:"num_days" json:"num_days"`

	// DayStart is the wall-clock start of each day's visible window ("08:00").
	DayStart string `yaml:"day_start" json:"day_start"`

	// DayDuration is the length of each day's visible window.
	DayDuration time.Duration `yaml:"day_duration" json:"day_duration"`

	Canvas     CanvasConfig `yaml:"canvas" json:"canvas"`
	Style      StyleConfig  `yaml:"style" json:"style"`
	Background StyleConfig  `yaml:"background" json:"background"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir holds per-feed HTTP cache entries.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Output is where the rendered PNG is written after each refresh.
	Output string `yaml:"output" json:"output"`

	// DiscoveryTimeout bounds a single mDNS browse.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" json:"discovery_timeout"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Local",
		RefreshCron: "*/15 * * * *",
		NumDays:     2,
		DayStart:    "08:00",
		DayDuration: 10 * time.Hour,
		Canvas:      CanvasConfig{Width: 720, Height: 480},
		Style: StyleConfig{
			Fill: "#3366cc",
		},
		Background: StyleConfig{
			Fill:        "#ffffff",
			Stroke:      "#000000",
			StrokeWidth: 5,
		},
		ICS:              []ICSConfig{},
		CacheDir:         "./var/ics-cache",
		Output:           "./var/calendar.png",
		DiscoveryTimeout: 1500 * time.Millisecond,
		LogLevel:         "info",
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly. Values that are present
// but wrong are left for Validate to report.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.NumDays == 0 {
		c.NumDays = def.NumDays
	}
	if c.DayStart == "" {
		c.DayStart = def.DayStart
	}
	if c.DayDuration == 0 {
		c.DayDuration = def.DayDuration
	}
	if c.Canvas.Width == 0 && c.Canvas.Height == 0 {
		c.Canvas = def.Canvas
	}
	if c.Style == (StyleConfig{}) {
		c.Style = def.Style
	}
	if c.Background == (StyleConfig{}) {
		c.Background = def.Background
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = def.DiscoveryTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.Timezone, validation.Required, validation.By(checkTimezone)),
		validation.Field(&c.RefreshCron, validation.Required, validation.By(checkCron)),
		validation.Field(&c.StartDate, validation.Date("2006-01-02")),
		validation.Field(&c.NumDays, validation.Required, validation.Min(1)),
		validation.Field(&c.DayStart, validation.Required, validation.By(checkClock)),
		validation.Field(&c.DayDuration, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.Canvas),
		validation.Field(&c.Style),
		validation.Field(&c.Background),
		validation.Field(&c.ICS),
	)
}

// Validate implements validation.Validatable.
func (c CanvasConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Width, validation.Required, validation.Min(1)),
		validation.Field(&c.Height, validation.Required, validation.Min(1)),
	)
}

// Validate implements validation.Validatable.
func (s StyleConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Fill, validation.By(checkColor)),
		validation.Field(&s.Stroke, validation.By(checkColor)),
		validation.Field(&s.StrokeWidth, validation.Min(0)),
	)
}

// Validate implements validation.Validatable.
func (c ICSConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
	)
}

func checkTimezone(v any) error {
	_, err := time.LoadLocation(v.(string))
	return err
}

func checkCron(v any) error {
	_, err := cron.ParseStandard(v.(string))
	return err
}

func checkClock(v any) error {
	_, err := layout.ParseClock(v.(string))
	return err
}

func checkColor(v any) error {
	s := v.(string)
	if s == "" {
		return nil
	}
	_, err := ParseColor(s)
	return err
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LayoutConfig builds the calendar layout configuration. When StartDate is
// empty, the first day is now's date in the configured zone.
func (c *Config) LayoutConfig(now time.Time) (layout.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return layout.Config{}, err
	}

	clock, err := layout.ParseClock(c.DayStart)
	if err != nil {
		return layout.Config{}, err
	}

	start := layout.DateOf(now.In(loc))
	if c.StartDate != "" {
		t, err := time.ParseInLocation("2006-01-02", c.StartDate, loc)
		if err != nil {
			return layout.Config{}, fmt.Errorf("config: start_date %q: %w", c.StartDate, err)
		}
		start = layout.DateOf(t)
	}

	style, err := c.Style.Draw()
	if err != nil {
		return layout.Config{}, err
	}

	return layout.Config{
		StartDate:   start,
		NumDays:     c.NumDays,
		DayStart:    clock,
		DayDuration: c.DayDuration,
		Location:    loc,
		Style:       style,
	}, nil
}

// Bounds returns the full canvas as drawing bounds.
func (c *Config) Bounds() draw.Bounds {
	return draw.Bounds{Width: uint32(c.Canvas.Width), Height: uint32(c.Canvas.Height)}
}

// Draw converts the hex colors into a drawing style.
func (s StyleConfig) Draw() (draw.Style, error) {
	var out draw.Style

	if s.Fill != "" {
		c, err := ParseColor(s.Fill)
		if err != nil {
			return draw.Style{}, err
		}
		out.Fill = &draw.Fill{Color: c}
	}
	if s.Stroke != "" && s.StrokeWidth > 0 {
		c, err := ParseColor(s.Stroke)
		if err != nil {
			return draw.Style{}, err
		}
		out.Stroke = &draw.Stroke{Width: uint32(s.StrokeWidth), Color: c}
	}

	return out, nil
}

// ParseColor parses "#rrggbb" into an opaque color.
func ParseColor(s string) (color.RGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("config: color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - expand ${VAR} references from the environment
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".castcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
