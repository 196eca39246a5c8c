package config

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castcal/internal/layout"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadExpandsEnvAndNormalizes(t *testing.T) {
	t.Setenv("CASTCAL_TEST_ICS", "https://example.com/private.ics?token=abc")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
timezone: Europe/Berlin
num_days: 3
day_start: "07:30"
day_duration: 12h
ics:
  - id: work
    url: ${CASTCAL_TEST_ICS}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/private.ics?token=abc", cfg.ICS[0].URL)
	assert.Equal(t, 12*time.Hour, cfg.DayDuration)
	assert.Equal(t, 3, cfg.NumDays)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, CanvasConfig{Width: 720, Height: 480}, cfg.Canvas)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"cron", func(c *Config) { c.RefreshCron = "every tuesday" }},
		{"days", func(c *Config) { c.NumDays = -2 }},
		{"day start", func(c *Config) { c.DayStart = "25:00" }},
		{"duration", func(c *Config) { c.DayDuration = -time.Hour }},
		{"canvas", func(c *Config) { c.Canvas.Width = -1 }},
		{"color", func(c *Config) { c.Style.Fill = "blue-ish" }},
		{"start date", func(c *Config) { c.StartDate = "01/09/2022" }},
		{"ics url", func(c *Config) { c.ICS = []ICSConfig{{ID: "x"}} }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}

func TestLayoutConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.StartDate = "2022-09-01"
	cfg.Style = StyleConfig{Fill: "#ff0000", Stroke: "#000000", StrokeWidth: 2}

	lc, err := cfg.LayoutConfig(time.Now())
	require.NoError(t, err)

	assert.Equal(t, layout.Date{Year: 2022, Month: time.September, Day: 1}, lc.StartDate)
	assert.Equal(t, layout.Clock{Hour: 8}, lc.DayStart)
	assert.Equal(t, 10*time.Hour, lc.DayDuration)
	assert.Equal(t, time.UTC, lc.Location)
	require.NotNil(t, lc.Style.Fill)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, lc.Style.Fill.Color)
	require.NotNil(t, lc.Style.Stroke)
	assert.Equal(t, uint32(2), lc.Style.Stroke.Width)
}

func TestLayoutConfigDefaultsToToday(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"

	// 20:00 UTC on 1 Sep is already 2 Sep in Seoul.
	now := time.Date(2022, 9, 1, 20, 0, 0, 0, time.UTC)
	lc, err := cfg.LayoutConfig(now)
	require.NoError(t, err)
	assert.Equal(t, layout.Date{Year: 2022, Month: time.September, Day: 2}, lc.StartDate)
}

func TestStyleWithoutStrokeWidthHasNoStroke(t *testing.T) {
	t.Parallel()

	s, err := StyleConfig{Fill: "#00ff00", Stroke: "#000000"}.Draw()
	require.NoError(t, err)
	assert.Nil(t, s.Stroke)
	require.NotNil(t, s.Fill)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, s.Fill.Color)
}

func TestICSSourceID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "id", ICSConfig{ID: "id", Name: "n", URL: "u"}.SourceID())
	assert.Equal(t, "n", ICSConfig{Name: "n", URL: "u"}.SourceID())
	assert.Equal(t, "u", ICSConfig{URL: "u"}.SourceID())
}

func TestWatchReloadsValidEdits(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("num_days: [not a number\n"), 0o600))
	select {
	case c := <-changes:
		t.Fatalf("invalid edit was applied: %+v", c)
	case <-time.After(500 * time.Millisecond):
	}

	edited := DefaultConfig()
	edited.NumDays = 5
	require.NoError(t, Save(path, edited))

	select {
	case c := <-changes:
		assert.Equal(t, 5, c.NumDays)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after a valid edit")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
