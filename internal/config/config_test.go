package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("RECOGNITION_CONCURRENCY", "")
	t.Setenv("TESSERACT_LANGUAGES", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, 3, cfg.RecognitionConcurrency)
	assert.Equal(t, 0.5, cfg.MinConfidence)
	assert.Equal(t, 2000, cfg.MaxSliceHeight)
	assert.Equal(t, 100, cfg.SliceOverlap)
	assert.Equal(t, []string{"eng", "fil"}, cfg.TesseractLanguages)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RECOGNITION_CONCURRENCY", "5")
	t.Setenv("MIN_CONFIDENCE", "0.7")
	t.Setenv("TESSERACT_LANGUAGES", "eng+tgl")
	t.Setenv("MAX_SLICE_HEIGHT", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RecognitionConcurrency)
	assert.Equal(t, 0.7, cfg.MinConfidence)
	assert.Equal(t, []string{"eng", "tgl"}, cfg.TesseractLanguages)
	assert.Equal(t, 2000, cfg.MaxSliceHeight, "unparseable values fall back to the default")
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			RedisURL:               "redis://x",
			WorkerConcurrency:      1,
			RecognitionConcurrency: 3,
			MinConfidence:          0.5,
			MaxSliceHeight:         2000,
			SliceOverlap:           100,
			TesseractLanguages:     []string{"eng"},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(c *Config){
		"no redis":        func(c *Config) { c.RedisURL = "" },
		"zero recognizer": func(c *Config) { c.RecognitionConcurrency = 0 },
		"confidence":      func(c *Config) { c.MinConfidence = 1.5 },
		"overlap":         func(c *Config) { c.SliceOverlap = 2000 },
		"languages":       func(c *Config) { c.TesseractLanguages = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
