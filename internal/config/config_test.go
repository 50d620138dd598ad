package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/request"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"GENERATION_BACKEND", "REQUEST_MODE", "REQUIRED_SLOTS", "TELEGRAM_BOT_TOKEN"} {
		t.Setenv(key, "")
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, request.ModeMulti, cfg.RequestMode)
	assert.Equal(t, []request.Slot{request.Hardware, request.Material}, cfg.RequiredSlots)
	assert.Equal(t, 4, cfg.MaxVariations)
	assert.Equal(t, 2, cfg.DefaultVariations)
	assert.Equal(t, 20, cfg.HistoryCapacity)
	assert.Equal(t, 1200*time.Millisecond, cfg.MediaGroupDebounce)

	bc := cfg.BuilderConfig()
	assert.Equal(t, request.DefaultPrompt, bc.DefaultPrompt)
	assert.Equal(t, 1024, bc.Collage.Width)

	opts := cfg.DownscaleOptions()
	assert.Equal(t, 1024, opts.MaxSide)
	assert.Equal(t, 50_000_000, opts.MaxPixels)
	assert.Equal(t, 85, opts.Quality)

	_, isOpenAI := cfg.NewClient(nil, nil).(*generation.OpenAIClient)
	assert.True(t, isOpenAI)
	assert.Error(t, cfg.RequireTelegram())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GENERATION_BACKEND", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("REQUEST_MODE", "collage")
	t.Setenv("REQUIRED_SLOTS", "part1, sole")
	t.Setenv("MAX_VARIATIONS", "3")
	t.Setenv("DEFAULT_VARIATIONS", "9")
	t.Setenv("HISTORY_CAPACITY", "-2")
	t.Setenv("DOWNSCALE_QUALITY", "400")
	t.Setenv("DOWNSCALE_MAX_PIXELS", "0")
	t.Setenv("COLLAGE_SIZE", "512")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, request.ModeCollage, cfg.RequestMode)
	assert.Equal(t, []request.Slot{request.Hardware, request.Sole}, cfg.RequiredSlots)
	assert.Equal(t, 3, cfg.DefaultVariations)
	assert.Equal(t, 1, cfg.HistoryCapacity)
	assert.Equal(t, 85, cfg.DownscaleQuality)
	assert.Equal(t, 50_000_000, cfg.DownscaleMaxPixels)
	assert.Equal(t, 512, cfg.BuilderConfig().Collage.Height)
	assert.NoError(t, cfg.RequireTelegram())

	_, isGemini := cfg.NewClient(nil, nil).(*generation.GeminiClient)
	assert.True(t, isGemini)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := Load()
		assert.EqualError(t, err, "OPENAI_API_KEY is required")
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("GENERATION_BACKEND", "dalle")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("unknown slot", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk")
		t.Setenv("REQUIRED_SLOTS", "hardware,laces")
		_, err := Load()
		assert.ErrorContains(t, err, "laces")
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk")
		t.Setenv("REQUEST_MODE", "grid")
		_, err := Load()
		assert.ErrorContains(t, err, "REQUEST_MODE")
	})
}
