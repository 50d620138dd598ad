package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"shoe-concept-studio/internal/collage"
	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/history"
	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/studio"
)

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

type Config struct {
	Backend string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIImageModel string
	ImageSize        string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiAPIVersion string
	GeminiImageModel string

	RequestMode       request.Mode
	RequiredSlots     []request.Slot
	MaxVariations     int
	DefaultVariations int
	HistoryCapacity   int

	DownscaleMaxSide   int
	DownscaleQuality   int
	DownscaleMaxPixels int
	CollageSize        int
	CollageTitle       string

	JournalPath   string
	WebAddr       string
	TelegramToken string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		Backend:            strings.ToLower(getEnv("GENERATION_BACKEND", BackendOpenAI)),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", generation.DefaultOpenAIBaseURL),
		OpenAIImageModel:   getEnv("OPENAI_IMAGE_MODEL", generation.DefaultOpenAIModel),
		ImageSize:          getEnv("IMAGE_SIZE", generation.DefaultImageSize),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", generation.DefaultGeminiBaseURL),
		GeminiAPIVersion:   getEnv("GEMINI_API_VERSION", generation.DefaultGeminiAPIVersion),
		GeminiImageModel:   getEnv("GEMINI_IMAGE_MODEL", generation.DefaultGeminiModel),
		MaxVariations:      getEnvInt("MAX_VARIATIONS", request.DefaultMaxVariations),
		DefaultVariations:  getEnvInt("DEFAULT_VARIATIONS", studio.DefaultVariations),
		HistoryCapacity:    getEnvInt("HISTORY_CAPACITY", history.DefaultCapacity),
		DownscaleMaxSide:   getEnvInt("DOWNSCALE_MAX_SIDE", imaging.DefaultMaxSide),
		DownscaleQuality:   getEnvInt("DOWNSCALE_QUALITY", imaging.DefaultQuality),
		DownscaleMaxPixels: getEnvInt("DOWNSCALE_MAX_PIXELS", imaging.DefaultMaxPixels),
		CollageSize:        getEnvInt("COLLAGE_SIZE", collage.DefaultBoard().Width),
		CollageTitle:       getEnv("COLLAGE_TITLE", collage.DefaultBoard().Title),
		JournalPath:        getEnv("JOURNAL_PATH", ""),
		WebAddr:            getEnv("WEB_ADDR", ":8080"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Debug:              getEnvBool("DEBUG", false),
		PreferIPv4:         getEnvBool("PREFER_IPV4", true),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
	}

	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	mode, ok := request.ParseMode(getEnv("REQUEST_MODE", string(request.ModeMulti)))
	if !ok {
		return Config{}, fmt.Errorf("REQUEST_MODE must be %q or %q", request.ModeMulti, request.ModeCollage)
	}
	cfg.RequestMode = mode

	required, err := request.ParseSlots(getEnv("REQUIRED_SLOTS", "hardware,material"))
	if err != nil {
		return Config{}, fmt.Errorf("REQUIRED_SLOTS: %w", err)
	}
	cfg.RequiredSlots = required

	switch cfg.Backend {
	case BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return Config{}, errors.New("OPENAI_API_KEY is required")
		}
	case BackendGemini:
		if cfg.GeminiAPIKey == "" {
			return Config{}, errors.New("GEMINI_API_KEY is required")
		}
	default:
		return Config{}, fmt.Errorf("GENERATION_BACKEND must be %q or %q", BackendOpenAI, BackendGemini)
	}

	if cfg.MaxVariations < 1 {
		cfg.MaxVariations = 1
	}
	if cfg.DefaultVariations < 1 {
		cfg.DefaultVariations = 1
	}
	if cfg.DefaultVariations > cfg.MaxVariations {
		cfg.DefaultVariations = cfg.MaxVariations
	}
	if cfg.HistoryCapacity < 1 {
		cfg.HistoryCapacity = 1
	}
	if cfg.DownscaleMaxSide < 1 {
		cfg.DownscaleMaxSide = imaging.DefaultMaxSide
	}
	if cfg.DownscaleQuality < 1 || cfg.DownscaleQuality > 100 {
		cfg.DownscaleQuality = imaging.DefaultQuality
	}
	if cfg.DownscaleMaxPixels < 1 {
		cfg.DownscaleMaxPixels = imaging.DefaultMaxPixels
	}
	if cfg.CollageSize < 256 {
		cfg.CollageSize = collage.DefaultBoard().Width
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}

	return cfg, nil
}

// RequireTelegram is checked by the bot binary only.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func (c Config) BuilderConfig() request.Config {
	board := collage.DefaultBoard()
	board.Width = c.CollageSize
	board.Height = c.CollageSize
	board.Title = c.CollageTitle

	return request.Config{
		Required:      append([]request.Slot(nil), c.RequiredSlots...),
		Mode:          c.RequestMode,
		MaxVariations: c.MaxVariations,
		DefaultPrompt: request.DefaultPrompt,
		Collage:       board,
	}
}

func (c Config) DownscaleOptions() imaging.Options {
	return imaging.Options{MaxSide: c.DownscaleMaxSide, Quality: c.DownscaleQuality, MaxPixels: c.DownscaleMaxPixels}
}

// NewClient returns the backend selected by GENERATION_BACKEND.
func (c Config) NewClient(httpClient *http.Client, logger *slog.Logger) generation.Client {
	if c.Backend == BackendGemini {
		return generation.NewGemini(generation.GeminiOptions{
			APIKey:     c.GeminiAPIKey,
			BaseURL:    c.GeminiBaseURL,
			APIVersion: c.GeminiAPIVersion,
			Model:      c.GeminiImageModel,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}
	return generation.NewOpenAI(generation.OpenAIOptions{
		APIKey:     c.OpenAIAPIKey,
		BaseURL:    c.OpenAIBaseURL,
		Model:      c.OpenAIImageModel,
		Size:       c.ImageSize,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}

// NewLogger writes JSON to stdout at LOG_LEVEL.
func (c Config) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
