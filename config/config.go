// Package config loads engine configuration with multi-source
// priority: environment variables (CANVAS_ prefix) override the config
// file, which overrides built-in defaults. Validation is fail-fast;
// a Config that loads is safe to use.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gogpu/canvas/compositor"
	"github.com/gogpu/canvas/imagesync"
)

// Validation errors.
var (
	ErrInvalidQuality       = errors.New("config: invalid quality tier")
	ErrInvalidFilter        = errors.New("config: invalid filter mode")
	ErrInvalidCacheSize     = errors.New("config: invalid cache size")
	ErrInvalidTextureDim    = errors.New("config: invalid max texture dimension")
	ErrInvalidQueueCapacity = errors.New("config: invalid queue capacity")
	ErrInvalidDebounce      = errors.New("config: invalid debounce window")
	ErrInvalidHashBucket    = errors.New("config: invalid hash bucket")
	ErrInvalidHistoryDepth  = errors.New("config: invalid history depth")
)

// RenderConfig configures the compositor.
type RenderConfig struct {
	Quality       string `mapstructure:"quality"` // draft, standard, high
	UseGPU        bool   `mapstructure:"use_gpu"`
	CacheEnabled  bool   `mapstructure:"cache_enabled"`
	CacheSizeMB   int    `mapstructure:"cache_size_mb"`
	Antialias     bool   `mapstructure:"antialias"`
	Filter        string `mapstructure:"filter"` // bilinear, nearest
	MaxTextureDim int    `mapstructure:"max_texture_dim"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	QueueCapacity int           `mapstructure:"queue_capacity"`
	Debounce      time.Duration `mapstructure:"debounce"`
	HashBucket    time.Duration `mapstructure:"hash_bucket"`
	TaskInterval  time.Duration `mapstructure:"task_interval"`
	LayerOffset   float64       `mapstructure:"layer_offset"`
}

// HistoryConfig bounds the undo stack.
type HistoryConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// Config is the full engine configuration.
type Config struct {
	Render  RenderConfig  `mapstructure:"render"`
	Sync    SyncConfig    `mapstructure:"sync"`
	History HistoryConfig `mapstructure:"history"`
}

// Load reads configuration from the given file path, or from
// canvas.yaml in the working directory when path is empty. A missing
// file is not an error; defaults and CANVAS_ environment variables
// still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("canvas")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// An absent file in search mode is fine; an explicit path surfaces
	// its own read error.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("render.quality", "standard")
	v.SetDefault("render.use_gpu", true)
	v.SetDefault("render.cache_enabled", true)
	v.SetDefault("render.cache_size_mb", compositor.DefaultCacheSizeMB)
	v.SetDefault("render.antialias", true)
	v.SetDefault("render.filter", "bilinear")
	v.SetDefault("render.max_texture_dim", compositor.DefaultMaxTextureDim)

	v.SetDefault("sync.queue_capacity", imagesync.DefaultQueueCapacity)
	v.SetDefault("sync.debounce", imagesync.DefaultDebounceWindow)
	v.SetDefault("sync.hash_bucket", imagesync.DefaultHashBucket)
	v.SetDefault("sync.task_interval", imagesync.DefaultTaskInterval)
	v.SetDefault("sync.layer_offset", float64(imagesync.DefaultLayerOffset))

	v.SetDefault("history.max_depth", 100)
}

// Validate checks every field range.
func (c *Config) Validate() error {
	if _, err := parseQuality(c.Render.Quality); err != nil {
		return err
	}
	if _, err := parseFilter(c.Render.Filter); err != nil {
		return err
	}
	if c.Render.CacheSizeMB <= 0 {
		return fmt.Errorf("%w: %d MB", ErrInvalidCacheSize, c.Render.CacheSizeMB)
	}
	if c.Render.MaxTextureDim < 64 {
		return fmt.Errorf("%w: %d", ErrInvalidTextureDim, c.Render.MaxTextureDim)
	}
	if c.Sync.QueueCapacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueCapacity, c.Sync.QueueCapacity)
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, c.Sync.Debounce)
	}
	if c.Sync.HashBucket <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidHashBucket, c.Sync.HashBucket)
	}
	if c.History.MaxDepth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHistoryDepth, c.History.MaxDepth)
	}
	return nil
}

// Settings converts the render section to compositor settings.
func (c *Config) Settings() compositor.RenderSettings {
	quality, _ := parseQuality(c.Render.Quality)
	filter, _ := parseFilter(c.Render.Filter)
	return compositor.RenderSettings{
		Quality:       quality,
		UseGPU:        c.Render.UseGPU,
		CacheEnabled:  c.Render.CacheEnabled,
		CacheSizeMB:   c.Render.CacheSizeMB,
		Antialias:     c.Render.Antialias,
		Filter:        filter,
		MaxTextureDim: c.Render.MaxTextureDim,
	}
}

// EngineOptions converts the sync section to engine options.
func (c *Config) EngineOptions() []imagesync.Option {
	return []imagesync.Option{
		imagesync.WithQueueCapacity(c.Sync.QueueCapacity),
		imagesync.WithDebounceWindow(c.Sync.Debounce),
		imagesync.WithHashBucket(c.Sync.HashBucket),
		imagesync.WithTaskInterval(c.Sync.TaskInterval),
		imagesync.WithLayerOffset(c.Sync.LayerOffset),
	}
}

func parseQuality(s string) (compositor.QualityTier, error) {
	switch strings.ToLower(s) {
	case "draft":
		return compositor.QualityDraft, nil
	case "standard":
		return compositor.QualityStandard, nil
	case "high":
		return compositor.QualityHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
	}
}

func parseFilter(s string) (compositor.FilterMode, error) {
	switch strings.ToLower(s) {
	case "bilinear", "":
		return compositor.FilterBilinear, nil
	case "nearest":
		return compositor.FilterNearest, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
}
