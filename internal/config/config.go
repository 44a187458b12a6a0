package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration, loaded from configs/config.yml
// with defaults matching the dashboard's shipped behavior. Backend-served
// overrides are merged on top at startup (see Merge).
type Config struct {
	Port       string     `mapstructure:"port"`
	LogLevel   string     `mapstructure:"log_level"`
	Backend    Backend    `mapstructure:"backend"`
	Auth       Auth       `mapstructure:"auth"`
	Inactivity Inactivity `mapstructure:"inactivity"`
	Sync       Sync       `mapstructure:"sync"`
	Slideshow  Slideshow  `mapstructure:"slideshow"`
}

// Backend addresses the dashboard backend the pollers and slideshow talk to.
type Backend struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Auth configures display pairing.
type Auth struct {
	PairingCode   string `mapstructure:"pairing_code"`
	SigningKey    string `mapstructure:"signing_key"`
	TokenTTLHours int    `mapstructure:"token_ttl_hours"`
}

// Inactivity holds presence-tracking thresholds and brightness factors.
type Inactivity struct {
	DayTimeoutMinutes  int     `mapstructure:"day_timeout_minutes"`
	NightTimeoutSecs   int     `mapstructure:"night_timeout_seconds"`
	DayBrightness      float64 `mapstructure:"day_brightness"`
	NightBrightness    float64 `mapstructure:"night_brightness"`
	NightStartHour     int     `mapstructure:"night_start_hour"`
	NightEndHour       int     `mapstructure:"night_end_hour"`
	TickMillis         int     `mapstructure:"tick_ms"`
	MoveThrottleMillis int     `mapstructure:"movement_throttle_ms"`
}

// Sync holds per-feed polling cadence settings.
type Sync struct {
	FastIntervalSeconds int `mapstructure:"fast_interval_seconds"`
	IntervalMinutes     int `mapstructure:"interval_minutes"`
	WatchdogSeconds     int `mapstructure:"watchdog_seconds"`
}

// Slideshow holds background image pipeline timing.
type Slideshow struct {
	DwellSeconds        int `mapstructure:"dwell_seconds"`
	FadeMillis          int `mapstructure:"fade_ms"`
	FadeGapMillis       int `mapstructure:"fade_gap_ms"`
	PrefetchLeadSeconds int `mapstructure:"prefetch_lead_seconds"`
	MaxDuplicateRetries int `mapstructure:"max_duplicate_retries"`
}

// Remote is the subset of settings the backend may override via GET /config.
// Nil fields mean "keep local value".
type Remote struct {
	SyncIntervalMinutes *int     `json:"sync_interval_minutes,omitempty"`
	DayBrightness       *float64 `json:"day_brightness,omitempty"`
	NightBrightness     *float64 `json:"night_brightness,omitempty"`
	NightStartHour      *int     `json:"night_start_hour,omitempty"`
	NightEndHour        *int     `json:"night_end_hour,omitempty"`
	SlideshowDwellSecs  *int     `json:"slideshow_dwell_seconds,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("backend.base_url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout_seconds", 15)

	v.SetDefault("auth.token_ttl_hours", 720)

	v.SetDefault("inactivity.day_timeout_minutes", 60)
	v.SetDefault("inactivity.night_timeout_seconds", 5)
	v.SetDefault("inactivity.day_brightness", 0.6)
	v.SetDefault("inactivity.night_brightness", 0.2)
	v.SetDefault("inactivity.night_start_hour", 21)
	v.SetDefault("inactivity.night_end_hour", 6)
	v.SetDefault("inactivity.tick_ms", 500)
	v.SetDefault("inactivity.movement_throttle_ms", 1000)

	v.SetDefault("sync.fast_interval_seconds", 3)
	v.SetDefault("sync.interval_minutes", 3)
	v.SetDefault("sync.watchdog_seconds", 15)

	v.SetDefault("slideshow.dwell_seconds", 30)
	v.SetDefault("slideshow.fade_ms", 1000)
	v.SetDefault("slideshow.fade_gap_ms", 50)
	v.SetDefault("slideshow.prefetch_lead_seconds", 5)
	v.SetDefault("slideshow.max_duplicate_retries", 5)
}

// Load reads configs/config.yml and unmarshals it over the defaults.
// A missing config file is not an error: defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath("configs")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Inactivity.DayBrightness < 0 || c.Inactivity.DayBrightness > 1 {
		return fmt.Errorf("inactivity.day_brightness out of range [0,1]: %v", c.Inactivity.DayBrightness)
	}
	if c.Inactivity.NightBrightness < 0 || c.Inactivity.NightBrightness > 1 {
		return fmt.Errorf("inactivity.night_brightness out of range [0,1]: %v", c.Inactivity.NightBrightness)
	}
	if c.Inactivity.NightStartHour < 0 || c.Inactivity.NightStartHour > 23 ||
		c.Inactivity.NightEndHour < 0 || c.Inactivity.NightEndHour > 23 {
		return fmt.Errorf("night window hours out of range [0,23]: [%d, %d)",
			c.Inactivity.NightStartHour, c.Inactivity.NightEndHour)
	}
	if c.Sync.FastIntervalSeconds <= 0 || c.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("sync intervals must be positive")
	}
	if c.Slideshow.DwellSeconds <= 0 {
		return fmt.Errorf("slideshow.dwell_seconds must be positive")
	}
	if c.Slideshow.MaxDuplicateRetries < 1 {
		return fmt.Errorf("slideshow.max_duplicate_retries must be at least 1")
	}
	// A lead at or beyond the dwell would arm the prefetch timer with a
	// non-positive duration.
	if c.Slideshow.PrefetchLeadSeconds < 0 || c.Slideshow.PrefetchLeadSeconds >= c.Slideshow.DwellSeconds {
		return fmt.Errorf("slideshow.prefetch_lead_seconds must be in [0, dwell_seconds): %d",
			c.Slideshow.PrefetchLeadSeconds)
	}
	return nil
}

// Merge applies backend-served overrides on top of the local configuration.
func (c *Config) Merge(r Remote) {
	if r.SyncIntervalMinutes != nil && *r.SyncIntervalMinutes > 0 {
		c.Sync.IntervalMinutes = *r.SyncIntervalMinutes
	}
	if r.DayBrightness != nil && *r.DayBrightness >= 0 && *r.DayBrightness <= 1 {
		c.Inactivity.DayBrightness = *r.DayBrightness
	}
	if r.NightBrightness != nil && *r.NightBrightness >= 0 && *r.NightBrightness <= 1 {
		c.Inactivity.NightBrightness = *r.NightBrightness
	}
	if r.NightStartHour != nil {
		c.Inactivity.NightStartHour = *r.NightStartHour
	}
	if r.NightEndHour != nil {
		c.Inactivity.NightEndHour = *r.NightEndHour
	}
	if r.SlideshowDwellSecs != nil && *r.SlideshowDwellSecs > 0 {
		c.Slideshow.DwellSeconds = *r.SlideshowDwellSecs
	}
}

// Duration accessors: the yaml keeps plain numbers in the units the original
// dashboard used, components want time.Duration.

func (i Inactivity) DayTimeout() time.Duration {
	return time.Duration(i.DayTimeoutMinutes) * time.Minute
}

func (i Inactivity) NightTimeout() time.Duration {
	return time.Duration(i.NightTimeoutSecs) * time.Second
}

func (i Inactivity) Tick() time.Duration {
	return time.Duration(i.TickMillis) * time.Millisecond
}

func (i Inactivity) MovementThrottle() time.Duration {
	return time.Duration(i.MoveThrottleMillis) * time.Millisecond
}

func (s Sync) FastInterval() time.Duration {
	return time.Duration(s.FastIntervalSeconds) * time.Second
}

func (s Sync) SlowInterval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func (s Sync) WatchdogWindow() time.Duration {
	return time.Duration(s.WatchdogSeconds) * time.Second
}

func (s Slideshow) Dwell() time.Duration {
	return time.Duration(s.DwellSeconds) * time.Second
}

func (s Slideshow) Fade() time.Duration {
	return time.Duration(s.FadeMillis) * time.Millisecond
}

func (s Slideshow) FadeGap() time.Duration {
	return time.Duration(s.FadeGapMillis) * time.Millisecond
}

func (s Slideshow) PrefetchLead() time.Duration {
	return time.Duration(s.PrefetchLeadSeconds) * time.Second
}

func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func (a Auth) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}
