package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jimdaga/capacity-planner/internal/adjustment"
	"github.com/jimdaga/capacity-planner/internal/patterns"
	"github.com/jimdaga/capacity-planner/internal/progress"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
	SessionSecret      string
	Env                string
	Port               string

	DatabaseURL   string
	RedisURL      string
	EncryptionKey string
	LogLevel      string
	LogFormat     string

	N8NWebhookURL    string
	N8NWebhookSecret string
	N8NStubMode      bool

	SweepSchedule     string // cron spec for plans:sweep
	AdjustSchedule    string // cron spec for the nightly capacity:adjust fan-out
	SchedulerTimezone string
	ConsumerName      string
	EmbeddedWorker    bool // run the worker, scheduler and stream consumer inside server mode

	PolicyFile string
	Policy     Policy
}

// Policy holds the tunable thresholds of the planning core. Zero values fall
// back to each component's defaults.
type Policy struct {
	Progress struct {
		AheadMinutes  int `yaml:"ahead_minutes"`
		AtRiskMinutes int `yaml:"at_risk_minutes"`
	} `yaml:"progress"`

	Reschedule struct {
		BehindMinutes    int           `yaml:"behind_minutes"`
		SlotMinutes      int           `yaml:"slot_minutes"`
		WorkdayEndHour   int           `yaml:"workday_end_hour"`
		WorkdayEndMinute int           `yaml:"workday_end_minute"`
		AITimeout        time.Duration `yaml:"ai_timeout"`
	} `yaml:"reschedule"`

	Momentum struct {
		WindowDays int `yaml:"window_days"`
		LogSize    int `yaml:"log_size"`
	} `yaml:"momentum"`

	Adjustment struct {
		WindowDays     int     `yaml:"window_days"`
		MinSamples     int     `yaml:"min_samples"`
		Damping        float64 `yaml:"damping"`
		MaxBias        float64 `yaml:"max_bias"`
		CalibratedBand float64 `yaml:"calibrated_band"`
	} `yaml:"adjustment"`

	Patterns struct {
		Window            int `yaml:"window"`
		WeekdayWindow     int `yaml:"weekday_window"`
		RecoveryStreakMin int `yaml:"recovery_streak_min"`
	} `yaml:"patterns"`
}

// Load reads configuration from environment variables, after loading an
// optional .env file, and decodes the policy file when POLICY_FILE is set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg := &Config{
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleCallbackURL:  os.Getenv("GOOGLE_CALLBACK_URL"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		Env:                getEnvWithDefault("ENV", "development"),
		Port:               getEnvWithDefault("PORT", "8080"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      getEnvWithDefault("REDIS_URL", "redis://localhost:6379/0"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		LogLevel:      getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvWithDefault("LOG_FORMAT", "text"),

		N8NWebhookURL:    os.Getenv("N8N_WEBHOOK_URL"),
		N8NWebhookSecret: os.Getenv("N8N_WEBHOOK_SECRET"),
		N8NStubMode:      getEnvBool("N8N_STUB_MODE", true),

		SweepSchedule:     getEnvWithDefault("SWEEP_SCHEDULE", "*/15 * * * *"),
		AdjustSchedule:    getEnvWithDefault("ADJUST_SCHEDULE", "0 3 * * *"),
		SchedulerTimezone: getEnvWithDefault("SCHEDULER_TIMEZONE", "UTC"),
		ConsumerName:      getEnvWithDefault("CONSUMER_NAME", hostnameOr("planner-1")),
		EmbeddedWorker:    getEnvBool("EMBEDDED_WORKER", true),

		PolicyFile: os.Getenv("POLICY_FILE"),
	}

	// Warn if using default session secret (insecure for production)
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "dev-secret-change-in-production-use-openssl-rand-hex-32"
		slog.Warn("Using default SESSION_SECRET. Generate a secure secret with: openssl rand -hex 32")
	}

	if cfg.PolicyFile != "" {
		policy, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		cfg.Policy = *policy
	}

	return cfg, nil
}

// LoadPolicy decodes a policy file. Unknown keys are rejected.
func LoadPolicy(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	var p Policy
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode policy file %s: %w", path, err)
	}
	if p.Reschedule.WorkdayEndHour < 0 || p.Reschedule.WorkdayEndHour > 23 ||
		p.Reschedule.WorkdayEndMinute < 0 || p.Reschedule.WorkdayEndMinute > 59 {
		return nil, fmt.Errorf("policy file %s: workday end must be a time of day", path)
	}
	return &p, nil
}

// ProgressThresholds returns the status thresholds for snapshots.
func (p Policy) ProgressThresholds() progress.Thresholds {
	return progress.Thresholds{
		AheadMinutes:  p.Progress.AheadMinutes,
		AtRiskMinutes: p.Progress.AtRiskMinutes,
	}
}

// ReschedulePolicy returns the engine policy with defaults for unset values.
func (p Policy) ReschedulePolicy() reschedule.Policy {
	out := reschedule.DefaultPolicy()
	r := p.Reschedule
	if r.BehindMinutes > 0 {
		out.BehindMinutes = r.BehindMinutes
	}
	if r.SlotMinutes > 0 {
		out.SlotMinutes = r.SlotMinutes
	}
	if r.WorkdayEndHour > 0 {
		out.WorkdayEndHour = r.WorkdayEndHour
		out.WorkdayEndMin = r.WorkdayEndMinute
	}
	if r.AITimeout > 0 {
		out.AITimeout = r.AITimeout
	}
	out.Progress = p.ProgressThresholds()
	return out
}

// AdjustmentSettings returns the learning loop settings.
func (p Policy) AdjustmentSettings() adjustment.Settings {
	a := p.Adjustment
	return adjustment.Settings{
		WindowDays:     a.WindowDays,
		MinSamples:     a.MinSamples,
		Damping:        a.Damping,
		MaxBias:        a.MaxBias,
		CalibratedBand: a.CalibratedBand,
	}
}

// Detector returns a pattern detector tuned by the policy.
func (p Policy) Detector() *patterns.Detector {
	return &patterns.Detector{
		Window:            p.Patterns.Window,
		WeekdayWindow:     p.Patterns.WeekdayWindow,
		RecoveryStreakMin: p.Patterns.RecoveryStreakMin,
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Ignoring invalid boolean", "key", key, "value", value)
		return defaultValue
	}
	return b
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
