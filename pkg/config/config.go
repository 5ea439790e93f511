// Package config loads the governance kernel's tunables: friction-gate
// minimums, token validity windows, disk-retention thresholds, and the
// storage/metrics endpoints. Loading uses a two-layer precedence (an
// optional YAML file supplies defaults, environment variables override
// it), and Validate accumulates every problem found rather than failing
// on the first one.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable governing friction gating, token validity,
// resource limits, and the optional durable storage backend.
type Config struct {
	// Friction Gate
	MinDeliberationSeconds     int     `yaml:"min_deliberation_seconds"`
	MinCooldownSeconds         int     `yaml:"min_cooldown_seconds"`
	MinChallengeAnswerChars    int     `yaml:"min_challenge_answer_chars"`
	RubberStampWarnThreshold   int     `yaml:"rubber_stamp_warn_threshold_seconds"`
	RubberStampMinDecisions    int     `yaml:"rubber_stamp_min_decisions"`

	// Authorization Tokens
	TokenValidityDefault      time.Duration `yaml:"-"`
	TokenValiditySeconds      int           `yaml:"token_validity_default_seconds"`
	BatchTokenValidityDefault time.Duration `yaml:"-"`
	BatchTokenValiditySeconds int           `yaml:"batch_token_validity_default_seconds"`

	// Resource limits
	MaxArtifactsPerWorkflow int     `yaml:"max_artifacts_per_workflow"`
	MaxTotalDiskMB          int64   `yaml:"max_total_disk_mb"`
	DiskCriticalPercent     float64 `yaml:"disk_critical_percent"`
	DiskWarningPercent      float64 `yaml:"disk_warning_percent"`
	ArtifactTTLDays         int     `yaml:"artifact_ttl_days"`

	// Ambient
	RequestLoggingEnabled bool   `yaml:"request_logging_enabled"`
	LedgerDir             string `yaml:"ledger_dir"`
	ListenAddr            string `yaml:"listen_addr"`
	MetricsAddr           string `yaml:"metrics_addr"`

	// Optional durable registry backend (pkg/storage)
	DatabaseURL         string `yaml:"database_url"`
	DatabaseRequired    bool   `yaml:"database_required"`
	DBMaxOpenConns      int    `yaml:"db_max_open_conns"`
	DBMaxIdleConns      int    `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime   time.Duration `yaml:"-"`
}

// Load builds a Config from an optional YAML file (file-supplied defaults)
// overlaid with environment variables, which are always authoritative.
func Load(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	cfg.TokenValidityDefault = time.Duration(cfg.TokenValiditySeconds) * time.Second
	cfg.BatchTokenValidityDefault = time.Duration(cfg.BatchTokenValiditySeconds) * time.Second
	cfg.DBConnMaxLifetime = getEnvDuration("GOVERND_DB_CONN_MAX_LIFETIME", 5*time.Minute)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MinDeliberationSeconds:    30,
		MinCooldownSeconds:        15,
		MinChallengeAnswerChars:   10,
		RubberStampWarnThreshold:  10,
		RubberStampMinDecisions:   3,
		TokenValiditySeconds:      900,
		BatchTokenValiditySeconds: 3600,
		MaxArtifactsPerWorkflow:   50,
		MaxTotalDiskMB:            10240,
		DiskCriticalPercent:       90,
		DiskWarningPercent:        75,
		ArtifactTTLDays:           30,
		RequestLoggingEnabled:     true,
		LedgerDir:                 "./data/ledger",
		ListenAddr:                ":8080",
		MetricsAddr:               ":9090",
		DBMaxOpenConns:            10,
		DBMaxIdleConns:            5,
	}
}

func applyEnvOverrides(c *Config) {
	c.MinDeliberationSeconds = getEnvInt("GOVERND_MIN_DELIBERATION_SECONDS", c.MinDeliberationSeconds)
	c.MinCooldownSeconds = getEnvInt("GOVERND_MIN_COOLDOWN_SECONDS", c.MinCooldownSeconds)
	c.MinChallengeAnswerChars = getEnvInt("GOVERND_MIN_CHALLENGE_ANSWER_CHARS", c.MinChallengeAnswerChars)
	c.RubberStampWarnThreshold = getEnvInt("GOVERND_RUBBER_STAMP_WARN_THRESHOLD_SECONDS", c.RubberStampWarnThreshold)
	c.RubberStampMinDecisions = getEnvInt("GOVERND_RUBBER_STAMP_MIN_DECISIONS", c.RubberStampMinDecisions)
	c.TokenValiditySeconds = getEnvInt("GOVERND_TOKEN_VALIDITY_SECONDS", c.TokenValiditySeconds)
	c.BatchTokenValiditySeconds = getEnvInt("GOVERND_BATCH_TOKEN_VALIDITY_SECONDS", c.BatchTokenValiditySeconds)
	c.MaxArtifactsPerWorkflow = getEnvInt("GOVERND_MAX_ARTIFACTS_PER_WORKFLOW", c.MaxArtifactsPerWorkflow)
	c.MaxTotalDiskMB = getEnvInt64("GOVERND_MAX_TOTAL_DISK_MB", c.MaxTotalDiskMB)
	c.DiskCriticalPercent = getEnvFloat("GOVERND_DISK_CRITICAL_PERCENT", c.DiskCriticalPercent)
	c.DiskWarningPercent = getEnvFloat("GOVERND_DISK_WARNING_PERCENT", c.DiskWarningPercent)
	c.ArtifactTTLDays = getEnvInt("GOVERND_ARTIFACT_TTL_DAYS", c.ArtifactTTLDays)
	c.RequestLoggingEnabled = getEnvBool("GOVERND_REQUEST_LOGGING_ENABLED", c.RequestLoggingEnabled)
	c.LedgerDir = getEnv("GOVERND_LEDGER_DIR", c.LedgerDir)
	c.ListenAddr = getEnv("GOVERND_LISTEN_ADDR", c.ListenAddr)
	c.MetricsAddr = getEnv("GOVERND_METRICS_ADDR", c.MetricsAddr)
	c.DatabaseURL = getEnv("GOVERND_DATABASE_URL", c.DatabaseURL)
	c.DatabaseRequired = getEnvBool("GOVERND_DATABASE_REQUIRED", c.DatabaseRequired)
	c.DBMaxOpenConns = getEnvInt("GOVERND_DB_MAX_OPEN_CONNS", c.DBMaxOpenConns)
	c.DBMaxIdleConns = getEnvInt("GOVERND_DB_MAX_IDLE_CONNS", c.DBMaxIdleConns)
}

// Validate accumulates every configuration problem rather than stopping at
// the first, so an operator sees the whole list in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.MinDeliberationSeconds <= 0 {
		problems = append(problems, "min_deliberation_seconds must be positive")
	}
	if c.MinCooldownSeconds <= 0 {
		problems = append(problems, "min_cooldown_seconds must be positive")
	}
	if c.MinChallengeAnswerChars <= 0 {
		problems = append(problems, "min_challenge_answer_chars must be positive")
	}
	if c.TokenValiditySeconds <= 0 {
		problems = append(problems, "token_validity_default_seconds must be positive")
	}
	if c.DiskCriticalPercent <= 0 || c.DiskCriticalPercent > 100 {
		problems = append(problems, "disk_critical_percent must be in (0, 100]")
	}
	if c.DiskWarningPercent <= 0 || c.DiskWarningPercent >= c.DiskCriticalPercent {
		problems = append(problems, "disk_warning_percent must be positive and less than disk_critical_percent")
	}
	if c.LedgerDir == "" {
		problems = append(problems, "ledger_dir is required")
	}
	if c.DatabaseRequired && c.DatabaseURL == "" {
		problems = append(problems, "database_url is required when database_required is true")
	}
	if c.DatabaseURL != "" {
		lower := strings.ToLower(c.DatabaseURL)
		for _, weak := range []string{"password=password", "password=changeme", "password=admin"} {
			if strings.Contains(lower, weak) {
				problems = append(problems, "database_url appears to contain a default/weak credential")
				break
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
