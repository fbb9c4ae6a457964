package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the moderator and workers.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Classifier Classifier `koanf:"classifier"`
	Moderation Moderation `koanf:"moderation"`
	Cache      Cache      `koanf:"cache"`
	Queue      Queue      `koanf:"queue"`
}

// WorkerConfig contains worker specific configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay"`
	// Maximum entries claimed per consume call.
	BatchSize int `koanf:"batch_size"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Classifier contains configuration for the external verdict classifier.
type Classifier struct {
	// Base URL for the API.
	BaseURL string `koanf:"base_url"`
	// API key for authentication.
	APIKey string `koanf:"api_key"`
	// Model used for spam classification.
	Model string `koanf:"model"`
	// Model used by the embedding worker.
	EmbeddingModel string `koanf:"embedding_model"`
	// Maximum concurrent classifier calls.
	MaxConcurrent int64 `koanf:"max_concurrent"`
	// Request timeout in milliseconds. On timeout the verdict is Unknown.
	RequestTimeout int `koanf:"request_timeout"`
}

// Moderation contains the reputation engine tuning knobs.
type Moderation struct {
	// Default confidence threshold for scopes without a configured one.
	DefaultThreshold float64 `koanf:"default_threshold"`
	// Reputation points removed per escalating violation.
	EscalationPenalty int `koanf:"escalation_penalty"`
	// Reputation points restored per elapsed clean interval.
	RecoveryPoints int `koanf:"recovery_points"`
	// Clean interval in minutes before Warned/Probation decays to Normal.
	DecayInterval int `koanf:"decay_interval"`
	// Mute duration in minutes applied on the Warned -> Probation transition.
	MuteDuration int `koanf:"mute_duration"`
	// Per-actor lock lease in milliseconds.
	LockTimeout int `koanf:"lock_timeout"`
	// Delay in milliseconds before the single lock retry.
	LockRetryDelay int `koanf:"lock_retry_delay"`
}

// Cache contains TTLs (seconds) and window limits for the cache layer.
type Cache struct {
	// TTL for scope config snapshots.
	ScopeConfigTTL int `koanf:"scope_config_ttl"`
	// TTL for scope recent-activity windows.
	ScopeWindowTTL int `koanf:"scope_window_ttl"`
	// TTL for actor recent-activity windows.
	ActorWindowTTL int `koanf:"actor_window_ttl"`
	// TTL for actor cross-scope activity windows.
	GlobalWindowTTL int `koanf:"global_window_ttl"`
	// TTL for cached reputation snapshots.
	ReputationTTL int `koanf:"reputation_ttl"`
	// Maximum events retained per scope window.
	ScopeWindowLimit int `koanf:"scope_window_limit"`
	// Maximum events retained per actor window.
	ActorWindowLimit int `koanf:"actor_window_limit"`
}

// Queue contains work queue tuning.
type Queue struct {
	// Idle time in seconds before a pending entry is reclaimed.
	ReclaimIdle int `koanf:"reclaim_idle"`
	// Interval in seconds between reclaim scans.
	ReclaimInterval int `koanf:"reclaim_interval"`
	// Deliveries before an entry is moved to the dead-letter topic.
	MaxAttempts int `koanf:"max_attempts"`
	// Maximum milliseconds a consume call blocks waiting for entries.
	BlockTimeout int `koanf:"block_timeout"`
	// Approximate maximum stream length before trimming.
	MaxLen int `koanf:"max_len"`
}

// LoadConfig loads the configuration from the config files.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".warden",
		homeDir + "/.warden/config",
		"/etc/warden/config",
		"/app/config",
		"config",
		".",
	}

	// Load all config files
	var usedConfigPath string

	configFiles := []string{"common", "worker"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf("%w: %s.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, name, current, expected)
	}

	return nil
}
