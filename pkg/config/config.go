// Package config loads the environment-driven configuration shared by the
// jobsvc and workflowsvc binaries, with an optional YAML file providing
// override values for local development.
package config

import (
	"os"
	"strconv"
	"time"

	aerr "github.com/aadk/jobflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls how a gRPC-hosting binary listens for connections.
type ServerConfig struct {
	JobAddr      string `yaml:"job_addr" json:"job_addr"`
	WorkflowAddr string `yaml:"workflow_addr" json:"workflow_addr"`
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr"`
}

// HistoryConfig controls the job registry's retention policy.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
	MaxCompleted  int `yaml:"max_completed" json:"max_completed"`
}

// RunStreamConfig controls the Run Aggregator's reorder buffer.
type RunStreamConfig struct {
	BufferMax   int `yaml:"buffer_max" json:"buffer_max"`
	MaxDelayMs  int `yaml:"max_delay_ms" json:"max_delay_ms"`
	DiscoveryMs int `yaml:"discovery_ms" json:"discovery_ms"`
	FlushMs     int `yaml:"flush_ms" json:"flush_ms"`
}

// MaxDelay returns the reorder buffer's release delay as a time.Duration.
func (r RunStreamConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// DiscoveryInterval returns the member-job rescan cadence.
func (r RunStreamConfig) DiscoveryInterval() time.Duration {
	return time.Duration(r.DiscoveryMs) * time.Millisecond
}

// FlushInterval returns the buffer-flush cadence.
func (r RunStreamConfig) FlushInterval() time.Duration {
	return time.Duration(r.FlushMs) * time.Millisecond
}

// LoggingConfig controls the process-wide default logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// StoreConfig controls the persistent store's on-disk location.
type StoreConfig struct {
	Path          string        `yaml:"path" json:"path"`
	CoalesceDelay time.Duration `yaml:"-" json:"-"`
}

// Config is the full configuration consumed by both binaries. Neither
// binary requires every section; jobsvc ignores Workflow-only fields and
// vice versa.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	History   HistoryConfig   `yaml:"history" json:"history"`
	RunStream RunStreamConfig `yaml:"run_stream" json:"run_stream"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Store     StoreConfig     `yaml:"store" json:"store"`
}

// Default returns the baseline configuration used when no environment
// variable or override file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			JobAddr:      "127.0.0.1:7801",
			WorkflowAddr: "127.0.0.1:7802",
			MetricsAddr:  "127.0.0.1:7803",
		},
		History: HistoryConfig{
			RetentionDays: 0,
			MaxCompleted:  0,
		},
		RunStream: RunStreamConfig{
			BufferMax:   512,
			MaxDelayMs:  1500,
			DiscoveryMs: 750,
			FlushMs:     200,
		},
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			Path:          "./jobsvc-state.json",
			CoalesceDelay: 50 * time.Millisecond,
		},
	}
}

// Load builds a Config by starting from Default, applying an optional YAML
// override file (path taken from AADK_CONFIG_FILE, if set), and finally
// applying the AADK_* environment variables, which always take precedence
// over the file.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("AADK_CONFIG_FILE"); path != "" {
		if err := applyYAMLFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return aerr.NewConfigError("file", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return aerr.NewConfigError("file", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AADK_JOB_ADDR"); v != "" {
		cfg.Server.JobAddr = v
	}
	if v := os.Getenv("AADK_WORKFLOW_ADDR"); v != "" {
		cfg.Server.WorkflowAddr = v
	}
	if v, ok := envInt("AADK_JOB_HISTORY_RETENTION_DAYS"); ok {
		cfg.History.RetentionDays = v
	}
	if v, ok := envInt("AADK_JOB_HISTORY_MAX"); ok {
		cfg.History.MaxCompleted = v
	}
	if v, ok := envInt("AADK_RUN_STREAM_BUFFER_MAX"); ok {
		cfg.RunStream.BufferMax = v
	}
	if v, ok := envInt("AADK_RUN_STREAM_MAX_DELAY_MS"); ok {
		cfg.RunStream.MaxDelayMs = v
	}
	if v, ok := envInt("AADK_RUN_STREAM_DISCOVERY_MS"); ok {
		cfg.RunStream.DiscoveryMs = v
	}
	if v, ok := envInt("AADK_RUN_STREAM_FLUSH_MS"); ok {
		cfg.RunStream.FlushMs = v
	}
	if v := os.Getenv("AADK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AADK_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
