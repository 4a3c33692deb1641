// Package config loads settings from the environment and an optional file.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	ArtifactDir string
	// PostgresDSN is optional; the crash index and stats are off without it.
	PostgresDSN           string
	LogLevel              string
	LogFormat             string
	SummarizeWorkers      int
	SummarizeTimeout      time.Duration
	ListWorkers           int
	APIKeys               map[string]struct{}
	RateLimitDetailPerMin int
	QueueMaxSize          int
	BatchMaxSize          int
	BatchMaxWait          time.Duration
	IndexInterval         time.Duration
}

const defaultPort = "8080"

// settings maps config keys to their env variables and defaults.
var settings = []struct {
	key string
	env string
	def any
}{
	{"port", "PORT", defaultPort},
	{"artifact_dir", "ARTIFACT_DIR", "."},
	{"postgres_dsn", "POSTGRES_DSN", ""},
	{"log_level", "LOG_LEVEL", "info"},
	{"log_format", "LOG_FORMAT", "text"},
	{"summarize_workers", "SUMMARIZE_WORKERS", runtime.NumCPU()},
	{"summarize_timeout_ms", "SUMMARIZE_TIMEOUT_MS", 30_000},
	{"list_workers", "LIST_WORKERS", 8},
	{"api_keys", "API_KEYS", ""},
	{"rate_limit_detail_per_min", "RATE_LIMIT_DETAIL_PER_MIN", 0},
	{"queue_max_size", "QUEUE_MAX_SIZE", 10_000},
	{"batch_max_size", "BATCH_MAX_SIZE", 500},
	{"batch_max_wait_ms", "BATCH_MAX_WAIT_MS", 50},
	{"index_interval_ms", "INDEX_INTERVAL_MS", 60_000},
}

// New returns a viper instance with every setting bound to its env variable.
func New() *viper.Viper {
	v := viper.New()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
		_ = v.BindEnv(s.key, s.env)
	}
	return v
}

// Load reads file (TOML, YAML or JSON by extension) when set, then resolves
// every setting. Environment variables win over the file.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	cfg := Config{
		Port:                  parsePort(v.GetString("port")),
		ArtifactDir:           v.GetString("artifact_dir"),
		PostgresDSN:           strings.TrimSpace(v.GetString("postgres_dsn")),
		LogLevel:              v.GetString("log_level"),
		LogFormat:             v.GetString("log_format"),
		SummarizeWorkers:      v.GetInt("summarize_workers"),
		SummarizeTimeout:      time.Duration(v.GetInt("summarize_timeout_ms")) * time.Millisecond,
		ListWorkers:           v.GetInt("list_workers"),
		APIKeys:               parseKeys(v.GetStringSlice("api_keys")),
		RateLimitDetailPerMin: v.GetInt("rate_limit_detail_per_min"),
		QueueMaxSize:          v.GetInt("queue_max_size"),
		BatchMaxSize:          v.GetInt("batch_max_size"),
		BatchMaxWait:          time.Duration(v.GetInt("batch_max_wait_ms")) * time.Millisecond,
		IndexInterval:         time.Duration(v.GetInt("index_interval_ms")) * time.Millisecond,
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "."
	}
	if cfg.SummarizeWorkers <= 0 {
		cfg.SummarizeWorkers = runtime.NumCPU()
	}
	if cfg.ListWorkers <= 0 {
		cfg.ListWorkers = 8
	}
	return cfg, nil
}

// parsePort falls back to the default for anything that is not a TCP port.
func parsePort(s string) string {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return defaultPort
	}
	return strconv.Itoa(n)
}

// parseKeys accepts a list, comma separated values, or both.
func parseKeys(vals []string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, csv := range vals {
		for _, k := range strings.Split(csv, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				m[k] = struct{}{}
			}
		}
	}
	return m
}
