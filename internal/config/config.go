// Package config loads service settings from a YAML file with environment
// overrides, and hot-reloads the planner rule file on change.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full service configuration.
type Settings struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Data      DataConfig      `mapstructure:"data"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServiceConfig struct {
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
}

type DataConfig struct {
	// Dir holds the CSV datasets.
	Dir string `mapstructure:"dir"`
	// EvaluationsDir receives evaluation and plan JSON records.
	EvaluationsDir string `mapstructure:"evaluations_dir"`
	// RulesFile optionally replaces the built-in planner rules.
	RulesFile string `mapstructure:"rules_file"`
}

type AgentsConfig struct {
	// BaseURL of the agent service; empty selects the stub invoker.
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type ExecutorConfig struct {
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`
	Parallelism  int           `mapstructure:"parallelism"`
}

type EvaluatorConfig struct {
	// CacheTTL bounds cached evaluation records; zero disables caching.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3"; empty disables run history.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	// Addr empty disables the evaluation cache.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TemporalConfig struct {
	// HostPort empty disables the workflow worker.
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// setDefaults registers every key; environment overrides only apply to
// keys viper already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 8080)
	v.SetDefault("service.metrics_port", 2112)
	v.SetDefault("service.log_level", "info")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.evaluations_dir", "./evaluations")
	v.SetDefault("data.rules_file", "")
	v.SetDefault("agents.base_url", "")
	v.SetDefault("agents.timeout", 60*time.Second)
	v.SetDefault("agents.requests_per_second", 5.0)
	v.SetDefault("agents.burst", 5)
	v.SetDefault("executor.agent_timeout", 120*time.Second)
	v.SetDefault("executor.parallelism", 1)
	v.SetDefault("evaluator.cache_ttl", 24*time.Hour)
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("temporal.host_port", "")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "insightgrid-orchestration")
}

// Load reads settings from path, or from INSIGHTGRID_CONFIG when path is
// empty. A missing file is not an error: defaults plus environment
// overrides still apply. Every key is overridable via INSIGHTGRID_*
// variables, e.g. INSIGHTGRID_DATABASE_DSN.
func Load(path string) (*Settings, error) {
	if path == "" {
		path = os.Getenv("INSIGHTGRID_CONFIG")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("INSIGHTGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings that cannot produce a working service.
func (s *Settings) Validate() error {
	if s.Service.HTTPPort <= 0 || s.Service.HTTPPort > 65535 {
		return fmt.Errorf("service.http_port out of range: %d", s.Service.HTTPPort)
	}
	if s.Service.MetricsPort <= 0 || s.Service.MetricsPort > 65535 {
		return fmt.Errorf("service.metrics_port out of range: %d", s.Service.MetricsPort)
	}
	if s.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if s.Data.EvaluationsDir == "" {
		return fmt.Errorf("data.evaluations_dir is required")
	}
	if s.Executor.Parallelism < 0 {
		return fmt.Errorf("executor.parallelism cannot be negative: %d", s.Executor.Parallelism)
	}
	if s.Agents.RequestsPerSecond < 0 {
		return fmt.Errorf("agents.requests_per_second cannot be negative")
	}
	if s.Database.Driver != "" && s.Database.Driver != "postgres" && s.Database.Driver != "sqlite3" {
		return fmt.Errorf("database.driver must be postgres or sqlite3, got %q", s.Database.Driver)
	}
	return nil
}
