// Package config loads and validates judge-host configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the judge service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Timing  TimingConfig  `mapstructure:"timing"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Lang    LangConfig    `mapstructure:"lang"`
}

// ServerConfig holds HTTP dispatcher configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// BrokerConfig holds broker (Redis) connection configuration.
type BrokerConfig struct {
	Addr               string        `mapstructure:"addr"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	SocketTimeout      time.Duration `mapstructure:"socket_timeout"`
	BlockPopTimeout    time.Duration `mapstructure:"block_pop_timeout"`
	WorkerHeartbeatTTL time.Duration `mapstructure:"worker_heartbeat_ttl"`
}

// TimingConfig holds the timeout/deadline onion described in spec.md §5.
//
// MaxProcessTime and MaxQueueWaitTime are derived from the configurable
// fields, not independently settable, to keep the three-layer timeout
// relationship consistent. LongBatchMaxQueueWaitTime is settable and
// defaults to 1h + MaxProcessTime when left at zero.
type TimingConfig struct {
	MaxExecutionTime          time.Duration `mapstructure:"max_execution_time"`
	MaxQueueWorkLifeTime      time.Duration `mapstructure:"max_queue_work_life_time"`
	LongBatchMaxQueueWaitTime time.Duration `mapstructure:"long_batch_max_queue_wait_time"`

	MaxProcessTime   time.Duration `mapstructure:"-"`
	MaxQueueWaitTime time.Duration `mapstructure:"-"`
}

// SandboxConfig holds per-run resource limits.
type SandboxConfig struct {
	MaxMemoryMB          int `mapstructure:"max_memory_mb"`
	MaxStdoutErrorLength int `mapstructure:"max_stdout_error_length"`
}

// BatchConfig holds batch-size caps for the two batch deadlines.
type BatchConfig struct {
	MaxBatchChunkSize     int `mapstructure:"max_batch_chunk_size"`
	MaxLongBatchChunkSize int `mapstructure:"max_long_batch_chunk_size"`
}

// WorkerConfig holds worker-pool sizing.
type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// LangConfig holds compiler/interpreter paths per language.
type LangConfig struct {
	PythonPath      string `mapstructure:"python_path"`
	CppCompilerPath string `mapstructure:"cpp_compiler_path"`
	CppCompileFlags string `mapstructure:"cpp_compile_flags"`
}

// Load reads configuration from file and environment variables, then
// validates the timing inequalities spec.md §5 requires.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("broker.addr", "localhost:6379")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.db", 0)
	v.SetDefault("broker.key_prefix", "judge")
	v.SetDefault("broker.socket_timeout", 60*time.Second)
	v.SetDefault("broker.block_pop_timeout", 30*time.Second)
	v.SetDefault("broker.worker_heartbeat_ttl", 0)

	v.SetDefault("timing.max_execution_time", 10*time.Second)
	v.SetDefault("timing.max_queue_work_life_time", 4*time.Second)
	v.SetDefault("timing.long_batch_max_queue_wait_time", 0)

	v.SetDefault("sandbox.max_memory_mb", 256)
	v.SetDefault("sandbox.max_stdout_error_length", 1000)

	v.SetDefault("batch.max_batch_chunk_size", 2)
	v.SetDefault("batch.max_long_batch_chunk_size", 100)

	v.SetDefault("worker.max_workers", 0)

	v.SetDefault("lang.python_path", "python3")
	v.SetDefault("lang.cpp_compiler_path", "g++")
	v.SetDefault("lang.cpp_compile_flags", "-O2 -std=c++17")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/judge-host")
	}

	v.SetEnvPrefix("JUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDerivedDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDerivedDefaults fills in fields that default to an expression of
// other fields, mirroring app/config.py's timeline derivation.
func applyDerivedDefaults(cfg *Config) {
	t := &cfg.Timing

	t.MaxProcessTime = t.MaxExecutionTime + 5*time.Second

	if t.LongBatchMaxQueueWaitTime == 0 {
		t.LongBatchMaxQueueWaitTime = time.Hour + t.MaxProcessTime
	}

	t.MaxQueueWaitTime = t.MaxProcessTime + t.MaxQueueWorkLifeTime

	if cfg.Broker.WorkerHeartbeatTTL == 0 {
		cfg.Broker.WorkerHeartbeatTTL = 2*time.Minute + cfg.Broker.BlockPopTimeout + t.MaxProcessTime
	}
}

// Validate enforces the timing inequalities spec.md §5 requires,
// rejecting configurations that violate them rather than silently
// clamping.
func (c *Config) Validate() error {
	t := c.Timing

	if t.LongBatchMaxQueueWaitTime < time.Hour+t.MaxProcessTime {
		return fmt.Errorf("config: long_batch_max_queue_wait_time must be >= 1h + max_process_time (%s), got %s",
			t.MaxProcessTime, t.LongBatchMaxQueueWaitTime)
	}

	minHeartbeat := c.Broker.BlockPopTimeout + t.MaxProcessTime
	if c.Broker.WorkerHeartbeatTTL < minHeartbeat {
		return fmt.Errorf("config: broker.worker_heartbeat_ttl must be >= block_pop_timeout + max_process_time (%s), got %s",
			minHeartbeat, c.Broker.WorkerHeartbeatTTL)
	}

	if c.Broker.SocketTimeout < 10*time.Second {
		return fmt.Errorf("config: broker.socket_timeout must be at least 10s, got %s", c.Broker.SocketTimeout)
	}

	if c.Batch.MaxBatchChunkSize <= 0 || c.Batch.MaxLongBatchChunkSize <= 0 {
		return fmt.Errorf("config: batch chunk sizes must be positive")
	}

	return nil
}
