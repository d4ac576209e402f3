// Package config loads the settings of the symbolic product CLI: kernel
// tuning, input generation, report storage and the run database.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SPGEMM_SYMBOLIC_STRATEGY.
const EnvPrefix = "SPGEMM"

// Config holds all configuration for the application.
type Config struct {
	Symbolic SymbolicConfig `mapstructure:"symbolic"`
	Matrix   MatrixConfig   `mapstructure:"matrix"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Report   ReportConfig   `mapstructure:"report"`
	Log      LogConfig      `mapstructure:"log"`
}

// SymbolicConfig tunes the estimator and the counting/materialization kernels.
type SymbolicConfig struct {
	Strategy     string `mapstructure:"strategy"`   // auto, dense, cuckoo, tracked, tracked-avalanche, chained, two-level
	ExecSpace    string `mapstructure:"exec_space"` // serial, threads or device
	Preference   string `mapstructure:"preference"` // none, speed or memory
	Concurrency  int    `mapstructure:"concurrency"`
	TeamSize     int    `mapstructure:"team_size"`
	VectorSize   int    `mapstructure:"vector_size"`
	ChunkRows    int    `mapstructure:"chunk_rows"`
	SharedMemory int    `mapstructure:"shared_memory"` // bytes of fast scratch per team
	DeviceMemory int64  `mapstructure:"device_memory"` // bytes available for the arena on a device
	RetryBudget  int    `mapstructure:"retry_budget"`
	Materialize  bool   `mapstructure:"materialize"`
	Intersection bool   `mapstructure:"intersection"` // also record the smallest referenced row of B per row
	Verify       bool   `mapstructure:"verify"`
}

// MatrixConfig describes the random operands the CLI generates.
type MatrixConfig struct {
	Rows   int   `mapstructure:"rows"`
	Inner  int   `mapstructure:"inner"`
	Cols   int   `mapstructure:"cols"`
	PerRow int   `mapstructure:"per_row"`
	Seed   int64 `mapstructure:"seed"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // postgres, mysql or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Path     string `mapstructure:"path"` // sqlite file
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// ReportConfig controls the run report written after each run.
type ReportConfig struct {
	Dir         string `mapstructure:"dir"`
	Compression string `mapstructure:"compression"` // none, gzip or zstd
	Pretty      bool   `mapstructure:"pretty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from the specified file path. A missing file
// leaves the defaults in place.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/spgemm-symbolic")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return unmarshal(v)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("symbolic.strategy", "auto")
	v.SetDefault("symbolic.exec_space", "threads")
	v.SetDefault("symbolic.preference", "none")
	v.SetDefault("symbolic.concurrency", 0)
	v.SetDefault("symbolic.team_size", 1)
	v.SetDefault("symbolic.vector_size", 1)
	v.SetDefault("symbolic.chunk_rows", 64)
	v.SetDefault("symbolic.shared_memory", 16*1024)
	v.SetDefault("symbolic.device_memory", int64(1)<<30)
	v.SetDefault("symbolic.retry_budget", 0)
	v.SetDefault("symbolic.materialize", true)
	v.SetDefault("symbolic.intersection", false)
	v.SetDefault("symbolic.verify", false)

	v.SetDefault("matrix.rows", 2000)
	v.SetDefault("matrix.inner", 2000)
	v.SetDefault("matrix.cols", 4000)
	v.SetDefault("matrix.per_row", 16)
	v.SetDefault("matrix.seed", 1)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.path", "./data/runs.db")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	v.SetDefault("report.dir", "./reports")
	v.SetDefault("report.compression", "none")
	v.SetDefault("report.pretty", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	s := c.Symbolic
	if s.Concurrency < 0 {
		return fmt.Errorf("symbolic concurrency must not be negative")
	}
	if s.TeamSize < 1 || s.VectorSize < 1 {
		return fmt.Errorf("symbolic team and vector sizes must be at least 1")
	}
	if s.ChunkRows < 1 {
		return fmt.Errorf("symbolic chunk rows must be at least 1")
	}
	if s.SharedMemory < 0 || s.DeviceMemory < 0 {
		return fmt.Errorf("symbolic memory sizes must not be negative")
	}
	if s.RetryBudget < 0 {
		return fmt.Errorf("symbolic retry budget must not be negative")
	}

	m := c.Matrix
	if m.Rows < 0 || m.Inner < 0 || m.Cols < 0 || m.PerRow < 0 {
		return fmt.Errorf("matrix dimensions must not be negative")
	}

	if c.Database.Enabled {
		switch c.Database.Type {
		case "postgres", "postgresql", "mysql":
			if c.Database.Host == "" {
				return fmt.Errorf("database host is required")
			}
		case "sqlite":
			if c.Database.Path == "" {
				return fmt.Errorf("sqlite database path is required")
			}
		default:
			return fmt.Errorf("unsupported database type: %s", c.Database.Type)
		}
	}

	switch c.Report.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("unsupported report compression: %s", c.Report.Compression)
	}

	// Storage config validation is delegated to storage package
	return nil
}
