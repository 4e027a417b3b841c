// Package config loads the run configuration from a YAML or TOML file and
// the command line, and validates it before anything connects.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	MySQL      MySQLConfig      `yaml:"mysql" toml:"mysql"`
	Binlog     BinlogConfig     `yaml:"binlog" toml:"binlog"`
	Filter     FilterConfig     `yaml:"filter" toml:"filter"`
	Mode       ModeConfig       `yaml:"mode" toml:"mode"`
	Output     OutputConfig     `yaml:"output" toml:"output"`
	NATS       NATSConfig       `yaml:"nats" toml:"nats"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" toml:"checkpoint"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

type MySQLConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	ServerID uint32 `yaml:"server_id" toml:"server_id"` // Replica id, the server's own id when 0
	Flavor   string `yaml:"flavor" toml:"flavor"`       // mysql, mariadb
}

type BinlogConfig struct {
	StartFile     string `yaml:"start_file" toml:"start_file"`
	StartPosition uint32 `yaml:"start_position" toml:"start_position"`
	StopFile      string `yaml:"stop_file" toml:"stop_file"`
	StopPosition  uint32 `yaml:"stop_position" toml:"stop_position"`
	StartTime     string `yaml:"start_time" toml:"start_time"` // "2006-01-02 15:04:05" local time
	StopTime      string `yaml:"stop_time" toml:"stop_time"`
	StopNever     bool   `yaml:"stop_never" toml:"stop_never"`
}

type FilterConfig struct {
	Databases []string `yaml:"databases" toml:"databases"`
	Tables    []string `yaml:"tables" toml:"tables"`
	OnlyDML   bool     `yaml:"only_dml" toml:"only_dml"`
	SQLTypes  []string `yaml:"sql_types" toml:"sql_types"` // INSERT, UPDATE, DELETE
}

type ModeConfig struct {
	NoPrimaryKey bool   `yaml:"no_primary_key" toml:"no_primary_key"`
	Flashback    bool   `yaml:"flashback" toml:"flashback"`
	JSON         bool   `yaml:"json" toml:"json"`           // Rewrite JSON column values as JSON text
	Transform    string `yaml:"transform" toml:"transform"` // JavaScript hook file
}

type OutputConfig struct {
	File string `yaml:"file" toml:"file"` // Appended to, in addition to stdout
}

type NATSConfig struct {
	URL           string   `yaml:"url" toml:"url"`
	Subject       string   `yaml:"subject" toml:"subject"`
	MaxReconnect  int      `yaml:"max_reconnect" toml:"max_reconnect"`
	ReconnectWait Duration `yaml:"reconnect_wait" toml:"reconnect_wait"`
}

type CheckpointConfig struct {
	File          string `yaml:"file" toml:"file"`
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisKey      string `yaml:"redis_key" toml:"redis_key"`
	Resume        bool   `yaml:"resume" toml:"resume"` // Start from the saved position
}

type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	Path string `yaml:"path" toml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"` // File, or directory for a per-run file
}

// Duration reads "2s" style values from both YAML and TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used without a file
func Default() *Config {
	var config Config
	config.setDefaults()
	return &config
}

// Load reads a config file, TOML when the name ends in .toml and YAML
// otherwise. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.MySQL.Host == "" {
		c.MySQL.Host = "127.0.0.1"
	}
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.Flavor == "" {
		c.MySQL.Flavor = "mysql"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "binlog2sql.statements"
	}
	if c.NATS.ReconnectWait.Duration == 0 {
		c.NATS.ReconnectWait.Duration = 2 * time.Second
	}
	if c.Checkpoint.RedisKey == "" {
		c.Checkpoint.RedisKey = "binlog2sql:position"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// RunLogPath is the log file for a run. When logging.file is a directory
// the file is named after the source server and the mode.
func (c *Config) RunLogPath(now time.Time) string {
	if c.Logging.File == "" {
		return ""
	}
	info, err := os.Stat(c.Logging.File)
	if err != nil || !info.IsDir() {
		return c.Logging.File
	}
	mode := "redo"
	if c.Mode.Flashback {
		mode = "undo"
	}
	name := fmt.Sprintf("%s-%d-%s-%d.log", c.MySQL.Host, c.MySQL.Port, mode, now.Unix())
	return filepath.Join(c.Logging.File, name)
}
