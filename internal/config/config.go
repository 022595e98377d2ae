// Package config provides YAML-based configuration loading for the
// production tracker.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from pktrack.yaml.
type Config struct {
	Site      string          `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Reference ReferenceConfig `yaml:"reference"`
	Server    ServerConfig    `yaml:"server"`
	Events    EventsConfig    `yaml:"events"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// DatabaseConfig selects the SQL backend and transaction limits.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // mysql, postgres, sqlite
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Path         string `yaml:"path"` // sqlite file
	TxTimeoutSec int    `yaml:"tx_timeout_sec"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

// TxTimeout returns the per-transaction deadline.
func (d DatabaseConfig) TxTimeout() time.Duration {
	return time.Duration(d.TxTimeoutSec) * time.Second
}

// ReferenceConfig lists reference data seeded by "pkt db init".
type ReferenceConfig struct {
	Reactors     []string        `yaml:"reactors"`
	Products     []ProductConfig `yaml:"products"`
	DelayReasons []string        `yaml:"delay_reasons"`
}

// ProductConfig describes one product row.
type ProductConfig struct {
	Code             string  `yaml:"code"`
	Name             string  `yaml:"name"`
	SBU              string  `yaml:"sbu"`
	MinQuantity      float64 `yaml:"min_quantity"`
	MaxQuantity      float64 `yaml:"max_quantity"`
	StandardDuration string  `yaml:"standard_duration"` // Go duration, e.g. "6h30m"
	Notes            string  `yaml:"notes"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// EventsConfig configures where committed transitions are announced.
type EventsConfig struct {
	Kafka   KafkaConfig `yaml:"kafka"`
	Slack   ChatConfig  `yaml:"slack"`
	Discord ChatConfig  `yaml:"discord"`
}

// KafkaConfig enables the Kafka event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ChatConfig enables a chat sink when BotToken is set.
type ChatConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// MonitorConfig configures the production overrun scan.
type MonitorConfig struct {
	Schedule      string  `yaml:"schedule"` // 5-field cron expression
	OverrunFactor float64 `yaml:"overrun_factor"`
}

// Load reads a YAML config file from path and returns a validated Config.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	d := &c.Database
	if d.Driver == "" {
		d.Driver = "sqlite"
	}
	switch d.Driver {
	case "mysql":
		if d.Host == "" {
			d.Host = "127.0.0.1"
		}
		if d.Port == 0 {
			d.Port = 3306
		}
		if d.User == "" {
			d.User = "root"
		}
	case "postgres":
		if d.Host == "" {
			d.Host = "127.0.0.1"
		}
		if d.Port == 0 {
			d.Port = 5432
		}
		if d.User == "" {
			d.User = "postgres"
		}
	case "sqlite":
		if d.Path == "" {
			d.Path = "pktrack.db"
		}
	}
	if d.Database == "" && c.Site != "" {
		d.Database = "pktrack_" + c.Site
	}
	if d.TxTimeoutSec == 0 {
		d.TxTimeoutSec = 10
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = 3
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "pkt-transactions"
	}
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "*/5 * * * *"
	}
	if c.Monitor.OverrunFactor == 0 {
		c.Monitor.OverrunFactor = 1.5
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Site == "" {
		errs = append(errs, "site is required")
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Database == "" {
			errs = append(errs, "database.database is required")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver))
	}
	if c.Database.TxTimeoutSec < 0 {
		errs = append(errs, "database.tx_timeout_sec must not be negative")
	}
	if c.Database.MaxAttempts < 1 {
		errs = append(errs, "database.max_attempts must be at least 1")
	}
	seen := make(map[string]bool)
	for i, r := range c.Reference.Reactors {
		if strings.TrimSpace(r) == "" {
			errs = append(errs, fmt.Sprintf("reference.reactors[%d] is empty", i))
		}
		if seen[r] {
			errs = append(errs, fmt.Sprintf("reference.reactors[%d] %q is duplicated", i, r))
		}
		seen[r] = true
	}
	for i, p := range c.Reference.Products {
		if p.Code == "" {
			errs = append(errs, fmt.Sprintf("reference.products[%d].code is required", i))
		}
		if p.MaxQuantity > 0 && p.MinQuantity > p.MaxQuantity {
			errs = append(errs, fmt.Sprintf("reference.products[%d] min_quantity exceeds max_quantity", i))
		}
		if p.StandardDuration != "" {
			if _, err := time.ParseDuration(p.StandardDuration); err != nil {
				errs = append(errs, fmt.Sprintf("reference.products[%d].standard_duration: %v", i, err))
			}
		}
	}
	if c.Events.Slack.BotToken != "" && c.Events.Slack.Channel == "" {
		errs = append(errs, "events.slack.channel is required when bot_token is set")
	}
	if c.Events.Discord.BotToken != "" && c.Events.Discord.Channel == "" {
		errs = append(errs, "events.discord.channel is required when bot_token is set")
	}
	if c.Monitor.OverrunFactor < 1 {
		errs = append(errs, "monitor.overrun_factor must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
