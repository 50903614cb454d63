package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"simfleet/messaging"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Web       WebConfig        `yaml:"web"`
	Messaging messaging.Config `yaml:"messaging"`
	Session   SessionConfig    `yaml:"session"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	// Enabled turns the fleet snapshot mirror on. The coordinator runs
	// fine without Redis.
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

// SessionConfig tunes the two-phase session launch.
type SessionConfig struct {
	// MinNodes is the smallest fleet a session may start with.
	MinNodes int `yaml:"min_nodes"`
	// CommandTimeout bounds each configure/start/stop call to one rig.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "simfleetd.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "simfleet",
				User:     "simfleet",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			SessionSecret: "change-me-in-production",
		},
		Messaging: func() messaging.Config {
			mc := messaging.Defaults()
			mc.ClientID = "simfleetd"
			return mc
		}(),
		Session: SessionConfig{
			MinNodes:       2,
			CommandTimeout: 10 * time.Second,
		},
	}
}

// Load reads path over Defaults. A missing file is not an error; the
// coordinator starts on defaults alone.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
