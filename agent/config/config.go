package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"simfleet/agent/navigate"
	"simfleet/messaging"
)

// Config is the top-level rig agent configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	IdentityPath string `yaml:"identity_path"`
	ScriptsDir   string `yaml:"scripts_dir"`
	TemplatesDir string `yaml:"templates_dir"`
	DatabasePath string `yaml:"database_path"`

	Web       WebConfig        `yaml:"web"`
	Messaging messaging.Config `yaml:"messaging"`
	Navigate  NavigateConfig   `yaml:"navigate"`
	Games     []GameConfig     `yaml:"games"`
}

// WebConfig defines the command API server settings. AdvertiseAddr is what
// the coordinator is told to call back on; when empty the agent advertises
// its primary interface address and the configured port.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	AdvertiseAddr string `yaml:"advertise_addr"`
}

// NavigateConfig tunes the menu navigation engine.
type NavigateConfig struct {
	Threshold     float64       `yaml:"threshold"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	ActionDelay   time.Duration `yaml:"action_delay"`
	FallbackAfter int           `yaml:"fallback_after"`
	MaxFallbacks  int           `yaml:"max_fallbacks"`
}

// Params converts the yaml knobs into engine parameters, filling zero
// values with engine defaults.
func (n NavigateConfig) Params() navigate.Params {
	return navigate.Params{
		Threshold:     n.Threshold,
		MaxAttempts:   n.MaxAttempts,
		RetryDelay:    n.RetryDelay,
		ActionDelay:   n.ActionDelay,
		FallbackAfter: n.FallbackAfter,
		MaxFallbacks:  n.MaxFallbacks,
	}
}

// GameConfig describes one launchable activity on this rig.
type GameConfig struct {
	Activity    string        `yaml:"activity"`
	Executable  string        `yaml:"executable"`
	Args        []string      `yaml:"args"`
	ProcessName string        `yaml:"process_name"`
	WindowTitle string        `yaml:"window_title"`
	LaunchWait  time.Duration `yaml:"launch_wait"`
}

// Game looks up the launch settings for an activity.
func (c *Config) Game(activity string) (GameConfig, bool) {
	for _, g := range c.Games {
		if g.Activity == activity {
			return g, true
		}
	}
	return GameConfig{}, false
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		IdentityPath: "identity.json",
		ScriptsDir:   "scripts",
		TemplatesDir: "templates",
		DatabasePath: "rigagent.db",
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8077,
		},
		Messaging: func() messaging.Config {
			mc := messaging.Defaults()
			mc.ClientID = "rigagent"
			return mc
		}(),
		Navigate: NavigateConfig{},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
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

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Identity is the rig's stable name and fleet-unique id. It lives in its
// own file next to the config because it must survive config rewrites and
// never be copied between rigs.
type Identity struct {
	NodeID int64  `json:"id"`
	Name   string `json:"name"`
}

// LoadIdentity reads and validates the identity file. The agent refuses to
// start without one: an unnamed rig would collide with its neighbors the
// moment it joined the fleet.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("identity file %s not found: create it with {\"id\": <unique number>, \"name\": \"<rig name>\"}", path)
		}
		return nil, err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parse identity %s: %w", path, err)
	}
	if id.NodeID <= 0 {
		return nil, fmt.Errorf("identity %s: id must be a positive number", path)
	}
	if id.Name == "" {
		return nil, fmt.Errorf("identity %s: name is required", path)
	}
	return &id, nil
}
