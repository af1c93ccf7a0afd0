// Package config implements the Lifecycle & Config Glue's data half:
// reading environment variables and the small persisted configuration
// document, with environment variables taking precedence.
//
// The persisted-document idiom is adapted from a state-file/state-dir
// pair (agent-state.json under a state directory) — generalized from one
// int64 field to port, log level and code runner, and, unlike that agent state, never
// written back by this process: the document is owned by an external
// configuration-file editor that runs independently of this binary.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

// EnvPrefix is prepended to every environment variable this package reads.
const EnvPrefix = "HOSTBRIDGE"

// Config is the immutable set of startup parameters for one ServerInstance.
// Values never change for a given instance once Load has resolved them.
type Config struct {
	Port       int
	AutoStart  bool
	LogLevel   string
	Debug      bool
	CodeRunner string
}

// document is the on-disk shape of the persisted configuration: port, log
// level and code runner, the values worth changing without a rebuild.
type document struct {
	Port       int    `json:"port"`
	LogLevel   string `json:"log_level"`
	CodeRunner string `json:"code_runner"`
}

// defaultConfig is the fallback when no document or environment override
// is present: port 6688, log level info, auto-start off (a library
// embedding this endpoint should opt in explicitly).
func defaultConfig() Config {
	return Config{Port: 6688, AutoStart: false, LogLevel: "info", CodeRunner: "python"}
}

// Load resolves the effective Config: defaults, overlaid by the persisted
// document at path (if it exists and parses), overlaid by environment
// variables (if set). A missing document yields defaults for the fields it
// would have set — the document is not required at runtime. A document
// that exists but cannot be read or parsed is returned as an error,
// together with the defaults and without the environment overlay.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if doc, err := readDocument(path); err == nil {
			if doc.Port != 0 {
				cfg.Port = doc.Port
			}
			if doc.LogLevel != "" {
				cfg.LogLevel = doc.LogLevel
			}
			if doc.CodeRunner != "" {
				cfg.CodeRunner = doc.CodeRunner
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, err
	}
	return doc, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_START_NOW"); v != "" {
		cfg.AutoStart = v == "1"
	}
	if v := os.Getenv(EnvPrefix + "_DEBUG"); v != "" {
		cfg.Debug = v == "1"
		if cfg.Debug {
			cfg.LogLevel = "debug"
		}
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "_CODE_RUNNER"); v != "" {
		cfg.CodeRunner = v
	}
}

// DefaultPath returns the platform-appropriate user-config location for
// the persisted document (home-directory based on Linux/macOS, falling
// back to a relative path if the home directory cannot be resolved).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".hostbridge", "config.json")
	}
	return filepath.Join(dir, "hostbridge", "config.json")
}
