// Package config holds the settings the job subsystem and the app consume.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	// Shell is the shell used to run external commands.
	Shell string `yaml:"shell"`

	// ShellCmdFlag is the flag the shell takes before a command line.
	ShellCmdFlag string `yaml:"shell_cmd_flag"`

	// FastRun enables completing abbreviated external command names
	// before running them.
	FastRun bool `yaml:"fast_run"`

	// LogPath is where the application log is written. Empty disables
	// logging.
	LogPath string `yaml:"log_path"`

	// SweepInterval is how often background jobs are checked.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Duration is a time.Duration that unmarshals from strings like "250ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the platform configuration used when no file overrides
// it.
func Default() *Config {
	cfg := &Config{
		SweepInterval: Duration(250 * time.Millisecond),
	}

	if runtime.GOOS == "windows" {
		cfg.Shell = os.Getenv("ComSpec")
		if cfg.Shell == "" {
			cfg.Shell = "cmd"
		}
		cfg.ShellCmdFlag = "/C"
	} else {
		cfg.Shell = os.Getenv("SHELL")
		if cfg.Shell == "" {
			cfg.Shell = "/bin/sh"
		}
		cfg.ShellCmdFlag = "-c"
	}

	return cfg
}

// Load reads a YAML configuration file and overlays it on the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Shell == "" {
		return nil, fmt.Errorf("config %s: shell must not be empty", path)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("config %s: sweep_interval must be positive", path)
	}

	return cfg, nil
}

// CompleteCommand expands an abbreviated command name to the single
// executable in $PATH it is a prefix of. The rest of the command line is
// kept as is. An ambiguous or unknown prefix is an error; an exact name
// passes through untouched.
func (c *Config) CompleteCommand(cmdline string) (string, error) {
	if !c.FastRun {
		return cmdline, nil
	}

	name, rest, _ := strings.Cut(cmdline, " ")
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return cmdline, nil
	}

	var match string
	ambiguous := false
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasPrefix(e.Name(), name) {
				continue
			}
			if e.Name() == name {
				return cmdline, nil
			}
			if match != "" && match != e.Name() {
				ambiguous = true
				continue
			}
			match = e.Name()
		}
	}

	if match == "" {
		return "", fmt.Errorf("no executable matches %q", name)
	}
	if ambiguous {
		return "", fmt.Errorf("ambiguous command name %q", name)
	}

	if rest == "" {
		return match, nil
	}
	return match + " " + rest, nil
}
