// Package config loads the kernel and server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kcajmagic/COSC-NACHOS/internal/machine"
	"github.com/kcajmagic/COSC-NACHOS/internal/sched"
	"gopkg.in/yaml.v3"
)

// KernelConfig holds configuration for a simulated kernel.
type KernelConfig struct {
	Scheduler     string `yaml:"scheduler"`      // priority, lottery or roundrobin
	TimerInterval int64  `yaml:"timer_interval"` // ticks between timer interrupts
	KernelTick    int64  `yaml:"kernel_tick"`    // ticks added whenever interrupts are re-enabled
	Seed          uint64 `yaml:"seed"`           // lottery random seed
	LogLevel      string `yaml:"log_level"`      // debug, info, warn, error
	LogFormat     string `yaml:"log_format"`     // text, json
	TraceDB       string `yaml:"trace_db"`       // SQLite trace path; empty disables recording
}

// DefaultKernelConfig returns the defaults used when no file is given.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		Scheduler:     sched.PolicyPriority,
		TimerInterval: machine.DefaultTimerInterval,
		KernelTick:    machine.DefaultKernelTick,
		Seed:          1,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads path and overlays it on the defaults. Keys missing from the
// file keep their default values.
func Load(path string) (KernelConfig, error) {
	cfg := DefaultKernelConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem with the configuration.
func (c KernelConfig) Validate() error {
	var errs []error
	if !sched.Known(c.Scheduler) {
		errs = append(errs, fmt.Errorf("unknown scheduler %q", c.Scheduler))
	}
	if c.TimerInterval <= 0 {
		errs = append(errs, fmt.Errorf("timer_interval must be positive, got %d", c.TimerInterval))
	}
	if c.KernelTick <= 0 {
		errs = append(errs, fmt.Errorf("kernel_tick must be positive, got %d", c.KernelTick))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Machine returns the hardware settings for machine.New.
func (c KernelConfig) Machine() machine.Config {
	return machine.Config{
		KernelTick:    c.KernelTick,
		TimerInterval: c.TimerInterval,
	}
}

// Marshal renders the configuration as YAML.
func (c KernelConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ServerConfig holds configuration for the trace API server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite trace path (":memory:" for testing)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}
