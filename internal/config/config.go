package config

import (
	"fmt"
	"os"
	"time"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/sched"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 8000
	DefaultTimeout = 30 * time.Second
	DefaultSteps   = 200
	DefaultSource  = "synthetic"
	DefaultPolicy  = "sine"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Rollout   RolloutConfig   `yaml:"rollout"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	Mode           string  `yaml:"mode"`
	ReplanInterval int     `yaml:"replan_interval"`
	MaxChunkLen    int     `yaml:"max_chunk_len"`
	EnsembleMax    int     `yaml:"ensemble_max"`
	Decay          float64 `yaml:"decay"`
	Prompt         string  `yaml:"prompt"`
	ResizeSize     int     `yaml:"resize_size"`
	Layout         string  `yaml:"layout"`
	// CustomLayout, when set, takes precedence over the named Layout.
	CustomLayout *action.Layout `yaml:"custom_layout,omitempty"`
}

type RolloutConfig struct {
	Steps     int    `yaml:"steps"`
	Seed      int64  `yaml:"seed"`
	Source    string `yaml:"source"`
	SourceDir string `yaml:"source_dir"`
	Policy    string `yaml:"policy"`
	FailEvery int    `yaml:"fail_every"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    DefaultHost,
			Port:    DefaultPort,
			Timeout: DefaultTimeout,
		},
		Scheduler: SchedulerConfig{
			Mode:           string(sched.ModeTemporalEnsemble),
			ReplanInterval: sched.DefaultReplanInterval,
			MaxChunkLen:    sched.DefaultMaxChunkLen,
			EnsembleMax:    sched.DefaultEnsembleMax,
			Decay:          sched.DefaultDecay,
			Prompt:         sched.DefaultPrompt,
			ResizeSize:     sched.DefaultResizeSize,
			Layout:         "r1",
		},
		Rollout: RolloutConfig{
			Steps:  DefaultSteps,
			Source: DefaultSource,
			Policy: DefaultPolicy,
		},
		Log: LogConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ServerURL is the policy server base URL.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// SchedulerConfig converts the file representation into a validated
// scheduler configuration.
func (c *Config) SchedulerConfig() (sched.Config, error) {
	s := c.Scheduler
	mode, err := sched.ParseMode(s.Mode)
	if err != nil {
		return sched.Config{}, err
	}

	var layout action.Layout
	if s.CustomLayout != nil {
		layout = *s.CustomLayout
	} else if layout, err = action.LookupLayout(s.Layout); err != nil {
		return sched.Config{}, err
	}

	out := sched.Config{
		Mode:           mode,
		ReplanInterval: s.ReplanInterval,
		MaxChunkLen:    s.MaxChunkLen,
		EnsembleMax:    s.EnsembleMax,
		Decay:          s.Decay,
		Prompt:         s.Prompt,
		ResizeSize:     s.ResizeSize,
		Layout:         layout,
	}
	if err := out.Validate(); err != nil {
		return sched.Config{}, err
	}
	return out, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Rollout.Steps <= 0 {
		return fmt.Errorf("rollout steps must be positive, got %d", c.Rollout.Steps)
	}
	_, err := c.SchedulerConfig()
	return err
}
