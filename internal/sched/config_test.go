package sched

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/actsched/internal/action"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"receding_horizon", ModeRecedingHorizon, false},
		{"temporal_ensemble", ModeTemporalEnsemble, false},
		{"receding_temporal", ModeRecedingTemporal, false},
		{"receeding_temporal", ModeRecedingTemporal, false},
		{" Receeding_Horizon ", ModeRecedingHorizon, false},
		{"open_loop", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.err {
				if !errors.Is(err, ErrUnknownMode) {
					t.Errorf("expected ErrUnknownMode, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "open_loop" }},
		{"zero replan interval", func(c *Config) { c.ReplanInterval = 0 }},
		{"zero chunk length", func(c *Config) { c.MaxChunkLen = 0 }},
		{"zero ensemble", func(c *Config) { c.EnsembleMax = 0 }},
		{"interval past horizon", func(c *Config) {
			c.Mode = ModeRecedingTemporal
			c.ReplanInterval = 60
		}},
		{"zero resize", func(c *Config) { c.ResizeSize = 0 }},
		{"NaN decay", func(c *Config) { c.Decay = math.NaN() }},
		{"infinite decay", func(c *Config) { c.Decay = math.Inf(1) }},
		{"negative infinite decay", func(c *Config) { c.Decay = math.Inf(-1) }},
		{"broken layout", func(c *Config) { c.Layout = action.Layout{Name: "x", Dim: 3} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNew_RejectsNilPolicy(t *testing.T) {
	if _, err := New(DefaultConfig(), nil, nil); err == nil {
		t.Error("expected error for nil policy")
	}
}
