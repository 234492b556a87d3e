package sched

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/actsched/internal/action"
)

type Mode string

const (
	ModeRecedingHorizon  Mode = "receding_horizon"
	ModeTemporalEnsemble Mode = "temporal_ensemble"
	ModeRecedingTemporal Mode = "receding_temporal"
)

const (
	DefaultReplanInterval = 10
	DefaultMaxChunkLen    = 50
	DefaultEnsembleMax    = 5
	DefaultDecay          = 0.005
	DefaultResizeSize     = 224
	DefaultPrompt         = "put the white cup on the coffee machine"
)

// ParseMode accepts the canonical names plus the "receeding_" spellings
// found in older rollout configs.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Replace(s, "receeding", "receding", 1)
	switch m := Mode(s); m {
	case ModeRecedingHorizon, ModeTemporalEnsemble, ModeRecedingTemporal:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func Modes() []Mode {
	return []Mode{ModeRecedingHorizon, ModeTemporalEnsemble, ModeRecedingTemporal}
}

// Blends reports whether the mode averages across chunks.
func (m Mode) Blends() bool {
	return m == ModeTemporalEnsemble || m == ModeRecedingTemporal
}

type Config struct {
	Mode           Mode
	ReplanInterval int
	MaxChunkLen    int
	EnsembleMax    int
	Decay          float64
	Prompt         string
	ResizeSize     int
	Layout         action.Layout
}

func DefaultConfig() Config {
	return Config{
		Mode:           ModeTemporalEnsemble,
		ReplanInterval: DefaultReplanInterval,
		MaxChunkLen:    DefaultMaxChunkLen,
		EnsembleMax:    DefaultEnsembleMax,
		Decay:          DefaultDecay,
		Prompt:         DefaultPrompt,
		ResizeSize:     DefaultResizeSize,
		Layout:         action.R1(),
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeRecedingHorizon, ModeTemporalEnsemble, ModeRecedingTemporal:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	if math.IsNaN(c.Decay) || math.IsInf(c.Decay, 0) {
		return fmt.Errorf("decay must be finite, got %v", c.Decay)
	}
	if c.ReplanInterval <= 0 {
		return fmt.Errorf("replan interval must be positive, got %d", c.ReplanInterval)
	}
	if c.MaxChunkLen <= 0 {
		return fmt.Errorf("max chunk length must be positive, got %d", c.MaxChunkLen)
	}
	if c.EnsembleMax <= 0 {
		return fmt.Errorf("ensemble max must be positive, got %d", c.EnsembleMax)
	}
	if c.Mode == ModeRecedingTemporal && c.ReplanInterval > c.MaxChunkLen {
		return fmt.Errorf("replan interval %d exceeds max chunk length %d: queue would drain between replans", c.ReplanInterval, c.MaxChunkLen)
	}
	if c.ResizeSize <= 0 {
		return fmt.Errorf("resize size must be positive, got %d", c.ResizeSize)
	}
	return c.Layout.Validate()
}
