package config

import (
	"sort"

	"github.com/san-kum/actsched/internal/sched"
)

// Presets are named scheduler tunings. Zero fields keep the current value.
var Presets = map[string]SchedulerConfig{
	"chunked": {
		Mode:        string(sched.ModeRecedingHorizon),
		MaxChunkLen: 8,
	},
	"ensemble": {
		Mode:        string(sched.ModeTemporalEnsemble),
		MaxChunkLen: 50,
		EnsembleMax: 10,
		Decay:       0.01,
	},
	"smooth": {
		Mode:           string(sched.ModeRecedingTemporal),
		ReplanInterval: 10,
		MaxChunkLen:    50,
		EnsembleMax:    5,
		Decay:          0.005,
	},
	"reactive": {
		Mode:           string(sched.ModeRecedingTemporal),
		ReplanInterval: 2,
		MaxChunkLen:    16,
		EnsembleMax:    3,
		Decay:          0.05,
	},
}

func GetPreset(name string) (SchedulerConfig, bool) {
	p, ok := Presets[name]
	return p, ok
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset overlays the non-zero fields of preset onto c.
func (c *Config) ApplyPreset(p SchedulerConfig) {
	s := &c.Scheduler
	if p.Mode != "" {
		s.Mode = p.Mode
	}
	if p.ReplanInterval != 0 {
		s.ReplanInterval = p.ReplanInterval
	}
	if p.MaxChunkLen != 0 {
		s.MaxChunkLen = p.MaxChunkLen
	}
	if p.EnsembleMax != 0 {
		s.EnsembleMax = p.EnsembleMax
	}
	if p.Decay != 0 {
		s.Decay = p.Decay
	}
	if p.Prompt != "" {
		s.Prompt = p.Prompt
	}
	if p.ResizeSize != 0 {
		s.ResizeSize = p.ResizeSize
	}
	if p.Layout != "" {
		s.Layout = p.Layout
	}
	if p.CustomLayout != nil {
		s.CustomLayout = p.CustomLayout
	}
}
