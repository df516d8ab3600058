package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// workloadPreset describes a synthetic benchmark run: how many keys to
// generate, in what order, and what read/write mix to drive against them.
// Presets are loaded from a YAML file via the REPL's "preset" command, so
// a benchmark recipe can be named and reused instead of retyped.
type workloadPreset struct {
	Name        string `yaml:"name"`
	Keys        int    `yaml:"keys"`
	Order       string `yaml:"order"`        // "sequential", "random", or "reverse"
	ReadWrite   int    `yaml:"read_write"`   // reads per write, 0 means write-only
	Scans       int    `yaml:"scans"`        // number of bounded scans to run after the writes
	ScanWindow  int    `yaml:"scan_window"`  // keys covered per scan
	Description string `yaml:"description"`
}

type presetFile struct {
	Presets []workloadPreset `yaml:"presets"`
}

// loadPresets parses a YAML file containing one or more named presets.
func loadPresets(path string) (map[string]workloadPreset, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		return nil, fmt.Errorf("reading presets: %w", err)
	}

	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("invalid presets YAML: %w", err)
	}

	out := make(map[string]workloadPreset, len(pf.Presets))
	for _, p := range pf.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset missing name field")
		}
		if p.Order == "" {
			p.Order = "sequential"
		}
		out[p.Name] = p
	}

	return out, nil
}
