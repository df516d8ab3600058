package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/pmkv/ssbtree"
)

// fileConfig is the JSONC-with-comments shape accepted by -c/--config,
// overriding whichever of ssbtree.Options fields it sets explicitly.
type fileConfig struct {
	PoolSize *int64  `json:"pool_size"`
	Lnum     *uint32 `json:"lnum"`
	Rnum     *uint32 `json:"rnum"`
}

// loadConfig reads a HuJSON (JSON-with-comments) file and applies any
// fields it sets on top of base, returning the merged Options.
func loadConfig(path string, base ssbtree.Options) (ssbtree.Options, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		return base, fmt.Errorf("reading config: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return base, fmt.Errorf("invalid JSONC: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(standardized, &fc); err != nil {
		return base, fmt.Errorf("invalid JSON: %w", err)
	}

	if fc.PoolSize != nil {
		base.PoolSize = *fc.PoolSize
	}
	if fc.Lnum != nil {
		base.Lnum = *fc.Lnum
	}
	if fc.Rnum != nil {
		base.Rnum = *fc.Rnum
	}

	return base, nil
}
