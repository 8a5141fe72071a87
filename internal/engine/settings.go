package engine

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/gridbeat/gridbeat/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SaveSettings writes an engine configuration to path as JSON.
func SaveSettings(path string, cfg types.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("settings: %w: %v", types.ErrOpenFailed, err)
	}
	return nil
}

// LoadSettings reads an engine configuration from path, falling back to the
// defaults for missing fields.
func LoadSettings(path string) (types.Config, error) {
	cfg := types.DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("settings: %w: %v", types.ErrOpenFailed, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return types.DefaultConfig(), fmt.Errorf("settings: %w", err)
	}
	if cfg.BPM < types.MinBPM || cfg.BPM > types.MaxBPM {
		cfg.BPM = types.DefaultConfig().BPM
	}
	return cfg, nil
}
