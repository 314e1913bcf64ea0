// Package config pkg/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads the JSON file at path into the struct pointed to by dst.
// The daemon config and per-device boot entries both load through here.
func LoadFile(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// ValidateConfig runs cfg's Validate method when it implements Validator.
// Configs without one pass trivially.
func ValidateConfig(cfg interface{}) error {
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}

	return nil
}

// LoadAndValidate combines LoadFile and ValidateConfig.
func LoadAndValidate(path string, cfg interface{}) error {
	if err := LoadFile(path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}
