package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout accepted by DV_CONFIG_FILE:
//
//	inputs:
//	  azure_web_app_name: shop
//	  health_timeout_seconds: 120
//	settings:
//	  poll_interval: 2s
//
// Input keys map to INPUT_<KEY> and setting keys to DV_<KEY>.
type File struct {
	Inputs   map[string]string `yaml:"inputs"`
	Settings map[string]string `yaml:"settings"`
}

// LoadFile parses a YAML config file into environment-style keys.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := make(map[string]string, len(f.Inputs)+len(f.Settings))
	for key, value := range f.Inputs {
		values["INPUT_"+envKey(key)] = value
	}
	for key, value := range f.Settings {
		values["DV_"+envKey(key)] = value
	}
	return values, nil
}

func envKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.ReplaceAll(key, "-", "_")
	return strings.ToUpper(key)
}
