package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkerConfig describes an out-of-process worker the host may launch.
type WorkerConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of workers.yaml.
type ConfigFile struct {
	Workers []WorkerConfig `yaml:"workers" json:"workers"`
}

// LoadWorkers reads a configuration file (YAML or JSON) and returns the
// workers by name. A missing file means no workers are configured.
func LoadWorkers(path string) (map[string]WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]WorkerConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read workers config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse workers.json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse workers.yaml: %w", err)
		}
	}

	workers := make(map[string]WorkerConfig)
	for _, w := range cfg.Workers {
		if w.Name == "" {
			continue
		}
		workers[w.Name] = w
	}
	return workers, nil
}
