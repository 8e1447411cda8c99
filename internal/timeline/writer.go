package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WriteTimeline writes a timeline to a YAML or JSON file (chosen by extension).
// Timelines violating the invariants are never persisted.
func WriteTimeline(t *Timeline, path string) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("refusing to write %s: %w", path, err)
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(t, "", "  ")
	} else {
		data, err = yaml.Marshal(t)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ReadTimeline reads and validates a timeline from a YAML or JSON file
func ReadTimeline(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Timeline
	if isJSON(path) {
		err = json.Unmarshal(data, &t)
	} else {
		err = yaml.Unmarshal(data, &t)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &t, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
