package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ReadMetadata parses a JSON or YAML metadata sidecar, chosen by extension.
func ReadMetadata(path string) (Metadata, error) {
	var md Metadata

	raw, err := os.ReadFile(path)
	if err != nil {
		return md, fmt.Errorf("failed to read metadata: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &md)
	default:
		err = json.Unmarshal(raw, &md)
	}
	if err != nil {
		return md, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := md.validate(); err != nil {
		return md, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return md, nil
}

func (m Metadata) validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return errors.New("input_name and output_name are required")
	}
	if len(m.InputShape) == 0 || len(m.OutputShape) == 0 {
		return errors.New("input_shape and output_shape are required")
	}
	for _, d := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if d <= 0 {
			return fmt.Errorf("shape dimensions must be positive, got %d", d)
		}
	}
	return nil
}

// DefaultMetadataPath returns "<model dir>/model_metadata.json".
func DefaultMetadataPath(modelPath string) string {
	return filepath.Join(filepath.Dir(modelPath), "model_metadata.json")
}
