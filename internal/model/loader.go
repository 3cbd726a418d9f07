package model

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Strategy is one way of turning the artifact into a Model.
type Strategy struct {
	Name string
	Load func(path string) (Model, error)
}

// Load tries each strategy in order and returns the first model that loads.
// A missing artifact fails before any strategy runs.
func Load(path string, strategies []Strategy, log *zap.Logger) (Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingArtifact, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrMissingArtifact, path)
	}

	loadErr := &LoadError{Path: path}
	for _, s := range strategies {
		log.Info("Trying model load strategy", zap.String("strategy", s.Name), zap.String("path", path))

		m, err := s.Load(path)
		if err == nil {
			log.Info("Model loaded", zap.String("strategy", s.Name))
			return m, nil
		}

		log.Warn("Model load strategy failed", zap.String("strategy", s.Name), zap.Error(err))
		loadErr.Attempts = append(loadErr.Attempts, Attempt{Strategy: s.Name, Err: err})
	}

	return nil, loadErr
}
