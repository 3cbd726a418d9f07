package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Brownie44l1/sheharfix-ml/internal/config"
)

var ErrNoResult = errors.New("no prediction has been persisted")

// Prediction is the persisted shape of a successful classification.
type Prediction struct {
	Prediction string  `json:"prediction"`
	Confidence float32 `json:"confidence"`
}

// Store holds exactly one, most recent, prediction. Save overwrites it.
type Store interface {
	Save(ctx context.Context, p Prediction) error
	Load(ctx context.Context) (Prediction, error)
}

// New opens the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, &cfg.S3, log)
	case "file", "":
		fs := NewFileStore(cfg.Path)
		log.Info("Using file result store", zap.String("path", fs.Path()))
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
