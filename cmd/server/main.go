package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Brownie44l1/sheharfix-ml/internal/config"
	"github.com/Brownie44l1/sheharfix-ml/internal/handlers"
	"github.com/Brownie44l1/sheharfix-ml/internal/logger"
	"github.com/Brownie44l1/sheharfix-ml/internal/metrics"
	"github.com/Brownie44l1/sheharfix-ml/internal/model"
	"github.com/Brownie44l1/sheharfix-ml/internal/pipeline"
	"github.com/Brownie44l1/sheharfix-ml/internal/server"
	"github.com/Brownie44l1/sheharfix-ml/internal/store"
)

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		switch {
		case errors.Is(err, model.ErrMissingArtifact):
			log.Error("Model artifact not found", zap.String("path", cfg.Model.Path), zap.Error(err))
		case errors.Is(err, model.ErrModelLoadFailure):
			log.Error("ERROR loading model", zap.Error(err))
		default:
			log.Error("Server stopped", zap.Error(err))
		}
		_ = log.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	metadataPath := cfg.Model.MetadataPath
	if metadataPath == "" {
		metadataPath = model.DefaultMetadataPath(cfg.Model.Path)
	}

	log.Info("Loading model", zap.String("path", cfg.Model.Path))

	m, err := model.Load(cfg.Model.Path, model.ONNXStrategies(model.ONNXOptions{
		MetadataPath:      metadataPath,
		SharedLibraryPath: cfg.Model.OnnxRuntimeLibrary,
		IntraOpThreads:    cfg.Model.IntraOpThreads,
		ImageSize:         cfg.Pipeline.ImageSize,
	}), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close model", zap.Error(err))
		}
		if err := model.Shutdown(); err != nil {
			log.Warn("Failed to release ONNX environment", zap.Error(err))
		}
	}()

	checkMetadataLabels(metadataPath, cfg.Pipeline.Labels, log)

	ctx := context.Background()
	results, err := store.New(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	p, err := pipeline.New(m, results, pipeline.Options{
		Labels:        cfg.Pipeline.Labels,
		ImageSize:     cfg.Pipeline.ImageSize,
		Interpolation: cfg.Pipeline.Interpolation,
		MaxPixels:     cfg.Pipeline.MaxPixels,
	}, log, met)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	h := handlers.NewHandler(p, results, cfg.Server.MaxUploadBytes, log)
	srv := server.New(cfg.Server, h, reg, log)

	log.Info("Classifier ready",
		zap.Strings("classes", p.Labels()),
		zap.Int("image_size", cfg.Pipeline.ImageSize),
		zap.String("store", cfg.Store.Backend))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Run()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

// checkMetadataLabels warns when the exported class list disagrees with the
// configured taxonomy. Missing metadata is not an error here.
func checkMetadataLabels(path string, labels []string, log *zap.Logger) {
	md, err := model.ReadMetadata(path)
	if err != nil || len(md.Classes) == 0 {
		return
	}
	if len(md.Classes) < len(labels) || !slices.Equal(md.Classes[:len(labels)], labels) {
		log.Warn("Model metadata classes differ from configured labels",
			zap.Strings("metadata_classes", md.Classes),
			zap.Strings("labels", labels))
	}
}
