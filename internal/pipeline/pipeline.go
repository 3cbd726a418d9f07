package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/Brownie44l1/sheharfix-ml/internal/metrics"
	"github.com/Brownie44l1/sheharfix-ml/internal/model"
	"github.com/Brownie44l1/sheharfix-ml/internal/store"
)

const persistTimeout = 5 * time.Second

type Options struct {
	Labels        []string
	ImageSize     int
	Interpolation string
	// MaxPixels caps width*height of an accepted upload. Zero means
	// DefaultMaxPixels.
	MaxPixels     int64
}

// Pipeline classifies images with a shared, read-only model. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	model     model.Model
	store     store.Store
	labels    []string
	imageSize int
	interp    resize.InterpolationFunction
	maxPixels int64
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(m model.Model, s store.Store, opts Options, log *zap.Logger, met *metrics.Metrics) (*Pipeline, error) {
	if len(opts.Labels) == 0 {
		return nil, errors.New("at least one label is required")
	}
	if opts.ImageSize <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", opts.ImageSize)
	}
	interp, ok := interpolations[opts.Interpolation]
	if !ok {
		return nil, fmt.Errorf("unknown interpolation %q, want one of %v", opts.Interpolation, Interpolations())
	}
	if opts.MaxPixels < 0 {
		return nil, fmt.Errorf("max pixels must not be negative, got %d", opts.MaxPixels)
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if met == nil {
		met = metrics.New(nil)
	}

	return &Pipeline{
		model:     m,
		store:     s,
		labels:    append([]string(nil), opts.Labels...),
		imageSize: opts.ImageSize,
		interp:    interp,
		maxPixels: opts.MaxPixels,
		log:       log,
		metrics:   met,
	}, nil
}

func (p *Pipeline) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Classify runs decode, preprocessing, inference and argmax over raw. It
// never returns an error or panics: every failure is reported as a Result
// failure variant. Only successful predictions are persisted.
func (p *Pipeline) Classify(ctx context.Context, raw []byte) (res Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = failed(KindUnclassified, fmt.Errorf("classification panicked: %v", r))
		}
		p.observe(res, time.Since(start))
	}()

	input, err := p.Preprocess(raw)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return failed(KindDecode, err)
		}
		return failed(KindUnclassified, err)
	}

	output, err := p.model.Predict(input)
	if err != nil {
		return failed(KindUnclassified, err)
	}

	scores, err := p.scores(output)
	if errors.Is(err, ErrEmptyPrediction) {
		return failed(KindEmptyPrediction, err)
	}
	if err != nil {
		return failed(KindUnclassified, err)
	}

	idx := argmax(scores)
	pred := store.Prediction{
		Prediction: p.labels[idx],
		Confidence: scores[idx],
	}

	p.persist(ctx, pred)
	return Result{Prediction: pred}
}

// scores returns the first len(labels) columns of the first output row.
// Trailing columns are not part of the taxonomy and are dropped. NaN and
// infinite scores cannot be ranked or encoded and fail the request.
func (p *Pipeline) scores(out model.Tensor) ([]float32, error) {
	row := out.Row(0)
	if len(row) == 0 {
		return nil, ErrEmptyPrediction
	}
	if len(row) < len(p.labels) {
		return nil, fmt.Errorf("%w (got %d columns, need %d)", ErrEmptyPrediction, len(row), len(p.labels))
	}
	row = row[:len(p.labels)]
	for i, v := range row {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("model returned non-finite score %v for %q", v, p.labels[i])
		}
	}
	return row, nil
}

// argmax returns the index of the largest score; ties go to the lowest index.
func argmax(scores []float32) int {
	vals := make([]float64, len(scores))
	for i, s := range scores {
		vals[i] = float64(s)
	}
	return floats.MaxIdx(vals)
}

// persist is best-effort: failures are logged and counted but never change
// the result handed back to the caller. The write outlives a cancelled
// request context.
func (p *Pipeline) persist(ctx context.Context, pred store.Prediction) {
	if p.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.store.Save(ctx, pred); err != nil {
		p.metrics.ObservePersistFailure()
		p.log.Warn("Failed to persist latest prediction",
			zap.String("prediction", pred.Prediction),
			zap.Error(err))
	}
}

func (p *Pipeline) observe(res Result, elapsed time.Duration) {
	if res.OK() {
		p.metrics.ObserveSuccess(res.Prediction.Prediction, elapsed)
		p.log.Info("Image classified",
			zap.String("prediction", res.Prediction.Prediction),
			zap.Float32("confidence", res.Prediction.Confidence),
			zap.Duration("elapsed", elapsed))
		return
	}

	p.metrics.ObserveFailure(string(res.Failure.Kind), elapsed)
	p.log.Warn("Prediction error",
		zap.String("kind", string(res.Failure.Kind)),
		zap.Error(res.Failure.Err),
		zap.Duration("elapsed", elapsed))
}
