package pipeline

import (
	"errors"

	"github.com/Brownie44l1/sheharfix-ml/internal/store"
)

var (
	ErrDecode          = errors.New("cannot identify image file")
	ErrEmptyPrediction = errors.New("Model returned empty predictions.")
)

// Kind tags a recoverable per-request failure.
type Kind string

const (
	KindDecode          Kind = "decode_error"
	KindEmptyPrediction Kind = "empty_prediction"
	KindUnclassified    Kind = "unclassified"
)

// Failure is the error variant of a Result.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is either a prediction or a failure, never both.
type Result struct {
	Prediction store.Prediction
	Failure    *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

func failed(kind Kind, err error) Result {
	return Result{Failure: &Failure{Kind: kind, Err: err}}
}
