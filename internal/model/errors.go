package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingArtifact  = errors.New("model artifact not found")
	ErrModelLoadFailure = errors.New("failed to load model")
)

// Attempt records one failed load strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// LoadError is returned when every load strategy failed.
type LoadError struct {
	Path     string
	Attempts []Attempt
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("failed to load model, errors:\n")
	for i, a := range e.Attempts {
		fmt.Fprintf(&b, "%d) %s: %v\n", i+1, a.Strategy, a.Err)
	}
	return b.String()
}

func (e *LoadError) Is(target error) bool {
	return target == ErrModelLoadFailure
}

func (e *LoadError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}
