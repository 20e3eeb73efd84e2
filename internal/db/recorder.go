package db

import (
	"context"
	"errors"
	"io"

	"duel/internal/types"
)

type Recorder interface {
	Record(ctx context.Context, result types.GameResult) error
}

// MultiRecorder fans a result out to every backend. One failing backend does
// not stop the others.
type MultiRecorder struct {
	recorders []Recorder
}

func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

func (m *MultiRecorder) Len() int {
	return len(m.recorders)
}

func (m *MultiRecorder) Record(ctx context.Context, result types.GameResult) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Record(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every backend that holds a connection.
func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
