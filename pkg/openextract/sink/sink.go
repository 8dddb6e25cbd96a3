// Package sink persists pipeline results.
package sink

import (
	"context"
	"errors"

	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Sink receives results in document order.
type Sink interface {
	Write(ctx context.Context, r pipeline.Result) error
	Close() error
}

// Aborter is implemented by sinks that record whether a run completed.
type Aborter interface {
	Abort(err error)
}

// Multi fans every result out to all sinks.
type Multi []Sink

// Write implements Sink. It stops at the first failing sink.
func (m Multi) Write(ctx context.Context, r pipeline.Result) error {
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Abort passes err to every sink that implements Aborter.
func (m Multi) Abort(err error) {
	for _, s := range m {
		if a, ok := s.(Aborter); ok {
			a.Abort(err)
		}
	}
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
