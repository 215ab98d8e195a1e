package telemetry

import (
	"context"
	"errors"
	"fmt"
)

// Sink is one uplink.
type Sink interface {
	Name() string
	Send(ctx context.Context, r Report) error
	Close() error
}

// Multi sends every report to all sinks. When only some of them fail, Send
// returns a *PartialError.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, r Report) error {
	if len(m) == 0 {
		return ErrNoSinks
	}
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) < len(m) {
		return &PartialError{Err: errors.Join(errs...)}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var ErrNoSinks = errors.New("telemetry: no sinks configured")

// PartialError means some sinks failed but at least one accepted the
// report.
type PartialError struct {
	Err error
}

func (e *PartialError) Error() string { return "telemetry: partial delivery: " + e.Err.Error() }
func (e *PartialError) Unwrap() error { return e.Err }

// Delivered reports whether err from Send still means the report got out.
func Delivered(err error) bool {
	if err == nil {
		return true
	}
	var pe *PartialError
	return errors.As(err, &pe)
}
