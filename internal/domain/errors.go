package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrFetchFailure     = errors.New("movie fetch failed")
	ErrNoResults        = errors.New("no movies found")
	ErrTelemetryFailure = errors.New("search telemetry failed")
)

// WrapFetch tags err as a fetch failure while keeping its message.
func WrapFetch(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrFetchFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrFetchFailure, err)
}

func WrapTelemetry(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTelemetryFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTelemetryFailure, err)
}
