package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotFound is returned when no stored snapshot satisfies a query.
	ErrNotFound = errors.New("no snapshot available")

	// ErrSearchLimitExceeded is returned by a bounded nearest search that
	// found nothing within its window in either direction.
	ErrSearchLimitExceeded = fmt.Errorf("%w: search limit exceeded", ErrNotFound)
)

// Provider abstracts the upstream forecast source (NOAA NOMADS).
// The returned body is the raw GRIB2 payload for exactly one identifier.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, id Identifier) (io.ReadCloser, error)
}

// Store is the contract the snapshot store must satisfy.
type Store interface {
	Exists(id Identifier) bool
	Open(id Identifier) (io.ReadCloser, error)
	WriteRaw(id Identifier, r io.Reader) (string, error)
	RemoveRaw(id Identifier) error
}

// Converter turns a raw payload on disk into a stored artifact for id.
type Converter interface {
	Convert(ctx context.Context, rawPath string, id Identifier) error
}
