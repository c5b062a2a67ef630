// Package converter runs the external grib2json tool that turns raw GRIB2
// payloads into the JSON artifacts served to clients.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/i474232898/windserver/internal/logger"
	"github.com/i474232898/windserver/internal/weather"
)

var (
	// ErrConversion is matched by every error Convert returns.
	ErrConversion = errors.New("conversion failed")

	errOutputLimit = errors.New("converter output exceeded limit")
)

// ConversionError describes one failed tool invocation.
type ConversionError struct {
	Key    string
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Key, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{ErrConversion, e.Err}
}

// ArtifactStore is the part of the snapshot store the converter writes through.
type ArtifactStore interface {
	WithArtifact(id weather.Identifier, fn func(tmpPath string) error) error
	RemoveRaw(id weather.Identifier) error
}

// Config controls how the external tool is invoked.
type Config struct {
	Binary    string
	Timeout   time.Duration
	MaxOutput int
}

// Grib2JSON invokes grib2json synchronously for each payload.
type Grib2JSON struct {
	cfg    Config
	store  ArtifactStore
	logger *logger.Logger
}

// New creates a converter writing artifacts into store.
func New(cfg Config, store ArtifactStore, log *logger.Logger) *Grib2JSON {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 500 * 1024
	}
	return &Grib2JSON{
		cfg:    cfg,
		store:  store,
		logger: log.Named("converter"),
	}
}

// Convert runs the tool on rawPath and publishes the artifact for id.
// The raw payload for id is removed afterwards whatever the outcome.
func (c *Grib2JSON) Convert(ctx context.Context, rawPath string, id weather.Identifier) error {
	defer func() {
		if err := c.store.RemoveRaw(id); err != nil {
			c.logger.Warn("Failed to remove raw payload", logger.String("key", id.Key()), logger.Error(err))
		}
	}()

	start := time.Now()
	err := c.store.WithArtifact(id, func(tmpPath string) error {
		return c.run(ctx, rawPath, tmpPath)
	})
	if err != nil {
		var convErr *ConversionError
		if !errors.As(err, &convErr) {
			err = &ConversionError{Key: id.Key(), Err: err}
		} else {
			convErr.Key = id.Key()
		}
		c.logger.Error("Conversion failed", logger.String("key", id.Key()), logger.Error(err))
		return err
	}

	c.logger.Info("Converted",
		logger.String("key", id.Key()),
		logger.Duration("took", time.Since(start)))
	return nil
}

func (c *Grib2JSON) run(ctx context.Context, input, output string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out := &limitedBuffer{max: c.cfg.MaxOutput, onOverflow: cancel}
	cmd := exec.CommandContext(ctx, c.cfg.Binary,
		"--data",
		"--output", output,
		"--names",
		"--compact",
		input,
	)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	switch {
	case out.Overflowed():
		return &ConversionError{Output: out.String(), Err: errOutputLimit}
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ConversionError{Output: out.String(), Err: fmt.Errorf("timed out after %s", c.cfg.Timeout)}
	case err != nil:
		return &ConversionError{Output: out.String(), Err: err}
	}
	return nil
}

// limitedBuffer collects tool output up to max bytes. Past that it calls
// onOverflow once and rejects further writes.
type limitedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	max        int
	overflowed bool
	onOverflow func()
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflowed {
		return 0, errOutputLimit
	}
	if b.buf.Len()+len(p) > b.max {
		b.buf.Write(p[:b.max-b.buf.Len()])
		b.overflowed = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return 0, errOutputLimit
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
