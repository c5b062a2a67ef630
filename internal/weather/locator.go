package weather

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/windserver/internal/logger"
)

// SnapshotReader is the read side of the snapshot store.
type SnapshotReader interface {
	Exists(id Identifier) bool
	Open(id Identifier) (io.ReadCloser, error)
}

// Locator answers "which stored snapshot best matches this time" queries.
// It only reads the store and never triggers a harvest.
type Locator struct {
	store   SnapshotReader
	policy  Policy
	now     func() time.Time
	lookups singleflight.Group
	logger  *logger.Logger
}

// NewLocator creates a Locator sharing the harvester's grid and lookback policy.
func NewLocator(store SnapshotReader, policy Policy, log *logger.Logger) *Locator {
	return &Locator{
		store:  store,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.Named("locator"),
	}
}

// Latest returns the freshest stored snapshot valid at or before now,
// walking back one run at a time for at most the lookback window.
func (l *Locator) Latest(ctx context.Context) (Identifier, error) {
	now := l.now()
	g := l.policy.Grid
	start := g.Floor(now)

	// Callers within the same forecast step share one walk. The walk is
	// detached from the first caller so its cancellation does not fail the others.
	covering := g.IdentifierFor(now, g.RoundOffset(int(now.Sub(start).Hours())))
	shared := context.WithoutCancel(ctx)
	ch := l.lookups.DoChan("latest:"+covering.Key(), func() (interface{}, error) {
		return l.walk(shared, now, start, -1, l.lookbackRuns(), func(time.Time) bool { return true })
	})

	select {
	case <-ctx.Done():
		return Identifier{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Identifier{}, r.Err
		}
		return r.Val.(Identifier), nil
	}
}

// Nearest finds the stored snapshot closest to t. With limitDays == 0 it
// walks backward for at most the lookback window. With a limit it walks
// backward while within limitDays of t, then forward once, and fails with
// ErrSearchLimitExceeded if neither direction finds anything. The limit
// replaces the lookback window as the bound.
func (l *Locator) Nearest(ctx context.Context, t time.Time, limitDays int) (Identifier, error) {
	t = t.UTC()
	start := l.policy.Grid.Floor(t)

	if limitDays <= 0 {
		return l.walk(ctx, t, start, -1, l.lookbackRuns(), func(time.Time) bool { return true })
	}

	limit := time.Duration(limitDays) * 24 * time.Hour
	within := func(probe time.Time) bool {
		return absDuration(t.Sub(probe)) < limit
	}
	interval := l.policy.Grid.Interval()
	maxRuns := int((limit+interval-1)/interval) + 1

	id, err := l.walk(ctx, t, start, -1, maxRuns, within)
	if err == nil || ctx.Err() != nil {
		return id, err
	}

	l.logger.Debug("Backward search exhausted, searching forward",
		logger.Time("target", t), logger.Int("limit_days", limitDays))

	id, err = l.walk(ctx, t, l.policy.Grid.Step(start, 1), 1, maxRuns, within)
	if err != nil && ctx.Err() == nil {
		return Identifier{}, ErrSearchLimitExceeded
	}
	return id, err
}

// Open returns the artifact for a located identifier.
func (l *Locator) Open(id Identifier) (io.ReadCloser, error) {
	return l.store.Open(id)
}

// walk probes at most maxRuns base runs from start in steps of dir
// intervals while keep allows it.
func (l *Locator) walk(ctx context.Context, target, start time.Time, dir, maxRuns int, keep func(time.Time) bool) (Identifier, error) {
	run := start
	for i := 0; i < maxRuns && keep(run); i++ {
		if err := ctx.Err(); err != nil {
			return Identifier{}, err
		}
		if id, ok := l.probe(run, target); ok {
			return id, nil
		}
		run = l.policy.Grid.Step(run, dir)
	}
	return Identifier{}, ErrNotFound
}

// lookbackRuns is the number of base runs inside the lookback window.
func (l *Locator) lookbackRuns() int {
	return int(l.policy.Lookback/l.policy.Grid.Interval()) + 1
}

// probe checks the forecasts of one base run that are valid at or before
// target, latest first, down to the run's own analysis.
func (l *Locator) probe(run, target time.Time) (Identifier, bool) {
	g := l.policy.Grid
	offset := g.RoundOffset(int(target.Sub(run).Hours()))
	if horizon := l.horizon(); offset > horizon {
		offset = horizon
	}

	for ; offset >= 0; offset -= g.StepHours {
		id := Identifier{Base: run, Offset: offset}
		if l.store.Exists(id) {
			return id, true
		}
	}
	return Identifier{}, false
}

// horizon is the largest offset the harvester fetches for a run.
func (l *Locator) horizon() int {
	step := l.policy.Grid.StepHours
	return (l.policy.MaxForecastOffset/step + 1) * step
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
