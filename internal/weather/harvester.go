package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/windserver/internal/logger"
)

// Policy bounds how far a harvest run walks through the grid.
type Policy struct {
	Grid Grid

	// Lookback is the maximum age of a base run, relative to now, that is
	// still worth fetching.
	Lookback time.Duration

	// MaxForecastOffset is the last offset after which a run is abandoned
	// for the previous one. The first offset past it is still fetched.
	MaxForecastOffset int

	// FetchTimeout bounds a single download including its body (0 = none).
	FetchTimeout time.Duration
}

// Validate rejects policies the harvest walk and the locator cannot use.
func (p Policy) Validate() error {
	if _, err := NewGrid(p.Grid.IntervalHours, p.Grid.StepHours); err != nil {
		return err
	}
	if p.Lookback < p.Grid.Interval() {
		return fmt.Errorf("lookback %s is shorter than one grid interval", p.Lookback)
	}
	if p.MaxForecastOffset < 0 {
		return fmt.Errorf("max forecast offset must not be negative, got %d", p.MaxForecastOffset)
	}
	return nil
}

// MaxIterations is an upper bound on fetch attempts for one run.
func (p Policy) MaxIterations() int {
	runs := int(p.Lookback/p.Grid.Interval()) + 2
	perRun := p.MaxForecastOffset/p.Grid.StepHours + 2
	return runs * perRun
}

// Cursor is the harvester's position: the moment being pursued, the
// forecast offset tried last and whether that attempt stored an artifact.
type Cursor struct {
	Target  time.Time
	Offset  int
	Success bool
}

// Advance picks the next position after an attempt. It returns false when
// the previous base run would be older than the lookback window.
func Advance(c Cursor, now time.Time, p Policy) (Cursor, bool) {
	previous := p.Grid.Step(c.Target, -1)
	if now.Sub(previous) > p.Lookback {
		return Cursor{}, false
	}
	if !c.Success || c.Offset > p.MaxForecastOffset {
		return Cursor{Target: previous}, true
	}
	return Cursor{Target: c.Target, Offset: c.Offset + p.Grid.StepHours}, true
}

// StopReason tells why a harvest run ended.
type StopReason string

const (
	StopAlreadyHarvested StopReason = "already-harvested"
	StopLookbackExceeded StopReason = "lookback-exceeded"
	StopIterationLimit   StopReason = "iteration-limit"
	StopCancelled        StopReason = "cancelled"
)

// RunResult summarises one harvest run.
type RunResult struct {
	ID        string
	Attempts  int
	Harvested []Identifier
	Last      Identifier
	Stop      StopReason
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeHarvested
	outcomePresent
)

// Harvester downloads and converts snapshots, walking forward through the
// forecast hours of a run and backward through runs until it meets data it
// already has or runs out of lookback.
type Harvester struct {
	provider  Provider
	store     Store
	converter Converter
	policy    Policy
	now       func() time.Time
	logger    *logger.Logger
}

// NewHarvester creates a new Harvester.
func NewHarvester(provider Provider, store Store, converter Converter, policy Policy, log *logger.Logger) *Harvester {
	return &Harvester{
		provider:  provider,
		store:     store,
		converter: converter,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    log.Named("harvester"),
	}
}

// Run performs one harvest cycle starting at the current time.
// Upstream and conversion failures only steer the walk; Run never fails.
func (h *Harvester) Run(ctx context.Context) RunResult {
	res := RunResult{ID: uuid.NewString()}
	log := h.logger.With(logger.String("run", res.ID))

	cur := Cursor{Target: h.now()}
	limit := h.policy.MaxIterations()

	for {
		if ctx.Err() != nil {
			res.Stop = StopCancelled
			break
		}
		if res.Attempts >= limit {
			log.Warn("Harvest iteration limit reached", logger.Int("limit", limit))
			res.Stop = StopIterationLimit
			break
		}

		id := h.policy.Grid.IdentifierFor(cur.Target, cur.Offset)
		res.Last = id
		if h.store.Exists(id) {
			log.Info("Already got snapshot, stopping harvest", logger.String("key", id.Key()))
			res.Stop = StopAlreadyHarvested
			break
		}

		res.Attempts++
		switch h.harvest(ctx, id, log) {
		case outcomePresent:
			log.Info("Snapshot appeared during download, not looking further", logger.String("key", id.Key()))
			res.Stop = StopAlreadyHarvested
			return h.finish(res, log)
		case outcomeHarvested:
			res.Harvested = append(res.Harvested, id)
			cur.Success = true
		default:
			cur.Success = false
		}

		next, ok := Advance(cur, h.now(), h.policy)
		if !ok {
			log.Info("Harvest complete or there is a big gap in data", logger.String("last", id.Key()))
			res.Stop = StopLookbackExceeded
			break
		}
		cur = next
	}

	return h.finish(res, log)
}

func (h *Harvester) finish(res RunResult, log *logger.Logger) RunResult {
	log.Info("Harvest run finished",
		logger.String("stop", string(res.Stop)),
		logger.Int("attempts", res.Attempts),
		logger.Int("harvested", len(res.Harvested)))
	return res
}

func (h *Harvester) harvest(ctx context.Context, id Identifier, log *logger.Logger) outcome {
	fetchCtx, cancel := ctx, context.CancelFunc(func() {})
	if h.policy.FetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, h.policy.FetchTimeout)
	}
	defer cancel()

	body, err := h.provider.Fetch(fetchCtx, id)
	if err != nil {
		log.Debug("Fetch failed", logger.String("key", id.Key()), logger.Error(err))
		return outcomeFailed
	}

	if h.store.Exists(id) {
		body.Close()
		return outcomePresent
	}

	rawPath, err := h.store.WriteRaw(id, body)
	body.Close()
	if err != nil {
		log.Warn("Failed to store raw payload", logger.String("key", id.Key()), logger.Error(err))
		return outcomeFailed
	}
	log.Debug("Downloaded raw payload", logger.String("key", id.Key()))

	if err := h.converter.Convert(ctx, rawPath, id); err != nil {
		return outcomeFailed
	}
	return outcomeHarvested
}
