package weather

import (
	"fmt"
	"time"
)

// Grid describes the provider's publication schedule: base runs every
// IntervalHours, each carrying forecasts every StepHours.
type Grid struct {
	IntervalHours int
	StepHours     int
}

// DefaultGrid is the GFS schedule: runs at 00/06/12/18, forecasts every 3 hours.
var DefaultGrid = Grid{IntervalHours: 6, StepHours: 3}

// NewGrid validates the interval and step. Non-positive values are rejected
// here so the rounding helpers never see them.
func NewGrid(intervalHours, stepHours int) (Grid, error) {
	if intervalHours <= 0 || intervalHours > 24 || 24%intervalHours != 0 {
		return Grid{}, fmt.Errorf("grid interval must divide 24 hours, got %d", intervalHours)
	}
	if stepHours <= 0 {
		return Grid{}, fmt.Errorf("forecast step must be positive, got %d", stepHours)
	}
	return Grid{IntervalHours: intervalHours, StepHours: stepHours}, nil
}

// Interval returns the spacing between base runs.
func (g Grid) Interval() time.Duration {
	return time.Duration(g.IntervalHours) * time.Hour
}

// RoundHour rounds an hour of day down to the nearest grid hour.
func (g Grid) RoundHour(hour int) int {
	return roundDown(hour, g.IntervalHours)
}

// HourString is RoundHour formatted as two digits ("00", "06", ...).
func (g Grid) HourString(hour int) string {
	return fmt.Sprintf("%02d", g.RoundHour(hour))
}

// RoundOffset rounds a distance in hours down to a multiple of the forecast step.
// Negative distances round to zero.
func (g Grid) RoundOffset(hours int) int {
	if hours <= 0 {
		return 0
	}
	return roundDown(hours, g.StepHours)
}

// Floor returns the base run time at or before t, in UTC.
func (g Grid) Floor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), g.RoundHour(t.Hour()), 0, 0, 0, time.UTC)
}

// IdentifierFor combines the date and rounded hour of t with a forecast offset.
func (g Grid) IdentifierFor(t time.Time, offset int) Identifier {
	return Identifier{Base: g.Floor(t), Offset: offset}
}

// Step moves t by n whole grid intervals; negative n moves into the past.
func (g Grid) Step(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * g.Interval())
}

func roundDown(v, interval int) int {
	return (v / interval) * interval
}
