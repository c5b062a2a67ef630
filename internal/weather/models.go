package weather

import (
	"fmt"
	"strconv"
	"time"
)

const keyDateLayout = "20060102"

// Identifier names one forecast snapshot: a base run (date + grid hour) and
// a forecast offset in hours ahead of that run.
type Identifier struct {
	Base   time.Time // always UTC, aligned to the grid interval
	Offset int
}

// Date returns the base run date formatted as YYYYMMDD.
func (id Identifier) Date() string {
	return id.Base.Format(keyDateLayout)
}

// Hour returns the base run hour as a zero-padded two digit string.
func (id Identifier) Hour() string {
	return fmt.Sprintf("%02d", id.Base.Hour())
}

// Forecast returns the offset zero-padded to three digits, as used by the provider.
func (id Identifier) Forecast() string {
	return fmt.Sprintf("%03d", id.Offset)
}

// Key returns the canonical string used as file name and store key,
// e.g. "20240101-06.f003".
func (id Identifier) Key() string {
	return id.Date() + "-" + id.Hour() + ".f" + id.Forecast()
}

func (id Identifier) String() string {
	return id.Key()
}

// ValidTime is the moment the snapshot describes.
func (id Identifier) ValidTime() time.Time {
	return id.Base.Add(time.Duration(id.Offset) * time.Hour)
}

// Equal reports whether both identifiers name the same snapshot.
func (id Identifier) Equal(other Identifier) bool {
	return id.Base.Equal(other.Base) && id.Offset == other.Offset
}

// Compare orders identifiers by (date, hour, offset) ascending.
func (id Identifier) Compare(other Identifier) int {
	if c := id.Base.Compare(other.Base); c != 0 {
		return c
	}
	switch {
	case id.Offset < other.Offset:
		return -1
	case id.Offset > other.Offset:
		return 1
	}
	return 0
}

// ParseKey is the inverse of Identifier.Key.
func ParseKey(key string) (Identifier, error) {
	// YYYYMMDD-HH.fOOO
	if len(key) < len("20060102-15.f0") || key[8] != '-' || key[11:13] != ".f" {
		return Identifier{}, fmt.Errorf("malformed snapshot key %q", key)
	}

	date, err := time.Parse(keyDateLayout, key[:8])
	if err != nil {
		return Identifier{}, fmt.Errorf("malformed snapshot key %q: %w", key, err)
	}
	hour, err := strconv.Atoi(key[9:11])
	if err != nil || hour < 0 || hour > 23 {
		return Identifier{}, fmt.Errorf("malformed snapshot key %q: bad hour", key)
	}
	offset, err := strconv.Atoi(key[13:])
	if err != nil || offset < 0 {
		return Identifier{}, fmt.Errorf("malformed snapshot key %q: bad forecast offset", key)
	}

	return Identifier{
		Base:   date.Add(time.Duration(hour) * time.Hour).UTC(),
		Offset: offset,
	}, nil
}
