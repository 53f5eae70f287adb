package services

import (
	"errors"
	"time"
)

// CadenceTier applies Interval to posts younger than MaxAge.
type CadenceTier struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Cadence maps post age to polling interval. Tiers are ordered by MaxAge;
// posts older than every tier use Default.
type Cadence struct {
	Tiers   []CadenceTier
	Default time.Duration
}

// DefaultCadence polls every 5 minutes for the first day, every 15 minutes
// until day three, then every 30 minutes.
func DefaultCadence() Cadence {
	return Cadence{
		Tiers: []CadenceTier{
			{MaxAge: 24 * time.Hour, Interval: 5 * time.Minute},
			{MaxAge: 72 * time.Hour, Interval: 15 * time.Minute},
		},
		Default: 30 * time.Minute,
	}
}

// Validate checks that tiers are ordered and intervals never shrink with age.
func (c Cadence) Validate() error {
	prevAge, prevInterval := time.Duration(0), time.Duration(0)
	for _, t := range c.Tiers {
		if t.Interval <= 0 || t.MaxAge <= prevAge {
			return errors.New("cadence tiers must have positive intervals and increasing ages")
		}
		if t.Interval < prevInterval {
			return errors.New("cadence intervals must not decrease with age")
		}
		prevAge, prevInterval = t.MaxAge, t.Interval
	}
	if c.Default <= 0 || c.Default < prevInterval {
		return errors.New("cadence default must be positive and at least the last tier interval")
	}
	return nil
}

// Interval returns the polling interval for a post of the given age.
func (c Cadence) Interval(age time.Duration) time.Duration {
	for _, t := range c.Tiers {
		if age < t.MaxAge {
			return t.Interval
		}
	}
	return c.Default
}

// NextCheck schedules the poll after now. The result is strictly after now
// and never past endsAt; ok is false when no such time exists.
func (c Cadence) NextCheck(postedAt, now time.Time, endsAt *time.Time) (time.Time, bool) {
	next := now.Add(c.Interval(now.Sub(postedAt)))
	if endsAt != nil && next.After(*endsAt) {
		next = *endsAt
	}
	if !next.After(now) {
		return time.Time{}, false
	}
	return next, true
}
