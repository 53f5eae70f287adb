package services

import (
	"testing"
	"time"
)

func TestCadence_Interval(t *testing.T) {
	c := DefaultCadence()
	cases := []struct {
		age  time.Duration
		want time.Duration
	}{
		{0, 5 * time.Minute},
		{23 * time.Hour, 5 * time.Minute},
		{24 * time.Hour, 15 * time.Minute},
		{71 * time.Hour, 15 * time.Minute},
		{72 * time.Hour, 30 * time.Minute},
		{30 * 24 * time.Hour, 30 * time.Minute},
	}
	for _, tc := range cases {
		if got := c.Interval(tc.age); got != tc.want {
			t.Fatalf("Interval(%s)=%s, want %s", tc.age, got, tc.want)
		}
	}
}

func TestCadence_MonotonicInAge(t *testing.T) {
	c := DefaultCadence()
	prev := time.Duration(0)
	for age := time.Duration(0); age < 10*24*time.Hour; age += 30 * time.Minute {
		got := c.Interval(age)
		if got < prev {
			t.Fatalf("interval shrank at age %s: %s < %s", age, got, prev)
		}
		prev = got
	}
}

func TestCadence_NextCheck(t *testing.T) {
	c := DefaultCadence()
	posted := base.Add(-time.Hour)

	next, ok := c.NextCheck(posted, base, nil)
	if !ok || !next.Equal(base.Add(5*time.Minute)) {
		t.Fatalf("next=%v ok=%v", next, ok)
	}

	ends := base.Add(2 * time.Minute)
	next, ok = c.NextCheck(posted, base, &ends)
	if !ok || !next.Equal(ends) {
		t.Fatalf("capped next=%v ok=%v, want %v", next, ok, ends)
	}

	if _, ok := c.NextCheck(posted, base, &base); ok {
		t.Fatalf("window ending now must not schedule")
	}
}

func TestCadence_Validate(t *testing.T) {
	if err := DefaultCadence().Validate(); err != nil {
		t.Fatalf("default cadence invalid: %v", err)
	}
	bad := []Cadence{
		{Tiers: []CadenceTier{{MaxAge: time.Hour, Interval: 10 * time.Minute}, {MaxAge: 2 * time.Hour, Interval: 5 * time.Minute}}, Default: time.Hour},
		{Tiers: []CadenceTier{{MaxAge: 2 * time.Hour, Interval: time.Minute}, {MaxAge: time.Hour, Interval: time.Minute}}, Default: time.Hour},
		{Tiers: []CadenceTier{{MaxAge: time.Hour, Interval: 10 * time.Minute}}, Default: time.Minute},
		{Default: 0},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
