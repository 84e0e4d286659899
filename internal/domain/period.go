package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeriodLength is the settlement cadence of the Up/Down markets.
type PeriodLength time.Duration

const (
	Period15m PeriodLength = PeriodLength(15 * time.Minute)
	Period1h  PeriodLength = PeriodLength(time.Hour)
)

// ParsePeriodLength accepts "15m" or "1h".
func ParsePeriodLength(s string) (PeriodLength, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "15m", "15min", "":
		return Period15m, nil
	case "1h", "60m", "hourly":
		return Period1h, nil
	}
	return 0, fmt.Errorf("domain: unsupported period %q", s)
}

// Seconds returns the period length in whole seconds.
func (p PeriodLength) Seconds() int64 { return int64(time.Duration(p) / time.Second) }

// Duration converts to time.Duration.
func (p PeriodLength) Duration() time.Duration { return time.Duration(p) }

// Label returns the slug label ("15m" or "1h").
func (p PeriodLength) Label() string {
	if p == Period1h {
		return "1h"
	}
	return "15m"
}

// Start returns the unix timestamp of the period containing t.
func (p PeriodLength) Start(t time.Time) int64 {
	s := p.Seconds()
	return (t.Unix() / s) * s
}

// End returns the unix timestamp at which the period starting at start ends.
func (p PeriodLength) End(start int64) int64 { return start + p.Seconds() }

// NextBoundary returns the start of the period after the one containing t.
func (p PeriodLength) NextBoundary(t time.Time) time.Time {
	return time.Unix(p.End(p.Start(t)), 0)
}

// Slug renders the market slug for a slug prefix and period start, e.g.
// "btc-updown-15m-1767796200".
func (p PeriodLength) Slug(prefix string, start int64) string {
	return fmt.Sprintf("%s-updown-%s-%d", prefix, p.Label(), start)
}

// SlugTimestamp extracts the trailing unix timestamp from an Up/Down slug.
// It returns 0 when the slug carries no timestamp.
func SlugTimestamp(slug string) int64 {
	i := strings.LastIndexByte(slug, '-')
	if i < 0 || i == len(slug)-1 {
		return 0
	}
	ts, err := strconv.ParseInt(slug[i+1:], 10, 64)
	if err != nil || ts < 0 {
		return 0
	}
	return ts
}
