package schedule

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/itgyani/blogpulse/errors"
)

// FrequencyKind is the recurrence cadence of a series
type FrequencyKind string

const (
	FrequencyDaily    FrequencyKind = "daily"
	FrequencyWeekly   FrequencyKind = "weekly"
	FrequencyBiweekly FrequencyKind = "biweekly"
	FrequencyMonthly  FrequencyKind = "monthly"
	FrequencyCustom   FrequencyKind = "custom"
)

// FrequencyUnit is the unit of a custom cadence
type FrequencyUnit string

const (
	UnitHours  FrequencyUnit = "hours"
	UnitDays   FrequencyUnit = "days"
	UnitWeeks  FrequencyUnit = "weeks"
	UnitMonths FrequencyUnit = "months"
)

const day = 24 * time.Hour

// maxCustomCount caps custom cadences at about ten years per unit
var maxCustomCount = map[FrequencyUnit]int{
	UnitHours:  10 * 365 * 24,
	UnitDays:   10 * 365,
	UnitWeeks:  10 * 52,
	UnitMonths: 10 * 12,
}

// FrequencyPolicy describes how often a series recurs.
// Unit and Count are only meaningful for FrequencyCustom.
type FrequencyPolicy struct {
	Kind  FrequencyKind `json:"kind"`
	Unit  FrequencyUnit `json:"unit,omitempty"`
	Count int           `json:"count,omitempty"`
}

// Daily recurs every 24 hours
func Daily() FrequencyPolicy { return FrequencyPolicy{Kind: FrequencyDaily} }

// Weekly recurs every 7 days
func Weekly() FrequencyPolicy { return FrequencyPolicy{Kind: FrequencyWeekly} }

// Biweekly recurs every 14 days
func Biweekly() FrequencyPolicy { return FrequencyPolicy{Kind: FrequencyBiweekly} }

// Monthly recurs on the same day of each calendar month, clamped to month end
func Monthly() FrequencyPolicy { return FrequencyPolicy{Kind: FrequencyMonthly} }

// Custom recurs every count units. Call Validate before use.
func Custom(unit FrequencyUnit, count int) FrequencyPolicy {
	return FrequencyPolicy{Kind: FrequencyCustom, Unit: unit, Count: count}
}

// Validate rejects unknown kinds and malformed custom cadences
func (p FrequencyPolicy) Validate() error {
	switch p.Kind {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return nil
	case FrequencyCustom:
		switch p.Unit {
		case UnitHours, UnitDays, UnitWeeks, UnitMonths:
		default:
			return errors.NewValidationError("unknown frequency unit %q", p.Unit)
		}
		if p.Count <= 0 {
			return errors.NewValidationError("custom frequency count must be > 0, got %d", p.Count)
		}
		if limit := maxCustomCount[p.Unit]; p.Count > limit {
			return errors.NewValidationError("custom frequency count must be <= %d %s, got %d", limit, p.Unit, p.Count)
		}
		return nil
	case "":
		return errors.NewValidationError("frequency is required")
	default:
		return errors.NewValidationError("unknown frequency %q", p.Kind)
	}
}

// String renders the policy in the form ParseFrequency accepts
func (p FrequencyPolicy) String() string {
	if p.Kind != FrequencyCustom {
		return string(p.Kind)
	}
	return "custom:" + strconv.Itoa(p.Count) + " " + string(p.Unit)
}

// MarshalText encodes the policy as its String form
func (p FrequencyPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the String form
func (p *FrequencyPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseFrequency parses "daily", "weekly", "biweekly", "monthly" or a custom
// cadence such as "custom:6h", "custom:3 days" or "custom:2 weeks".
func ParseFrequency(s string) (FrequencyPolicy, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	switch FrequencyKind(text) {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return FrequencyPolicy{Kind: FrequencyKind(text)}, nil
	}

	rest, ok := strings.CutPrefix(text, "custom:")
	if !ok {
		return FrequencyPolicy{}, errors.NewValidationError("unknown frequency %q", s)
	}
	rest = strings.TrimSpace(rest)

	digits := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits <= 0 {
		return FrequencyPolicy{}, errors.NewValidationError("custom frequency %q must start with a count", s)
	}
	count, err := strconv.Atoi(rest[:digits])
	if err != nil {
		return FrequencyPolicy{}, errors.NewValidationError("custom frequency %q: bad count", s)
	}

	unit, ok := parseUnit(strings.TrimSpace(rest[digits:]))
	if !ok {
		return FrequencyPolicy{}, errors.NewValidationError("custom frequency %q: unknown unit", s)
	}

	policy := Custom(unit, count)
	if err := policy.Validate(); err != nil {
		return FrequencyPolicy{}, err
	}
	return policy, nil
}

func parseUnit(s string) (FrequencyUnit, bool) {
	switch s {
	case "h", "hr", "hrs", "hour", "hours":
		return UnitHours, true
	case "d", "day", "days":
		return UnitDays, true
	case "w", "wk", "week", "weeks":
		return UnitWeeks, true
	case "mo", "month", "months":
		return UnitMonths, true
	}
	return "", false
}

// NextDueAt returns the first occurrence strictly after from.
// Fixed cadences add durations; monthly cadences add calendar months, keeping
// the day of month and clamping to the last day of shorter months. Time of day
// and location are preserved. A policy that fails Validate is treated as daily,
// except that an oversized custom count is clamped to its maximum.
func NextDueAt(p FrequencyPolicy, from time.Time) time.Time {
	switch p.Kind {
	case FrequencyDaily:
		return from.Add(day)
	case FrequencyWeekly:
		return from.Add(7 * day)
	case FrequencyBiweekly:
		return from.Add(14 * day)
	case FrequencyMonthly:
		return addMonths(from, 1)
	case FrequencyCustom:
		limit, ok := maxCustomCount[p.Unit]
		if !ok || p.Count <= 0 {
			break
		}
		count := min(p.Count, limit)
		switch p.Unit {
		case UnitHours:
			return from.Add(time.Duration(count) * time.Hour)
		case UnitDays:
			return from.Add(time.Duration(count) * day)
		case UnitWeeks:
			return from.Add(time.Duration(count) * 7 * day)
		case UnitMonths:
			return addMonths(from, count)
		}
	}
	return from.Add(day)
}

// AdvancePast steps from due by whole periods until the result is strictly
// after ref. A series that fell behind resumes on its own cadence instead of
// replaying every missed occurrence.
func AdvancePast(p FrequencyPolicy, due, ref time.Time) time.Time {
	next := NextDueAt(p, due)
	for !next.After(ref) {
		next = NextDueAt(p, next)
	}
	return next
}

// addMonths adds n calendar months, clamping the day to the target month's length
func addMonths(t time.Time, n int) time.Time {
	year, month, d := t.Date()
	hour, minute, sec := t.Clock()

	// Day 1 never overflows, so the target month is exact
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
