package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itgyani/blogpulse/errors"
)

func TestNextDueAtFixedCadences(t *testing.T) {
	from := time.Date(2026, 3, 7, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		policy FrequencyPolicy
		want   time.Time
	}{
		{Daily(), from.Add(24 * time.Hour)},
		{Weekly(), from.Add(7 * 24 * time.Hour)},
		{Biweekly(), from.Add(14 * 24 * time.Hour)},
		{Custom(UnitHours, 6), from.Add(6 * time.Hour)},
		{Custom(UnitDays, 3), from.Add(72 * time.Hour)},
		{Custom(UnitWeeks, 2), from.Add(14 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextDueAt(tt.policy, from)))
		})
	}
}

func TestNextDueAtMonthlyClampsToMonthEnd(t *testing.T) {
	tests := []struct {
		name   string
		policy FrequencyPolicy
		from   time.Time
		want   time.Time
	}{
		{"jan 31 to feb 28", Monthly(), time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC), time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC)},
		{"leap year", Monthly(), time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC)},
		{"mar 31 to apr 30", Monthly(), time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC), time.Date(2026, 4, 30, 8, 0, 0, 0, time.UTC)},
		{"mid month", Monthly(), time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"year rollover", Monthly(), time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2027, 1, 31, 23, 59, 0, 0, time.UTC)},
		{"custom 13 months", Custom(UnitMonths, 13), time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDueAt(tt.policy, tt.from)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestNextDueAtPreservesLocationAndTimeOfDay(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	from := time.Date(2026, 1, 31, 7, 45, 12, 500, loc)

	got := NextDueAt(Monthly(), from)

	assert.Equal(t, loc, got.Location())
	assert.Equal(t, time.February, got.Month())
	assert.Equal(t, 28, got.Day())
	h, m, s := got.Clock()
	assert.Equal(t, []int{7, 45, 12}, []int{h, m, s})
	assert.Equal(t, 500, got.Nanosecond())
}

func TestNextDueAtStrictlyAfterFrom(t *testing.T) {
	policies := []FrequencyPolicy{
		Daily(), Weekly(), Biweekly(), Monthly(),
		Custom(UnitHours, 1), Custom(UnitDays, 1), Custom(UnitWeeks, 1), Custom(UnitMonths, 1),
		Custom(UnitMonths, 12), Custom(UnitHours, 1000),
		// out of range counts are clamped rather than overflowing
		Custom(UnitHours, 3000000), Custom(UnitDays, 200000), Custom(UnitWeeks, 20000),
		Custom(UnitMonths, 1_000_000_000),
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range policies {
		for d := 0; d < 366; d += 5 {
			from := start.Add(time.Duration(d)*24*time.Hour + time.Duration(d)*time.Minute)
			require.True(t, NextDueAt(p, from).After(from), "%s from %s", p, from)
		}
	}
}

func TestNextDueAtInvalidPolicyFallsBackToDaily(t *testing.T) {
	from := baseTime
	assert.True(t, from.Add(24*time.Hour).Equal(NextDueAt(FrequencyPolicy{Kind: "yearly"}, from)))
	assert.True(t, from.Add(24*time.Hour).Equal(NextDueAt(Custom(UnitHours, 0), from)))
}

func TestNextDueAtClampsOversizedCount(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	got := NextDueAt(Custom(UnitWeeks, 20000), from)
	assert.True(t, from.Add(520*7*24*time.Hour).Equal(got), "got %s", got)
}

func TestAdvancePast(t *testing.T) {
	due := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Not behind: one step
	got := AdvancePast(Weekly(), due, due.Add(time.Hour))
	assert.True(t, due.Add(7*24*time.Hour).Equal(got))

	// Far behind: lands on the first occurrence after ref, on cadence
	ref := due.Add(30 * time.Hour)
	got = AdvancePast(Custom(UnitHours, 6), due, ref)
	assert.True(t, due.Add(36*time.Hour).Equal(got))

	// ref exactly on an occurrence moves past it
	got = AdvancePast(Daily(), due, due.Add(48*time.Hour))
	assert.True(t, due.Add(72*time.Hour).Equal(got))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Daily().Validate())
	assert.NoError(t, Custom(UnitMonths, 2).Validate())
	assert.NoError(t, Custom(UnitHours, 87600).Validate())
	assert.NoError(t, Custom(UnitWeeks, 520).Validate())

	invalid := []FrequencyPolicy{
		{},
		{Kind: "yearly"},
		Custom(UnitHours, 0),
		Custom(UnitDays, -1),
		Custom("minutes", 5),
		Custom(UnitHours, 3000000),
		Custom(UnitDays, 200000),
		Custom(UnitWeeks, 20000),
		Custom(UnitMonths, 121),
	}
	for _, p := range invalid {
		err := p.Validate()
		assert.True(t, errors.IsValidationError(err), "%+v should be a validation error, got %v", p, err)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want FrequencyPolicy
	}{
		{"daily", Daily()},
		{" Weekly ", Weekly()},
		{"biweekly", Biweekly()},
		{"monthly", Monthly()},
		{"custom:6h", Custom(UnitHours, 6)},
		{"custom:6 hours", Custom(UnitHours, 6)},
		{"custom:3d", Custom(UnitDays, 3)},
		{"custom:2 weeks", Custom(UnitWeeks, 2)},
		{"custom: 1 month", Custom(UnitMonths, 1)},
		{"CUSTOM:4MO", Custom(UnitMonths, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrequency(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := ParseFrequency(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}

	for _, bad := range []string{"", "hourly", "custom:", "custom:h", "custom:0h", "custom:5 fortnights", "custom:-2d", "custom:20000 weeks"} {
		_, err := ParseFrequency(bad)
		assert.True(t, errors.IsValidationError(err), "%q", bad)
	}
}

func TestFrequencyJSON(t *testing.T) {
	var spec SeriesSpec
	require.NoError(t, json.Unmarshal([]byte(`{"topic":"Go","frequency":"custom:6h"}`), &spec))
	assert.Equal(t, Custom(UnitHours, 6), spec.Frequency)

	out, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"frequency":"custom:6 hours"`)

	err = json.Unmarshal([]byte(`{"topic":"Go","frequency":"hourly"}`), &spec)
	assert.Error(t, err)
}

func TestFirstDueAt(t *testing.T) {
	now := baseTime
	future := now.Add(72 * time.Hour)
	past := now.Add(-24 * time.Hour)

	assert.True(t, future.Equal(FirstDueAt(SeriesSpec{Frequency: Weekly(), StartAt: &future}, now)))
	assert.True(t, past.Equal(FirstDueAt(SeriesSpec{Frequency: Weekly(), StartAt: &past}, now)))
	assert.True(t, now.Add(7*24*time.Hour).Equal(FirstDueAt(SeriesSpec{Frequency: Weekly()}, now)))
}

func TestSeriesSpecNormalized(t *testing.T) {
	spec := SeriesSpec{
		Topic:          "  Go generics ",
		Keywords:       []string{" go ", "", "generics"},
		GenerateImages: true,
	}
	n := spec.Normalized()
	assert.Equal(t, "Go generics", n.Topic)
	assert.Equal(t, []string{"go", "generics"}, n.Keywords)
	assert.Equal(t, 1, n.ImageCount)

	spec.GenerateImages = false
	spec.ImageCount = 4
	assert.Equal(t, 0, spec.Normalized().ImageCount)
}
