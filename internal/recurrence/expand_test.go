package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"evcal/internal/model"
)

func date(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func datePtr(t *testing.T, s string) *model.Date {
	d := date(t, s)
	return &d
}

func dates(occs []model.Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.OccurrenceDate.String())
	}
	return out
}

func event(t *testing.T, id, on string, rule *model.RecurrenceRule) model.BaseEvent {
	return model.BaseEvent{
		ID:         id,
		Title:      "Standup",
		Date:       date(t, on),
		Time:       model.Clock{Hour: 9},
		Color:      "#3b82f6",
		Recurrence: rule,
	}
}

func TestExpandSingleEvent(t *testing.T) {
	ev := event(t, "a", "2024-05-01", nil)
	occs := Expand(ev)
	require.Len(t, occs, 1)
	assert.Equal(t, "a", occs[0].OccurrenceID)
	assert.Equal(t, "a", occs[0].SourceID)
	assert.Equal(t, ev.Date, occs[0].OccurrenceDate)
	assert.True(t, occs[0].IsAnchor())
}

func TestExpandNoneKindIsSingle(t *testing.T) {
	ev := event(t, "a", "2024-05-01", &model.RecurrenceRule{Kind: model.KindNone, Interval: 1})
	assert.Len(t, Expand(ev), 1)
}

func TestExpandDaily(t *testing.T) {
	ev := event(t, "d", "2024-01-01", &model.RecurrenceRule{
		Kind: model.KindDaily, Interval: 2, EndDate: datePtr(t, "2024-01-07"),
	})
	occs := Expand(ev)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-05", "2024-01-07"}, dates(occs))
	assert.Equal(t, "d", occs[0].OccurrenceID)
	assert.Equal(t, "d-2024-01-03", occs[1].OccurrenceID)
	for _, o := range occs {
		assert.Equal(t, "d", o.SourceID)
		assert.Equal(t, ev.Date, o.Date, "date stays the anchor")
		assert.Equal(t, ev.Time, o.Time)
	}
}

func TestExpandWeekly(t *testing.T) {
	ev := event(t, "w", "2024-03-04", &model.RecurrenceRule{
		Kind: model.KindWeekly, Interval: 1, EndDate: datePtr(t, "2024-03-25"),
	})
	assert.Equal(t, []string{"2024-03-04", "2024-03-11", "2024-03-18", "2024-03-25"}, dates(Expand(ev)))
}

func TestExpandCustomDays(t *testing.T) {
	ev := event(t, "c", "2024-03-04", &model.RecurrenceRule{
		Kind: model.KindCustom, Interval: 1, DaysOfWeek: []int{1, 3, 5}, EndDate: datePtr(t, "2024-03-15"),
	})
	occs := Expand(ev)
	assert.Equal(t, []string{
		"2024-03-04", "2024-03-06", "2024-03-08",
		"2024-03-11", "2024-03-13", "2024-03-15",
	}, dates(occs))
	for _, o := range occs {
		wd := o.OccurrenceDate.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
}

// Weekday sets step one day at a time regardless of the interval. This
// mirrors how existing calendars behave; changing it is a product decision.
func TestExpandCustomDaysIgnoresInterval(t *testing.T) {
	withInterval := event(t, "c", "2024-03-04", &model.RecurrenceRule{
		Kind: model.KindCustom, Interval: 3, DaysOfWeek: []int{1, 3, 5}, EndDate: datePtr(t, "2024-03-15"),
	})
	plain := withInterval.Clone()
	plain.Recurrence.Interval = 1
	assert.Equal(t, dates(Expand(plain)), dates(Expand(withInterval)))
}

func TestExpandCustomWithoutDaysActsDaily(t *testing.T) {
	ev := event(t, "c", "2024-01-01", &model.RecurrenceRule{
		Kind: model.KindCustom, Interval: 3, EndDate: datePtr(t, "2024-01-10"),
	})
	assert.Equal(t, []string{"2024-01-01", "2024-01-04", "2024-01-07", "2024-01-10"}, dates(Expand(ev)))
}

func TestExpandCustomAnchorOffPattern(t *testing.T) {
	// Sunday anchor with a Mon/Wed pattern: the anchor is still the first
	// occurrence.
	ev := event(t, "c", "2024-03-03", &model.RecurrenceRule{
		Kind: model.KindCustom, Interval: 1, DaysOfWeek: []int{1, 3}, EndDate: datePtr(t, "2024-03-10"),
	})
	assert.Equal(t, []string{"2024-03-03", "2024-03-04", "2024-03-06"}, dates(Expand(ev)))
}

func TestExpandMonthlyClampsToMonthEnd(t *testing.T) {
	ev := event(t, "m", "2024-01-31", &model.RecurrenceRule{
		Kind: model.KindMonthly, Interval: 1, EndDate: datePtr(t, "2024-05-31"),
	})
	// The clamped day carries forward to later months.
	assert.Equal(t, []string{
		"2024-01-31", "2024-02-29", "2024-03-29", "2024-04-29", "2024-05-29",
	}, dates(Expand(ev)))
}

func TestExpandMonthlyClampAcrossInterval(t *testing.T) {
	ev := event(t, "q", "2023-11-30", &model.RecurrenceRule{
		Kind: model.KindMonthly, Interval: 3, EndDate: datePtr(t, "2024-12-31"),
	})
	assert.Equal(t, []string{
		"2023-11-30", "2024-02-29", "2024-05-29", "2024-08-29", "2024-11-29",
	}, dates(Expand(ev)))
}

func TestExpandMonthlyInterval(t *testing.T) {
	ev := event(t, "m", "2024-01-15", &model.RecurrenceRule{
		Kind: model.KindMonthly, Interval: 5, EndDate: datePtr(t, "2024-12-31"),
	})
	assert.Equal(t, []string{"2024-01-15", "2024-06-15", "2024-11-15"}, dates(Expand(ev)))
}

func TestExpandDefaultHorizon(t *testing.T) {
	ev := event(t, "w", "2024-01-01", &model.RecurrenceRule{Kind: model.KindMonthly, Interval: 1})
	occs := Expand(ev)
	require.Len(t, occs, 13)
	assert.Equal(t, "2025-01-01", occs[len(occs)-1].OccurrenceDate.String())
	assert.Equal(t, date(t, "2025-01-01"), Boundary(ev))
}

func TestExpandNonPositiveIntervalCoerced(t *testing.T) {
	for _, interval := range []int{0, -4} {
		ev := event(t, "z", "2024-01-01", &model.RecurrenceRule{
			Kind: model.KindDaily, Interval: interval, EndDate: datePtr(t, "2024-01-03"),
		})
		assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, dates(Expand(ev)))
	}
}

func TestExpandEndBeforeAnchorKeepsAnchorOnly(t *testing.T) {
	ev := event(t, "e", "2024-05-01", &model.RecurrenceRule{
		Kind: model.KindDaily, Interval: 1, EndDate: datePtr(t, "2024-04-01"),
	})
	assert.Equal(t, []string{"2024-05-01"}, dates(Expand(ev)))
}

func TestExpandUnknownKindTerminates(t *testing.T) {
	ev := event(t, "u", "2024-05-01", &model.RecurrenceRule{Kind: "yearly", Interval: 1})
	assert.Equal(t, []string{"2024-05-01"}, dates(Expand(ev)))
}

func TestExpandProperties(t *testing.T) {
	rules := []*model.RecurrenceRule{
		nil,
		{Kind: model.KindDaily, Interval: 1},
		{Kind: model.KindDaily, Interval: 9},
		{Kind: model.KindWeekly, Interval: 2},
		{Kind: model.KindMonthly, Interval: 1},
		{Kind: model.KindMonthly, Interval: 7},
		{Kind: model.KindCustom, Interval: 1, DaysOfWeek: []int{0, 6}},
		{Kind: model.KindCustom, Interval: 4},
		{Kind: model.KindWeekly, Interval: 1, EndDate: datePtr(t, "2024-02-29")},
	}
	for _, anchor := range []string{"2024-01-31", "2024-02-29", "2024-03-03"} {
		for _, rule := range rules {
			ev := event(t, "p", anchor, rule)
			first := Expand(ev)
			second := Expand(ev)

			assert.Equal(t, first, second, "deterministic")
			require.NotEmpty(t, first)
			assert.Equal(t, ev.Date, first[0].OccurrenceDate, "anchor first")

			boundary := Boundary(ev)
			seen := map[string]bool{}
			for i, o := range first {
				assert.False(t, seen[o.OccurrenceID], "unique occurrence id %s", o.OccurrenceID)
				seen[o.OccurrenceID] = true
				if i == 0 {
					continue
				}
				assert.False(t, o.OccurrenceDate.After(boundary), "bounded")
				assert.True(t, first[i-1].OccurrenceDate.Before(o.OccurrenceDate), "ordered")
			}
		}
	}
}

// rrule-go serves as an independent reference for the simple frequencies.
func TestExpandMatchesRRule(t *testing.T) {
	start := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	end := model.DateOf(until)

	cases := []struct {
		name string
		rule model.RecurrenceRule
		opt  rrule.ROption
	}{
		{
			name: "daily",
			rule: model.RecurrenceRule{Kind: model.KindDaily, Interval: 3, EndDate: &end},
			opt:  rrule.ROption{Freq: rrule.DAILY, Interval: 3},
		},
		{
			name: "weekly",
			rule: model.RecurrenceRule{Kind: model.KindWeekly, Interval: 2, EndDate: &end},
			opt:  rrule.ROption{Freq: rrule.WEEKLY, Interval: 2},
		},
		{
			name: "custom days",
			rule: model.RecurrenceRule{Kind: model.KindCustom, Interval: 1, DaysOfWeek: []int{1, 3, 5}, EndDate: &end},
			opt:  rrule.ROption{Freq: rrule.DAILY, Byweekday: []rrule.Weekday{rrule.MO, rrule.WE, rrule.FR}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opt.Dtstart = start
			tc.opt.Until = until
			r, err := rrule.NewRRule(tc.opt)
			require.NoError(t, err)

			want := make([]string, 0)
			for _, at := range r.All() {
				want = append(want, model.DateOf(at).String())
			}

			rule := tc.rule
			ev := model.BaseEvent{ID: "x", Date: model.DateOf(start), Recurrence: &rule}
			assert.Equal(t, want, dates(Expand(ev)))
		})
	}
}

func TestBetween(t *testing.T) {
	events := []model.BaseEvent{
		event(t, "a", "2024-03-01", &model.RecurrenceRule{Kind: model.KindWeekly, Interval: 1}),
		event(t, "b", "2024-03-10", nil),
		event(t, "c", "2024-04-02", nil),
	}
	got := Between(events, date(t, "2024-03-05"), date(t, "2024-03-16"))
	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.OccurrenceID)
	}
	assert.Equal(t, []string{"a-2024-03-08", "a-2024-03-15", "b"}, ids)
}

func TestExpandAllKeepsEventOrder(t *testing.T) {
	events := []model.BaseEvent{
		event(t, "z", "2024-03-02", nil),
		event(t, "a", "2024-03-01", &model.RecurrenceRule{Kind: model.KindDaily, Interval: 1, EndDate: datePtr(t, "2024-03-02")}),
	}
	got := ExpandAll(events)
	require.Len(t, got, 3)
	assert.Equal(t, "z", got[0].OccurrenceID)
	assert.Equal(t, "a", got[1].OccurrenceID)
	assert.Equal(t, "a-2024-03-02", got[2].OccurrenceID)
}
