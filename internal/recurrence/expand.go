// Package recurrence turns a base event and its repeat rule into the
// ordered list of dated occurrences.
package recurrence

import (
	"evcal/internal/model"
)

// DefaultHorizonMonths bounds rules that carry no end date.
const DefaultHorizonMonths = 12

// Boundary returns the last date an event may produce an occurrence on.
func Boundary(ev model.BaseEvent) model.Date {
	if ev.Recurrence != nil && ev.Recurrence.EndDate != nil {
		return *ev.Recurrence.EndDate
	}
	return ev.Date.AddMonths(DefaultHorizonMonths)
}

// Expand returns every occurrence of ev ordered by date. The anchor
// occurrence is always first, even when the rule's end date precedes it.
//
// The result is a pure function of ev: each step strictly advances the
// cursor, and the loop stops once the cursor passes the boundary.
func Expand(ev model.BaseEvent) []model.Occurrence {
	out := []model.Occurrence{anchorOccurrence(ev)}
	if !ev.Repeats() {
		return out
	}

	rule := *ev.Recurrence
	anchor := ev.Date
	boundary := Boundary(ev)

	current := anchor
	for !current.After(boundary) {
		current = advance(rule, current, boundary)
		if current.After(boundary) {
			break
		}
		if current != anchor {
			out = append(out, repeatOccurrence(ev, current))
		}
	}
	return out
}

// ExpandAll flattens Expand over events, keeping the events' order.
func ExpandAll(events []model.BaseEvent) []model.Occurrence {
	out := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		out = append(out, Expand(ev)...)
	}
	return out
}

// Between returns the occurrences of events whose date lies in [from, to].
func Between(events []model.BaseEvent, from, to model.Date) []model.Occurrence {
	out := make([]model.Occurrence, 0)
	for _, ev := range events {
		if ev.Date.After(to) {
			continue
		}
		for _, occ := range Expand(ev) {
			if occ.OccurrenceDate.Before(from) || occ.OccurrenceDate.After(to) {
				continue
			}
			out = append(out, occ)
		}
	}
	return out
}

// advance moves the cursor one step past current.
func advance(rule model.RecurrenceRule, current, boundary model.Date) model.Date {
	step := rule.Step()
	switch rule.Kind {
	case model.KindDaily:
		return current.AddDays(step)
	case model.KindWeekly:
		return current.AddDays(7 * step)
	case model.KindMonthly:
		// Steps from the cursor, so once a short month clamps the day
		// (Jan 31 -> Feb 29) later repeats keep the clamped day.
		return current.AddMonths(step)
	case model.KindCustom:
		if !rule.HasDays() {
			return current.AddDays(step)
		}
		// The interval does not apply to weekday sets: walk one day at a
		// time to the next listed weekday.
		next := current.AddDays(1)
		for !onDays(next, rule.DaysOfWeek) && !next.After(boundary) {
			next = next.AddDays(1)
		}
		return next
	default:
		// Unknown kinds produce no repeats.
		return boundary.AddDays(1)
	}
}

func onDays(d model.Date, days []int) bool {
	wd := int(d.Weekday())
	for _, x := range days {
		if x == wd {
			return true
		}
	}
	return false
}

func anchorOccurrence(ev model.BaseEvent) model.Occurrence {
	return model.Occurrence{
		BaseEvent:      ev.Clone(),
		OccurrenceID:   ev.ID,
		OccurrenceDate: ev.Date,
		SourceID:       ev.ID,
	}
}

func repeatOccurrence(ev model.BaseEvent, on model.Date) model.Occurrence {
	return model.Occurrence{
		BaseEvent:      ev.Clone(),
		OccurrenceID:   ev.ID + "-" + on.String(),
		OccurrenceDate: on,
		SourceID:       ev.ID,
	}
}
