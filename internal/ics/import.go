package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

// DefaultColor is assigned to imported events without a COLOR property.
const DefaultColor = "#3b82f6"

// Parse reads a VCALENDAR payload into base events. VEVENTs that cannot be
// mapped (missing UID or DTSTART, unsupported RRULE, RECURRENCE-ID
// overrides) are logged and skipped.
func Parse(body []byte) ([]model.BaseEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]model.BaseEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := toBaseEvent(ve)
		if err != nil {
			appLog.Warn("ics vevent skipped", "reason", err.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

func toBaseEvent(ve *ical.VEvent) (model.BaseEvent, error) {
	var out model.BaseEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uid.Value

	// Overrides of single instances are recurrence exceptions, which the
	// model does not carry.
	if ve.GetProperty("RECURRENCE-ID") != nil {
		return out, errors.New("recurrence override for " + out.ID)
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	out.Color = DefaultColor
	if p := ve.GetProperty(propColor); p != nil && p.Value != "" {
		out.Color = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART for " + out.ID)
	}
	start, err := startTime(ve, dtStart)
	if err != nil {
		return out, err
	}
	out.Date = model.DateOf(start)
	out.Time = model.Clock{Hour: start.Hour(), Minute: start.Minute()}

	// TODO: EXDATE is not read. The model has no per-occurrence exceptions,
	// so an imported series with exclusions shows the excluded days.
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rule, err := rruleToRule(p.Value, start)
		if err != nil {
			return out, err
		}
		out.Recurrence = rule
	}
	return out, nil
}

// startTime resolves DTSTART into the local calendar. Zoned values use the
// library's TZID handling; floating and date-only values are read as local.
func startTime(ve *ical.VEvent, prop *ical.IANAProperty) (time.Time, error) {
	if _, zoned := prop.ICalParameters["TZID"]; zoned || strings.HasSuffix(prop.Value, "Z") {
		if t, err := ve.GetStartAt(); err == nil {
			return t.In(time.Local), nil
		}
	}
	return parseICSTime(prop.Value)
}

// parseICSTime parses a basic DATE or DATE-TIME value.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(time.Local), nil
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation(floatingLayout, v, time.Local)
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, time.Local)
}

// AssignIDs gives a fresh id to every imported event whose id is already
// taken (by exists, or earlier in events).
func AssignIDs(events []model.BaseEvent, exists func(id string) bool) []model.BaseEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.BaseEvent, 0, len(events))
	for _, ev := range events {
		_, dup := seen[ev.ID]
		if ev.ID == "" || dup || exists(ev.ID) {
			ev.ID = model.NewID()
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}
