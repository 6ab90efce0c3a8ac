// Package ics converts base events to and from iCalendar. One VEVENT is
// written per base event, with the repeat rule carried as an RRULE, so
// other calendar applications expand the series themselves.
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "evcal/internal/log"
	"evcal/internal/model"
)

const (
	productID = "-//evcal//evcal 1.0//EN"

	// floatingLayout is a DATE-TIME with no zone: the reader's local time.
	floatingLayout = "20060102T150405"

	propColor = ical.ComponentProperty("COLOR")
)

// Export renders events as a VCALENDAR document. stamp becomes DTSTAMP.
func Export(events []model.BaseEvent, stamp time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp.UTC())
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		ve.SetProperty(ical.ComponentPropertyDtStart, ev.Time.On(ev.Date, time.UTC).Format(floatingLayout))
		if ev.Color != "" {
			ve.SetProperty(propColor, ev.Color)
		}
		if ev.Repeats() {
			rule, err := ruleToRRule(*ev.Recurrence)
			if err != nil {
				appLog.Error("ics export: rule skipped", err, "id", ev.ID)
				continue
			}
			ve.SetProperty(ical.ComponentPropertyRrule, rule)
		}
	}

	return []byte(cal.Serialize())
}
