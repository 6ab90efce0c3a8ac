package model

import (
	"strconv"
	"strings"
)

var shortDayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Describe renders a short human summary of the rule, e.g.
// "Every 2 weeks until Mar 25, 2024" or "Weekly on Mon, Wed, Fri".
func (r *RecurrenceRule) Describe() string {
	if r == nil || r.Kind == KindNone || r.Kind == "" {
		return "No repeat"
	}

	n := r.Step()
	var b strings.Builder
	if r.HasDays() {
		names := make([]string, 0, len(r.DaysOfWeek))
		for _, d := range r.DaysOfWeek {
			if d >= 0 && d < len(shortDayNames) {
				names = append(names, shortDayNames[d])
			}
		}
		b.WriteString("Weekly on ")
		b.WriteString(strings.Join(names, ", "))
	} else {
		b.WriteString("Every ")
		if n > 1 {
			b.WriteString(strconv.Itoa(n))
			b.WriteString(" ")
		}
		b.WriteString(unitName(r.Kind, n))
	}

	if r.EndDate != nil {
		b.WriteString(" until ")
		b.WriteString(r.EndDate.time().Format("Jan 2, 2006"))
	}
	return b.String()
}

func unitName(k RecurrenceKind, n int) string {
	unit := "day"
	switch k {
	case KindWeekly:
		unit = "week"
	case KindMonthly:
		unit = "month"
	}
	if n != 1 {
		unit += "s"
	}
	return unit
}
