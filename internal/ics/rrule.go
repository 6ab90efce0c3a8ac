package ics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"evcal/internal/model"
)

var (
	errUnsupportedFreq = errors.New("unsupported RRULE frequency")
	errUnsupportedRule = errors.New("unsupported RRULE")
)

// sundayFirst maps weekday indices (Sunday = 0) to rrule weekdays.
var sundayFirst = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ruleToRRule renders r as an RRULE value (without the "RRULE:" prefix).
func ruleToRRule(r model.RecurrenceRule) (string, error) {
	opt := rrule.ROption{Interval: r.Step()}

	switch r.Kind {
	case model.KindDaily:
		opt.Freq = rrule.DAILY
	case model.KindWeekly:
		opt.Freq = rrule.WEEKLY
	case model.KindMonthly:
		opt.Freq = rrule.MONTHLY
	case model.KindCustom:
		if !r.HasDays() {
			opt.Freq = rrule.DAILY
			break
		}
		// Weekday sets step day by day, so the interval never applies.
		opt.Freq = rrule.WEEKLY
		opt.Interval = 1
		days := append([]int(nil), r.DaysOfWeek...)
		sort.Ints(days)
		for _, d := range days {
			if d < 0 || d > 6 {
				return "", fmt.Errorf("%w: %d", model.ErrInvalidWeekday, d)
			}
			opt.Byweekday = append(opt.Byweekday, sundayFirst[d])
		}
	default:
		return "", fmt.Errorf("%w %q", model.ErrInvalidKind, string(r.Kind))
	}

	if r.EndDate != nil {
		// End of the end date so an UNTIL-aware reader keeps the last day.
		e := r.EndDate
		opt.Until = time.Date(e.Year, e.Month, e.Day, 23, 59, 59, 0, time.UTC)
	}
	return opt.RRuleString(), nil
}

// rruleToRule maps an RRULE value back onto a recurrence rule. start is the
// event's DTSTART; it resolves COUNT into an end date and checks BY* parts
// against the anchor. Shapes the model cannot carry fail with
// errUnsupportedRule so the VEVENT is skipped rather than misread.
//
// NOTE: what maps, roughly:
//   - DAILY / WEEKLY without BYDAY -> daily / weekly, INTERVAL kept
//   - WEEKLY;BYDAY=<start's weekday> -> weekly, INTERVAL kept
//   - BYDAY sets with INTERVAL=1 -> custom (the model walks day by day)
//   - MONTHLY, YEARLY on the start's day -> monthly (YEARLY is 12 months)
//
// Nth-weekday, BYSETPOS, extra month days and sub-day parts are refused.
func rruleToRule(value string, start time.Time) (*model.RecurrenceRule, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, err
	}
	if len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return nil, fmt.Errorf("%w: %s", errUnsupportedRule, value)
	}

	rule := &model.RecurrenceRule{Interval: opt.Interval}
	if rule.Interval <= 0 {
		rule.Interval = 1
	}

	switch opt.Freq {
	case rrule.DAILY, rrule.WEEKLY:
		if len(opt.Bymonthday) > 0 || len(opt.Bymonth) > 0 {
			return nil, fmt.Errorf("%w: %s", errUnsupportedRule, value)
		}
		switch {
		case len(opt.Byweekday) == 0 && opt.Freq == rrule.DAILY:
			rule.Kind = model.KindDaily
		case len(opt.Byweekday) == 0:
			rule.Kind = model.KindWeekly
		case opt.Freq == rrule.WEEKLY && len(opt.Byweekday) == 1 && weekdayIndex(opt.Byweekday[0]) == int(start.Weekday()):
			// Every N weeks on the anchor's own weekday.
			rule.Kind = model.KindWeekly
		case rule.Interval > 1:
			// Weekday sets repeat every week; a wider step has no equivalent.
			return nil, fmt.Errorf("%w: %s", errUnsupportedRule, value)
		default:
			rule.Kind = model.KindCustom
			for _, wd := range opt.Byweekday {
				rule.DaysOfWeek = append(rule.DaysOfWeek, weekdayIndex(wd))
			}
			sort.Ints(rule.DaysOfWeek)
		}
	case rrule.MONTHLY, rrule.YEARLY:
		if len(opt.Byweekday) > 0 {
			return nil, fmt.Errorf("%w: %s", errUnsupportedRule, value)
		}
		if !onlyValue(opt.Bymonthday, start.Day()) {
			return nil, fmt.Errorf("%w: %s", errUnsupportedRule, value)
		}
		if opt.Freq == rrule.MONTHLY && len(opt.Bymonth) > 0 ||
			opt.Freq == rrule.YEARLY && !onlyValue(opt.Bymonth, int(start.Month())) {
			return nil, fmt.Errorf("%w: %s", errUnsupportedRule, value)
		}
		rule.Kind = model.KindMonthly
		if opt.Freq == rrule.YEARLY {
			rule.Interval *= 12
		}
	default:
		return nil, fmt.Errorf("%w: %v", errUnsupportedFreq, opt.Freq)
	}

	if !opt.Until.IsZero() {
		end := model.DateOf(opt.Until.UTC())
		rule.EndDate = &end
	}
	if opt.Count > 0 {
		// COUNT becomes the date of the last instance.
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, err
		}
		all := r.All()
		if len(all) > 0 {
			end := model.DateOf(all[len(all)-1])
			if rule.EndDate == nil || end.Before(*rule.EndDate) {
				rule.EndDate = &end
			}
		}
	}
	return rule, nil
}

// weekdayIndex converts an rrule weekday (Monday = 0) to Sunday = 0.
func weekdayIndex(wd rrule.Weekday) int {
	return (wd.Day() + 1) % 7
}

// onlyValue reports whether values is empty or holds just want.
func onlyValue(values []int, want int) bool {
	return len(values) == 0 || len(values) == 1 && values[0] == want
}
