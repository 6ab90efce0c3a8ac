package store

import (
	"time"

	"evcal/internal/model"
)

// MaxPerDay is how many occurrences a month cell lists before collapsing
// the rest into a count.
const MaxPerDay = 3

// Day is one cell of a month grid.
type Day struct {
	Date        model.Date         `json:"date"`
	InMonth     bool               `json:"inMonth"`
	Occurrences []model.Occurrence `json:"occurrences"`
	More        int                `json:"more"`
}

// Month is a calendar page: whole weeks covering every day of the month.
type Month struct {
	Year      int          `json:"year"`
	Month     time.Month   `json:"month"`
	WeekStart time.Weekday `json:"weekStart"`
	Weeks     [][]Day      `json:"weeks"`
}

// Month builds the grid for the month containing anchor. Weeks run from the
// start of the week holding the 1st to the end of the week holding the last
// day.
func (s *Store) Month(anchor model.Date, weekStart time.Weekday) Month {
	first := anchor.StartOfMonth()
	from := first.StartOfWeek(weekStart)
	to := anchor.EndOfMonth().EndOfWeek(weekStart)

	byDate := make(map[model.Date][]model.Occurrence)
	for _, occ := range s.OccurrencesBetween(from, to) {
		byDate[occ.OccurrenceDate] = append(byDate[occ.OccurrenceDate], occ)
	}

	out := Month{Year: first.Year, Month: first.Month, WeekStart: weekStart}
	var week []Day
	for d := from; !d.After(to); d = d.AddDays(1) {
		occs := byDate[d]
		day := Day{
			Date:        d,
			InMonth:     d.Month == first.Month && d.Year == first.Year,
			Occurrences: occs,
		}
		if len(occs) > MaxPerDay {
			day.Occurrences = occs[:MaxPerDay]
			day.More = len(occs) - MaxPerDay
		}
		if day.Occurrences == nil {
			day.Occurrences = []model.Occurrence{}
		}
		week = append(week, day)
		if len(week) == 7 {
			out.Weeks = append(out.Weeks, week)
			week = nil
		}
	}
	return out
}
