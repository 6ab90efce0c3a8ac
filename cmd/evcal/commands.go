package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"evcal/internal/conflict"
	"evcal/internal/ics"
	"evcal/internal/model"
	"evcal/internal/store"
	"evcal/internal/web"
)

func dayCommand() *cli.Command {
	return &cli.Command{
		Name:  "day",
		Usage: "List the occurrences on one day.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "Day as yyyy-MM-dd (default today)"},
		},
		Action: func(c *cli.Context) error {
			date, err := dateFlag(c, "date", model.Today())
			if err != nil {
				return err
			}
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			printOccurrences(c.App.Writer, cal.store.OccurrencesOn(date))
			return nil
		},
	}
}

func monthCommand() *cli.Command {
	return &cli.Command{
		Name:  "month",
		Usage: "Print a month grid with up to three events per day.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "month", Usage: "Month as yyyy-MM (default this month)"},
		},
		Action: func(c *cli.Context) error {
			anchor := model.Today()
			if v := c.String("month"); v != "" {
				t, err := time.Parse("2006-01", v)
				if err != nil {
					return fmt.Errorf("month must be yyyy-MM: %w", err)
				}
				anchor = model.DateOf(t)
			}
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			weekStart := time.Sunday
			if cal.cfg.WeekStart == "monday" {
				weekStart = time.Monday
			}
			printMonth(c.App.Writer, cal.store.Month(anchor, weekStart))
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search every occurrence by text and category.",
		ArgsUsage: "[TERM]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Value: store.AllCategories, Usage: "Color to filter on"},
		},
		Action: func(c *cli.Context) error {
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			term := strings.Join(c.Args().Slice(), " ")
			printOccurrences(c.App.Writer, cal.store.Search(term, c.String("category")))
			return nil
		},
	}
}

// eventFlags are shared by add and conflict.
func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "Event title"},
		&cli.StringFlag{Name: "description", Usage: "Event description"},
		&cli.StringFlag{Name: "date", Usage: "Anchor date as yyyy-MM-dd", Required: true},
		&cli.StringFlag{Name: "time", Value: "09:00", Usage: "Start time as HH:mm"},
		&cli.StringFlag{Name: "color", Value: ics.DefaultColor, Usage: "Category color"},
		&cli.StringFlag{Name: "repeat", Value: string(model.KindNone), Usage: "none, daily, weekly, monthly or custom"},
		&cli.IntFlag{Name: "interval", Value: 1, Usage: "Repeat every N units"},
		&cli.IntSliceFlag{Name: "days", Usage: "Weekdays for custom repeats, 0=Sunday"},
		&cli.StringFlag{Name: "until", Usage: "Last repeat date as yyyy-MM-dd"},
	}
}

func eventFromFlags(c *cli.Context) (model.BaseEvent, error) {
	var ev model.BaseEvent
	date, err := model.ParseDate(c.String("date"))
	if err != nil {
		return ev, err
	}
	clock, err := model.ParseClock(c.String("time"))
	if err != nil {
		return ev, err
	}
	ev = model.BaseEvent{
		Title:       c.String("title"),
		Description: c.String("description"),
		Date:        date,
		Time:        clock,
		Color:       c.String("color"),
	}

	kind := model.RecurrenceKind(c.String("repeat"))
	if kind != model.KindNone {
		rule := &model.RecurrenceRule{
			Kind:       kind,
			Interval:   c.Int("interval"),
			DaysOfWeek: c.IntSlice("days"),
		}
		if v := c.String("until"); v != "" {
			end, err := model.ParseDate(v)
			if err != nil {
				return ev, err
			}
			rule.EndDate = &end
		}
		if err := rule.Validate(); err != nil {
			return ev, err
		}
		ev.Recurrence = rule
	}
	ev.Normalize()
	return ev, nil
}

func addCommand() *cli.Command {
	flags := append(eventFlags(), &cli.StringFlag{Name: "id", Usage: "Event id (default generated)"})
	return &cli.Command{
		Name:  "add",
		Usage: "Add an event; same-time collisions are reported, not blocked.",
		Flags: flags,
		Action: func(c *cli.Context) error {
			ev, err := eventFromFlags(c)
			if err != nil {
				return err
			}
			if strings.TrimSpace(ev.Title) == "" {
				return errors.New("--title is required")
			}
			ev.ID = c.String("id")
			if ev.ID == "" {
				ev.ID = model.NewID()
			}

			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			hits := conflict.NewDetector(cal.store).Conflicts(ev, "")
			if err := cal.store.Dispatch(c.Context, store.AddEvent{Event: ev}); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "added %s (%s)\n", ev.ID, ev.Recurrence.Describe())
			warnConflicts(c.App.ErrWriter, hits)
			return nil
		},
	}
}

func moveCommand() *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move an event series to a new anchor date.",
		ArgsUsage: "ID DATE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return errors.New("usage: evcal move ID yyyy-MM-dd")
			}
			id := c.Args().Get(0)
			date, err := model.ParseDate(c.Args().Get(1))
			if err != nil {
				return err
			}

			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			ev, ok := cal.store.Get(id)
			if !ok {
				return fmt.Errorf("event %q not found", id)
			}
			ev.Date = date
			hits := conflict.NewDetector(cal.store).Conflicts(ev, id)
			if err := cal.store.Dispatch(c.Context, store.MoveEvent{ID: id, NewDate: date}); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "moved %s to %s\n", id, date)
			warnConflicts(c.App.ErrWriter, hits)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an event and all of its repeats.",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("usage: evcal delete ID")
			}
			id := c.Args().First()

			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			if _, ok := cal.store.Get(id); !ok {
				return fmt.Errorf("event %q not found", id)
			}
			if err := cal.store.Dispatch(c.Context, store.DeleteEvent{ID: id}); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
			return nil
		},
	}
}

func conflictCommand() *cli.Command {
	flags := append(eventFlags(), &cli.StringFlag{Name: "exclude", Usage: "Event id to ignore (the event being edited)"})
	return &cli.Command{
		Name:  "conflict",
		Usage: "Check whether a candidate event collides with existing ones.",
		Flags: flags,
		Action: func(c *cli.Context) error {
			ev, err := eventFromFlags(c)
			if err != nil {
				return err
			}
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			hits := conflict.NewDetector(cal.store).Conflicts(ev, c.String("exclude"))
			if len(hits) == 0 {
				fmt.Fprintln(c.App.Writer, "no conflicts")
				return nil
			}
			printOccurrences(c.App.Writer, hits)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write all events as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			body := ics.Export(cal.store.Events(), time.Now())
			if out := c.String("out"); out != "" {
				return os.WriteFile(out, body, 0o644)
			}
			_, err = c.App.Writer.Write(body)
			return err
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import events from an .ics file or URL.",
		ArgsUsage: "FILE|URL",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("usage: evcal import FILE|URL")
			}
			src := c.Args().First()

			var body []byte
			var err error
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				body, err = ics.NewFetcher(nil).Fetch(c.Context, src)
			} else {
				body, err = os.ReadFile(src)
			}
			if err != nil {
				return err
			}

			cal, err := open(c)
			if err != nil {
				return err
			}
			defer cal.Close()

			ids, err := web.ImportICS(c.Context, cal.store, body)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "imported %d events\n", len(ids))
			return nil
		},
	}
}

func dateFlag(c *cli.Context, name string, def model.Date) (model.Date, error) {
	v := c.String(name)
	if v == "" {
		return def, nil
	}
	return model.ParseDate(v)
}

func printOccurrences(w io.Writer, occs []model.Occurrence) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tTIME\tTITLE\tCOLOR\tREPEAT\tID")
	for _, o := range occs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.OccurrenceDate, o.Time, o.Title, o.Color, o.Recurrence.Describe(), o.OccurrenceID)
	}
	_ = tw.Flush()
}

func printMonth(w io.Writer, m store.Month) {
	fmt.Fprintf(w, "%s %d\n", m.Month, m.Year)
	for _, week := range m.Weeks {
		for _, day := range week {
			if !day.InMonth || (len(day.Occurrences) == 0 && day.More == 0) {
				continue
			}
			fmt.Fprintf(w, "%s %s\n", day.Date.Weekday().String()[:3], day.Date)
			for _, o := range day.Occurrences {
				fmt.Fprintf(w, "  %s  %s\n", o.Time, o.Title)
			}
			if day.More > 0 {
				fmt.Fprintf(w, "  +%d more\n", day.More)
			}
		}
	}
}

func warnConflicts(w io.Writer, hits []model.Occurrence) {
	for _, o := range hits {
		fmt.Fprintf(w, "warning: overlaps %q at %s on %s\n", o.Title, o.Time, o.OccurrenceDate)
	}
}
