package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

var (
	ErrInvalidKind    = errors.New("invalid recurrence kind")
	ErrInvalidWeekday = errors.New("day of week out of range")
)

// RecurrenceKind selects how a rule advances from one occurrence to the next.
type RecurrenceKind string

const (
	KindNone    RecurrenceKind = "none"
	KindDaily   RecurrenceKind = "daily"
	KindWeekly  RecurrenceKind = "weekly"
	KindMonthly RecurrenceKind = "monthly"
	KindCustom  RecurrenceKind = "custom"
)

// Valid reports whether k is one of the known kinds.
func (k RecurrenceKind) Valid() bool {
	switch k {
	case KindNone, KindDaily, KindWeekly, KindMonthly, KindCustom:
		return true
	}
	return false
}

func (k *RecurrenceKind) UnmarshalText(b []byte) error {
	v := RecurrenceKind(b)
	if v == "" {
		v = KindNone
	}
	if !v.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidKind, string(b))
	}
	*k = v
	return nil
}

// RecurrenceRule is the repeat policy attached to a base event.
type RecurrenceRule struct {
	Kind RecurrenceKind `json:"type"`

	// Interval is the number of days/weeks/months advanced per step.
	// Values <= 0 are treated as 1.
	Interval int `json:"interval"`

	// DaysOfWeek holds weekday indices with Sunday = 0. Only used by
	// KindCustom.
	DaysOfWeek []int `json:"daysOfWeek,omitempty"`

	// EndDate bounds generation inclusively. Nil means anchor + 12 months.
	EndDate *Date `json:"endDate,omitempty"`
}

// Step returns the effective interval.
func (r RecurrenceRule) Step() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// HasDays reports whether the rule repeats on an explicit weekday set.
func (r RecurrenceRule) HasDays() bool {
	return r.Kind == KindCustom && len(r.DaysOfWeek) > 0
}

// Validate checks the parts of a rule that cannot be coerced.
func (r RecurrenceRule) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidKind, string(r.Kind))
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
		}
	}
	return nil
}

func (r RecurrenceRule) Clone() RecurrenceRule {
	out := r
	out.DaysOfWeek = slices.Clone(r.DaysOfWeek)
	if r.EndDate != nil {
		end := *r.EndDate
		out.EndDate = &end
	}
	return out
}

// UnmarshalJSON accepts the loose shapes older blobs contain: a missing or
// non-positive interval becomes 1 and an empty endDate means "no end".
func (r *RecurrenceRule) UnmarshalJSON(b []byte) error {
	type plain RecurrenceRule
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	out := RecurrenceRule(p)
	if out.Kind == "" {
		out.Kind = KindNone
	}
	if out.Interval <= 0 {
		out.Interval = 1
	}
	if out.EndDate != nil && out.EndDate.IsZero() {
		out.EndDate = nil
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*r = out
	return nil
}

// BaseEvent is the user-authored, persisted record of one event and its
// optional repeat rule.
type BaseEvent struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Date        Date            `json:"date"`
	Time        Clock           `json:"time"`
	Color       string          `json:"color"`
	Recurrence  *RecurrenceRule `json:"recurrence,omitempty"`
}

// NewID returns a fresh base event id.
func NewID() string {
	return "event-" + uuid.NewString()
}

// Repeats reports whether the event carries an effective rule.
func (e BaseEvent) Repeats() bool {
	return e.Recurrence != nil && e.Recurrence.Kind != KindNone
}

// Normalize drops "none" rules and coerces the interval, so every event in a
// store has either no rule or an effective one.
func (e *BaseEvent) Normalize() {
	if e.Recurrence == nil {
		return
	}
	if e.Recurrence.Kind == KindNone || e.Recurrence.Kind == "" {
		e.Recurrence = nil
		return
	}
	if e.Recurrence.Interval <= 0 {
		e.Recurrence.Interval = 1
	}
}

// Clone returns a deep copy so callers cannot mutate store state through
// the rule pointer.
func (e BaseEvent) Clone() BaseEvent {
	out := e
	if e.Recurrence != nil {
		r := e.Recurrence.Clone()
		out.Recurrence = &r
	}
	return out
}

// Occurrence is one concrete calendar instance of a base event. It is
// derived on every read and never stored.
type Occurrence struct {
	BaseEvent

	// OccurrenceID is the base id for the anchor and "<id>-<yyyy-MM-dd>"
	// for every generated repeat.
	OccurrenceID   string `json:"occurrenceId"`
	OccurrenceDate Date   `json:"occurrenceDate"`
	SourceID       string `json:"sourceId"`
}

// IsAnchor reports whether o is the first occurrence of its series.
func (o Occurrence) IsAnchor() bool {
	return o.OccurrenceDate == o.Date
}
