// Package store owns the authoritative collection of base events, applies
// mutation commands to it and answers occurrence queries by re-expanding
// the collection on every read.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/recurrence"
)

// AllCategories is the category filter value that matches every event.
const AllCategories = "all"

var (
	ErrDuplicateID = errors.New("event id already exists")
	ErrEmptyID     = errors.New("event id is empty")
)

// Persister loads and saves the whole base event collection.
type Persister interface {
	Load(ctx context.Context) ([]model.BaseEvent, bool, error)
	Save(ctx context.Context, events []model.BaseEvent) error
}

// Store is the event store. One mutex serializes commands together with
// the save they trigger, so persisted blobs are written in mutation order.
// Reads work on a snapshot taken under the read lock.
type Store struct {
	mu        sync.RWMutex
	events    []model.BaseEvent
	view      ViewState
	persister Persister
}

// New returns an empty store. persister may be nil, in which case nothing
// is saved.
func New(persister Persister) *Store {
	return &Store{
		persister: persister,
		view:      defaultView(),
	}
}

// Open returns a store seeded from persister. Missing or malformed data
// yields an empty store; it is logged and never fatal.
func Open(ctx context.Context, persister Persister) *Store {
	s := New(persister)
	if persister == nil {
		return s
	}

	events, ok, err := persister.Load(ctx)
	switch {
	case err != nil:
		appLog.Error("load events failed; starting empty", err)
	case !ok:
		appLog.Info("no saved events; starting empty")
	default:
		seeded, err := prepare(events)
		if err != nil {
			appLog.Error("saved events rejected; starting empty", err)
			break
		}
		s.events = seeded
		appLog.Info("events loaded", "count", len(seeded))
	}
	return s
}

// Add appends ev. Its id must be set and unused.
func (s *Store) Add(ctx context.Context, ev model.BaseEvent) error {
	if ev.ID == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(ev.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
	}
	ev = ev.Clone()
	ev.Normalize()
	s.events = append(s.events, ev)
	appLog.Debug("event added", "id", ev.ID, "date", ev.Date)
	return s.saveLocked(ctx)
}

// Update replaces the event with ev.ID wholesale. Unknown ids are a no-op.
func (s *Store) Update(ctx context.Context, ev model.BaseEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(ev.ID)
	if i < 0 {
		appLog.Debug("update of unknown event ignored", "id", ev.ID)
		return nil
	}
	ev = ev.Clone()
	ev.Normalize()
	s.events[i] = ev
	appLog.Debug("event updated", "id", ev.ID)
	return s.saveLocked(ctx)
}

// Remove deletes the event with id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	s.events = slices.Delete(s.events, i, i+1)
	appLog.Debug("event removed", "id", id)
	return s.saveLocked(ctx)
}

// Move reschedules the anchor date of id, carrying the whole series with
// it. Time, rule and the rest of the event are untouched.
func (s *Store) Move(ctx context.Context, id string, newDate model.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	s.events[i].Date = newDate
	appLog.Debug("event moved", "id", id, "date", newDate)
	return s.saveLocked(ctx)
}

// SetEvents replaces the whole collection.
func (s *Store) SetEvents(ctx context.Context, events []model.BaseEvent) error {
	prepared, err := prepare(events)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = prepared
	return s.saveLocked(ctx)
}

// Get returns a copy of the base event with id.
func (s *Store) Get(id string) (model.BaseEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.BaseEvent{}, false
	}
	return s.events[i].Clone(), true
}

// Events returns a copy of the base events in insertion order.
func (s *Store) Events() []model.BaseEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.events)
}

// Len returns the number of base events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// OccurrencesOn returns every occurrence falling on date.
func (s *Store) OccurrencesOn(date model.Date) []model.Occurrence {
	return recurrence.Between(s.Events(), date, date)
}

// OccurrencesBetween returns every occurrence in [from, to].
func (s *Store) OccurrencesBetween(from, to model.Date) []model.Occurrence {
	return recurrence.Between(s.Events(), from, to)
}

// Search returns all occurrences whose title or description contains term
// (case-insensitive, ignored when empty) and whose color equals category
// (ignored when empty or AllCategories).
func (s *Store) Search(term, category string) []model.Occurrence {
	all := recurrence.ExpandAll(s.Events())
	needle := strings.ToLower(term)

	out := make([]model.Occurrence, 0, len(all))
	for _, occ := range all {
		if needle != "" &&
			!strings.Contains(strings.ToLower(occ.Title), needle) &&
			!strings.Contains(strings.ToLower(occ.Description), needle) {
			continue
		}
		if category != "" && category != AllCategories && occ.Color != category {
			continue
		}
		out = append(out, occ)
	}
	return out
}

// Filtered runs Search with the current view's term and category.
func (s *Store) Filtered() []model.Occurrence {
	v := s.View()
	return s.Search(v.SearchTerm, v.SelectedCategory)
}

// Categories returns the distinct colors in first-seen order.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, ev := range s.events {
		if ev.Color != "" && !slices.Contains(out, ev.Color) {
			out = append(out, ev.Color)
		}
	}
	return out
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.events, func(ev model.BaseEvent) bool { return ev.ID == id })
}

// saveLocked persists the collection. The caller holds s.mu. A failed save
// leaves the in-memory mutation applied.
func (s *Store) saveLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, cloneAll(s.events)); err != nil {
		appLog.Error("persist events failed", err, "count", len(s.events))
		return fmt.Errorf("persist events: %w", err)
	}
	return nil
}

func prepare(events []model.BaseEvent) ([]model.BaseEvent, error) {
	out := make([]model.BaseEvent, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			return nil, ErrEmptyID
		}
		if _, dup := seen[ev.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
		seen[ev.ID] = struct{}{}
		ev = ev.Clone()
		ev.Normalize()
		out = append(out, ev)
	}
	return out, nil
}

func cloneAll(events []model.BaseEvent) []model.BaseEvent {
	out := make([]model.BaseEvent, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}
