package store

import (
	"context"
	"fmt"

	"evcal/internal/model"
)

// ViewState is session convenience state for a browsing UI. It never
// touches base events or persistence.
type ViewState struct {
	SelectedDate     model.Date `json:"selectedDate"`
	ViewDate         model.Date `json:"viewDate"`
	SearchTerm       string     `json:"searchTerm"`
	SelectedCategory string     `json:"selectedCategory"`
}

func defaultView() ViewState {
	today := model.Today()
	return ViewState{
		SelectedDate:     today,
		ViewDate:         today,
		SelectedCategory: AllCategories,
	}
}

func (s *Store) View() ViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *Store) setView(fn func(v *ViewState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.view)
}

func (s *Store) SetSelectedDate(d model.Date) {
	s.setView(func(v *ViewState) { v.SelectedDate = d })
}

func (s *Store) SetViewDate(d model.Date) {
	s.setView(func(v *ViewState) { v.ViewDate = d })
}

func (s *Store) SetSearchTerm(term string) {
	s.setView(func(v *ViewState) { v.SearchTerm = term })
}

// SetSelectedCategory sets the category filter; an empty value resets it
// to AllCategories.
func (s *Store) SetSelectedCategory(category string) {
	if category == "" {
		category = AllCategories
	}
	s.setView(func(v *ViewState) { v.SelectedCategory = category })
}

// Command is one entry of the store's command surface.
type Command interface {
	command()
}

type (
	AddEvent            struct{ Event model.BaseEvent }
	UpdateEvent         struct{ Event model.BaseEvent }
	DeleteEvent         struct{ ID string }
	SetEvents           struct{ Events []model.BaseEvent }
	SetSelectedDate     struct{ Date model.Date }
	SetViewDate         struct{ Date model.Date }
	SetSearchTerm       struct{ Term string }
	SetSelectedCategory struct{ Category string }
)

// MoveEvent reschedules a base event's anchor date.
type MoveEvent struct {
	ID      string
	NewDate model.Date
}

func (AddEvent) command()            {}
func (UpdateEvent) command()         {}
func (DeleteEvent) command()         {}
func (SetEvents) command()           {}
func (MoveEvent) command()           {}
func (SetSelectedDate) command()     {}
func (SetViewDate) command()         {}
func (SetSearchTerm) command()       {}
func (SetSelectedCategory) command() {}

// Dispatch applies cmd. Event commands persist; view commands do not.
func (s *Store) Dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case AddEvent:
		return s.Add(ctx, c.Event)
	case UpdateEvent:
		return s.Update(ctx, c.Event)
	case DeleteEvent:
		return s.Remove(ctx, c.ID)
	case SetEvents:
		return s.SetEvents(ctx, c.Events)
	case MoveEvent:
		return s.Move(ctx, c.ID, c.NewDate)
	case SetSelectedDate:
		s.SetSelectedDate(c.Date)
	case SetViewDate:
		s.SetViewDate(c.Date)
	case SetSearchTerm:
		s.SetSearchTerm(c.Term)
	case SetSelectedCategory:
		s.SetSelectedCategory(c.Category)
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
	return nil
}
