package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"evcal/internal/config"
	"evcal/internal/conflict"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/store"
)

// maxRequestBytes caps JSON and ICS request bodies.
const maxRequestBytes = 8 << 20

// Server exposes the event store over HTTP.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	conflicts *conflict.Detector
	fetcher   *ics.Fetcher
	mux       *http.ServeMux

	// now is used for ICS DTSTAMP; tests pin it.
	now func() time.Time
}

// NewServer constructs a new Server around st.
func NewServer(cfg *config.Config, st *store.Store) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		conflicts: conflict.NewDetector(st),
		fetcher:   ics.NewPublicFetcher(),
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	if cfg != nil && cfg.Import.AllowPrivateHosts {
		appLog.Warn("URL imports may reach private addresses")
		s.fetcher = ics.NewFetcher(nil)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="evcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/events/{id}/move", s.handleMoveEvent)

	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/month", s.handleMonth)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("POST /api/conflicts", s.handleConflicts)

	s.mux.HandleFunc("GET /api/view", s.handleGetView)
	s.mux.HandleFunc("PUT /api/view", s.handlePutView)

	s.mux.HandleFunc("GET /api/calendar.ics", s.handleExport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// writeResponse is returned by every event mutation. Conflicts are advisory:
// the write has already happened.
type writeResponse struct {
	Event     model.BaseEvent    `json:"event"`
	Conflict  bool               `json:"conflict"`
	Conflicts []model.Occurrence `json:"conflicts"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Events())
}

// handleCreateEvent adds an event. A missing id is generated; an existing
// id is a 409.
//
// POST /api/events
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.BaseEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	if err := validateEvent(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.ID == "" {
		ev.ID = model.NewID()
	}
	ev.Normalize()

	hits := s.conflicts.Conflicts(ev, "")
	if err := s.store.Dispatch(r.Context(), store.AddEvent{Event: ev}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("api event created", "id", ev.ID, "date", ev.Date, "conflicts", len(hits))
	writeJSON(w, http.StatusCreated, newWriteResponse(ev, hits))
}

// handleUpdateEvent replaces an event wholesale. The path id wins over any id
// in the body.
//
// PUT /api/events/{id}
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Get(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	var ev model.BaseEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	ev.ID = id
	if err := validateEvent(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.Normalize()

	hits := s.conflicts.Conflicts(ev, id)
	if err := s.store.Dispatch(r.Context(), store.UpdateEvent{Event: ev}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("api event updated", "id", id, "conflicts", len(hits))
	writeJSON(w, http.StatusOK, newWriteResponse(ev, hits))
}

// DELETE /api/events/{id}
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Get(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err := s.store.Dispatch(r.Context(), store.DeleteEvent{ID: id}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("api event deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Date model.Date `json:"date"`
}

// handleMoveEvent shifts a series to a new anchor date.
//
// POST /api/events/{id}/move  {"date":"2024-05-01"}
func (s *Server) handleMoveEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ev, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	ev.Date = req.Date
	hits := s.conflicts.Conflicts(ev, id)
	if err := s.store.Dispatch(r.Context(), store.MoveEvent{ID: id, NewDate: req.Date}); err != nil {
		s.writeStoreError(w, err)
		return
	}
	appLog.Info("api event moved", "id", id, "date", req.Date)
	writeJSON(w, http.StatusOK, newWriteResponse(ev, hits))
}

// handleOccurrences lists the occurrences on one day. Without ?date= the
// view's selected date is used.
//
// GET /api/occurrences?date=2024-05-01
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	date := s.store.View().SelectedDate
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = d
	}
	writeJSON(w, http.StatusOK, s.store.OccurrencesOn(date))
}

// handleMonth returns the month grid. Without ?month= the view date's month
// is used.
//
// GET /api/month?month=2024-05
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	anchor := s.store.View().ViewDate
	if v := r.URL.Query().Get("month"); v != "" {
		t, err := time.Parse("2006-01", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be yyyy-MM")
			return
		}
		anchor = model.DateOf(t)
	}
	writeJSON(w, http.StatusOK, s.store.Month(anchor, s.weekStart()))
}

// handleSearch filters every occurrence. Without parameters the view's
// search term and category apply.
//
// GET /api/search?q=gym&category=%2310b981
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !q.Has("q") && !q.Has("category") {
		writeJSON(w, http.StatusOK, s.store.Filtered())
		return
	}
	writeJSON(w, http.StatusOK, s.store.Search(q.Get("q"), q.Get("category")))
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Categories())
}

type conflictRequest struct {
	Event     conflictCandidate `json:"event"`
	ExcludeID string            `json:"excludeId"`
}

// conflictCandidate shadows Time so an absent "time" is distinguishable
// from midnight.
type conflictCandidate struct {
	model.BaseEvent
	Time *model.Clock `json:"time"`
}

type conflictResponse struct {
	Conflict  bool               `json:"conflict"`
	Conflicts []model.Occurrence `json:"conflicts"`
}

// handleConflicts checks a candidate without writing it.
//
// POST /api/conflicts
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Event.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "event date is required")
		return
	}
	if req.Event.Time == nil {
		writeError(w, http.StatusBadRequest, "event time is required")
		return
	}
	candidate := req.Event.BaseEvent
	candidate.Time = *req.Event.Time
	hits := s.conflicts.Conflicts(candidate, req.ExcludeID)
	writeJSON(w, http.StatusOK, conflictResponse{Conflict: len(hits) > 0, Conflicts: nonNil(hits)})
}

func (s *Server) handleGetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.View())
}

// viewPatch updates only the fields that are present.
type viewPatch struct {
	SelectedDate     *model.Date `json:"selectedDate"`
	ViewDate         *model.Date `json:"viewDate"`
	SearchTerm       *string     `json:"searchTerm"`
	SelectedCategory *string     `json:"selectedCategory"`
}

func (p viewPatch) commands() []store.Command {
	var cmds []store.Command
	if p.SelectedDate != nil {
		cmds = append(cmds, store.SetSelectedDate{Date: *p.SelectedDate})
	}
	if p.ViewDate != nil {
		cmds = append(cmds, store.SetViewDate{Date: *p.ViewDate})
	}
	if p.SearchTerm != nil {
		cmds = append(cmds, store.SetSearchTerm{Term: *p.SearchTerm})
	}
	if p.SelectedCategory != nil {
		cmds = append(cmds, store.SetSelectedCategory{Category: *p.SelectedCategory})
	}
	return cmds
}

// PUT /api/view
func (s *Server) handlePutView(w http.ResponseWriter, r *http.Request) {
	var patch viewPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	for _, cmd := range patch.commands() {
		if err := s.store.Dispatch(r.Context(), cmd); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.store.View())
}

// GET /api/calendar.ics
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.store.Events(), s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="evcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type importResponse struct {
	Imported int      `json:"imported"`
	IDs      []string `json:"ids"`
}

// handleImport adds every VEVENT of an .ics payload. The payload is the
// request body, or the document at ?url= when given.
//
// POST /api/import[?url=https://...]
//
// Query parameters:
//   - url: http(s) address of the calendar. Hosts resolving to loopback,
//     link-local or private addresses get 403 unless
//     import.allow_private_hosts is set.
//
// Unparseable calendars get 400, unreachable URLs 502.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body []byte
	var err error
	if src := r.URL.Query().Get("url"); src != "" {
		body, err = s.fetcher.Fetch(ctx, src)
		if errors.Is(err, ics.ErrBlockedURL) {
			appLog.Warn("api import url refused", "error", err.Error())
			writeError(w, http.StatusForbidden, "calendar URL not allowed")
			return
		}
		if err != nil {
			appLog.Error("api import fetch failed", err)
			writeError(w, http.StatusBadGateway, "failed to fetch calendar")
			return
		}
	} else {
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
	}

	ids, err := ImportICS(ctx, s.store, body)
	if err != nil {
		if errors.Is(err, ErrBadCalendar) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: len(ids), IDs: ids})
}

// ErrBadCalendar wraps payloads that are not a readable VCALENDAR.
var ErrBadCalendar = errors.New("invalid calendar")

// ImportICS parses body and adds each event to st, re-keying ids that are
// already taken. It returns the ids added, including those added before a
// failing write.
func ImportICS(ctx context.Context, st *store.Store, body []byte) ([]string, error) {
	parsed, err := ics.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCalendar, err)
	}
	events := ics.AssignIDs(parsed, func(id string) bool {
		_, ok := st.Get(id)
		return ok
	})

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		if err := st.Dispatch(ctx, store.AddEvent{Event: ev}); err != nil {
			return ids, err
		}
		ids = append(ids, ev.ID)
	}
	appLog.Info("calendar imported", "count", len(ids))
	return ids, nil
}

// weekStart maps the configured week start to a weekday.
func (s *Server) weekStart() time.Weekday {
	if s.cfg != nil && s.cfg.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// writeStoreError maps store errors onto status codes. A failed save keeps
// the mutation in memory, which the client learns through the 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrEmptyID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api store write failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save events")
	}
}

// validateEvent performs the form checks the store itself does not.
func validateEvent(ev model.BaseEvent) error {
	if strings.TrimSpace(ev.Title) == "" {
		return errors.New("title is required")
	}
	if ev.Date.IsZero() {
		return errors.New("date is required")
	}
	if ev.Recurrence != nil {
		if err := ev.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func newWriteResponse(ev model.BaseEvent, hits []model.Occurrence) writeResponse {
	return writeResponse{Event: ev, Conflict: len(hits) > 0, Conflicts: nonNil(hits)}
}

func nonNil(occs []model.Occurrence) []model.Occurrence {
	if occs == nil {
		return []model.Occurrence{}
	}
	return occs
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
