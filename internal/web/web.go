package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"audiosched/internal/config"
	"audiosched/internal/ics"
	appLog "audiosched/internal/log"
	"audiosched/internal/model"
	"audiosched/internal/schedule"
	"audiosched/internal/trigger"
)

// Status is the trigger loop as seen by the API.
type Status interface {
	Snapshot() *schedule.Schedule
	State() trigger.State
	NextRollover() time.Time
	Failed() []string
}

// Executed lists recorded EventIDs.
type Executed interface {
	Contains(id model.EventID) bool
	IDs() []model.EventID
}

// Server provides a read-only HTTP view of the running engine.
// Nothing here can change configuration or fire events.
type Server struct {
	cfg    *config.Config
	loc    *time.Location
	status Status
	store  Executed
	clock  trigger.Clock
	mux    *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, status Status, store Executed, clock trigger.Clock) *Server {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		loc = time.Local
	}
	if clock == nil {
		clock = trigger.SystemClock{Location: loc}
	}
	s := &Server{
		cfg:    cfg,
		loc:    loc,
		status: status,
		store:  store,
		clock:  clock,
		mux:    http.NewServeMux(),
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
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
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
			w.Header().Set("WWW-Authenticate", `Basic realm="audiosched", charset="UTF-8"`)
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

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
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
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/schedule.ics", s.handleScheduleICS)
	s.mux.HandleFunc("/api/executed", s.handleExecuted)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type eventDTO struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Type     string    `json:"type"`
	Audio    []string  `json:"audio,omitempty"`
	Executed bool      `json:"executed"`
}

type statusResponse struct {
	State        string    `json:"state"`
	Now          time.Time `json:"now"`
	BuiltAt      time.Time `json:"built_at"`
	Events       int       `json:"events"`
	Today        int       `json:"today"`
	Next         *eventDTO `json:"next,omitempty"`
	NextRollover time.Time `json:"next_rollover"`
	Failed       []string  `json:"failed"`
	// Rejected maps event types left out of the current build to the reason.
	Rejected map[string]string `json:"rejected,omitempty"`
}

type scheduleResponse struct {
	Date     string     `json:"date"`
	TimeZone string     `json:"timezone"`
	Events   []eventDTO `json:"events"`
}

type executedResponse struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	now := s.clock.Now().In(s.loc)
	sched := s.status.Snapshot()

	resp := statusResponse{
		State:        s.status.State().String(),
		Now:          now,
		Events:       sched.Len(),
		Today:        len(sched.On(now)),
		NextRollover: s.status.NextRollover(),
		Failed:       s.status.Failed(),
	}
	if sched != nil {
		resp.BuiltAt = sched.BuiltAt
	}
	for name, err := range sched.Rejected() {
		if resp.Rejected == nil {
			resp.Rejected = map[string]string{}
		}
		resp.Rejected[name] = err.Error()
	}
	if ev, ok := sched.Next(now); ok {
		dto := s.toDTO(ev)
		resp.Next = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSchedule returns one day of the current schedule (?date=YYYY-MM-DD, default today).
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	events := s.status.Snapshot().On(day)
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, s.toDTO(ev))
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Date:     day.Format("2006-01-02"),
		TimeZone: s.loc.String(),
		Events:   dtos,
	})
}

// handleScheduleICS exports the next ?days= days (default 7) as iCalendar.
func (s *Server) handleScheduleICS(w http.ResponseWriter, r *http.Request) {
	days := parseIntDefault(r.URL.Query().Get("days"), 7)
	if days <= 0 || days > 366 {
		days = 7
	}
	now := s.clock.Now().In(s.loc)
	sched := s.status.Snapshot()

	var events []model.ScheduledEvent
	for d := 0; d < days; d++ {
		events = append(events, sched.On(now.AddDate(0, 0, d))...)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ics.Export(events, now))
}

func (s *Server) handleExecuted(w http.ResponseWriter, _ *http.Request) {
	ids := s.store.IDs()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	writeJSON(w, http.StatusOK, executedResponse{IDs: out})
}

func (s *Server) toDTO(ev model.ScheduledEvent) eventDTO {
	id := ev.ID()
	return eventDTO{
		ID:       id.String(),
		At:       ev.At,
		Type:     ev.Type,
		Audio:    ev.Audio,
		Executed: s.store.Contains(id),
	}
}

func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "" {
		return s.clock.Now().In(s.loc), nil
	}
	return time.ParseInLocation("2006-01-02", v, s.loc)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
