// Package api exposes the recording pipeline over HTTP: an external pose
// tracker posts one landmark frame per request, and the server feeds it
// through the session recorder, persists emitted cycles, and serves the
// final analysis.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/velosense/bikefit/internal/config"
	"github.com/velosense/bikefit/internal/cycles"
	"github.com/velosense/bikefit/internal/db"
	"github.com/velosense/bikefit/internal/httputil"
	"github.com/velosense/bikefit/internal/pose"
	"github.com/velosense/bikefit/internal/session"
	"github.com/velosense/bikefit/internal/timeutil"
	"github.com/velosense/bikefit/internal/version"
)

// Server owns the active recording sessions and their persistence.
type Server struct {
	db    *db.DB
	cfg   *config.TuningConfig
	clock timeutil.Clock

	mu     sync.Mutex
	active map[string]*activeSession
}

// activeSession pairs one recorder with its live stream hub. The recorder
// is single-threaded; the mutex serializes frame delivery per session.
type activeSession struct {
	mu       sync.Mutex
	recorder *session.Recorder
	hub      *liveHub
}

// NewServer creates a server backed by the given store and tuning config.
func NewServer(store *db.DB, cfg *config.TuningConfig) *Server {
	return &Server{
		db:     store,
		cfg:    cfg,
		clock:  timeutil.RealClock{},
		active: make(map[string]*activeSession),
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("POST /api/sessions/{id}/frames", s.postFrame)
	mux.HandleFunc("POST /api/sessions/{id}/finish", s.finishSession)
	mux.HandleFunc("GET /api/sessions/{id}/report", s.getReport)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.getChart)
	mux.HandleFunc("GET /api/sessions/{id}/live", s.liveStream)
	mux.HandleFunc("/", s.home)
	return mux
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "bikefit analysis server %s\n", version.String())
}

func (s *Server) lookup(id string) (*activeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.active[id]
	return as, ok
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.db.CreateSession(s.clock.Now())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create session: %v", err))
		return
	}

	as := &activeSession{
		recorder: session.NewRecorder(s.cfg),
		hub:      newLiveHub(),
	}
	// Persist and broadcast each cycle synchronously with the frame that
	// completed it, preserving the at-most-once emission contract.
	as.recorder.Observe(cycles.CycleListenerFunc(func(c cycles.CycleSummary) {
		if err := s.db.RecordCycle(id, c); err != nil {
			log.Printf("session %s: failed to record cycle %d: %v", id, c.Cycle, err)
		}
		as.hub.broadcast(c)
	}))

	s.mu.Lock()
	s.active[id] = as
	s.mu.Unlock()

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// FrameRequest is one landmark frame from the external pose tracker.
type FrameRequest struct {
	TimestampMs int64           `json:"timestamp_ms"`
	AspectRatio float64         `json:"aspect_ratio"`
	Landmarks   []pose.Landmark `json:"landmarks"`
}

func (s *Server) postFrame(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	as, ok := s.lookup(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no active session %s", id))
		return
	}

	var req FrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid frame payload: %v", err))
		return
	}
	if len(req.Landmarks) == 0 {
		httputil.BadRequest(w, "frame has no landmarks")
		return
	}
	if req.AspectRatio <= 0 {
		req.AspectRatio = 1.0
	}

	as.mu.Lock()
	before := as.recorder.State()
	status := as.recorder.ProcessFrame(req.TimestampMs, pose.Frame(req.Landmarks), req.AspectRatio)
	after := as.recorder.State()
	as.mu.Unlock()

	if before != after {
		if err := s.db.UpdateSessionState(id, after, status.Side); err != nil {
			log.Printf("session %s: failed to persist state %s: %v", id, after, err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// FinishResponse wraps the final report together with the session id.
type FinishResponse struct {
	SessionID string          `json:"session_id"`
	Report    *session.Report `json:"report"`
}

func (s *Server) finishSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	as, ok := s.lookup(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("no active session %s", id))
		return
	}

	as.mu.Lock()
	report, err := as.recorder.Finish()
	side := as.recorder.Side()
	as.mu.Unlock()

	if dbErr := s.db.UpdateSessionState(id, session.StateFinished, side); dbErr != nil {
		log.Printf("session %s: failed to persist finished state: %v", id, dbErr)
	}
	as.hub.closeAll()

	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()

	if errors.Is(err, session.ErrNoCycles) {
		// Insufficient data is a distinct outcome, not an empty success.
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, "insufficient data: no usable cycles recorded")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	if err := s.db.SaveResults(id, report.Results); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to save results: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FinishResponse{SessionID: id, Report: report})
}

// ReportResponse is the stored view of a finished session.
type ReportResponse struct {
	Session *db.SessionRecord       `json:"session"`
	Results []session.ChannelResult `json:"results"`
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.db.GetSession(id)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("unknown session %s", id))
		return
	}

	results, err := s.db.SessionResults(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load results: %v", err))
		return
	}
	if len(results) == 0 {
		httputil.NotFound(w, fmt.Sprintf("session %s has no analysis results", id))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ReportResponse{Session: rec, Results: results})
}
