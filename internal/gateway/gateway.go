// Package gateway exposes the karaoke engine over HTTP: a JSON API for the
// song catalog, session control, and score history, a websocket stream of
// live game snapshots, plus the /metrics and health endpoints.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadenza-audio/cadenza/internal/catalog"
	"github.com/cadenza-audio/cadenza/internal/health"
	"github.com/cadenza-audio/cadenza/internal/observe"
	"github.com/cadenza-audio/cadenza/internal/scorestore"
	"github.com/cadenza-audio/cadenza/internal/scoring"
	"github.com/cadenza-audio/cadenza/internal/session"
)

const defaultPushInterval = 250 * time.Millisecond

// Server wires the session controller, catalog, and score store into an
// [http.Handler].
type Server struct {
	log     *slog.Logger
	ctrl    *session.Controller
	catalog catalog.Store
	scores  scorestore.Store
	metrics *observe.Metrics
	health  *health.Handler

	pushInterval time.Duration

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics wires the observability instruments into the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler registered on the mux.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithPushInterval sets the websocket snapshot push interval. Default: 250ms.
func WithPushInterval(d time.Duration) Option {
	return func(s *Server) { s.pushInterval = d }
}

// New builds a Server. Scored segments trigger an immediate websocket push on
// top of the periodic ones.
func New(log *slog.Logger, ctrl *session.Controller, cat catalog.Store,
	scores scorestore.Store, opts ...Option) *Server {

	s := &Server{
		log:          log,
		ctrl:         ctrl,
		catalog:      cat,
		scores:       scores,
		pushInterval: defaultPushInterval,
		subs:         make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	ctrl.OnScore(func(scoring.Result) { s.notifySubscribers() })
	return s
}

// Handler returns the routed HTTP handler, wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/songs", s.handleListSongs)
	mux.HandleFunc("GET /api/songs/{id}", s.handleGetSong)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/session/load", s.handleLoad)
	mux.HandleFunc("POST /api/session/play", s.handlePlay)
	mux.HandleFunc("POST /api/session/pause", s.handlePause)
	mux.HandleFunc("POST /api/session/stop", s.handleStop)
	mux.HandleFunc("POST /api/session/reset", s.handleReset)
	mux.HandleFunc("POST /api/player/seek", s.handleSeek)
	mux.HandleFunc("POST /api/player/volume", s.handleVolume)
	mux.HandleFunc("POST /api/player/mute", s.handleMute)
	mux.HandleFunc("GET /api/scores", s.handleScores)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.catalog.Songs(r.Context())
	if err != nil {
		s.serverError(w, "list songs", err)
		return
	}
	if songs == nil {
		songs = []catalog.Song{}
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request) {
	song, err := s.catalog.Song(r.Context(), r.PathValue("id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	if err != nil {
		s.serverError(w, "get song", err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongID string `json:"songId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SongID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"songId\": \"...\"}")
		return
	}

	song, err := s.catalog.Song(r.Context(), req.SongID)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	if err != nil {
		s.serverError(w, "lookup song", err)
		return
	}

	if err := s.ctrl.LoadSong(r.Context(), song); err != nil {
		s.serverError(w, "load song", err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// handlePlay starts a run, or resumes a paused one.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var err error
	if s.ctrl.State() == session.StatePaused {
		err = s.ctrl.Resume(r.Context())
	} else {
		err = s.ctrl.Start(r.Context())
	}
	s.respondSessionOp(w, err)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.respondSessionOp(w, s.ctrl.Pause())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.respondSessionOp(w, s.ctrl.Stop())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.respondSessionOp(w, s.ctrl.Reset())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PositionMS int64 `json:"positionMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PositionMS < 0 {
		writeError(w, http.StatusBadRequest, "body must be {\"positionMs\": <non-negative>}")
		return
	}
	s.respondSessionOp(w, s.ctrl.Seek(time.Duration(req.PositionMS)*time.Millisecond))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume < 0 || req.Volume > 1 {
		writeError(w, http.StatusBadRequest, "body must be {\"volume\": 0..1}")
		return
	}
	s.respondSessionOp(w, s.ctrl.SetVolume(req.Volume))
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"muted\": true|false}")
		return
	}
	s.respondSessionOp(w, s.ctrl.SetMuted(req.Muted))
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		perfs []scorestore.Performance
		err   error
	)
	if songID := r.URL.Query().Get("songId"); songID != "" {
		perfs, err = s.scores.BySong(r.Context(), songID, limit)
	} else {
		perfs, err = s.scores.Recent(r.Context(), limit)
	}
	if err != nil {
		s.serverError(w, "query scores", err)
		return
	}
	if perfs == nil {
		perfs = []scorestore.Performance{}
	}
	writeJSON(w, http.StatusOK, perfs)
}

// respondSessionOp maps controller precondition errors to 409 and everything
// else to 500; success returns the fresh snapshot.
func (s *Server) respondSessionOp(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
	case errors.Is(err, session.ErrNoSongLoaded),
		errors.Is(err, session.ErrAlreadyActive),
		errors.Is(err, session.ErrNotPlaying),
		errors.Is(err, session.ErrNotPaused):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.serverError(w, "session operation", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// notifySubscribers nudges every websocket loop to push a snapshot now.
func (s *Server) notifySubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Server) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}
