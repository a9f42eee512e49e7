// Package httpapi serves the history over HTTP: a JSON API, a WebSocket event
// stream and the Prometheus endpoint.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"go.klb.dev/clipvault/internal/api"
	"go.klb.dev/clipvault/internal/history"
	"go.klb.dev/clipvault/internal/logging"
	"go.klb.dev/clipvault/internal/pasteback"
	"go.klb.dev/clipvault/internal/settings"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// Server is the HTTP front end of an engine.
type Server struct {
	eng      api.Engine
	metrics  http.Handler
	token    string
	version  string
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New returns a Server. metrics may be nil to omit /metrics; token may be
// empty to disable bearer auth.
func New(eng api.Engine, metrics http.Handler, token, version string) *Server {
	return &Server{
		eng:     eng,
		metrics: metrics,
		token:   token,
		version: version,
		logger:  logging.Component("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// sameOrigin accepts non-browser clients and browsers on the same host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Get("/v1/history", s.handleList)
		r.Delete("/v1/history", s.handleClear)
		r.Get("/v1/history/{id}", s.handleGet)
		r.Delete("/v1/history/{id}", s.handleDelete)
		r.Post("/v1/history/{id}/paste", s.handlePaste)
		r.Post("/v1/prune", s.handlePrune)
		r.Get("/v1/settings", s.handleGetSettings)
		r.Put("/v1/settings/retention", s.handleSetRetention)
		r.Get("/v1/status", s.handleStatus)
		r.Get("/v1/events", s.handleEvents)
	})
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := api.ListRequest{All: q.Get("all") == "1" || q.Get("all") == "true"}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}
	items, err := api.List(r.Context(), s.eng, req)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.ListResponse{Items: items})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	it, err := s.eng.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.FromHistory([]history.Item{it})[0])
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Clear(r.Context()); err != nil {
		s.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var req api.PasteRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.eng.Paste(r.Context(), chi.URLParam(r, "id"), req.Open)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.PasteResponse{Result: res.String()})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.Prune(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.PruneResponse{Deleted: n})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, api.FromRetention(s.eng.Retention()))
}

func (s *Server) handleSetRetention(w http.ResponseWriter, r *http.Request) {
	var req api.RetentionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"days\": N}")
		return
	}
	if err := s.eng.SetRetention(r.Context(), req.Days); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.FromRetention(s.eng.Retention()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.Status(r.Context())
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.StatusResponse{Status: st, Version: s.version})
}

// handleEvents upgrades to a WebSocket and pushes engine events as JSON
// text frames until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.eng.Subscribe("ws:" + r.RemoteAddr)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only control frames are expected; any error ends the stream.
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	s.logger.Debug("event stream opened", "remote", r.RemoteAddr)
	defer s.logger.Debug("event stream closed", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	var of *pasteback.OpenFailure
	switch {
	case errors.Is(err, history.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &of):
		respondError(w, http.StatusUnprocessableEntity, "open_failed", err.Error())
	case errors.Is(err, settings.ErrInvalidRetention):
		respondError(w, http.StatusBadRequest, "invalid_retention", err.Error())
	case history.IsStorageError(err):
		respondError(w, http.StatusServiceUnavailable, "storage_error", err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
