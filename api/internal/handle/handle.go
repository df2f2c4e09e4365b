// Package handle serves the JSON API over the extraction and entity query
// stages.
package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"parimal/api/internal/apperr"
	"parimal/api/internal/entity"
	"parimal/api/internal/logger"
	"parimal/api/internal/session"
)

type Handle struct {
	svc       *entity.Service
	store     session.Store
	log       *zap.Logger
	timeout   time.Duration
	maxUpload int64
}

type Options struct {
	Timeout        time.Duration
	MaxUploadBytes int64
}

func New(svc *entity.Service, store session.Store, log *zap.Logger, opts Options) *Handle {
	if opts.Timeout <= 0 {
		opts.Timeout = 180 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	return &Handle{
		svc:       svc,
		store:     store,
		log:       logger.OrNop(log),
		timeout:   opts.Timeout,
		maxUpload: opts.MaxUploadBytes,
	}
}

// Register mounts the API routes on mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/extract", h.Extract)
	mux.HandleFunc("/api/v1/search", h.Search)
	mux.HandleFunc("/api/v1/session", h.Session)
}

type errorBody struct {
	Error *apperr.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handle) writeError(w http.ResponseWriter, err error) {
	e := apperr.From(err)
	code := apperr.HTTPStatus(e)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("code", string(e.Code)), zap.Error(err))
	}
	writeJSON(w, code, errorBody{Error: e})
}

// requestContext bounds the request by the configured timeout, which a
// client may override with X-Request-Timeout or ?timeoutSec (seconds).
func (h *Handle) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.timeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

func (h *Handle) loadSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session.State, error) {
	id := session.Ensure(w, r)
	w.Header().Set(session.HeaderName, id)
	st, err := h.store.Load(ctx, id)
	if err != nil {
		return nil, apperr.SessionStoreFailed("load", err)
	}
	return st, nil
}

func (h *Handle) saveSession(ctx context.Context, st *session.State) error {
	if err := h.store.Save(ctx, st); err != nil {
		return apperr.SessionStoreFailed("save", err)
	}
	return nil
}
