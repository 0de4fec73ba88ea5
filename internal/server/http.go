package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arkilian/spacemeta/internal/advisor"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/filter"
	"github.com/arkilian/spacemeta/internal/planner"
	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Deps are the components served over HTTP. Advisor may be nil.
type Deps struct {
	Schema   *schema.Schema
	Resolver *planner.Resolver
	Advisor  *advisor.Advisor
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code,omitempty"`
	Category  string   `json:"category,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// ResolveRequest is the body of POST /v1/resolve.
type ResolveRequest struct {
	Space  string `json:"space"`
	Filter string `json:"filter"`
}

// ResolveResponse describes the chosen index and the key values.
type ResolveResponse struct {
	Space     string `json:"space"`
	Index     string `json:"index"`
	IID       uint32 `json:"iid"`
	Values    []any  `json:"values"`
	Full      bool   `json:"full"`
	Point     bool   `json:"point"`
	RequestID string `json:"request_id"`
}

// SpaceResponse describes one space.
type SpaceResponse struct {
	ID          uint32              `json:"id"`
	Name        string              `json:"name"`
	Fingerprint string              `json:"fingerprint"`
	Format      []types.PropertyDef `json:"format"`
	Indexes     []types.IndexDef    `json:"indexes"`
}

// NewHandler builds the HTTP routes of serve mode.
func NewHandler(deps Deps, sm *ShutdownManager) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("POST /v1/resolve", resolveHandler(deps))
	mux.HandleFunc("GET /v1/spaces", spacesHandler(deps))
	if deps.Advisor != nil {
		mux.HandleFunc("GET /v1/advisor", advisorHandler(deps))
	}

	var h http.Handler = mux
	h = requestIDMiddleware(h)
	h = recoveryMiddleware(logger, h)
	if sm != nil {
		h = shutdownMiddleware(sm, h)
	}
	return h
}

func resolveHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		var req ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), requestID)
			return
		}

		f, err := filter.Parse(req.Filter)
		if err != nil {
			writeError(w, http.StatusBadRequest, err, requestID)
			return
		}

		lookup, err := deps.Resolver.Resolve(r.Context(), req.Space, f)
		if err != nil {
			writeError(w, statusOf(err), err, requestID)
			return
		}

		writeJSON(w, http.StatusOK, ResolveResponse{
			Space:     lookup.Space,
			Index:     lookup.Index.Name,
			IID:       lookup.Index.IID,
			Values:    lookup.Values,
			Full:      lookup.Full(),
			Point:     lookup.Point(),
			RequestID: requestID,
		})
	}
}

func spacesHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spaces, err := deps.Schema.Spaces(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err, GetRequestID(r.Context()))
			return
		}
		out := make([]SpaceResponse, 0, len(spaces))
		for _, sp := range spaces {
			out = append(out, SpaceResponse{
				ID:          sp.ID(),
				Name:        sp.Name(),
				Fingerprint: fmt.Sprintf("%016x", sp.Fingerprint()),
				Format:      sp.GetProperties(),
				Indexes:     sp.IndexDefs(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func advisorHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suggestions, err := deps.Advisor.Evaluate(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err, GetRequestID(r.Context()))
			return
		}
		if suggestions == nil {
			suggestions = []advisor.Suggestion{}
		}
		writeJSON(w, http.StatusOK, suggestions)
	}
}

func statusOf(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrNoMatchingIndex):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrCastFailed), errors.Is(err, apperrors.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoveryMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic in handler", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, errors.New("internal server error"), GetRequestID(r.Context()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func shutdownMiddleware(sm *ShutdownManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sm.TrackRequest() {
			w.Header().Set("Connection", "close")
			http.Error(w, "Service Unavailable - Shutting Down", http.StatusServiceUnavailable)
			return
		}
		defer sm.UntrackRequest()
		next.ServeHTTP(w, r)
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func writeError(w http.ResponseWriter, statusCode int, err error, requestID string) {
	resp := ErrorResponse{
		Error:     apperrors.Message(err),
		Code:      apperrors.GetCode(err),
		Category:  string(apperrors.GetCategory(err)),
		RequestID: requestID,
	}
	var e *apperrors.Error
	if errors.As(err, &e) {
		resp.Fields = e.Fields
	}
	writeJSON(w, statusCode, resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// HTTPServer is an http.Server whose shutdown is driven by a ShutdownManager.
type HTTPServer struct {
	server   *http.Server
	shutdown *ShutdownManager
}

// NewHTTPServer creates a server on addr.
func NewHTTPServer(addr string, handler http.Handler, sm *ShutdownManager) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdown: sm,
	}
}

// ListenAndServe serves until the shutdown manager closes the server.
func (s *HTTPServer) ListenAndServe() error {
	s.shutdown.RegisterCloser(CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
