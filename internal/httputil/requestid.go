package httputil

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	HeaderRequestID   = "X-Request-ID"
	HeaderProcessTime = "X-Process-Time-Ms"
)

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// StatusRecorder captures the response status and stamps the processing
// time header just before headers are flushed.
type StatusRecorder struct {
	http.ResponseWriter
	Status  int
	start   time.Time
	written bool
}

func NewStatusRecorder(w http.ResponseWriter, start time.Time) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK, start: start}
}

func (sr *StatusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.written = true
		sr.Status = code
		ms := float64(time.Since(sr.start).Microseconds()) / 1000
		sr.Header().Set(HeaderProcessTime, strconv.FormatFloat(ms, 'f', 2, 64))
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *StatusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.WriteHeader(http.StatusOK)
	}
	return sr.ResponseWriter.Write(b)
}

// RequestID honours an inbound X-Request-ID or generates a UUID, exposes it on
// the response and in the request context, and logs request completion.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)

		rec := NewStatusRecorder(w, start)
		next.ServeHTTP(rec, r.WithContext(ContextWithRequestID(r.Context(), reqID)))

		slog.Info("request completed",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.Status,
			"duration_ms", float64(time.Since(start).Microseconds())/1000,
		)
	})
}
