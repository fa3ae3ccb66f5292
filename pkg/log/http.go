package log

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// Probes hit these every few seconds; they are logged at debug level.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// requestLogger derives the per-request logger and its ID, honouring an
// incoming X-Request-ID.
func requestLogger(base zerolog.Logger, incomingID, method, path, ip string) (zerolog.Logger, string) {
	reqID := incomingID
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return base.With().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, method).
		Str(FieldPath, path).
		Str(FieldClientIP, ip).
		Logger(), reqID
}

func completionEvent(l *zerolog.Logger, path string, status int) *zerolog.Event {
	if quietPaths[path] && status < http.StatusBadRequest {
		return l.Debug()
	}
	if status >= http.StatusInternalServerError {
		return l.Error()
	}
	return l.Info()
}

// HTTPMiddleware is the net/http flavour used by the relay's mux router.
// WebSocket upgrades are logged once when the connection ends.
func HTTPMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			child, reqID := requestLogger(logger, r.Header.Get(headerRequestID), r.Method, r.URL.Path, clientIP(r))
			w.Header().Set(headerRequestID, reqID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(WithLogger(r.Context(), child)))

			if rec.hijacked {
				child.Info().
					Dur("connected", time.Since(start)).
					Msg("websocket closed")
				return
			}
			completionEvent(&child, r.URL.Path, rec.status).
				Int(FieldStatus, rec.status).
				Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
				Msg("request completed")
		})
	}
}

// statusRecorder captures the status code and keeps the writer hijackable
// for the WebSocket upgrader.
type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not implement http.Hijacker")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		r.hijacked = true
	}
	return conn, rw, err
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, _, _ := strings.Cut(xff, ","); strings.TrimSpace(ip) != "" {
			return strings.TrimSpace(ip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
