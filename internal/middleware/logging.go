package middleware

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id RequestLogger assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// tally records what the handler sent.
type tally struct {
	http.ResponseWriter
	code    int
	written int
}

func (t *tally) WriteHeader(code int) {
	if t.code == 0 {
		t.code = code
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *tally) Write(b []byte) (int, error) {
	if t.code == 0 {
		t.code = http.StatusOK
	}
	n, err := t.ResponseWriter.Write(b)
	t.written += n
	return n, err
}

func (t *tally) Unwrap() http.ResponseWriter { return t.ResponseWriter }

// Hijack passes websocket upgrades through to the connection.
func (t *tally) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := t.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T cannot be hijacked", t.ResponseWriter)
	}
	t.code = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (t *tally) status() int {
	if t.code == 0 {
		return http.StatusOK
	}
	return t.code
}

// quiet paths are logged at debug so polling and file serving do not drown
// out API traffic.
func quiet(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/uploads/") || strings.HasPrefix(path, "/gallery/")
}

func levelFor(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case quiet(path):
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// RequestLogger tags every request with an id, echoed in X-Request-ID, and
// logs one line per request once the handler returns.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

			began := time.Now()
			t := &tally{ResponseWriter: w}
			next.ServeHTTP(t, r)

			logger.LogAttrs(r.Context(), levelFor(r.URL.Path, t.status()), "request",
				slog.String("id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", t.status()),
				slog.Int("bytes", t.written),
				slog.Duration("took", time.Since(began)),
				slog.String("ip", RealIP(r)),
			)
		})
	}
}
