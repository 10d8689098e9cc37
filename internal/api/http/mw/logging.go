package mw

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"tokentable/internal/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type LoggingMiddleware struct {
	Log logger.Logger
}

func NewLogging(log logger.Logger) *LoggingMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggingMiddleware{Log: log}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     lrw.status,
			"size":       lrw.size,
			"dur_ms":     dur.Milliseconds(),
			"ip":         r.RemoteAddr, // RealIP runs first
			"ua":         r.UserAgent(),
			"request_id": middleware.GetReqID(r.Context()),
		}

		l := m.Log.WithFields(fields)
		switch {
		case lrw.status >= http.StatusInternalServerError:
			l.Error("http_request")
		case lrw.status >= http.StatusBadRequest:
			l.Warn("http_request")
		default:
			l.Debug("http_request")
		}
	})
}

type loggingRW struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingRW) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Flush keeps server-sent event streams working through the wrapper
func (w *loggingRW) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingRW) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}

func (w *loggingRW) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
