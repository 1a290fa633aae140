package middleware

import (
	"bufio"
	"context"
	"log"
	"net"
	"net/http"
	"time"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	userID     string
}

type loggerKey struct{}

// noteUser records the authenticated caller on the enclosing request log line.
func noteUser(r *http.Request, userID string) {
	if rw, ok := r.Context().Value(loggerKey{}).(*responseWriter); ok {
		rw.userID = userID
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func LoggerMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				userID:         "anonymous",
			}

			ctx := context.WithValue(r.Context(), loggerKey{}, rw)
			next.ServeHTTP(rw, r.WithContext(ctx))

			duration := time.Since(start)

			log.Printf("[http] %s %s %s - Status: %d - Duration: %v - User: %s",
				r.Method,
				r.URL.Path,
				r.RemoteAddr,
				rw.statusCode,
				duration,
				rw.userID,
			)
		})
	}
}
