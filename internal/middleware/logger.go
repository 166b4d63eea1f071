package middleware

import (
	"app/internal/logger"
	"net/http"
	"time"
)

// LoggerMiddleware logs incoming HTTP requests with their duration.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		logger := logger.New()
		logger.Debug().
			Dur("duration", time.Since(start)).
			Msgf("%s %s", r.Method, r.URL.RequestURI())
	})
}
