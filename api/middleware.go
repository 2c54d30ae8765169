package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// statusRecorder captures the status a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMiddleware wraps the mux with request logging, metrics, and
// permissive CORS, innermost first.
func withMiddleware(next http.Handler) http.Handler {
	return corsMiddleware(metricsMiddleware(loggingMiddleware(next)))
}

// loggingMiddleware logs one line per request with a per-request id and
// the sanitized query string.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var start = time.Now()
		var requestID = uuid.NewString()

		log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"query":      sanitizeQuery(r.URL.RawQuery),
			"user_agent": r.UserAgent(),
		}).Info("incoming request")

		var rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		var fields = log.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		switch {
		case rec.status >= 500:
			log.WithFields(fields).Warn("request failed (server error)")
		case rec.status >= 400:
			log.WithFields(fields).Warn("request failed (client error)")
		default:
			log.WithFields(fields).Info("request completed")
		}
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var start = time.Now()
		var rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sensitiveParams never appear with their values in logs.
var sensitiveParams = []string{"api_key", "token", "password", "secret"}

// sanitizeQuery masks sensitive parameter values in a raw query string.
func sanitizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var parts = strings.Split(rawQuery, "&")
	for i, part := range parts {
		var key, _, found = strings.Cut(part, "=")
		if !found {
			continue
		}
		for _, sensitive := range sensitiveParams {
			if key == sensitive {
				parts[i] = key + "=***"
				break
			}
		}
	}
	return strings.Join(parts, "&")
}
