package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/community-hub/event-ledger/internal/service"
	"github.com/sirupsen/logrus"
)

// Identity headers set by the fronting auth proxy once it has verified
// the caller's credential. The admin flag mirrors the upstream claim;
// this service trusts it as-is.
const (
	HeaderUserID = "X-User-ID"
	HeaderAdmin  = "X-User-Admin"
)

// CallerFrom extracts the resolved caller identity from the request.
// An absent user header means an anonymous caller.
func CallerFrom(r *http.Request) service.Caller {
	return service.Caller{
		UserID:  strings.TrimSpace(r.Header.Get(HeaderUserID)),
		IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderAdmin)), "true"),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Logger returns a structured access-log middleware.
func Logger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}

// CORS is a permissive CORS middleware for browser clients.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderUserID+", "+HeaderAdmin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
