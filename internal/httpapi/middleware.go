package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/bykadzu/Aether-agent-os-sub005/internal/audit"
	"github.com/bykadzu/Aether-agent-os-sub005/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuth enforces a static bearer token from the configured set. An empty
// token set disables enforcement (local/dev mode).
func withAuth(tokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		allowed[t] = true
	}
	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, CodeForbidden, "missing bearer token")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if !allowed[token] {
				writeForbidden(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withAuditLog(a *audit.Log) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if a == nil {
				return
			}
			a.LogAdminAction("", "http."+strings.ToLower(r.Method), r.URL.Path, map[string]any{
				"status": rec.status,
			})
		})
	}
}

func withMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			m.RequestsInFlight.Inc()
			start := time.Now()
			next.ServeHTTP(rec, r)
			m.RequestsInFlight.Dec()
			m.RecordHTTPRequest(r.Method, routePattern(r), itoa(rec.status), time.Since(start))
		})
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
