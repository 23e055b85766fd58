package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/medimaging-bridge/internal/domain/analysis"
)

// Metrics stores application counters
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64

	MessagesReceived  uint64
	MessagesIgnored   uint64
	MessagesProcessed uint64
	MessagesErrored   uint64

	StartTime time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementReceived counts every accepted webhook delivery
func IncrementReceived() {
	atomic.AddUint64(&globalMetrics.MessagesReceived, 1)
}

// CountOutcome records the terminal status of one processed message
func CountOutcome(status domain.Status) {
	switch status {
	case domain.StatusIgnored:
		atomic.AddUint64(&globalMetrics.MessagesIgnored, 1)
	case domain.StatusProcessed:
		atomic.AddUint64(&globalMetrics.MessagesProcessed, 1)
	case domain.StatusError:
		atomic.AddUint64(&globalMetrics.MessagesErrored, 1)
	}
}

// GetMetrics returns current counters plus runtime stats
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"messages_received":    atomic.LoadUint64(&globalMetrics.MessagesReceived),
		"messages_ignored":     atomic.LoadUint64(&globalMetrics.MessagesIgnored),
		"messages_processed":   atomic.LoadUint64(&globalMetrics.MessagesProcessed),
		"messages_errored":     atomic.LoadUint64(&globalMetrics.MessagesErrored),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"num_gc":      m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request counters
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
		atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
		defer atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
		} else {
			atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
		}
	})
}

// MetricsHandler returns current counters as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
