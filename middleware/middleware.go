package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rudderlabs/rudder-go-kit/stats"
)

// LimitConcurrentRequests caps the number of requests served at once; the
// surplus is rejected with 503 instead of queueing until the process OOMs.
// maxRequests == 0 disables the cap.
func LimitConcurrentRequests(maxRequests int) func(http.Handler) http.Handler {
	requests := make(chan struct{}, maxRequests)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxRequests != 0 {
				select {
				case requests <- struct{}{}:
					defer func() {
						<-requests
					}()
				default:
					http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StatMiddleware tracks per-path response times and a gauge of in-flight
// requests.
func StatMiddleware(ctx context.Context, stat stats.Stats) func(http.Handler) http.Handler {
	var concurrentRequests int32
	activeClientCount := stat.NewStat("api_concurrent_requests_count", stats.GaugeType)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
				activeClientCount.Gauge(atomic.LoadInt32(&concurrentRequests))
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			latencyStat := stat.NewSampledTaggedStat("api_response_time", stats.TimerType, stats.Tags{"path": r.URL.Path})
			defer latencyStat.RecordDuration()()

			atomic.AddInt32(&concurrentRequests, 1)
			defer atomic.AddInt32(&concurrentRequests, -1)

			next.ServeHTTP(w, r)
		})
	}
}
