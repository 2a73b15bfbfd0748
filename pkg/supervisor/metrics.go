package supervisor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricAudits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustlens",
		Subsystem: "supervisor",
		Name:      "audits_total",
		Help:      "Supervised audits by outcome.",
	}, []string{"result"})

	metricEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustlens",
		Subsystem: "supervisor",
		Name:      "events_total",
		Help:      "Progress events received, by type and transport mode.",
	}, []string{"type", "mode"})

	metricAuditSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trustlens",
		Subsystem: "supervisor",
		Name:      "audit_duration_seconds",
		Help:      "Wall-clock audit duration.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})
)

// ServeMetrics exposes the prometheus registry on addr until ctx is
// cancelled. Errors other than server shutdown are returned.
func ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
