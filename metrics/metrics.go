// Package metrics exposes Prometheus collectors for compilation runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chazu/rat25s/compiler"
)

const namespace = "rat25s"

// Run outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	compileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_runs_total",
			Help:      "Compilation runs by outcome",
		},
		[]string{"outcome"},
	)

	compileErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_errors_total",
			Help:      "Failed compilation runs by error category",
		},
		[]string{"category"},
	)

	instructionsEmitted = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "instructions_emitted",
			Help:      "Instructions emitted per successful run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		},
	)
)

func init() {
	prometheus.MustRegister(
		compileRuns,
		compileErrors,
		instructionsEmitted,
	)
}

// Observe records the outcome of one compilation run.
func Observe(res *compiler.Result, err error) {
	if err != nil {
		compileRuns.WithLabelValues(OutcomeError).Inc()
		compileErrors.WithLabelValues(compiler.Category(err)).Inc()
		return
	}
	compileRuns.WithLabelValues(OutcomeOK).Inc()
	if res != nil {
		instructionsEmitted.Observe(float64(len(res.Instructions)))
	}
}

// Serve exposes /metrics on addr until ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return errors.Wrapf(err, "metrics server on %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
