package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type metrics struct {
	registry  *prometheus.Registry
	intents   *prometheus.CounterVec
	assistant *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sixty_intents_total",
			Help: "Progress intents handled, by intent and outcome.",
		}, []string{"intent", "outcome"}),
		assistant: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sixty_assistant_requests_total",
			Help: "Advisor requests, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.intents, m.assistant)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// intent records the outcome of one intent and passes err through.
func (m *metrics) intent(name string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var se interface{ GetStatus() int }
		if errors.As(err, &se) && se.GetStatus() < http.StatusInternalServerError {
			outcome = "rejected"
		}
	}
	m.intents.WithLabelValues(name, outcome).Inc()
	return err
}

func (m *metrics) advisor(outcome string) {
	m.assistant.WithLabelValues(outcome).Inc()
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
