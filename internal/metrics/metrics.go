package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VerificationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kommyut_verification_decisions_total",
		Help: "Committed ID verification decisions by action.",
	}, []string{"action"})

	TripCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kommyut_trip_completions_total",
		Help: "Trip completion attempts by result.",
	}, []string{"result"})

	AuxiliaryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kommyut_auxiliary_failures_total",
		Help: "Best-effort steps that failed after their primary write committed.",
	}, []string{"step"})
)

// Handler exposes the default registry for Prometheus scraping.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
