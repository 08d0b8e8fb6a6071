// Package metrics defines Prometheus collectors for the backoffice core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"result"},
	)

	TokenRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backoffice_token_rotations_total",
			Help: "Successful refresh-token rotations",
		},
	)

	TokenValidationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backoffice_token_validation_failures_total",
			Help: "Access-token validations that did not authenticate",
		},
	)

	AuditEntriesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backoffice_audit_entries_total",
			Help: "Audit entries persisted",
		},
	)

	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backoffice_audit_write_failures_total",
			Help: "Audit entry writes that failed (best-effort path)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		LoginsTotal, TokenRotations, TokenValidationFailures,
		AuditEntriesWritten, AuditWriteFailures,
	)
}
