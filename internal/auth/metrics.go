// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for authentication events.
// A nil *Metrics records nothing.
type Metrics struct {
	Logins          *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	Authentications *prometheus.CounterVec
	Revocations     *prometheus.CounterVec
	HashDuration    prometheus.Histogram
}

// NewMetrics creates and registers authentication metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_auth_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_auth_refreshes_total",
				Help: "Total number of refresh token exchanges by result",
			},
			[]string{"result"},
		),
		Authentications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_auth_authentications_total",
				Help: "Total number of access token checks by result",
			},
			[]string{"result"},
		),
		Revocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "internhub_auth_revocations_total",
				Help: "Total number of refresh token revocations by scope",
			},
			[]string{"scope"},
		),
		HashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "internhub_auth_password_hash_seconds",
			Help:    "Time spent hashing or verifying passwords",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2},
		}),
	}

	reg.MustRegister(m.Logins, m.Refreshes, m.Authentications, m.Revocations, m.HashDuration)
	return m
}

func (m *Metrics) login(err error) {
	if m != nil {
		m.Logins.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) refresh(err error) {
	if m != nil {
		m.Refreshes.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) authentication(err error) {
	if m != nil {
		m.Authentications.WithLabelValues(resultLabel(err)).Inc()
	}
}

func (m *Metrics) revocation(scope string) {
	if m != nil {
		m.Revocations.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) observeHash(start time.Time) {
	if m != nil {
		m.HashDuration.Observe(time.Since(start).Seconds())
	}
}

// resultLabel keeps label cardinality bounded to the known auth codes.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch code := Code(err); code {
	case CodeMissingCredential, CodeInvalidCredentials, CodeForbidden,
		CodeAccountNotVerified, CodeInvalidInput, CodeAccountExists:
		return strings.ToLower(strings.TrimPrefix(code, "AUTH_"))
	default:
		return "error"
	}
}
