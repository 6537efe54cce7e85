package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts lifecycle outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	logins        *prometheus.CounterVec
	sessionsEnded *prometheus.CounterVec
	registrations *prometheus.CounterVec
	codes         *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg when it is not nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qcauth_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		sessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qcauth_sessions_ended_total",
				Help: "Ended sessions by reason.",
			},
			[]string{"reason"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qcauth_registrations_total",
				Help: "Registration requests by outcome.",
			},
			[]string{"outcome"},
		),
		codes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qcauth_enrollment_codes_total",
				Help: "Enrollment code events.",
			},
			[]string{"event"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.logins, m.sessionsEnded, m.registrations, m.codes} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) loginResult(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) sessionEnded(reason SessionEndReason) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) codeEvent(event string) {
	if m == nil {
		return
	}
	m.codes.WithLabelValues(event).Inc()
}
