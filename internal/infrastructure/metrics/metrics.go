package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the bot counters exported on /metrics.
type Metrics struct {
	ChallengesIssued    prometheus.Counter
	Confirmations       *prometheus.CounterVec
	Revocations         prometheus.Counter
	Debits              *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	ProfileLookupErrors *prometheus.CounterVec

	factory promauto.Factory
}

// New registers the counters on reg. Pass prometheus.DefaultRegisterer in production and
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factory: f,
		ChallengesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "bloxbot_challenges_issued_total",
			Help: "Total number of verification codes issued",
		}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloxbot_confirmations_total",
			Help: "Verification confirmations by outcome",
		}, []string{"outcome"}),
		Revocations: f.NewCounter(prometheus.CounterOpts{
			Name: "bloxbot_revocations_total",
			Help: "Total number of revoked verifications",
		}),
		Debits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloxbot_credit_debits_total",
			Help: "Credit debits by outcome",
		}, []string{"outcome"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloxbot_ad_submissions_total",
			Help: "Advertisement submissions by status transition",
		}, []string{"status"}),
		ProfileLookupErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bloxbot_profile_lookup_errors_total",
			Help: "Profile lookup failures by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementChallengesIssued() {
	m.ChallengesIssued.Inc()
}

func (m *Metrics) RecordConfirmation(outcome string) {
	m.Confirmations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRevocations() {
	m.Revocations.Inc()
}

func (m *Metrics) RecordDebit(outcome string) {
	m.Debits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSubmission(status string) {
	m.Submissions.WithLabelValues(status).Inc()
}

// ObservePendingChallenges exports the result of count, read at scrape time, as the
// pending challenge gauge. Call it once per Metrics.
func (m *Metrics) ObservePendingChallenges(count func() int) prometheus.GaugeFunc {
	return m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "bloxbot_pending_challenges",
		Help: "Verification challenges currently held in memory",
	}, func() float64 { return float64(count()) })
}

func (m *Metrics) RecordLookupError(kind string) {
	m.ProfileLookupErrors.WithLabelValues(kind).Inc()
}
