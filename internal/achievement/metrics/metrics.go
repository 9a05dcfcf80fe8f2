package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Unlock outcome labels.
const (
	OutcomeUnlocked           = "unlocked"
	OutcomeUnknownAchievement = "unknown_achievement"
	OutcomeInvalidSignature   = "invalid_signature"
	OutcomeSignatureMismatch  = "signature_mismatch"
	OutcomeAlreadyClaimed     = "already_claimed"
	OutcomeError              = "error"
)

// Metrics provides observability for the achievement module.
type Metrics struct {
	Unlocks            *prometheus.CounterVec
	UnlockDuration     prometheus.Histogram
	AchievementsAdded  prometheus.Counter
	RoleChanges        *prometheus.CounterVec
	NotAuthorizedCalls *prometheus.CounterVec
}

// New registers the achievement metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Unlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accolade_unlocks_total",
			Help: "Unlock attempts by outcome",
		}, []string{"outcome"}),
		UnlockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accolade_unlock_duration_seconds",
			Help:    "Duration of Unlock operations (verify, claim and mint)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AchievementsAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "accolade_achievements_added_total",
			Help: "Total number of achievements added to the registry",
		}),
		RoleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accolade_role_changes_total",
			Help: "Role reassignments by role",
		}, []string{"role"}),
		NotAuthorizedCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "accolade_not_authorized_total",
			Help: "Admin operations rejected because the caller is not admin",
		}, []string{"operation"}),
	}
}

// ObserveUnlock records an unlock attempt with its outcome.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveUnlock(outcome string, start time.Time) {
	m.Unlocks.WithLabelValues(outcome).Inc()
	m.UnlockDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAchievementsAdded() {
	m.AchievementsAdded.Inc()
}

func (m *Metrics) IncrementRoleChange(role string) {
	m.RoleChanges.WithLabelValues(role).Inc()
}

func (m *Metrics) IncrementNotAuthorized(operation string) {
	m.NotAuthorizedCalls.WithLabelValues(operation).Inc()
}
