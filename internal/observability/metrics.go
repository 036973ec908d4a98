// Package observability exposes the progression service Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/progression/internal/domain"
)

const namespace = "progression_service"

var (
	xpGrantedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "xp_granted_total",
		Help:      "Total XP granted by committed workouts and achievement unlocks.",
	})
	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "levels_gained_total",
		Help:      "Number of levels gained across all users.",
	})
	achievementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "achievements_unlocked_total",
		Help:      "Number of achievements unlocked, labeled by achievement id.",
	}, []string{"achievement_id"})
	versionConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "version_conflicts_total",
		Help:      "Conditional writes rejected because the record version moved.",
	})
	contentionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "contention_exceeded_total",
		Help:      "Operations that exhausted their version-conflict retries.",
	})
	corruptStateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "corrupt_records_total",
		Help:      "Stored records found violating progression invariants.",
	})
	dailyResetGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "daily",
		Name:      "last_reset_day_timestamp_seconds",
		Help:      "Unix timestamp (midnight UTC) of the most recent completed daily reset day.",
	})
	recordPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent progression record write.",
	})
)

func init() {
	prometheus.MustRegister(
		xpGrantedCounter,
		levelUpCounter,
		achievementCounter,
		versionConflictCounter,
		contentionCounter,
		corruptStateCounter,
		dailyResetGauge,
		recordPersistGauge,
	)
}

// Metrics implements domain.Metrics on the default Prometheus registry.
type Metrics struct{}

var _ domain.Metrics = Metrics{}

// XPGranted implements domain.Metrics.
func (Metrics) XPGranted(amount int) { xpGrantedCounter.Add(float64(amount)) }

// LevelUp implements domain.Metrics.
func (Metrics) LevelUp(levels int) { levelUpCounter.Add(float64(levels)) }

// AchievementUnlocked implements domain.Metrics.
func (Metrics) AchievementUnlocked(id string) { achievementCounter.WithLabelValues(id).Inc() }

// VersionConflict implements domain.Metrics.
func (Metrics) VersionConflict() { versionConflictCounter.Inc() }

// ContentionExceeded implements domain.Metrics.
func (Metrics) ContentionExceeded() { contentionCounter.Inc() }

// CorruptState implements domain.Metrics.
func (Metrics) CorruptState() { corruptStateCounter.Inc() }

// DailyReset implements domain.Metrics.
func (Metrics) DailyReset(day domain.Day) { dailyResetGauge.Set(float64(day.Time().Unix())) }

// RecordPersisted updates the persistence watermark gauge.
func RecordPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recordPersistGauge.Set(float64(ts.Unix()))
}
