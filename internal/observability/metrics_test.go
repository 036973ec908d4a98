package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/progression/internal/domain"
)

func TestMetricsRecordServiceCounters(t *testing.T) {
	m := Metrics{}

	xpBefore := testutil.ToFloat64(xpGrantedCounter)
	m.XPGranted(50)
	require.Equal(t, xpBefore+50, testutil.ToFloat64(xpGrantedCounter))

	before := testutil.ToFloat64(achievementCounter.WithLabelValues("marathon"))
	m.AchievementUnlocked("marathon")
	require.Equal(t, before+1, testutil.ToFloat64(achievementCounter.WithLabelValues("marathon")))

	day := domain.NewDay(2025, time.March, 10)
	m.DailyReset(day)
	require.Equal(t, float64(day.Time().Unix()), testutil.ToFloat64(dailyResetGauge))

	RecordPersisted(time.Time{})
	ts := time.Unix(1700000000, 0)
	RecordPersisted(ts)
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(recordPersistGauge))
}
