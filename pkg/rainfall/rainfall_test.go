package rainfall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/model"
)

func thresholds() Thresholds {
	return Thresholds{HeavyMM: 15.0, ModerateMM: 5.0}
}

func TestSummarise_ZeroTotalIsNone(t *testing.T) {
	now := time.Now().UTC()
	summary := Summarise(nil, 51.08, -2.87, 10.0, 24*time.Hour, now, thresholds())
	require.Equal(t, model.RainfallNone, summary.Category)
	require.Equal(t, 0.0, summary.TotalMM)
	require.Equal(t, 0, summary.GaugeCount)
}

func TestSummarise_AggregatesWithinRadiusAndWindow(t *testing.T) {
	now := time.Now().UTC()
	readings := []model.Reading{
		{StationID: "g1", Lat: 51.08, Lon: -2.87, Value: 6.0, Timestamp: now.Add(-1 * time.Hour), HasCoords: true},
		{StationID: "g2", Lat: 51.081, Lon: -2.871, Value: 4.0, Timestamp: now.Add(-2 * time.Hour), HasCoords: true},
		{StationID: "g3", Lat: 10.0, Lon: 10.0, Value: 99.0, Timestamp: now, HasCoords: true},
		{StationID: "g1", Lat: 51.08, Lon: -2.87, Value: 5.0, Timestamp: now.Add(-48 * time.Hour), HasCoords: true},
	}
	summary := Summarise(readings, 51.08, -2.87, 10.0, 24*time.Hour, now, thresholds())
	require.Equal(t, 10.0, summary.TotalMM)
	require.Equal(t, 6.0, summary.MaxHourlyMM)
	require.Equal(t, 2, summary.GaugeCount)
	require.Equal(t, model.RainfallModerate, summary.Category)
}

func TestSummarise_HeavyCategory(t *testing.T) {
	now := time.Now().UTC()
	readings := []model.Reading{
		{StationID: "g1", Lat: 51.08, Lon: -2.87, Value: 20.0, Timestamp: now, HasCoords: true},
	}
	summary := Summarise(readings, 51.08, -2.87, 10.0, 24*time.Hour, now, thresholds())
	require.Equal(t, model.RainfallHeavy, summary.Category)
}
