// Package rainfall implements RainfallCorrelator: an in-memory
// aggregation over the cycle's rainfall readings, correlated per-cluster
// by radius and window. No upstream call of its own; the readings were
// already fetched by pkg/fetch's RainfallFetcher.
package rainfall

import (
	"time"

	"riverwatch.dev/agent/pkg/geo"
	"riverwatch.dev/agent/pkg/model"
)

// Thresholds parameterizes the category boundaries.
type Thresholds struct {
	HeavyMM    float64
	ModerateMM float64
}

// Summarise aggregates rainfall readings within radiusKM of centroid and
// within window of now into a RainfallSummary.
func Summarise(readings []model.Reading, centroidLat, centroidLon, radiusKM float64, window time.Duration, now time.Time, thresholds Thresholds) model.RainfallSummary {
	cutoff := now.Add(-window)

	var total, max float64
	stationCount := 0
	seen := make(map[string]struct{})

	for _, r := range readings {
		if !r.HasCoords {
			continue
		}
		if r.Timestamp.Before(cutoff) || r.Timestamp.After(now) {
			continue
		}
		if geo.HaversineKM(centroidLat, centroidLon, r.Lat, r.Lon) > radiusKM {
			continue
		}

		total += r.Value
		if r.Value > max {
			max = r.Value
		}
		if _, ok := seen[r.StationID]; !ok {
			seen[r.StationID] = struct{}{}
			stationCount++
		}
	}

	return model.RainfallSummary{
		TotalMM:     total,
		MaxHourlyMM: max,
		GaugeCount:  stationCount,
		Category:    categorize(total, thresholds),
	}
}

func categorize(total float64, t Thresholds) model.RainfallCategory {
	switch {
	case total >= t.HeavyMM:
		return model.RainfallHeavy
	case total >= t.ModerateMM:
		return model.RainfallModerate
	case total > 0:
		return model.RainfallLight
	default:
		return model.RainfallNone
	}
}
