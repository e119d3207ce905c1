// Package cluster implements Clusterer: agglomerative single-linkage
// spatial clustering of anomalies within a trailing temporal window.
package cluster

import (
	"time"

	"riverwatch.dev/agent/pkg/geo"
	"riverwatch.dev/agent/pkg/model"
)

// Cluster groups anomalies that are spatially and temporally close.
func Cluster(anomalies []model.Anomaly, spatialRadiusKM float64, temporalWindow time.Duration, minClusterSize int) []model.Cluster {
	windowed := withinWindow(anomalies, temporalWindow)

	assigned := make([]bool, len(windowed))
	clusters := make([]model.Cluster, 0)

	for i := range windowed {
		if assigned[i] {
			continue
		}
		members := []model.Anomaly{windowed[i]}
		assigned[i] = true

		for j := i + 1; j < len(windowed); j++ {
			if assigned[j] {
				continue
			}
			d := geo.HaversineKM(windowed[i].Lat, windowed[i].Lon, windowed[j].Lat, windowed[j].Lon)
			if d <= spatialRadiusKM {
				members = append(members, windowed[j])
				assigned[j] = true
			}
		}

		if len(members) < minClusterSize {
			continue
		}

		clusters = append(clusters, buildCluster(members))
	}

	return clusters
}

// withinWindow retains anomalies whose timestamp is no older than
// temporalWindow before the latest timestamp present in the input.
func withinWindow(anomalies []model.Anomaly, temporalWindow time.Duration) []model.Anomaly {
	if len(anomalies) == 0 {
		return nil
	}
	latest := anomalies[0].Timestamp
	for _, a := range anomalies[1:] {
		if a.Timestamp.After(latest) {
			latest = a.Timestamp
		}
	}
	cutoff := latest.Add(-temporalWindow)

	out := make([]model.Anomaly, 0, len(anomalies))
	for _, a := range anomalies {
		if !a.Timestamp.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

func buildCluster(members []model.Anomaly) model.Cluster {
	var sumLat, sumLon float64
	var newest time.Time
	allFlood, allHydrology := true, true

	for i, m := range members {
		sumLat += m.Lat
		sumLon += m.Lon
		if i == 0 || m.Timestamp.After(newest) {
			newest = m.Timestamp
		}
		if m.Source != model.SourceFlood {
			allFlood = false
		}
		if m.Source != model.SourceHydrology {
			allHydrology = false
		}
	}

	n := float64(len(members))
	kind := model.SourceKindMixed
	switch {
	case allFlood:
		kind = model.SourceKindFlood
	case allHydrology:
		kind = model.SourceKindHydrology
	}

	return model.Cluster{
		Anomalies:       members,
		SourceKind:      kind,
		CentroidLat:     sumLat / n,
		CentroidLon:     sumLon / n,
		NewestTimestamp: newest,
	}
}
