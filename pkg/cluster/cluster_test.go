package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/geo"
	"riverwatch.dev/agent/pkg/model"
)

func anomalyAt(id string, lat, lon float64, ts time.Time, source model.Source) model.Anomaly {
	return model.Anomaly{
		Reading: model.Reading{
			Source: source, StationID: id, Lat: lat, Lon: lon, Timestamp: ts, HasCoords: true,
		},
		Threshold: 3.0,
	}
}

func TestCluster_GroupsNearbyAnomalies(t *testing.T) {
	now := time.Now().UTC()
	anomalies := []model.Anomaly{
		anomalyAt("a", 51.08, -2.87, now, model.SourceFlood),
		anomalyAt("b", 51.081, -2.871, now, model.SourceFlood),
		anomalyAt("c", 10.0, 10.0, now, model.SourceFlood),
	}

	clusters := Cluster(anomalies, 10.0, 24*time.Hour, 2)
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].Anomalies, 2)
	require.Equal(t, model.SourceKindFlood, clusters[0].SourceKind)
}

func TestCluster_DropsBelowMinSize(t *testing.T) {
	now := time.Now().UTC()
	anomalies := []model.Anomaly{
		anomalyAt("a", 51.08, -2.87, now, model.SourceFlood),
		anomalyAt("c", 10.0, 10.0, now, model.SourceFlood),
	}
	clusters := Cluster(anomalies, 10.0, 24*time.Hour, 2)
	require.Empty(t, clusters)
}

func TestCluster_MixedSourceKind(t *testing.T) {
	now := time.Now().UTC()
	anomalies := []model.Anomaly{
		anomalyAt("a", 51.08, -2.87, now, model.SourceFlood),
		anomalyAt("b", 51.081, -2.871, now, model.SourceHydrology),
	}
	clusters := Cluster(anomalies, 10.0, 24*time.Hour, 2)
	require.Len(t, clusters, 1)
	require.Equal(t, model.SourceKindMixed, clusters[0].SourceKind)
}

func TestCluster_ExcludesOutsideTemporalWindow(t *testing.T) {
	now := time.Now().UTC()
	stale := now.Add(-48 * time.Hour)
	anomalies := []model.Anomaly{
		anomalyAt("a", 51.08, -2.87, now, model.SourceFlood),
		anomalyAt("b", 51.081, -2.871, stale, model.SourceFlood),
	}
	clusters := Cluster(anomalies, 10.0, 24*time.Hour, 2)
	require.Empty(t, clusters)
}

func TestCluster_PairwiseDistanceInvariant(t *testing.T) {
	now := time.Now().UTC()
	anomalies := []model.Anomaly{
		anomalyAt("a", 51.00, -2.00, now, model.SourceFlood),
		anomalyAt("b", 51.05, -2.00, now, model.SourceFlood),
		anomalyAt("c", 51.09, -2.00, now, model.SourceFlood),
	}
	radius := 10.0
	clusters := Cluster(anomalies, radius, 24*time.Hour, 2)
	require.Len(t, clusters, 1)
	members := clusters[0].Anomalies
	for i := range members {
		for j := range members {
			d := geo.HaversineKM(members[i].Lat, members[i].Lon, members[j].Lat, members[j].Lon)
			require.LessOrEqual(t, d, 2*radius)
		}
	}
}

func TestCluster_Disjoint(t *testing.T) {
	now := time.Now().UTC()
	anomalies := []model.Anomaly{
		anomalyAt("a", 51.00, -2.00, now, model.SourceFlood),
		anomalyAt("b", 51.001, -2.001, now, model.SourceFlood),
		anomalyAt("x", 10.0, 10.0, now, model.SourceFlood),
		anomalyAt("y", 10.001, 10.001, now, model.SourceFlood),
	}
	clusters := Cluster(anomalies, 5.0, 24*time.Hour, 2)
	require.Len(t, clusters, 2)
	seen := map[string]bool{}
	for _, c := range clusters {
		for _, a := range c.Anomalies {
			require.False(t, seen[a.StationID], "station %s appeared in more than one cluster", a.StationID)
			seen[a.StationID] = true
		}
	}
}
