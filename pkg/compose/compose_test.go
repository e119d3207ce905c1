package compose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/model"
)

func twoFloodAnomalyCluster() model.Cluster {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	return model.Cluster{
		SourceKind:  model.SourceKindFlood,
		CentroidLat: 51.10,
		CentroidLon: -2.845,
		Anomalies: []model.Anomaly{
			{Reading: model.Reading{StationID: "1029", Source: model.SourceFlood, Parameter: "level", Value: 3.97, Timestamp: now, HasCoords: true, Lat: 51.08, Lon: -2.87}, Threshold: 3.00},
			{Reading: model.Reading{StationID: "1030", Source: model.SourceFlood, Parameter: "level", Value: 3.74, Timestamp: now.Add(-30 * time.Minute), HasCoords: true, Lat: 51.12, Lon: -2.82}, Threshold: 3.00},
		},
	}
}

func TestCompose_Scenario1(t *testing.T) {
	c := NewComposer(PriorityThresholds{High: 0.5, Medium: 0.2}, nil)
	cluster := twoFloodAnomalyCluster()
	permits := make([]model.Permit, 10)
	for i := range permits {
		permits[i] = model.Permit{PermitID: "p", Category: model.PermitOther}
	}
	for i := 0; i < 3; i++ {
		permits[i].Category = model.PermitDischarge
	}
	rain := model.RainfallSummary{Category: model.RainfallNone}

	incident := c.Compose("incident-1", cluster, permits, rain, "run-1", time.Now())

	require.Equal(t, model.PriorityMedium, incident.Priority)
	require.Equal(t, model.SourceKindFlood, incident.SourceKind)
	require.Equal(t, model.RainfallNone, incident.RainfallSummary.Category)
	require.Contains(t, incident.SummaryText, "1029")
	require.Contains(t, incident.SummaryText, "3.97")
	require.LessOrEqual(t, len(incident.SummaryText), 600)
}

func TestCompose_ContentHashStableAcrossReruns(t *testing.T) {
	c := NewComposer(PriorityThresholds{High: 0.5, Medium: 0.2}, nil)
	cluster := twoFloodAnomalyCluster()
	rain := model.RainfallSummary{Category: model.RainfallNone}

	i1 := c.Compose("a", cluster, nil, rain, "run-1", time.Now())
	i2 := c.Compose("b", cluster, nil, rain, "run-2", time.Now())

	require.Equal(t, i1.ContentHash, i2.ContentHash)
}

func TestContentHash_OrderIndependent(t *testing.T) {
	cluster := twoFloodAnomalyCluster()
	reordered := cluster
	reordered.Anomalies = []model.Anomaly{cluster.Anomalies[1], cluster.Anomalies[0]}

	h1 := ContentHash(cluster, model.PriorityMedium)
	h2 := ContentHash(reordered, model.PriorityMedium)
	require.Equal(t, h1, h2)
}

func TestDerivePriority_HighThreshold(t *testing.T) {
	cluster := model.Cluster{
		Anomalies: []model.Anomaly{
			{Reading: model.Reading{Value: 6.0}, Threshold: 3.0},
		},
	}
	priority := derivePriority(cluster, PriorityThresholds{High: 0.5, Medium: 0.2})
	require.Equal(t, model.PriorityHigh, priority)
}

func TestSuggestedActions_HighPriorityFloodWithDischarge(t *testing.T) {
	cats := map[model.PermitCategory]bool{model.PermitDischarge: true}
	actions := suggestedActions(model.SourceKindFlood, model.PriorityHigh, cats, model.RainfallNone)
	require.Contains(t, actions, "Dispatch a field crew to verify gauge readings")
	require.Contains(t, actions, "Notify downstream flood warning duty officer")
	require.Contains(t, actions, "Review upstream discharge consents for correlated activity")
}
