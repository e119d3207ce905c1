package runlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/model"
)

func TestToDoc_SetsIDAndPreservesFields(t *testing.T) {
	log := model.AgentRunLog{
		RunID:            "run-1",
		StartedAt:        time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC),
		ReadingsFetched:  map[model.Source]int{model.SourceFlood: 12},
		ClustersFound:    2,
		IncidentsCreated: 1,
		Errors: []model.StageError{
			{Stage: "permits", Message: "timeout"},
		},
		Aborted: false,
	}

	doc, err := toDoc(log)
	require.NoError(t, err)
	require.Equal(t, "run-1", doc["_id"])
	require.Equal(t, float64(2), doc["clusters_found"])
	require.Equal(t, float64(1), doc["incidents_created"])

	errs, ok := doc["errors"].([]interface{})
	require.True(t, ok)
	require.Len(t, errs, 1)
}

func TestToDoc_EmptyRunIDStillProducesID(t *testing.T) {
	doc, err := toDoc(model.AgentRunLog{})
	require.NoError(t, err)
	require.Equal(t, "", doc["_id"])
}
