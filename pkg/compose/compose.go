// Package compose implements IncidentComposer: derives priority,
// summary text, suggested actions, and content_hash from an enriched
// cluster, producing the persisted Incident record.
package compose

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"riverwatch.dev/agent/pkg/model"
)

// PriorityThresholds parameterizes the exceedance-fraction boundaries.
type PriorityThresholds struct {
	High   float64
	Medium float64
}

// Summariser produces the human-facing summary_text for a cluster. The
// default is DeterministicSummariser; an LLM-backed variant can be
// substituted without the composer's other logic changing.
type Summariser interface {
	Summarise(c model.Cluster, rain model.RainfallSummary, permitCount int) string
}

// Composer turns an enriched cluster into an Incident.
type Composer struct {
	thresholds PriorityThresholds
	summariser Summariser
}

func NewComposer(thresholds PriorityThresholds, summariser Summariser) *Composer {
	if summariser == nil {
		summariser = DeterministicSummariser{}
	}
	return &Composer{thresholds: thresholds, summariser: summariser}
}

// Compose derives priority, summary, suggested actions, and content_hash
// and assembles the Incident. incidentID must already be a fresh UUID;
// this package has no opinion on identity generation.
func (c *Composer) Compose(incidentID string, cluster model.Cluster, permits []model.Permit, rain model.RainfallSummary, runID string, now time.Time) model.Incident {
	priority := derivePriority(cluster, c.thresholds)
	summary := c.summariser.Summarise(cluster, rain, len(permits))
	actions := suggestedActions(cluster.SourceKind, priority, permitCategories(permits), rain.Category)

	return model.Incident{
		IncidentID:       incidentID,
		ContentHash:      ContentHash(cluster, priority),
		CreatedAt:        now,
		Priority:         priority,
		SourceKind:       cluster.SourceKind,
		CentroidLat:      cluster.CentroidLat,
		CentroidLon:      cluster.CentroidLon,
		SummaryText:      summary,
		SuggestedActions: actions,
		Readings:         cluster.Anomalies,
		Permits:          permits,
		RainfallSummary:  rain,
		RunID:            runID,
	}
}

// derivePriority is a pure function of the cluster's anomalies: high if
// any exceedance fraction is >= High, medium if >= Medium, else low.
func derivePriority(cluster model.Cluster, t PriorityThresholds) model.Priority {
	var maxExceedance float64
	for _, a := range cluster.Anomalies {
		if f := a.ExceedanceFraction(); f > maxExceedance {
			maxExceedance = f
		}
	}
	switch {
	case maxExceedance >= t.High:
		return model.PriorityHigh
	case maxExceedance >= t.Medium:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// ContentHash is SHA-256 over source_kind | priority | sorted
// (station_id, iso_timestamp, parameter, rounded value) tuples, computed
// independent of input ordering so reruns over the same cluster are
// stable regardless of fetch order.
func ContentHash(cluster model.Cluster, priority model.Priority) string {
	tuples := make([]string, len(cluster.Anomalies))
	for i, a := range cluster.Anomalies {
		tuples[i] = fmt.Sprintf("%s|%s|%s|%.3f",
			a.StationID, a.Timestamp.UTC().Format(time.RFC3339), a.Parameter, a.Value)
	}
	sort.Strings(tuples)

	h := sha256.New()
	h.Write([]byte(string(cluster.SourceKind)))
	h.Write([]byte("|"))
	h.Write([]byte(priority))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(tuples, ",")))

	return hex.EncodeToString(h.Sum(nil))
}

func permitCategories(permits []model.Permit) map[model.PermitCategory]bool {
	present := make(map[model.PermitCategory]bool)
	for _, p := range permits {
		present[p.Category] = true
	}
	return present
}
