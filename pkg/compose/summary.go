package compose

import (
	"fmt"
	"strings"

	"riverwatch.dev/agent/pkg/model"
)

const maxSummaryLen = 600
const maxNamedStations = 6

// DeterministicSummariser is the default Summariser: a templated sentence
// selected by source_kind, naming station ids, peak/average value,
// threshold, rainfall category, and permit count.
type DeterministicSummariser struct{}

func (DeterministicSummariser) Summarise(c model.Cluster, rain model.RainfallSummary, permitCount int) string {
	stationPhrase := stationList(c.StationIDs())
	peak, avg, threshold := peakAverageThreshold(c)

	kindPhrase := "flood"
	switch c.SourceKind {
	case model.SourceKindHydrology:
		kindPhrase = "hydrology"
	case model.SourceKindMixed:
		kindPhrase = "mixed flood/hydrology"
	}

	rainPhrase := rainfallPhrase(rain)
	permitPhrase := permitPhrase(permitCount)

	text := fmt.Sprintf(
		"%s anomaly at %s (%d station%s): peak %.2f, average %.2f, threshold %.2f. %s %s",
		capitalize(kindPhrase), stationPhrase, len(c.StationIDs()), plural(len(c.StationIDs())),
		peak, avg, threshold, rainPhrase, permitPhrase,
	)

	if len(text) > maxSummaryLen {
		text = text[:maxSummaryLen]
	}
	return text
}

func stationList(ids []string) string {
	if len(ids) <= maxNamedStations {
		return strings.Join(ids, ", ")
	}
	return strings.Join(ids[:maxNamedStations], ", ") + "…"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func peakAverageThreshold(c model.Cluster) (peak, avg, threshold float64) {
	if len(c.Anomalies) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for i, a := range c.Anomalies {
		if i == 0 || a.Value > peak {
			peak = a.Value
		}
		sum += a.Value
		threshold = a.Threshold
	}
	avg = sum / float64(len(c.Anomalies))
	return peak, avg, threshold
}

func rainfallPhrase(rain model.RainfallSummary) string {
	switch rain.Category {
	case model.RainfallHeavy:
		return fmt.Sprintf("Heavy rainfall recorded nearby (%.1fmm).", rain.TotalMM)
	case model.RainfallModerate:
		return fmt.Sprintf("Moderate rainfall recorded nearby (%.1fmm).", rain.TotalMM)
	case model.RainfallLight:
		return fmt.Sprintf("Light rainfall recorded nearby (%.1fmm).", rain.TotalMM)
	default:
		return "No rainfall recorded nearby in the correlation window."
	}
}

func permitPhrase(count int) string {
	if count == 0 {
		return "No regulated permits found nearby."
	}
	if count == 1 {
		return "1 regulated permit found nearby."
	}
	return fmt.Sprintf("%d regulated permits found nearby.", count)
}
