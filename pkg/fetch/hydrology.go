package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riverwatch.dev/agent/pkg/model"
	"riverwatch.dev/agent/pkg/stations"
)

type hydrologyMeasure struct {
	ID string `json:"@id"`
}

type hydrologyItem struct {
	Measure  hydrologyMeasure `json:"measure"`
	Value    float64          `json:"value"`
	DateTime string           `json:"dateTime"`
}

type hydrologyResponse struct {
	Items []hydrologyItem `json:"items"`
}

// HydrologyFetcher retrieves the latest river-flow readings. It differs
// from FloodFetcher only in the shape of the measure field (an object
// carrying @id rather than a bare URL string); the station-id extraction
// rule is otherwise identical.
type HydrologyFetcher struct {
	client   *ResilientClient
	stations stations.Store
}

func NewHydrologyFetcher(cfg ClientConfig, stationStore stations.Store) *HydrologyFetcher {
	cfg.BreakerName = "hydrology"
	return &HydrologyFetcher{client: NewResilientClient(cfg), stations: stationStore}
}

func (f *HydrologyFetcher) Source() model.Source { return model.SourceHydrology }

func (f *HydrologyFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	body, err := f.client.Get(ctx, "/data/readings", map[string]string{
		"latest":    "",
		"parameter": "flow",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch hydrology readings: %w", err)
	}

	var resp hydrologyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode hydrology response: %w", err)
	}

	readings := make([]model.Reading, 0, len(resp.Items))
	for _, item := range resp.Items {
		ts, err := time.Parse(time.RFC3339, item.DateTime)
		if err != nil {
			continue
		}
		readings = append(readings, model.Reading{
			Source:    model.SourceHydrology,
			StationID: extractStationID(item.Measure.ID),
			Timestamp: ts,
			Parameter: "flow",
			Value:     item.Value,
		})
	}

	return enrichWithStations(ctx, f.stations, model.SourceHydrology, readings)
}
