package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riverwatch.dev/agent/pkg/model"
	"riverwatch.dev/agent/pkg/stations"
)

type rainfallResponse struct {
	Items []floodItem `json:"items"`
}

// RainfallFetcher retrieves the latest rainfall gauge readings. Its
// response shape matches FloodFetcher's (a bare measure URL string), so
// it reuses floodItem for decoding.
type RainfallFetcher struct {
	client   *ResilientClient
	stations stations.Store
}

func NewRainfallFetcher(cfg ClientConfig, stationStore stations.Store) *RainfallFetcher {
	cfg.BreakerName = "rainfall"
	return &RainfallFetcher{client: NewResilientClient(cfg), stations: stationStore}
}

func (f *RainfallFetcher) Source() model.Source { return model.SourceRainfall }

func (f *RainfallFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	body, err := f.client.Get(ctx, "/data/readings", map[string]string{
		"latest":    "",
		"parameter": "rainfall",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch rainfall readings: %w", err)
	}

	var resp rainfallResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode rainfall response: %w", err)
	}

	readings := make([]model.Reading, 0, len(resp.Items))
	for _, item := range resp.Items {
		ts, err := time.Parse(time.RFC3339, item.DateTime)
		if err != nil {
			continue
		}
		readings = append(readings, model.Reading{
			Source:    model.SourceRainfall,
			StationID: extractStationID(item.Measure),
			Timestamp: ts,
			Parameter: "rainfall",
			Value:     item.Value,
		})
	}

	return enrichWithStations(ctx, f.stations, model.SourceRainfall, readings)
}
