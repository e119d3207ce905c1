package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riverwatch.dev/agent/pkg/model"
	"riverwatch.dev/agent/pkg/stations"
)

type floodItem struct {
	Measure  string  `json:"measure"`
	Value    float64 `json:"value"`
	DateTime string  `json:"dateTime"`
}

type floodResponse struct {
	Items []floodItem `json:"items"`
}

// FloodFetcher retrieves the latest river/tidal level readings.
type FloodFetcher struct {
	client  *ResilientClient
	stations stations.Store
}

func NewFloodFetcher(cfg ClientConfig, stationStore stations.Store) *FloodFetcher {
	cfg.BreakerName = "flood"
	return &FloodFetcher{client: NewResilientClient(cfg), stations: stationStore}
}

func (f *FloodFetcher) Source() model.Source { return model.SourceFlood }

func (f *FloodFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	body, err := f.client.Get(ctx, "/data/readings", map[string]string{
		"latest":    "",
		"parameter": "level",
	})
	if err != nil {
		return nil, fmt.Errorf("fetch flood readings: %w", err)
	}

	var resp floodResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode flood response: %w", err)
	}

	readings := make([]model.Reading, 0, len(resp.Items))
	for _, item := range resp.Items {
		ts, err := time.Parse(time.RFC3339, item.DateTime)
		if err != nil {
			continue
		}
		readings = append(readings, model.Reading{
			Source:    model.SourceFlood,
			StationID: extractStationID(item.Measure),
			Timestamp: ts,
			Parameter: "level",
			Value:     item.Value,
		})
	}

	return enrichWithStations(ctx, f.stations, model.SourceFlood, readings)
}
