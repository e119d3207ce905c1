package stations

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"riverwatch.dev/agent/pkg/model"
)

// SeedFromCSV bulk-loads station metadata from a CSV file with header
// columns source,station_id,lat,lon,easting,northing,label. This is a
// bootstrap path for the stations table: the store itself never calls
// upstream APIs to discover stations.
func (s *PostgresRedisStore) SeedFromCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"source", "station_id", "lat", "lon"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("csv missing required column %q", required)
		}
	}

	n := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("read csv record %d: %w", n, err)
		}

		lat, err := strconv.ParseFloat(record[col["lat"]], 64)
		if err != nil {
			return n, fmt.Errorf("record %d: parse lat: %w", n, err)
		}
		lon, err := strconv.ParseFloat(record[col["lon"]], 64)
		if err != nil {
			return n, fmt.Errorf("record %d: parse lon: %w", n, err)
		}

		st := model.Station{
			Source:    model.Source(record[col["source"]]),
			StationID: record[col["station_id"]],
			Lat:       lat,
			Lon:       lon,
		}
		if i, ok := col["easting"]; ok && record[i] != "" {
			if v, err := strconv.ParseFloat(record[i], 64); err == nil {
				st.Easting = v
			}
		}
		if i, ok := col["northing"]; ok && record[i] != "" {
			if v, err := strconv.ParseFloat(record[i], 64); err == nil {
				st.Northing = v
			}
		}
		if i, ok := col["label"]; ok {
			st.Label = record[i]
		}

		if err := s.Upsert(ctx, st); err != nil {
			return n, fmt.Errorf("record %d: upsert: %w", n, err)
		}
		n++
	}

	return n, nil
}
