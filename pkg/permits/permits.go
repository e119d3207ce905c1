// Package permits implements PermitSearcher: a CSV-over-HTTP client
// against the regulatory permits register, reusing the same resilient
// HTTP stack as the reading fetchers.
package permits

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"riverwatch.dev/agent/pkg/fetch"
	"riverwatch.dev/agent/pkg/geo"
	"riverwatch.dev/agent/pkg/model"
)

// categoryByType is the static mapping from the permits register's free-
// text "type" field to a PermitCategory. Lookup is case-insensitive
// substring match in table order; no match falls through to "other".
var categoryByType = []struct {
	substr   string
	category model.PermitCategory
}{
	{"waste", model.PermitWaste},
	{"discharge", model.PermitDischarge},
	{"flood", model.PermitFloodRisk},
	{"abstraction", model.PermitAbstraction},
}

func categorize(permitType string) model.PermitCategory {
	lower := strings.ToLower(permitType)
	for _, entry := range categoryByType {
		if strings.Contains(lower, entry.substr) {
			return entry.category
		}
	}
	return model.PermitOther
}

// Searcher queries the permits register near a point.
type Searcher struct {
	client *fetch.ResilientClient
}

func NewSearcher(cfg fetch.ClientConfig) *Searcher {
	cfg.BreakerName = "permits"
	return &Searcher{client: fetch.NewResilientClient(cfg)}
}

// SearchNear calls the permits API and annotates each result with its
// straight-line distance from centroid when the row carries lat/lon;
// otherwise the row's own distance column is used, and a row with
// neither is given radiusKM. Returns an empty, non-nil slice on HTTP
// success with no matching rows.
func (s *Searcher) SearchNear(ctx context.Context, centroidLat, centroidLon, radiusKM float64) ([]model.Permit, error) {
	body, err := s.client.Get(ctx, "/api/search.csv", map[string]string{
		"lat":  strconv.FormatFloat(centroidLat, 'f', 6, 64),
		"lon":  strconv.FormatFloat(centroidLon, 'f', 6, 64),
		"dist": strconv.FormatFloat(radiusKM, 'f', 3, 64),
	})
	if err != nil {
		return nil, fmt.Errorf("search permits: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return []model.Permit{}, nil
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	permits := make([]model.Permit, 0)
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		p := model.Permit{
			DistanceKM: radiusKM,
		}
		if i, ok := col["holder"]; ok && i < len(record) {
			p.Operator = record[i]
		}
		if i, ok := col["type"]; ok && i < len(record) {
			p.Type = record[i]
			p.Category = categorize(record[i])
		}
		if i, ok := col["address"]; ok && i < len(record) {
			p.SiteAddress = record[i]
		}
		if i, ok := col["permit_id"]; ok && i < len(record) {
			p.PermitID = record[i]
		} else if i, ok := col["reference"]; ok && i < len(record) {
			p.PermitID = record[i]
		}
		haveCoords := false
		if latI, ok1 := col["lat"]; ok1 && latI < len(record) {
			if lat, err := strconv.ParseFloat(record[latI], 64); err == nil {
				if lonI, ok2 := col["lon"]; ok2 && lonI < len(record) {
					if lon, err := strconv.ParseFloat(record[lonI], 64); err == nil {
						p.Lat = &lat
						p.Lon = &lon
						p.DistanceKM = geo.HaversineKM(centroidLat, centroidLon, lat, lon)
						haveCoords = true
					}
				}
			}
		}
		if !haveCoords {
			if i, ok := col["distance"]; ok && i < len(record) {
				if d, err := strconv.ParseFloat(record[i], 64); err == nil {
					p.DistanceKM = d
				}
			}
		}
		permits = append(permits, p)
	}

	return permits, nil
}
