// Package graph implements GraphIngestor: idempotent MERGE-based
// writes of the Incident/Station/Permit relationship view, directly
// grounded on Neo4jRepository.StoreActionGraph in db/repository/neo4j.go,
// generalized from action/dependency graphs to incident/station/permit
// graphs.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"riverwatch.dev/agent/pkg/model"
)

// Ingestor writes an Incident and its related nodes/edges into Neo4j.
type Ingestor struct {
	driver neo4j.DriverWithContext
}

func NewIngestor(uri, username, password string) (*Ingestor, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	return &Ingestor{driver: driver}, nil
}

func (g *Ingestor) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// Ingest is idempotent: Incident/Station/Permit nodes are merged by their
// identity key, and edges are merged rather than created unconditionally,
// so calling Ingest n times for the same incident leaves the graph
// unchanged after the first call. Existing nodes are never overwritten.
func (g *Ingestor) Ingest(ctx context.Context, incident model.Incident) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		if _, err := tx.Run(ctx, `
			MERGE (i:Incident {incident_id: $incidentID})
			ON CREATE SET i.priority = $priority, i.source_kind = $sourceKind,
			              i.created_at = $createdAt, i.summary_text = $summary
		`, map[string]interface{}{
			"incidentID": incident.IncidentID,
			"priority":   string(incident.Priority),
			"sourceKind": string(incident.SourceKind),
			"createdAt":  incident.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"summary":    incident.SummaryText,
		}); err != nil {
			return nil, fmt.Errorf("merge incident node: %w", err)
		}

		for _, reading := range incident.Readings {
			if _, err := tx.Run(ctx, `
				MATCH (i:Incident {incident_id: $incidentID})
				MERGE (s:Station {source: $source, station_id: $stationID})
				MERGE (i)-[:MEASURED_AT]->(s)
			`, map[string]interface{}{
				"incidentID": incident.IncidentID,
				"source":     string(reading.Source),
				"stationID":  reading.StationID,
			}); err != nil {
				return nil, fmt.Errorf("merge station edge: %w", err)
			}
		}

		for _, permit := range incident.Permits {
			if _, err := tx.Run(ctx, `
				MATCH (i:Incident {incident_id: $incidentID})
				MERGE (p:Permit {permit_id: $permitID})
				ON CREATE SET p.operator = $operator, p.category = $category
				MERGE (i)-[edge:NEAR_PERMIT]->(p)
				SET edge.distance_km = $distanceKM
			`, map[string]interface{}{
				"incidentID": incident.IncidentID,
				"permitID":   permit.PermitID,
				"operator":   permit.Operator,
				"category":   string(permit.Category),
				"distanceKM": permit.DistanceKM,
			}); err != nil {
				return nil, fmt.Errorf("merge permit edge: %w", err)
			}
		}

		return nil, nil
	})

	return err
}

// LinkSimilar records a SIMILAR_TO edge between two incidents, carrying
// the similarity score. Optional enrichment; failure here does not
// affect the primary Ingest call's success.
func (g *Ingestor) LinkSimilar(ctx context.Context, incidentID, similarIncidentID string, score float64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, `
			MATCH (a:Incident {incident_id: $a})
			MATCH (b:Incident {incident_id: $b})
			MERGE (a)-[edge:SIMILAR_TO]->(b)
			SET edge.score = $score
		`, map[string]interface{}{"a": incidentID, "b": similarIncidentID, "score": score})
		return nil, err
	})
	return err
}
