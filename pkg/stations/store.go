// Package stations implements StationMetadataStore: a read-only,
// constant-time lookup of station coordinates, backed by a Redis hot
// cache in front of a Postgres cold tier, following the two-tier
// cache-then-store pattern of CacheRepository (db/repository/redis.go)
// and MetricsRepository (db/repository/postgres.go).
package stations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"riverwatch.dev/agent/internal/errs"
	"riverwatch.dev/agent/internal/pgdb"
	"riverwatch.dev/agent/pkg/model"
)

// Store resolves (source, station_id) pairs to coordinates.
type Store interface {
	// LookupBatch performs one read round-trip per tier; missing keys yield
	// absent entries in the result map (never an error).
	LookupBatch(ctx context.Context, source model.Source, stationIDs []string) (map[string]*model.Station, error)
}

const cacheKeyPrefix = "station:"
const cacheTTL = 6 * time.Hour

// PostgresRedisStore implements Store with a Redis cache and a Postgres
// cold tier. Both are optional: a nil cache is skipped silently; a nil
// Postgres handle means every lookup is served from cache only.
type PostgresRedisStore struct {
	cache *redis.Client
	db    *pgdb.DB
}

// New constructs a PostgresRedisStore. Either dependency may be nil.
func New(cache *redis.Client, db *pgdb.DB) *PostgresRedisStore {
	return &PostgresRedisStore{cache: cache, db: db}
}

func cacheKey(source model.Source, stationID string) string {
	return fmt.Sprintf("%s%s:%s", cacheKeyPrefix, source, stationID)
}

func (s *PostgresRedisStore) LookupBatch(ctx context.Context, source model.Source, stationIDs []string) (map[string]*model.Station, error) {
	result := make(map[string]*model.Station, len(stationIDs))
	if len(stationIDs) == 0 {
		return result, nil
	}

	var misses []string
	if s.cache != nil {
		keys := make([]string, len(stationIDs))
		for i, id := range stationIDs {
			keys[i] = cacheKey(source, id)
		}
		vals, mgetErr := s.cache.MGet(ctx, keys...).Result()
		for i, id := range stationIDs {
			var raw string
			var ok bool
			if mgetErr == nil {
				raw, ok = vals[i].(string)
			}
			var st model.Station
			if !ok || json.Unmarshal([]byte(raw), &st) != nil {
				misses = append(misses, id)
				continue
			}
			result[id] = &st
		}
	} else {
		misses = stationIDs
	}

	if len(misses) == 0 {
		return result, nil
	}

	if s.db == nil {
		if s.cache == nil {
			return nil, &errs.StoreUnavailableError{Store: "stations", Err: fmt.Errorf("no cache or database configured")}
		}
		return result, nil
	}

	fetched, err := s.queryPostgres(ctx, source, misses)
	if err != nil {
		return nil, &errs.StoreUnavailableError{Store: "stations", Err: err}
	}

	for id, st := range fetched {
		result[id] = st
		if s.cache != nil {
			if raw, err := json.Marshal(st); err == nil {
				_ = s.cache.Set(ctx, cacheKey(source, id), raw, cacheTTL).Err()
			}
		}
	}

	return result, nil
}

func (s *PostgresRedisStore) queryPostgres(ctx context.Context, source model.Source, stationIDs []string) (map[string]*model.Station, error) {
	rows, err := s.db.Query(ctx, `
		SELECT station_id, lat, lon, easting, northing, label
		FROM stations
		WHERE source = $1 AND station_id = ANY($2)
	`, string(source), stationIDs)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Station)
	for rows.Next() {
		var st model.Station
		st.Source = source
		if err := rows.Scan(&st.StationID, &st.Lat, &st.Lon, &st.Easting, &st.Northing, &st.Label); err != nil {
			return nil, fmt.Errorf("scan station row: %w", err)
		}
		out[st.StationID] = &st
	}
	return out, rows.Err()
}

// EnsureSchema creates the stations table if missing. Bootstrap concern,
// not part of the per-cycle hot path.
func (s *PostgresRedisStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stations (
			source     TEXT NOT NULL,
			station_id TEXT NOT NULL,
			lat        DOUBLE PRECISION NOT NULL,
			lon        DOUBLE PRECISION NOT NULL,
			easting    DOUBLE PRECISION NOT NULL DEFAULT 0,
			northing   DOUBLE PRECISION NOT NULL DEFAULT 0,
			label      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (source, station_id)
		)
	`)
}

// Upsert writes or replaces a station row. Used by SeedFromCSV and by the
// (out-of-core) bootstrap job this store's population depends on.
func (s *PostgresRedisStore) Upsert(ctx context.Context, st model.Station) error {
	if s.db == nil {
		return fmt.Errorf("no database configured")
	}
	return s.db.Exec(ctx, `
		INSERT INTO stations (source, station_id, lat, lon, easting, northing, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, station_id) DO UPDATE
		SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, easting = EXCLUDED.easting,
		    northing = EXCLUDED.northing, label = EXCLUDED.label
	`, string(st.Source), st.StationID, st.Lat, st.Lon, st.Easting, st.Northing, st.Label)
}
