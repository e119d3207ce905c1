// Package incidents implements IncidentStore: a CouchDB-backed
// document store for Incident records with dedup serialized per
// content_hash via a Redis lock, grounded on CouchDBRepository in
// db/repository/couchdb.go for document CRUD and Mango-query lookups,
// and RedisRepository.AcquireLock in db/repository/redis.go for the
// dedup critical section.
package incidents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/redis/go-redis/v9"

	"riverwatch.dev/agent/pkg/model"
)

const dbName = "incidents"
const lockPrefix = "incident-dedup:"
const lockTTL = 10 * time.Second

// Store persists Incidents, deduplicating by content_hash within a
// configurable window.
type Store struct {
	db         *kivik.DB
	cache      *redis.Client
	dedupWindow time.Duration
}

func New(ctx context.Context, url, user, password string, cache *redis.Client, dedupWindow time.Duration) (*Store, error) {
	connectionURL := url
	if user != "" && password != "" && !strings.Contains(connectionURL, "@") {
		parts := strings.SplitN(connectionURL, "://", 2)
		if len(parts) == 2 {
			connectionURL = fmt.Sprintf("%s://%s:%s@%s", parts[0], user, password, parts[1])
		}
	}

	client, err := kivik.New("couch", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("create couchdb client: %w", err)
	}

	db := client.DB(dbName)
	if err := db.Err(); err != nil {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("create incidents database: %w", err)
		}
		db = client.DB(dbName)
	}

	return &Store{db: db, cache: cache, dedupWindow: dedupWindow}, nil
}

// StoreIfNew persists incident unless an incident with the same
// content_hash was already stored within the dedup window, in which case
// it returns (false, existingIncidentID). The content_hash check and the
// subsequent write are serialized per content_hash via a Redis lock so
// two concurrent cycles racing on the same hash cannot both insert.
func (s *Store) StoreIfNew(ctx context.Context, incident model.Incident) (stored bool, effectiveID string, err error) {
	lockKey := lockPrefix + incident.ContentHash

	if s.cache != nil {
		for {
			acquired, lockErr := s.acquireLock(ctx, lockKey)
			if lockErr != nil {
				return false, "", fmt.Errorf("acquire dedup lock: %w", lockErr)
			}
			if acquired {
				defer s.releaseLock(ctx, lockKey)
				break
			}
			select {
			case <-ctx.Done():
				return false, "", fmt.Errorf("acquire dedup lock: %w", ctx.Err())
			case <-time.After(50 * time.Millisecond):
			}
		}
	}

	existing, findErr := s.findByContentHash(ctx, incident.ContentHash, time.Now().Add(-s.dedupWindow))
	if findErr != nil {
		return false, "", fmt.Errorf("check existing incident: %w", findErr)
	}
	if existing != "" {
		return false, existing, nil
	}

	doc := toDoc(incident)
	if _, err := s.db.Put(ctx, incident.IncidentID, doc); err != nil {
		return false, "", fmt.Errorf("put incident document: %w", err)
	}

	return true, incident.IncidentID, nil
}

func (s *Store) findByContentHash(ctx context.Context, contentHash string, since time.Time) (string, error) {
	selector := map[string]interface{}{
		"content_hash": contentHash,
		"created_at":   map[string]interface{}{"$gte": since.UTC().Format(time.RFC3339)},
	}
	rows := s.db.Find(ctx, selector)
	defer rows.Close()

	if rows.Next() {
		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			return "", err
		}
		if id, ok := doc["incident_id"].(string); ok {
			return id, nil
		}
	}
	return "", rows.Err()
}

// Recent returns incidents created at or after since, newest first.
func (s *Store) Recent(ctx context.Context, since time.Time) ([]model.Incident, error) {
	selector := map[string]interface{}{
		"created_at": map[string]interface{}{"$gte": since.UTC().Format(time.RFC3339)},
	}
	rows := s.db.Find(ctx, selector)
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		out = append(out, fromDoc(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, rows.Err()
}

func (s *Store) acquireLock(ctx context.Context, key string) (bool, error) {
	ok, err := s.cache.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) releaseLock(ctx context.Context, key string) {
	s.cache.Del(ctx, key)
}
