// Package runlog implements RunLogRecorder: one document per cycle
// in a second CouchDB database, grounded on the same
// CouchDBRepository pattern as pkg/incidents (db/repository/couchdb.go),
// here with its own database rather than sharing the incidents one, the
// same way db/repository keeps separate workflows/actions databases.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"

	"riverwatch.dev/agent/internal/logging"
	"riverwatch.dev/agent/pkg/model"
)

const dbName = "run_logs"

// Recorder writes AgentRunLog documents. Write failures are logged but
// never returned as a cycle-fatal error: the run log is a diagnostic
// artifact, not part of the pipeline's correctness contract.
type Recorder struct {
	db     *kivik.DB
	logger *logging.ContextLogger
}

func New(ctx context.Context, url, user, password string, logger *logging.ContextLogger) (*Recorder, error) {
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
			return nil, fmt.Errorf("create run_logs database: %w", err)
		}
		db = client.DB(dbName)
	}

	return &Recorder{db: db, logger: logger}, nil
}

// Record writes one AgentRunLog document, keyed by run_id. Failure is
// logged at Error level and swallowed.
func (r *Recorder) Record(ctx context.Context, log model.AgentRunLog) {
	doc, err := toDoc(log)
	if err != nil {
		r.logger.WithError(err).Error("marshal run log to document")
		return
	}

	if _, err := r.db.Put(ctx, log.RunID, doc); err != nil {
		r.logger.WithError(err).WithField("run_id", log.RunID).Error("write run log document")
	}
}

func toDoc(log model.AgentRunLog) (map[string]interface{}, error) {
	raw, err := json.Marshal(log)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = log.RunID
	return doc, nil
}

// Recent returns run logs started at or after since, most recent first.
func (r *Recorder) Recent(ctx context.Context, since time.Time) ([]model.AgentRunLog, error) {
	selector := map[string]interface{}{
		"started_at": map[string]interface{}{"$gte": since.UTC().Format(time.RFC3339)},
	}
	rows := r.db.Find(ctx, selector)
	defer rows.Close()

	var out []model.AgentRunLog
	for rows.Next() {
		var log model.AgentRunLog
		if err := rows.ScanDoc(&log); err != nil {
			continue
		}
		out = append(out, log)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, rows.Err()
}
