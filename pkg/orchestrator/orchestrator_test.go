package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/internal/logging"
	"riverwatch.dev/agent/internal/metrics"
	"riverwatch.dev/agent/pkg/compose"
	"riverwatch.dev/agent/pkg/fetch"
	"riverwatch.dev/agent/pkg/model"
	"riverwatch.dev/agent/pkg/rainfall"
)

func fetchersOf(fetchers ...fetch.Fetcher) []fetch.Fetcher {
	return fetchers
}

func testLogger() *logging.ContextLogger {
	logger := logging.NewLogger(logging.LoggerConfig{Level: "error", Format: "text"})
	return logging.NewContextLogger(logger, "test", "test")
}

// stubFetcher is a fetch.Fetcher that returns a fixed set of readings or a
// fixed error.
type stubFetcher struct {
	source   model.Source
	readings []model.Reading
	err      error
}

func (f stubFetcher) Source() model.Source { return f.source }
func (f stubFetcher) FetchLatest(ctx context.Context) ([]model.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.readings, nil
}

// passThroughDetector returns every reading with coordinates as an
// anomaly, ignoring thresholds entirely.
type passThroughDetector struct{}

func (passThroughDetector) Classify(readings []model.Reading) []model.Anomaly {
	out := make([]model.Anomaly, 0, len(readings))
	for _, r := range readings {
		if !r.HasCoords {
			continue
		}
		out = append(out, model.Anomaly{Reading: r, Threshold: 0})
	}
	return out
}

type stubPermitSearcher struct {
	permits []model.Permit
	err     error
	calls   int
}

func (s *stubPermitSearcher) SearchNear(ctx context.Context, centroidLat, centroidLon, radiusKM float64) ([]model.Permit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.permits, nil
}

type stubIncidentStore struct {
	mu       sync.Mutex
	stored   []model.Incident
	duplicate bool
	err      error
}

func (s *stubIncidentStore) StoreIfNew(ctx context.Context, incident model.Incident) (bool, string, error) {
	if s.err != nil {
		return false, "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicate {
		return false, "existing-id", nil
	}
	s.stored = append(s.stored, incident)
	return true, incident.IncidentID, nil
}

type stubSimilarityIndex struct {
	mu         sync.Mutex
	count      int
	err        error
	queryErr   error
	queryCalls int
	matches    []model.SimilarityMatch
}

func (s *stubSimilarityIndex) EmbedAndStore(ctx context.Context, incident model.Incident) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func (s *stubSimilarityIndex) Query(ctx context.Context, text string, k int, minScore float64) ([]model.SimilarityMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.matches, nil
}

type stubGraphIngestor struct {
	mu          sync.Mutex
	count       int
	err         error
	similarLinks []model.SimilarityMatch
}

func (s *stubGraphIngestor) Ingest(ctx context.Context, incident model.Incident) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func (s *stubGraphIngestor) LinkSimilar(ctx context.Context, incidentID, similarIncidentID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.similarLinks = append(s.similarLinks, model.SimilarityMatch{IncidentID: similarIncidentID, Score: score})
	return nil
}

type stubRunLogRecorder struct {
	mu   sync.Mutex
	logs []model.AgentRunLog
}

func (s *stubRunLogRecorder) Record(ctx context.Context, log model.AgentRunLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
}

func testConfig() Config {
	return Config{
		CycleDeadline:               5 * time.Second,
		SpatialRadiusKM:             5,
		TemporalWindow:              time.Hour,
		MinClusterSize:              2,
		MaxClusterFanout:            4,
		PermitSearchRadiusKM:        2,
		RainfallCorrelationRadiusKM: 5,
		RainfallWindow:              time.Hour,
		RainfallThresholds:          rainfall.Thresholds{HeavyMM: 15, ModerateMM: 5},
		SimilarityTopK:              5,
		SimilarityMinScore:          0.75,
	}
}

func floodReading(stationID string, lat, lon, value float64, ts time.Time) model.Reading {
	return model.Reading{
		Source: model.SourceFlood, StationID: stationID, Timestamp: ts,
		Parameter: "level", Value: value, HasCoords: true, Lat: lat, Lon: lon,
	}
}

func TestRunCycle_ComposesAndPersistsIncidentFromTwoStationCluster(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		floodReading("1029", 51.5, -0.1, 1.2, now),
		floodReading("1030", 51.501, -0.101, 1.3, now.Add(-5*time.Minute)),
	}

	incidentStore := &stubIncidentStore{}
	simIndex := &stubSimilarityIndex{}
	graphIngestor := &stubGraphIngestor{}
	runLog := &stubRunLogRecorder{}
	permitSearcher := &stubPermitSearcher{}

	o := New(
		testConfig(),
		fetchersOf(stubFetcher{source: model.SourceFlood, readings: readings}),
		passThroughDetector{},
		permitSearcher,
		compose.NewComposer(compose.PriorityThresholds{High: 0.5, Medium: 0.2}, nil),
		incidentStore,
		simIndex,
		graphIngestor,
		runLog,
		testLogger(),
		metrics.NewMetrics("orchestrator_test_cluster"),
	)

	log := o.RunCycle(context.Background())

	require.False(t, log.Aborted)
	require.Equal(t, 1, log.ClustersFound)
	require.Equal(t, 1, log.IncidentsCreated)
	require.Len(t, incidentStore.stored, 1)
	require.Equal(t, 1, simIndex.count)
	require.Equal(t, 1, simIndex.queryCalls)
	require.Equal(t, 1, graphIngestor.count)
	require.Len(t, runLog.logs, 1)
	require.Equal(t, log.RunID, runLog.logs[0].RunID)

	require.Equal(t, 2, log.StationsFetched)
	require.Equal(t, 1, log.ExternalAPICalls["flood"])
	require.Equal(t, 1, log.ExternalAPICalls["permits"])
}

func TestRunCycle_SimilarityMatchesPopulateRunLogAndLinkGraph(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		floodReading("1029", 51.5, -0.1, 1.2, now),
		floodReading("1030", 51.501, -0.101, 1.3, now.Add(-5*time.Minute)),
	}

	incidentStore := &stubIncidentStore{}
	simIndex := &stubSimilarityIndex{matches: []model.SimilarityMatch{
		{IncidentID: "past-1", Score: 0.9},
		{IncidentID: "past-2", Score: 0.8},
	}}
	graphIngestor := &stubGraphIngestor{}
	runLog := &stubRunLogRecorder{}

	o := New(
		testConfig(),
		fetchersOf(stubFetcher{source: model.SourceFlood, readings: readings}),
		passThroughDetector{},
		&stubPermitSearcher{},
		compose.NewComposer(compose.PriorityThresholds{High: 0.5, Medium: 0.2}, nil),
		incidentStore,
		simIndex,
		graphIngestor,
		runLog,
		testLogger(),
		metrics.NewMetrics("orchestrator_test_similarity"),
	)

	log := o.RunCycle(context.Background())

	require.Equal(t, 2, log.SimilaritySearchCount)
	require.InDelta(t, 0.85, log.AvgSimilarityScore, 0.0001)
	require.InDelta(t, 0.9, log.BestSimilarityScore, 0.0001)

	require.Len(t, graphIngestor.similarLinks, 2)
}

func TestRunCycle_FetcherFailureRecordsStageErrorButContinues(t *testing.T) {
	incidentStore := &stubIncidentStore{}
	simIndex := &stubSimilarityIndex{}
	graphIngestor := &stubGraphIngestor{}
	runLog := &stubRunLogRecorder{}

	o := New(
		testConfig(),
		fetchersOf(stubFetcher{source: model.SourceFlood, err: errors.New("upstream down")}),
		passThroughDetector{},
		&stubPermitSearcher{},
		compose.NewComposer(compose.PriorityThresholds{High: 0.5, Medium: 0.2}, nil),
		incidentStore,
		simIndex,
		graphIngestor,
		runLog,
		testLogger(),
		metrics.NewMetrics("orchestrator_test_fetcherr"),
	)

	log := o.RunCycle(context.Background())

	require.False(t, log.Aborted)
	require.Len(t, log.Errors, 1)
	require.Equal(t, "flood", log.Errors[0].Stage)
	require.Equal(t, 0, log.IncidentsCreated)
}

func TestRunCycle_DuplicateIncidentSkipsVectorAndGraphWrites(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		floodReading("1029", 51.5, -0.1, 1.2, now),
		floodReading("1030", 51.501, -0.101, 1.3, now.Add(-5*time.Minute)),
	}

	incidentStore := &stubIncidentStore{duplicate: true}
	simIndex := &stubSimilarityIndex{}
	graphIngestor := &stubGraphIngestor{}
	runLog := &stubRunLogRecorder{}

	o := New(
		testConfig(),
		fetchersOf(stubFetcher{source: model.SourceFlood, readings: readings}),
		passThroughDetector{},
		&stubPermitSearcher{},
		compose.NewComposer(compose.PriorityThresholds{High: 0.5, Medium: 0.2}, nil),
		incidentStore,
		simIndex,
		graphIngestor,
		runLog,
		testLogger(),
		metrics.NewMetrics("orchestrator_test_dup"),
	)

	log := o.RunCycle(context.Background())

	require.Equal(t, 1, log.IncidentsDuplicate)
	require.Equal(t, 0, log.IncidentsCreated)
	require.Equal(t, 0, simIndex.count)
	require.Equal(t, 0, graphIngestor.count)
}

func TestRunCycle_PersistenceErrorRecordsStageErrorWithoutAborting(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		floodReading("1029", 51.5, -0.1, 1.2, now),
		floodReading("1030", 51.501, -0.101, 1.3, now.Add(-5*time.Minute)),
	}

	incidentStore := &stubIncidentStore{err: errors.New("db unavailable")}
	runLog := &stubRunLogRecorder{}

	o := New(
		testConfig(),
		fetchersOf(stubFetcher{source: model.SourceFlood, readings: readings}),
		passThroughDetector{},
		&stubPermitSearcher{},
		compose.NewComposer(compose.PriorityThresholds{High: 0.5, Medium: 0.2}, nil),
		incidentStore,
		&stubSimilarityIndex{},
		&stubGraphIngestor{},
		runLog,
		testLogger(),
		metrics.NewMetrics("orchestrator_test_persisterr"),
	)

	log := o.RunCycle(context.Background())

	require.False(t, log.Aborted)
	require.Len(t, log.Errors, 1)
	require.Equal(t, "incidents", log.Errors[0].Stage)
}
