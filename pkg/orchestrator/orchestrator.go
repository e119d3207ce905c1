// Package orchestrator implements CycleOrchestrator: drives one
// cycle end-to-end through the FETCH/DETECT/CLUSTER/ENRICH/COMPOSE/
// PERSIST/LOG state machine and composes the AgentRunLog, built on the
// same ticker-driven periodic-loop idiom as coordinator/coordinator.go,
// generalized from a heartbeat loop to a non-overlapping work cycle, with
// bounded concurrent fan-out via golang.org/x/sync/errgroup in place of
// the raw-channel worker pool in worker/pool.go, since errgroup
// additionally carries per-stage error aggregation and context
// cancellation that this pipeline's cycle-deadline model needs.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"riverwatch.dev/agent/internal/errs"
	"riverwatch.dev/agent/internal/logging"
	"riverwatch.dev/agent/internal/metrics"
	"riverwatch.dev/agent/pkg/anomaly"
	"riverwatch.dev/agent/pkg/cluster"
	"riverwatch.dev/agent/pkg/compose"
	"riverwatch.dev/agent/pkg/fetch"
	"riverwatch.dev/agent/pkg/model"
	"riverwatch.dev/agent/pkg/rainfall"
)

// Config parameterizes one orchestrator instance.
type Config struct {
	CycleDeadline time.Duration

	SpatialRadiusKM     float64
	TemporalWindow      time.Duration
	MinClusterSize      int
	MaxClusterFanout    int
	PermitSearchRadiusKM float64

	RainfallCorrelationRadiusKM float64
	RainfallWindow              time.Duration
	RainfallThresholds          rainfall.Thresholds

	SimilarityTopK     int
	SimilarityMinScore float64
}

// PermitSearcher is satisfied by *permits.Searcher.
type PermitSearcher interface {
	SearchNear(ctx context.Context, centroidLat, centroidLon, radiusKM float64) ([]model.Permit, error)
}

// IncidentStore is satisfied by *incidents.Store.
type IncidentStore interface {
	StoreIfNew(ctx context.Context, incident model.Incident) (stored bool, effectiveID string, err error)
}

// SimilarityIndex is satisfied by *similarity.Index.
type SimilarityIndex interface {
	EmbedAndStore(ctx context.Context, incident model.Incident) error
	Query(ctx context.Context, text string, k int, minScore float64) ([]model.SimilarityMatch, error)
}

// GraphIngestor is satisfied by *graph.Ingestor.
type GraphIngestor interface {
	Ingest(ctx context.Context, incident model.Incident) error
	LinkSimilar(ctx context.Context, incidentID, similarIncidentID string, score float64) error
}

// RunLogRecorder is satisfied by *runlog.Recorder.
type RunLogRecorder interface {
	Record(ctx context.Context, log model.AgentRunLog)
}

// Orchestrator wires every component into one runnable cycle.
type Orchestrator struct {
	cfg Config

	fetchers   []fetch.Fetcher
	detector   anomaly.Detector
	permits    PermitSearcher
	composer   *compose.Composer
	incidents  IncidentStore
	similarity SimilarityIndex
	graph      GraphIngestor
	runlog     RunLogRecorder

	logger  *logging.ContextLogger
	metrics *metrics.Metrics
}

func New(
	cfg Config,
	fetchers []fetch.Fetcher,
	detector anomaly.Detector,
	permitSearcher PermitSearcher,
	composer *compose.Composer,
	incidentStore IncidentStore,
	simIndex SimilarityIndex,
	graphIngestor GraphIngestor,
	runLogRecorder RunLogRecorder,
	logger *logging.ContextLogger,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, fetchers: fetchers, detector: detector, permits: permitSearcher,
		composer: composer, incidents: incidentStore, similarity: simIndex,
		graph: graphIngestor, runlog: runLogRecorder, logger: logger, metrics: m,
	}
}

// RunCycle executes one full cycle. It never returns an error to the
// caller for stage-local failures; the catastrophic-failure recovery and
// cooperative-cancellation handling happen internally so the scheduling
// loop can always proceed to the next tick.
func (o *Orchestrator) RunCycle(parent context.Context) model.AgentRunLog {
	runID := uuid.NewString()
	startedAt := time.Now().UTC()

	log := model.AgentRunLog{
		RunID:            runID,
		StartedAt:        startedAt,
		ReadingsFetched:  make(map[model.Source]int),
		ExternalAPICalls: make(map[string]int),
	}

	ctx, cancel := context.WithTimeout(parent, o.cfg.CycleDeadline)
	defer cancel()

	acc := &logAccumulator{log: &log}

	defer func() {
		if r := recover(); r != nil {
			log.Aborted = true
			log.AbortReason = fmt.Sprintf("panic: %v", r)
			o.logger.WithField("run_id", runID).Errorf("cycle panicked: %v", r)
		}
		log.DurationSeconds = time.Since(startedAt).Seconds()

		// Detached from parent: on SIGTERM parent is already cancelled by
		// the time this runs, and the final run log must still land.
		recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
		o.runlog.Record(recordCtx, log)
		recordCancel()

		o.metrics.RecordCycle(time.Since(startedAt), log.Aborted)
	}()

	readings, err := o.fetch(ctx, &log, acc)
	if err != nil {
		log.Aborted = true
		log.AbortReason = err.Error()
		return log
	}

	anomalies := o.detect(readings)
	clusters := cluster.Cluster(anomalies, o.cfg.SpatialRadiusKM, o.cfg.TemporalWindow, o.cfg.MinClusterSize)
	log.ClustersFound = len(clusters)
	for _, c := range clusters {
		log.Clusters = append(log.Clusters, model.ClusterSummary{
			CentroidLat: c.CentroidLat, CentroidLon: c.CentroidLon, StationCount: len(c.StationIDs()),
		})
	}

	rainfallReadings := readings[model.SourceRainfall]

	enriched, err := o.enrich(ctx, clusters, rainfallReadings, acc)
	if err != nil {
		log.Aborted = true
		log.AbortReason = err.Error()
		return log
	}

	incidentsToPersist := o.compose(enriched, runID)

	o.persist(ctx, incidentsToPersist, &log, acc)
	acc.finalizeSimilarity()

	select {
	case <-ctx.Done():
		if log.AbortReason == "" {
			log.Aborted = true
			log.AbortReason = (&errs.CycleAbortedError{Reason: "deadline exceeded or cancelled", Err: ctx.Err()}).Error()
		}
	default:
	}

	return log
}

// logAccumulator serializes concurrent stage-error and counter writes
// into the cycle's AgentRunLog.
type logAccumulator struct {
	mu                 sync.Mutex
	log                *model.AgentRunLog
	similarityScoreSum float64
}

func (a *logAccumulator) recordError(stage, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.Errors = append(a.log.Errors, model.StageError{Stage: stage, Message: message})
}

func (a *logAccumulator) incrementVectorWrites() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.VectorStoreWrites++
}

func (a *logAccumulator) incrementGraphWrites() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.GraphStoreWrites++
}

func (a *logAccumulator) incrementAPICall(service string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.ExternalAPICalls[service]++
}

// recordSimilarityMatches folds one incident's nearest-neighbour results
// into the cycle's running count/best; the average is derived once, in
// finalizeSimilarity, from the running sum this accumulates.
func (a *logAccumulator) recordSimilarityMatches(matches []model.SimilarityMatch) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range matches {
		a.log.SimilaritySearchCount++
		a.similarityScoreSum += m.Score
		if m.Score > a.log.BestSimilarityScore {
			a.log.BestSimilarityScore = m.Score
		}
	}
}

func (a *logAccumulator) finalizeSimilarity() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.log.SimilaritySearchCount > 0 {
		a.log.AvgSimilarityScore = a.similarityScoreSum / float64(a.log.SimilaritySearchCount)
	}
}

type enrichedCluster struct {
	cluster model.Cluster
	permits []model.Permit
	rain    model.RainfallSummary
}

// fetch runs FETCH: the three fetchers concurrently under the cycle
// deadline. A fetcher failure is recorded as a stage error; the cycle
// continues with whatever the other fetchers produced.
func (o *Orchestrator) fetch(ctx context.Context, log *model.AgentRunLog, acc *logAccumulator) (map[model.Source][]model.Reading, error) {
	results := make(map[model.Source][]model.Reading, len(o.fetchers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, f := range o.fetchers {
		f := f
		g.Go(func() error {
			service := string(f.Source())
			start := time.Now()
			readings, err := f.FetchLatest(gctx)
			o.metrics.RecordUpstreamCall(service, upstreamStatus(err), time.Since(start))
			acc.incrementAPICall(service)
			if err != nil {
				acc.recordError(service, err.Error())
				o.metrics.RecordStageError(service)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			results[f.Source()] = readings
			log.ReadingsFetched[f.Source()] = len(readings)
			return nil
		})
	}

	_ = g.Wait()

	stations := make(map[string]struct{})
	for source, readings := range results {
		for _, r := range readings {
			if r.HasCoords {
				stations[string(source)+":"+r.StationID] = struct{}{}
			}
		}
	}
	log.StationsFetched = len(stations)

	return results, nil
}

func upstreamStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (o *Orchestrator) detect(readings map[model.Source][]model.Reading) []model.Anomaly {
	detectable := make([]model.Reading, 0, len(readings[model.SourceFlood])+len(readings[model.SourceHydrology]))
	detectable = append(detectable, readings[model.SourceFlood]...)
	detectable = append(detectable, readings[model.SourceHydrology]...)
	return o.detector.Classify(detectable)
}

// enrich runs ENRICH: permit search and rainfall correlation concurrently
// per cluster, bounded by MaxClusterFanout.
func (o *Orchestrator) enrich(ctx context.Context, clusters []model.Cluster, rainfallReadings []model.Reading, acc *logAccumulator) ([]enrichedCluster, error) {
	out := make([]enrichedCluster, len(clusters))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxFanout(o.cfg.MaxClusterFanout))

	for i, c := range clusters {
		i, c := i, c
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			start := time.Now()
			permitResults, err := o.permits.SearchNear(gctx, c.CentroidLat, c.CentroidLon, o.cfg.PermitSearchRadiusKM)
			o.metrics.RecordUpstreamCall("permits", upstreamStatus(err), time.Since(start))
			acc.incrementAPICall("permits")
			if err != nil {
				acc.recordError("permits", err.Error())
				o.metrics.RecordStageError("permits")
				permitResults = nil
			}

			rain := rainfall.Summarise(rainfallReadings, c.CentroidLat, c.CentroidLon,
				o.cfg.RainfallCorrelationRadiusKM, o.cfg.RainfallWindow, time.Now().UTC(), o.cfg.RainfallThresholds)

			out[i] = enrichedCluster{cluster: c, permits: permitResults, rain: rain}
			return nil
		})
	}

	_ = g.Wait()
	return out, nil
}

func maxFanout(configured int) int {
	if configured <= 0 {
		return 8
	}
	return configured
}

func (o *Orchestrator) compose(enriched []enrichedCluster, runID string) []model.Incident {
	out := make([]model.Incident, 0, len(enriched))
	now := time.Now().UTC()
	for _, e := range enriched {
		incidentID := uuid.NewString()
		incident := o.composer.Compose(incidentID, e.cluster, e.permits, e.rain, runID, now)
		out = append(out, incident)
	}
	return out
}

// persist runs PERSIST: each incident goes through the document store
// sequentially (dedup must observe a consistent view), then on
// stored=true fans out the similarity index and graph writes in
// parallel.
func (o *Orchestrator) persist(ctx context.Context, candidates []model.Incident, log *model.AgentRunLog, acc *logAccumulator) {
	for _, incident := range candidates {
		stored, effectiveID, err := o.incidents.StoreIfNew(ctx, incident)
		if err != nil {
			acc.recordError("incidents", err.Error())
			o.metrics.RecordStageError("incidents")
			continue
		}

		if !stored {
			log.IncidentsDuplicate++
			log.IncidentIDsDuplicate = append(log.IncidentIDsDuplicate, effectiveID)
			continue
		}

		log.IncidentsCreated++
		log.IncidentIDsCreated = append(log.IncidentIDsCreated, effectiveID)
		log.DocumentStoreWrites++

		// Queried before EmbedAndStore so the incident can't match itself.
		matches, err := o.similarity.Query(ctx, incident.SummaryText, o.similarityTopK(), o.cfg.SimilarityMinScore)
		if err != nil {
			acc.recordError("similarity-search", err.Error())
			o.metrics.RecordStageError("similarity-search")
			matches = nil
		} else {
			acc.recordSimilarityMatches(matches)
		}

		var g errgroup.Group
		g.Go(func() error {
			if err := o.similarity.EmbedAndStore(ctx, incident); err != nil {
				acc.recordError("similarity", err.Error())
				o.metrics.RecordStageError("similarity")
				return nil
			}
			acc.incrementVectorWrites()
			return nil
		})
		g.Go(func() error {
			if err := o.graph.Ingest(ctx, incident); err != nil {
				acc.recordError("graph", err.Error())
				o.metrics.RecordStageError("graph")
				return nil
			}
			acc.incrementGraphWrites()

			for _, m := range matches {
				if err := o.graph.LinkSimilar(ctx, incident.IncidentID, m.IncidentID, m.Score); err != nil {
					acc.recordError("graph-similar", err.Error())
					o.metrics.RecordStageError("graph-similar")
				}
			}
			return nil
		})
		_ = g.Wait()
	}
}

func (o *Orchestrator) similarityTopK() int {
	if o.cfg.SimilarityTopK <= 0 {
		return 5
	}
	return o.cfg.SimilarityTopK
}
