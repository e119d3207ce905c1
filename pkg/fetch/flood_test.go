package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/model"
)

type stubStationStore struct {
	stations map[string]*model.Station
}

func (s *stubStationStore) LookupBatch(_ context.Context, _ model.Source, ids []string) (map[string]*model.Station, error) {
	out := make(map[string]*model.Station)
	for _, id := range ids {
		if st, ok := s.stations[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func TestFloodFetcher_FetchLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"measure": "http://example.org/id/measures/1029-level-stage-i-15_min-mAOD", "value": 3.97, "dateTime": "2026-07-31T12:00:00Z"},
				{"measure": "http://example.org/id/measures/9999-level-stage", "value": 1.10, "dateTime": "2026-07-31T12:00:00Z"}
			]
		}`))
	}))
	defer srv.Close()

	store := &stubStationStore{stations: map[string]*model.Station{
		"1029": {Source: model.SourceFlood, StationID: "1029", Lat: 51.08, Lon: -2.87},
	}}

	f := NewFloodFetcher(ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 2}, store)
	readings, err := f.FetchLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 2)

	byStation := map[string]model.Reading{}
	for _, r := range readings {
		byStation[r.StationID] = r
	}

	require.True(t, byStation["1029"].HasCoords)
	require.Equal(t, 51.08, byStation["1029"].Lat)
	require.False(t, byStation["9999"].HasCoords)
}

func TestFloodFetcher_TerminalErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFloodFetcher(ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 3}, &stubStationStore{})
	_, err := f.FetchLatest(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
