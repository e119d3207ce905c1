package stations

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/model"
)

func newTestCache(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestLookupBatch_EmptyInput(t *testing.T) {
	store := New(nil, nil)
	got, err := store.LookupBatch(context.Background(), model.SourceFlood, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLookupBatch_CacheHit(t *testing.T) {
	client, _ := newTestCache(t)
	store := New(client, nil)

	st := model.Station{Source: model.SourceFlood, StationID: "1029", Lat: 51.08, Lon: -2.87}
	require.NoError(t, store.cacheWrite(context.Background(), st))

	got, err := store.LookupBatch(context.Background(), model.SourceFlood, []string{"1029"})
	require.NoError(t, err)
	require.Contains(t, got, "1029")
	require.Equal(t, st.Lat, got["1029"].Lat)
}

func TestLookupBatch_NoStoresConfigured(t *testing.T) {
	store := New(nil, nil)
	_, err := store.LookupBatch(context.Background(), model.SourceFlood, []string{"1029"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "stations"))
}

func TestLookupBatch_CacheOnlyMissSkipsPostgres(t *testing.T) {
	client, _ := newTestCache(t)
	store := New(client, nil)

	got, err := store.LookupBatch(context.Background(), model.SourceFlood, []string{"absent"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func (s *PostgresRedisStore) cacheWrite(ctx context.Context, st model.Station) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, cacheKey(st.Source, st.StationID), raw, cacheTTL).Err()
}
