package permits

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riverwatch.dev/agent/pkg/fetch"
)

func TestSearchNear_ParsesCSVAndCategorizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("holder,type,address,distance\n" +
			"Acme Water Ltd,Discharge Consent,1 River Rd,0.3\n" +
			"Acme Waste Co,Waste Management Licence,2 Quay St,0.8\n" +
			"Unknown Corp,Some Other Thing,3 Dock Ln,0.1\n"))
	}))
	defer srv.Close()

	s := NewSearcher(fetch.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 2})
	permits, err := s.SearchNear(context.Background(), 51.08, -2.87, 1.0)
	require.NoError(t, err)
	require.Len(t, permits, 3)

	require.Equal(t, "discharge", string(permits[0].Category))
	require.Equal(t, "waste", string(permits[1].Category))
	require.Equal(t, "other", string(permits[2].Category))
}

func TestSearchNear_EmptyOnNoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("holder,type,address,distance\n"))
	}))
	defer srv.Close()

	s := NewSearcher(fetch.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 2})
	permits, err := s.SearchNear(context.Background(), 51.08, -2.87, 1.0)
	require.NoError(t, err)
	require.Empty(t, permits)
}
