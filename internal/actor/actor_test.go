package actor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientRunReturnsItems(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody runRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(runResponse{Items: []RawItem{{"username": "acme"}}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret-token", time.Second)
	items, err := c.Run(context.Background(), "get_profile", map[string]any{"username": "acme"}, RunLimits{MaxItems: 10})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "acme", items[0]["username"])
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/actors/get_profile/run", gotPath)
	assert.Equal(t, 10, gotBody.MaxItems)
}

func TestHTTPClientRunClassifiesNon200AsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("actor crashed"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token", time.Second)
	_, err := c.Run(context.Background(), "get_profile", nil, RunLimits{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream_failure")
}

func TestHTTPClientRunTimesOutOnSlowActor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(runResponse{})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "token", 0)
	_, err := c.Run(context.Background(), "get_profile", nil, RunLimits{Timeout: 5 * time.Millisecond})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestNewHTTPClientDefaultsTimeout(t *testing.T) {
	c := NewHTTPClient("http://example.invalid", "t", 0)
	assert.Equal(t, 60*time.Second, c.defaultTimeout)
}
