package scheduler

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

func TestHTTPClient_PublishOneShot(t *testing.T) {
	var received oneShotRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schedule/one-shot", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 3)
	err := c.PublishOneShot(context.Background(), "https://example.com/cb", map[string]any{"reminderId": 7}, 30*time.Second, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/cb", received.URL)
	assert.Equal(t, 30, received.DelaySeconds)
}

func TestHTTPClient_PublishCronReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cronResponse{ID: "job-123"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 3)
	id, err := c.PublishCron(context.Background(), "https://example.com/cb", "*/5 * * * *", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "job-123", id)
}

func TestHTTPClient_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", 3)
	err := c.Cancel(context.Background(), "job-123")
	assert.Error(t, err)
}
