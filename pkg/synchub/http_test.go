package synchub_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/storage"
	"github.com/dmitrymomot/flagkit/pkg/synchub"
)

func TestHTTPHandler_Poll(t *testing.T) {
	t.Parallel()

	store := seedStore(t, "flag-a", "flag-b")
	hub := synchub.NewHub(store, synchub.WithHeartbeatInterval(0))
	defer hub.Close()

	srv := httptest.NewServer(synchub.NewHTTPHandler(hub, store).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/flags")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))

	var body struct {
		Flags   []*storage.StoredFlag `json:"flags"`
		Version int64                 `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Flags, 2)

	t.Run("matching etag yields 304", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/flags", nil)
		require.NoError(t, err)
		req.Header.Set("If-None-Match", etag)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	})

	t.Run("if-modified-since yields 304 when unchanged", func(t *testing.T) {
		lastMod, err := http.ParseTime(resp.Header.Get("Last-Modified"))
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/flags", nil)
		require.NoError(t, err)
		req.Header.Set("If-Modified-Since", lastMod.Add(time.Second).Format(http.TimeFormat))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	})

	t.Run("stale if-modified-since yields 200", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/flags", nil)
		require.NoError(t, err)
		req.Header.Set("If-Modified-Since", time.Now().Add(-time.Hour).Format(http.TimeFormat))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("etag changes after publish", func(t *testing.T) {
		hub.Publish(synchub.DeletedEvent("flag-b"))

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/flags", nil)
		require.NoError(t, err)
		req.Header.Set("If-None-Match", etag)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEqual(t, etag, resp.Header.Get("ETag"))
	})
}

func TestHTTPHandler_SSE(t *testing.T) {
	t.Parallel()

	store := seedStore(t, "flag-a")
	hub := synchub.NewHub(store, synchub.WithHeartbeatInterval(0))
	defer hub.Close()

	srv := httptest.NewServer(synchub.NewHTTPHandler(hub, store).Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The handshake replays one event per flag plus SyncComplete, then the
	// published delete arrives live.
	go hub.Publish(synchub.DeletedEvent("flag-a"))

	var types []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if evType, ok := strings.CutPrefix(line, "event: "); ok {
			types = append(types, evType)
			if evType == string(synchub.EventDeleted) {
				break
			}
		}
	}

	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, string(synchub.EventUpdated), types[0])
	assert.Equal(t, string(synchub.EventSyncComplete), types[1])
	assert.Equal(t, string(synchub.EventDeleted), types[len(types)-1])
}
