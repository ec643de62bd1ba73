package guest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/disk-image", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"imageId": "IMG-42"})
	}))
	defer ts.Close()

	c := NewClient(0)
	host := strings.TrimPrefix(ts.URL, "http://")

	id, err := c.DiskImage(context.Background(), host)
	require.NoError(t, err)
	assert.Equal(t, "IMG-42", id)
}

func TestDiskImageSendsQueriedHost(t *testing.T) {
	var gotHost string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.URL.Query().Get("host")
		_ = json.NewEncoder(w).Encode(map[string]string{"imageId": "IMG-42"})
	}))
	defer ts.Close()

	host := strings.TrimPrefix(ts.URL, "http://")
	_, err := NewClient(0).DiskImage(context.Background(), host)
	require.NoError(t, err)
	assert.Equal(t, host, gotHost)
}

func TestDiskImageBaseURLRoutesAllHosts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/disk-image", r.URL.Path)
		img := map[string]string{"vdi-001": "IMG-42", "vdi-002": "IMG-17"}[r.URL.Query().Get("host")]
		_ = json.NewEncoder(w).Encode(map[string]string{"imageId": img})
	}))
	defer ts.Close()

	c := NewClient(0)
	c.BaseURL = strings.TrimPrefix(ts.URL, "http://") // scheme is optional

	id, err := c.DiskImage(context.Background(), "vdi-001")
	require.NoError(t, err)
	assert.Equal(t, "IMG-42", id)

	id, err = c.DiskImage(context.Background(), "vdi-002")
	require.NoError(t, err)
	assert.Equal(t, "IMG-17", id)
}

func TestDiskImageEmptyIdentifier(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer ts.Close()

	id, err := NewClient(0).DiskImage(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDiskImageHonorsContextDeadline(t *testing.T) {
	blocked := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer ts.Close()
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(0).DiskImage(ctx, strings.TrimPrefix(ts.URL, "http://"))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDiskImageErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "agent not ready", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := NewClient(0).DiskImage(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent not ready")
}
