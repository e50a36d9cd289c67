package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&common.AggregateConfig{
		BaseURL:      serverURL,
		BearerToken:  "test-token",
		MaxAttempts:  4,
		RetryWaitMin: common.Duration(5 * time.Millisecond),
		RetryWaitMax: common.Duration(20 * time.Millisecond),
		Timeout:      common.Duration(5 * time.Second),
	}, arbor.NewLogger())
}

func TestFetchAggregateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bulk_upload/42/aggregate", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Aggregate{
			Entities: []*models.EntityWorkItem{
				{EntityID: "acct_1", EntityTaskID: 101},
				{EntityID: "acct_2", EntityTaskID: 102},
			},
			TaskOptions: map[string]interface{}{"upload_method": "browser"},
		})
	}))
	defer srv.Close()

	agg, err := newTestClient(srv.URL).FetchAggregate(context.Background(), "bulk_upload", 42)
	require.NoError(t, err)
	require.Len(t, agg.Entities, 2)
	assert.Equal(t, "acct_1", agg.Entities[0].EntityID)
	assert.Equal(t, 102, agg.Entities[1].EntityTaskID)
}

func TestFetchAggregateRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		if n < 4 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Aggregate{
			Entities: []*models.EntityWorkItem{{EntityID: "acct_1", EntityTaskID: 1}},
		})
	}))
	defer srv.Close()

	agg, err := newTestClient(srv.URL).FetchAggregate(context.Background(), "warmup", 7)
	require.NoError(t, err, "failures inside the retry budget must be invisible to the caller")
	assert.Len(t, agg.Entities, 1)
	assert.Equal(t, 4, attempts)
}

func TestFetchAggregateExhaustsRetryBudget(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAggregate(context.Background(), "warmup", 7)
	require.Error(t, err)

	var transient *interfaces.TransientFetchError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusInternalServerError, transient.StatusCode)
	assert.Equal(t, 4, attempts, "attempts must be bounded by max_attempts")
}

func TestFetchAggregateNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAggregate(context.Background(), "bio", 9)
	assert.True(t, errors.Is(err, interfaces.ErrAggregateNotFound))
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAggregate(context.Background(), "follow", 3)
	require.Error(t, err)

	var authErr *interfaces.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, 1, attempts, "auth failures are terminal, never retried")
}

func TestPushEntityStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bulk_upload/accounts/101/status", r.URL.Path)

		var update interfaces.EntityStatusUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			t.Errorf("malformed entity status body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if assert.NotNil(t, update.Status) {
			assert.Equal(t, models.EntityStatusCompleted, *update.Status)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	status := models.EntityStatusCompleted
	logLine := "uploaded 3 items"
	err := newTestClient(srv.URL).PushEntityStatus(context.Background(), "bulk_upload", 101,
		interfaces.EntityStatusUpdate{Status: &status, LogAppend: &logLine})
	require.NoError(t, err)
}

func TestPushEntityCountersIdempotencyKeyStableAcrossRetries(t *testing.T) {
	var mu sync.Mutex
	var keys []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("X-Idempotency-Key"))
		n := len(keys)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).PushEntityCounters(context.Background(), "bulk_upload", 101,
		map[string]int{"uploaded": 3, "failed": 1})
	require.NoError(t, err)

	require.Len(t, keys, 3)
	require.NotEmpty(t, keys[0])
	for _, key := range keys[1:] {
		assert.Equal(t, keys[0], key, "every retry of one logical send must reuse its idempotency key")
	}
}

func TestPushEntityCountersDistinctKeysPerLogicalSend(t *testing.T) {
	var mu sync.Mutex
	var keys []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("X-Idempotency-Key"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	require.NoError(t, client.PushEntityCounters(context.Background(), "warmup", 5, map[string]int{"warmed": 1}))
	require.NoError(t, client.PushEntityCounters(context.Background(), "warmup", 5, map[string]int{"warmed": 1}))

	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1], "separate sends must not share an idempotency key")
}

func TestPushEntityCountersEmptyDeltaSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty delta")
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).PushEntityCounters(context.Background(), "warmup", 5, nil))
}

func TestDownloadMedia(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/media/m_abc123/download", r.URL.Path)
		w.Write(payload)
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL).DownloadMedia(context.Background(), "m_abc123")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}
