package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgstore "resumeingest/internal/adapter/postgres"
	"resumeingest/internal/testutils"
	"resumeingest/internal/worker"
)

// flakyExtractor fails until ok is set.
type flakyExtractor struct {
	ok   atomic.Bool
	text string
}

func (f *flakyExtractor) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	if !f.ok.Load() {
		return "", errors.New("processor unavailable")
	}
	return f.text, nil
}

func TestApp_EndToEnd_FailureAndRetry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.SkipWeaviate = true
	suite.SkipNSQ = true
	suite.Setup()
	defer suite.Teardown()

	store := pgstore.NewRecordStore(suite.DB)
	extractor := &flakyExtractor{text: "Senior Go engineer. Ten years of distributed systems."}
	deps := &Dependencies{
		DB:        suite.DB,
		Records:   store,
		Fetcher:   &fakeFetcher{premium: true},
		Extractor: extractor,
		Embedder:  fakeEmbedder{},
	}

	app, err := New(suite.GetAppConfig(), deps, testLogger())
	require.NoError(t, err)
	defer app.drain(5 * time.Second)

	// 1. Delivery whose extraction fails lands in the failed-run ledger.
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/",
		bytes.NewReader(pushBody(`{"bucket":"resumes","name":"users/u-42/cv.pdf"}`))))
	require.Equal(t, http.StatusOK, w.Code)

	var jobID string
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/failed", nil))
		var body struct {
			FailedRuns []struct {
				ID     string `json:"id"`
				UserID string `json:"user_id"`
				Stage  string `json:"stage"`
			} `json:"failed_runs"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || len(body.FailedRuns) != 1 {
			return false
		}
		run := body.FailedRuns[0]
		if run.UserID != "u-42" || run.Stage != string(worker.StageExtraction) {
			return false
		}
		jobID = run.ID
		return true
	}, 10*time.Second, 50*time.Millisecond)

	_, err = store.Get(context.Background(), "u-42")
	assert.Error(t, err, "failed run must not create a record")

	// 2. Operator retry after the processor recovers stores the record.
	extractor.ok.Store(true)

	w = httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/"+jobID+"/retry", nil))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		rec, err := store.Get(context.Background(), "u-42")
		return err == nil && len(rec.TextChunks) == 1
	}, 10*time.Second, 50*time.Millisecond)

	var count int
	require.NoError(t, suite.DB.QueryRow("SELECT COUNT(*) FROM failed_jobs").Scan(&count))
	assert.Equal(t, 0, count)
}
