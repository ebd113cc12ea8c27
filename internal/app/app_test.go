package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeingest/internal/config"
	"resumeingest/internal/record"
)

type fakeFetcher struct{ premium bool }

func (f *fakeFetcher) Metadata(ctx context.Context, containerID, objectKey string) (map[string]string, error) {
	if f.premium {
		return map[string]string{"premium": "true"}, nil
	}
	return map[string]string{}, nil
}

func (f *fakeFetcher) Download(ctx context.Context, containerID, objectKey string) ([]byte, error) {
	return []byte("%PDF"), nil
}

type fakeExtractor struct{ text string }

func (f *fakeExtractor) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	return f.text, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type memoryBackend struct {
	mu      sync.Mutex
	records map[string]record.Record
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{records: map[string]record.Record{}}
}

func (m *memoryBackend) DeleteAll(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *memoryBackend) Insert(ctx context.Context, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = rec
	return nil
}

func (m *memoryBackend) get(userID string) (record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	return rec, ok
}

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:            config.StoreBackendPostgres,
		StoreValidityPolicy:     "strict",
		DispatchMode:            config.DispatchModePool,
		IngestionConcurrency:    4,
		EmbeddingConcurrency:    2,
		EmbeddingTimeoutSeconds: 5,
		ChunkSize:               1000,
		RequirePremium:          true,
		UserIDSegment:           1,
		ExtractionMimeType:      "application/pdf",
		MaxWebhookBodyBytes:     1 << 20,
		RunTimeoutSeconds:       10,
		ShutdownTimeoutSeconds:  1,
	}
}

func testDeps(t *testing.T, backend record.Backend) (*Dependencies, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Dependencies{
		DB:        db,
		Records:   backend,
		Fetcher:   &fakeFetcher{premium: true},
		Extractor: &fakeExtractor{text: strings.Repeat("a", 1500)},
		Embedder:  fakeEmbedder{},
	}, mock
}

func pushBody(notification string) []byte {
	data := base64.StdEncoding.EncodeToString([]byte(notification))
	return []byte(`{"message":{"data":"` + data + `","messageId":"1"},"subscription":"projects/p/subscriptions/s"}`)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func TestNew(t *testing.T) {
	deps, _ := testDeps(t, newMemoryBackend())

	app, err := New(testConfig(), deps, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, app.Handler)
	assert.NotNil(t, app.Pipeline)
	assert.NotNil(t, app.Dispatcher)
	assert.Nil(t, app.Consumer)
	app.drain(time.Second)
}

func TestNew_InvalidPolicy(t *testing.T) {
	deps, _ := testDeps(t, newMemoryBackend())
	cfg := testConfig()
	cfg.StoreValidityPolicy = "sometimes"

	_, err := New(cfg, deps, testLogger())
	assert.ErrorIs(t, err, record.ErrUnknownPolicy)
}

func TestNew_NSQModeRequiresProducer(t *testing.T) {
	deps, _ := testDeps(t, newMemoryBackend())
	cfg := testConfig()
	cfg.DispatchMode = config.DispatchModeNSQ

	_, err := New(cfg, deps, testLogger())
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		deps, mock := testDeps(t, newMemoryBackend())
		mock.ExpectPing()
		app, err := New(testConfig(), deps, testLogger())
		require.NoError(t, err)
		defer app.drain(time.Second)

		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("db down", func(t *testing.T) {
		deps, mock := testDeps(t, newMemoryBackend())
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		app, err := New(testConfig(), deps, testLogger())
		require.NoError(t, err)
		defer app.drain(time.Second)

		w := httptest.NewRecorder()
		app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestWebhook_StoresRecordInBackground(t *testing.T) {
	backend := newMemoryBackend()
	deps, _ := testDeps(t, backend)
	app, err := New(testConfig(), deps, testLogger())
	require.NoError(t, err)
	defer app.drain(time.Second)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(pushBody(`{"bucket":"resumes","name":"users/u-1/cv.pdf"}`)))
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	assert.Eventually(t, func() bool {
		_, ok := backend.get("u-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rec, _ := backend.get("u-1")
	assert.Len(t, rec.TextChunks, 2)
	assert.Len(t, rec.Embeddings, 2)
}

func TestWebhook_MalformedIsAcknowledged(t *testing.T) {
	backend := newMemoryBackend()
	deps, _ := testDeps(t, backend)
	app, err := New(testConfig(), deps, testLogger())
	require.NoError(t, err)
	defer app.drain(time.Second)

	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "discarded")
}

func TestRoutes_UnknownPathIsNotFound(t *testing.T) {
	deps, _ := testDeps(t, newMemoryBackend())
	app, err := New(testConfig(), deps, testLogger())
	require.NoError(t, err)
	defer app.drain(time.Second)

	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/other", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	deps, mock := testDeps(t, newMemoryBackend())
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	app, err := New(testConfig(), deps, testLogger())
	require.NoError(t, err)
	defer app.drain(time.Second)

	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"failed_jobs":3`)
	assert.Contains(t, w.Body.String(), `"dispatch_mode":"pool"`)
}

func TestConsumerMsgTimeout(t *testing.T) {
	assert.Equal(t, 11*time.Minute, consumerMsgTimeout(600))
	assert.Equal(t, 31*time.Minute, consumerMsgTimeout(1800))
	assert.Equal(t, defaultMsgTimeout, consumerMsgTimeout(0))
	assert.Greater(t, consumerMsgTimeout(900), 900*time.Second)
}
