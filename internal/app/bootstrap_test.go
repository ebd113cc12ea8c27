package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"resumeingest/internal/app"
	"resumeingest/internal/config"
)

type stubSchema struct {
	err       error
	callCount int
	failUntil int
}

func (m *stubSchema) EnsureSchema(ctx context.Context) error {
	m.callCount++
	if m.err != nil {
		return m.err
	}
	if m.callCount <= m.failUntil {
		return errors.New("schema error")
	}
	return nil
}

func TestEnsureSchemaWithRetry_Success(t *testing.T) {
	store := &stubSchema{}
	err := app.EnsureSchemaWithRetry(context.Background(), store, 1, 1*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.callCount)
}

func TestEnsureSchemaWithRetry_Retries(t *testing.T) {
	store := &stubSchema{failUntil: 2}
	err := app.EnsureSchemaWithRetry(context.Background(), store, 5, 1*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, store.callCount)
}

func TestEnsureSchemaWithRetry_Fail(t *testing.T) {
	store := &stubSchema{err: errors.New("permanent error")}
	err := app.EnsureSchemaWithRetry(context.Background(), store, 3, 1*time.Millisecond)
	assert.EqualError(t, err, "permanent error")
	assert.Equal(t, 3, store.callCount)
}

func TestBootstrap_ConfigurationError(t *testing.T) {
	cfg := &config.Config{
		DBHost: "invalid-host",
	}
	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}
