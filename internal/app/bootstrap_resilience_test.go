package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"resumeingest/internal/app"
	"resumeingest/internal/config"
	"resumeingest/internal/testutils"
)

func TestBootstrap_Resilience_DBDown(t *testing.T) {
	cfg := &config.Config{
		DBHost:                     "localhost",
		DBPort:                     54322, // Random port likely closed
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "test",
		BootstrapRetryAttempts:     1,
		BootstrapRetryDelaySeconds: 0,
	}

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)
	duration := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, duration, 2*time.Second)
}

func TestBootstrap_Resilience_WeaviateDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.SkipWeaviate = true
	suite.SkipNSQ = true
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()
	cfg.StoreBackend = config.StoreBackendWeaviate
	cfg.WeaviateHost = "localhost:54322" // Bad host
	cfg.BootstrapRetryAttempts = 2
	cfg.BootstrapRetryDelaySeconds = 1

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)
	duration := time.Since(start)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "weaviate schema error")
	assert.Greater(t, duration, 1*time.Second) // At least 1 delay
}

func TestBootstrap_Resilience_MongoDown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.SkipWeaviate = true
	suite.SkipNSQ = true
	suite.Setup()
	defer suite.Teardown()

	cfg := suite.GetAppConfig()
	cfg.StoreBackend = config.StoreBackendMongo
	cfg.MongoURI = "mongodb://localhost:54323/?serverSelectionTimeoutMS=500&connectTimeoutMS=500"

	deps, err := app.Bootstrap(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, deps)
}
