package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeingest/internal/testutils"
)

func TestSmoke_Startup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping smoke test in short mode")
	}

	// 1. Start Infrastructure
	suite := testutils.NewIntegrationSuite(t)
	suite.SkipWeaviate = true
	suite.SkipNSQ = true
	suite.Setup()
	defer suite.Teardown()

	// 2. Configure App to use Infrastructure. Google clients connect lazily,
	// so unreachable endpoints are enough for startup.
	cfg := suite.GetAppConfig()
	cfg.ServerPort = 18089
	cfg.ShutdownTimeoutSeconds = 2
	cfg.DocAIEndpoint = "127.0.0.1:1"
	cfg.DocAIInsecure = true
	cfg.OpenAIBaseURL = "http://127.0.0.1:1/v1"
	t.Setenv("STORAGE_EMULATOR_HOST", "127.0.0.1:1")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 3. Run App in Background
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger) }()

	// 4. Wait for Health Check
	base := fmt.Sprintf("http://localhost:%d", cfg.ServerPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 500*time.Millisecond)

	// 5. A push delivery is acknowledged before any processing happens.
	data := base64.StdEncoding.EncodeToString([]byte(`{"bucket":"resumes","name":"users/42/resume.pdf"}`))
	resp, err := http.Post(base+"/", "application/json", bytes.NewReader([]byte(`{"message":{"data":"`+data+`"}}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 6. Graceful shutdown
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(40 * time.Second):
		t.Fatal("app did not shut down")
	}
}
