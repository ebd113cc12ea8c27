package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"resumeingest/internal/record"
	"resumeingest/internal/worker"
)

// Mocks

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Metadata(ctx context.Context, containerID, objectKey string) (map[string]string, error) {
	args := m.Called(ctx, containerID, objectKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockFetcher) Download(ctx context.Context, containerID, objectKey string) ([]byte, error) {
	args := m.Called(ctx, containerID, objectKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, content []byte, mimeType string) (string, error) {
	args := m.Called(ctx, content, mimeType)
	return args.String(0), args.Error(1)
}

type MockReplacer struct{ mock.Mock }

func (m *MockReplacer) Replace(ctx context.Context, userID string, chunks []string, embeddings [][]float32) (record.Result, error) {
	args := m.Called(ctx, userID, chunks, embeddings)
	return args.Get(0).(record.Result), args.Error(1)
}

type MockFailureRecorder struct{ mock.Mock }

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, f worker.Failure) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

type MockRunner struct{ mock.Mock }

func (m *MockRunner) Run(ctx context.Context, ev worker.Event) (worker.Outcome, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(worker.Outcome), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}
