package worker

import (
	"context"
	"errors"

	"resumeingest/internal/record"
)

var (
	ErrInvalidObjectKey       = errors.New("object key has no user id segment")
	ErrObjectNotFound         = errors.New("object not found")
	ErrObjectStoreUnavailable = errors.New("object store unavailable")
	ErrExtractionFailed       = errors.New("extraction failed")
)

// Event is one decoded upload notification.
type Event struct {
	ContainerID string
	ObjectKey   string

	// ContentType is informational; extraction uses the configured MIME type.
	ContentType string

	// Attempt counts operator retries that led to this run.
	Attempt int
}

// ObjectFetcher reads objects and their metadata from the blob store.
type ObjectFetcher interface {
	Metadata(ctx context.Context, containerID, objectKey string) (map[string]string, error)
	Download(ctx context.Context, containerID, objectKey string) ([]byte, error)
}

// Extractor turns a binary document into plain text.
type Extractor interface {
	Extract(ctx context.Context, content []byte, mimeType string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type RecordReplacer interface {
	Replace(ctx context.Context, userID string, chunks []string, embeddings [][]float32) (record.Result, error)
}

// Failure describes a run that stopped at a retryable stage.
type Failure struct {
	Event  Event
	UserID string
	Stage  Stage
	Err    error
}

type FailureRecorder interface {
	RecordFailure(ctx context.Context, f Failure) error
}

type Stage string

const (
	StageInvalidKey  Stage = "invalid_key"
	StageMetadata    Stage = "metadata"
	StageDownload    Stage = "download"
	StageExtraction  Stage = "extraction"
	StageEmbedding   Stage = "embedding"
	StagePersistence Stage = "persistence"
)

type Outcome string

const (
	OutcomeStored             Outcome = "stored"
	OutcomeCleared            Outcome = "cleared"
	OutcomeSkippedEntitlement Outcome = "skipped_entitlement"
	OutcomeSkippedEmpty       Outcome = "skipped_empty"
	OutcomeFailed             Outcome = "failed"
)

// IsPremium is the entitlement predicate read from object metadata.
func IsPremium(metadata map[string]string) bool {
	return metadata["premium"] == "true"
}
