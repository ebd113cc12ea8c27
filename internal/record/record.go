// Package record owns the persisted ingestion record for a user and the
// replace (delete-then-insert) semantics around it.
package record

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrMisaligned        = errors.New("chunks and embeddings are not aligned")
	ErrUnknownPolicy     = errors.New("unknown validity policy")
)

// Record is the persisted unit. TextChunks and Embeddings are index-aligned.
type Record struct {
	UserID     string
	TextChunks []string
	Embeddings [][]float32
	IngestedAt time.Time
}

// Backend is the storage-specific half of the store.
type Backend interface {
	DeleteAll(ctx context.Context, userID string) error
	Insert(ctx context.Context, rec Record) error
}

// Policy decides which chunk/embedding pairs are persisted.
type Policy string

const (
	// PolicyStrict persists only chunks with a usable embedding.
	PolicyStrict Policy = "strict"
	// PolicyLenient persists everything verbatim, invalid markers included.
	PolicyLenient Policy = "lenient"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, PolicyLenient:
		return Policy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Result describes what a Replace call did.
type Result struct {
	Stored  int
	Dropped int
	// Cleared is set when the strict policy left nothing to insert and the
	// user's previous record was deleted without a replacement.
	Cleared bool
}

// Store applies one fixed validity policy in front of a Backend.
type Store struct {
	backend Backend
	policy  Policy
	now     func() time.Time
}

func NewStore(backend Backend, policy Policy) *Store {
	return &Store{backend: backend, policy: policy, now: time.Now}
}

func (s *Store) Policy() Policy {
	return s.policy
}

// Replace deletes any existing record for userID and inserts the new one.
// The two steps are not transactional: a failure between them leaves the
// user without a record until the next successful run.
func (s *Store) Replace(ctx context.Context, userID string, chunks []string, embeddings [][]float32) (Result, error) {
	if len(chunks) != len(embeddings) {
		return Result{}, fmt.Errorf("%w: %d chunks, %d embeddings", ErrMisaligned, len(chunks), len(embeddings))
	}

	keptChunks, keptEmbeddings := chunks, embeddings
	if s.policy == PolicyStrict {
		keptChunks, keptEmbeddings = FilterValid(chunks, embeddings)
	}
	res := Result{Stored: len(keptChunks), Dropped: len(chunks) - len(keptChunks)}

	if err := s.backend.DeleteAll(ctx, userID); err != nil {
		return Result{}, fmt.Errorf("%w: delete existing record for %s: %v", ErrPersistenceFailed, userID, err)
	}

	if len(keptChunks) == 0 {
		res.Cleared = true
		return res, nil
	}

	rec := Record{
		UserID:     userID,
		TextChunks: keptChunks,
		Embeddings: keptEmbeddings,
		IngestedAt: s.now().UTC(),
	}
	if err := s.backend.Insert(ctx, rec); err != nil {
		return Result{}, fmt.Errorf("%w: insert record for %s: %v", ErrPersistenceFailed, userID, err)
	}
	return res, nil
}

// FilterValid drops every pair whose embedding is invalid, keeping the
// remaining pairs in their original relative order.
func FilterValid(chunks []string, embeddings [][]float32) ([]string, [][]float32) {
	outChunks := make([]string, 0, len(chunks))
	outEmbeddings := make([][]float32, 0, len(embeddings))
	for i, e := range embeddings {
		if !IsValidEmbedding(e) {
			continue
		}
		outChunks = append(outChunks, chunks[i])
		outEmbeddings = append(outEmbeddings, e)
	}
	return outChunks, outEmbeddings
}

// IsValidEmbedding reports whether v is non-empty and all-finite. The empty
// vector is the invalid marker.
func IsValidEmbedding(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return false
		}
	}
	return true
}
