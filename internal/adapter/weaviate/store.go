package weaviate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"resumeingest/internal/record"
	"resumeingest/internal/vector"
)

const cleanupTimeout = 10 * time.Second

// Store keeps a record as one ResumeChunk object per chunk, tagged with the
// owning user. Chunks without a usable embedding are stored without a vector.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateSchema(s.client))
}

func userFilter(userID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"userId"}).
		WithOperator(filters.Equal).
		WithValueString(userID)
}

func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(userFilter(userID)).
		Do(ctx)
	return err
}

// Insert writes every chunk in one batch. If any object is rejected the
// user's chunks are deleted again, so a failed insert leaves no record rather
// than a truncated one.
func (s *Store) Insert(ctx context.Context, rec record.Record) error {
	ingestedAt := rec.IngestedAt.UTC().Format(time.RFC3339Nano)
	objects := make([]*models.Object, 0, len(rec.TextChunks))
	for i, content := range rec.TextChunks {
		obj := &models.Object{
			Class: vector.ClassName,
			Properties: map[string]interface{}{
				"userId":     rec.UserID,
				"content":    content,
				"chunkIndex": i,
				"ingestedAt": ingestedAt,
			},
		}
		if record.IsValidEmbedding(rec.Embeddings[i]) {
			obj.Vector = rec.Embeddings[i]
		}
		objects = append(objects, obj)
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err == nil {
		err = batchError(resp)
	}
	if err == nil {
		return nil
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if delErr := s.DeleteAll(cleanupCtx, rec.UserID); delErr != nil {
		return fmt.Errorf("insert chunks: %w (cleanup failed: %v)", err, delErr)
	}
	return fmt.Errorf("insert chunks: %w", err)
}

func batchError(resp []models.ObjectsGetResponse) error {
	for i, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				return fmt.Errorf("chunk %d: %s", i, e.Message)
			}
		}
	}
	return nil
}

// Chunks returns the stored chunk texts for a user in chunk order.
func (s *Store) Chunks(ctx context.Context, userID string) ([]string, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkIndex"},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithWhere(userFilter(userID)).
		WithLimit(1000).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	type indexed struct {
		index   int
		content string
	}
	var found []indexed
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objs, ok := data[vector.ClassName].([]interface{}); ok {
			for _, o := range objs {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}
				var c indexed
				if content, ok := props["content"].(string); ok {
					c.content = content
				}
				if idx, ok := props["chunkIndex"].(float64); ok {
					c.index = int(idx)
				}
				found = append(found, c)
			}
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })
	out := make([]string, 0, len(found))
	for _, c := range found {
		out = append(out, c.content)
	}
	return out, nil
}
