package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"resumeingest/internal/record"
)

// document is the stored shape: {userId, textChunks, embeddings, ingestedAt}.
type document struct {
	UserID     string      `bson:"userId"`
	TextChunks []string    `bson:"textChunks"`
	Embeddings [][]float32 `bson:"embeddings"`
	IngestedAt time.Time   `bson:"ingestedAt"`
}

func toDocument(rec record.Record) document {
	return document{
		UserID:     rec.UserID,
		TextChunks: rec.TextChunks,
		Embeddings: rec.Embeddings,
		IngestedAt: rec.IngestedAt.UTC(),
	}
}

func (d document) record() *record.Record {
	return &record.Record{
		UserID:     d.UserID,
		TextChunks: d.TextChunks,
		Embeddings: d.Embeddings,
		IngestedAt: d.IngestedAt,
	}
}

type RecordStore struct {
	coll *mongo.Collection
}

func NewRecordStore(client *mongo.Client, database, collection string) *RecordStore {
	return &RecordStore{coll: client.Database(database).Collection(collection)}
}

// Connect opens a client and verifies the deployment is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes makes userId unique so that a user has at most one record.
func (s *RecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("userId_unique"),
	})
	return err
}

func (s *RecordStore) DeleteAll(ctx context.Context, userID string) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{{Key: "userId", Value: userID}})
	return err
}

func (s *RecordStore) Insert(ctx context.Context, rec record.Record) error {
	_, err := s.coll.InsertOne(ctx, toDocument(rec))
	return err
}

// Get returns the stored record for a user, or mongo.ErrNoDocuments.
func (s *RecordStore) Get(ctx context.Context, userID string) (*record.Record, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.D{{Key: "userId", Value: userID}}).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (s *RecordStore) Count(ctx context.Context, userID string) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.D{{Key: "userId", Value: userID}})
}
