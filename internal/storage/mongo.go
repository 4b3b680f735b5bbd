package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/handiism/songmesh/internal/model"
)

const songsCollection = "songs"

// MongoMetadata is a MetadataStore backed by a MongoDB collection.
type MongoMetadata struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to uri and uses the songs collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoMetadata, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(songsCollection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "file_hash", Value: 1}},
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create file_hash index: %w", err)
	}

	return &MongoMetadata{client: client, coll: coll}, nil
}

// Close disconnects the client.
func (s *MongoMetadata) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// GetByTitle implements MetadataStore.
func (s *MongoMetadata) GetByTitle(ctx context.Context, title string) (*model.Document, error) {
	var doc model.Document
	err := s.coll.FindOne(ctx, bson.M{"_id": title}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get song %q: %w", title, err)
	}
	return &doc, nil
}

// Access implements MetadataStore.
func (s *MongoMetadata) Access(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": doc.Title},
		bson.M{
			"$set": bson.M{"accessed_at": now},
			"$inc": bson.M{"access_count": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("access song %q: %w", doc.Title, err)
	}
	doc.AccessedAt = now
	doc.AccessCount++
	return nil
}

// Put implements MetadataStore.
func (s *MongoMetadata) Put(ctx context.Context, doc *model.Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.AccessedAt.IsZero() {
		doc.AccessedAt = now
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": doc.Title},
		bson.M{
			"$set": bson.M{
				"file_hash":   doc.FileHash,
				"priority":    doc.Priority,
				"accessed_at": doc.AccessedAt,
			},
			"$setOnInsert": bson.M{
				"created_at":   doc.CreatedAt,
				"access_count": doc.AccessCount,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("put song %q: %w", doc.Title, err)
	}
	return nil
}

// Delete implements MetadataStore.
func (s *MongoMetadata) Delete(ctx context.Context, title string) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": title})
	if err != nil {
		return false, fmt.Errorf("delete song %q: %w", title, err)
	}
	return res.DeletedCount > 0, nil
}

// CountByHash implements MetadataStore.
func (s *MongoMetadata) CountByHash(ctx context.Context, hash string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"file_hash": hash})
	if err != nil {
		return 0, fmt.Errorf("count songs by hash: %w", err)
	}
	return n, nil
}
