// Package docstore writes reconciled postings into the MongoDB document
// store. Upserts split posting fields between $setOnInsert and $set so a
// re-sync never clobbers fields another enrichment step already wrote.
package docstore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/skillsift/skillsift/internal/model"
)

// Store wraps one MongoDB collection.
type Store struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// Connect dials MongoDB and returns the store plus a teardown function.
func Connect(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*Store, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	store := &Store{
		coll:   client.Database(database).Collection(collection),
		logger: logger.With("component", "docstore"),
	}
	return store, client.Disconnect, nil
}

// BulkUpsert writes postings keyed by their site-local id. Writes are
// unordered so one bad document does not block its siblings.
func (s *Store) BulkUpsert(ctx context.Context, postings []model.JobPosting) (int64, error) {
	if len(postings) == 0 {
		return 0, nil
	}

	models, err := buildUpsertModels(postings)
	if err != nil {
		return 0, err
	}

	res, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("bulk upsert failed: %w", err)
	}

	written := res.UpsertedCount + res.ModifiedCount
	s.logger.Debug("bulk upsert applied",
		"postings", len(postings),
		"upserted", res.UpsertedCount,
		"modified", res.ModifiedCount)
	return written, nil
}

// buildUpsertModels renders one UpdateOne-with-upsert per posting. Keywords
// and group assignment are always overwritten; every other field is written
// only when the document is first inserted.
func buildUpsertModels(postings []model.JobPosting) ([]mongo.WriteModel, error) {
	models := make([]mongo.WriteModel, 0, len(postings))
	for _, p := range postings {
		if p.ID == "" {
			return nil, fmt.Errorf("posting from %s has empty id", p.Source)
		}

		set := bson.M{
			"extracted_keywords": p.ExtractedKeywords,
			"group_id":           p.GroupID,
		}
		setOnInsert := bson.M{
			"source":      p.Source,
			"title":       p.Title,
			"company":     p.Company,
			"description": p.Description,
			"location":    p.Location,
			"job_url":     p.JobURL,
			"min_amount":  p.MinAmount,
			"max_amount":  p.MaxAmount,
			"interval":    p.Interval,
			"date_posted": p.DatePosted,
			"created_at":  p.CreatedAt,
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": p.ID}).
			SetUpdate(bson.M{"$set": set, "$setOnInsert": setOnInsert}).
			SetUpsert(true))
	}
	return models, nil
}
