// Package plancache persists learned (query -> plan) pairs and past
// failures in MongoDB and ranks them by embedding similarity, so the
// planner can reuse or learn from previous work instead of regenerating
// every plan from scratch.
package plancache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"queryforge/internal/database"
	"queryforge/internal/llm"
	"queryforge/internal/metrics"
	"queryforge/internal/models"
)

// searchWindow caps how many recent records are loaded for in-process
// similarity ranking. The caches are small (thousands, not millions) so
// scanning the recent window is cheaper than maintaining a vector index.
const searchWindow = 500

// PlanCache is the durable store of successfully executed plans.
type PlanCache struct {
	db       *database.MongoDB
	embedder llm.Embedder
	bands    Bands
}

// NewPlanCache creates a plan cache over the given database.
func NewPlanCache(db *database.MongoDB, embedder llm.Embedder, bands Bands) *PlanCache {
	return &PlanCache{db: db, embedder: embedder, bands: bands}
}

func (c *PlanCache) collection() *mongo.Collection {
	return c.db.Collection(database.CollectionPlanCache)
}

// Store saves a plan that executed successfully for query. Storing again
// for the same query replaces the plan and bumps the success count, so
// the cache converges on the most recent working plan per query.
func (c *PlanCache) Store(ctx context.Context, query string, plan *models.QueryPlan) (*models.CachedPlanRecord, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	now := time.Now()
	filter := bson.M{"query": query}
	update := bson.M{
		"$set": bson.M{
			"query":      query,
			"embedding":  embedding,
			"planJson":   string(planJSON),
			"lastUsedAt": now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
		"$inc":         bson.M{"successCount": 1},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var record models.CachedPlanRecord
	if err := c.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to store plan: %w", err)
	}

	log.Printf("💾 [CACHE] Stored plan for query %q (successes: %d)", query, record.SuccessCount)
	return &record, nil
}

// Search returns up to topK cached plans ranked by similarity to query.
// Matches below the floor threshold are dropped entirely.
func (c *PlanCache) Search(ctx context.Context, query string, topK int) ([]models.CacheMatch, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "lastUsedAt", Value: -1}}).
		SetLimit(searchWindow)

	cursor, err := c.collection().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan cache: %w", err)
	}

	var records []models.CachedPlanRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode plan cache records: %w", err)
	}

	matches := make([]models.CacheMatch, 0, len(records))
	for i := range records {
		sim := cosineSimilarity(embedding, records[i].Embedding)
		if sim < c.bands.Floor {
			continue
		}
		matches = append(matches, models.CacheMatch{
			Record:     &records[i],
			Similarity: sim,
			Band:       c.bands.Classify(sim),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	for _, m := range matches {
		metrics.CacheHits.WithLabelValues(string(m.Band)).Inc()
	}
	return matches, nil
}

// FindBest returns the single best high-band match, or nil when nothing
// qualifies. Only high-band matches may be reused verbatim; moderate
// matches serve as prompt examples, never as plans.
func (c *PlanCache) FindBest(ctx context.Context, query string) (*models.CacheMatch, error) {
	matches, err := c.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 || matches[0].Band != models.BandHigh {
		return nil, nil
	}
	return &matches[0], nil
}

// Touch refreshes the last-used time of a reused plan so retention keeps
// it around. It never moves the success counter; that only happens in
// Store, once the reused plan has actually executed.
func (c *PlanCache) Touch(ctx context.Context, id primitive.ObjectID) error {
	_, err := c.collection().UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"lastUsedAt": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to refresh cached plan: %w", err)
	}
	return nil
}

// DecodePlan parses the stored JSON back into a plan.
func DecodePlan(record *models.CachedPlanRecord) (*models.QueryPlan, error) {
	var plan models.QueryPlan
	if err := json.Unmarshal([]byte(record.PlanJSON), &plan); err != nil {
		return nil, fmt.Errorf("cached plan is corrupt: %w", err)
	}
	return &plan, nil
}

// Purge removes plan records not used since the cutoff. Returns the
// number of deleted records.
func (c *PlanCache) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := c.collection().DeleteMany(ctx, bson.M{
		"lastUsedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge plan cache: %w", err)
	}
	if result.DeletedCount > 0 {
		log.Printf("🧹 [CACHE] Purged %d stale plan(s)", result.DeletedCount)
	}
	return result.DeletedCount, nil
}

// Count returns the number of cached plans.
func (c *PlanCache) Count(ctx context.Context) (int64, error) {
	return c.collection().CountDocuments(ctx, bson.M{})
}
