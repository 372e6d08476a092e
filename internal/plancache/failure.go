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
	"queryforge/internal/models"
)

// FailureCache remembers queries that could not be planned or executed,
// together with a canned remediation hint. The planner feeds near-miss
// failures back into prompts so the model avoids repeating them.
type FailureCache struct {
	db       *database.MongoDB
	embedder llm.Embedder
	bands    Bands
}

// NewFailureCache creates a failure cache over the given database.
func NewFailureCache(db *database.MongoDB, embedder llm.Embedder, bands Bands) *FailureCache {
	return &FailureCache{db: db, embedder: embedder, bands: bands}
}

func (c *FailureCache) collection() *mongo.Collection {
	return c.db.Collection(database.CollectionFailureCache)
}

// Record stores a failure. plan may be nil when planning itself failed.
func (c *FailureCache) Record(ctx context.Context, query string, plan *models.QueryPlan, failedStep int, code models.ErrorCode, message string) (*models.CachedFailureRecord, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var planJSON string
	if plan != nil {
		data, err := json.Marshal(plan)
		if err != nil {
			return nil, fmt.Errorf("failed to encode plan: %w", err)
		}
		planJSON = string(data)
	}

	now := time.Now()
	record := models.CachedFailureRecord{
		Query:        query,
		Embedding:    embedding,
		PlanJSON:     planJSON,
		FailedStep:   failedStep,
		ErrorCode:    code,
		ErrorMessage: message,
		SuggestedFix: SuggestFix(code),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := c.collection().InsertOne(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to record failure: %w", err)
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = id
	}

	log.Printf("⚠️ [CACHE] Recorded failure for query %q (step %d, %s)", query, failedStep, code)
	return &record, nil
}

// Search returns past failures similar to query, most similar first.
func (c *FailureCache) Search(ctx context.Context, query string, topK int) ([]models.FailureMatch, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(searchWindow)

	cursor, err := c.collection().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure cache: %w", err)
	}

	var records []models.CachedFailureRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode failure records: %w", err)
	}

	matches := make([]models.FailureMatch, 0, len(records))
	for i := range records {
		sim := cosineSimilarity(embedding, records[i].Embedding)
		if sim < c.bands.Floor {
			continue
		}
		matches = append(matches, models.FailureMatch{
			Record:     &records[i],
			Similarity: sim,
			Band:       c.bands.Classify(sim),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// MarkResolved links a failure to the plan record that later answered an
// equivalent query. Resolved failures survive retention purges as
// evidence of what fixed them.
func (c *FailureCache) MarkResolved(ctx context.Context, failureID, planID primitive.ObjectID) error {
	_, err := c.collection().UpdateByID(ctx, failureID, bson.M{
		"$set": bson.M{
			"resolvedBy": planID,
			"updatedAt":  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mark failure resolved: %w", err)
	}
	return nil
}

// Analysis explains a failure and how to move past it. When a similar
// past failure was later resolved, ResolvedBy points at the plan record
// that fixed it and Similar carries the match itself.
type Analysis struct {
	Suggestion string               `json:"suggestion"`
	ResolvedBy *primitive.ObjectID  `json:"resolved_by,omitempty"`
	Similar    *models.FailureMatch `json:"similar,omitempty"`
}

// Analyze looks for a similar failure that was later resolved and
// returns the resolution that fixed it; without a resolved precedent it
// falls back to the canned suggestion for the error code. Lookup errors
// degrade to the canned suggestion rather than failing.
func (c *FailureCache) Analyze(ctx context.Context, query string, code models.ErrorCode) *Analysis {
	matches, err := c.Search(ctx, query, 5)
	if err != nil {
		log.Printf("⚠️ [CACHE] Failure analysis lookup failed for %q: %v", query, err)
		return &Analysis{Suggestion: SuggestFix(code)}
	}
	return analyzeMatches(matches, code)
}

func analyzeMatches(matches []models.FailureMatch, code models.ErrorCode) *Analysis {
	for i := range matches {
		m := &matches[i]
		if !m.Record.Resolved() {
			continue
		}
		suggestion := m.Record.SuggestedFix
		if suggestion == "" {
			suggestion = SuggestFix(code)
		}
		return &Analysis{
			Suggestion: fmt.Sprintf("A similar query (%q) failed the same way and was later resolved. %s", m.Record.Query, suggestion),
			ResolvedBy: m.Record.ResolvedBy,
			Similar:    m,
		}
	}
	return &Analysis{Suggestion: SuggestFix(code)}
}

// Purge removes unresolved failures older than the cutoff. Resolved
// records are kept.
func (c *FailureCache) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := c.collection().DeleteMany(ctx, bson.M{
		"createdAt":  bson.M{"$lt": cutoff},
		"resolvedBy": bson.M{"$exists": false},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge failure cache: %w", err)
	}
	if result.DeletedCount > 0 {
		log.Printf("🧹 [CACHE] Purged %d unresolved failure(s)", result.DeletedCount)
	}
	return result.DeletedCount, nil
}

// Stats counts records across both caches.
func Stats(ctx context.Context, db *database.MongoDB) (*models.CacheStats, error) {
	plans, err := db.Collection(database.CollectionPlanCache).CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count plans: %w", err)
	}
	failures, err := db.Collection(database.CollectionFailureCache).CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	resolved, err := db.Collection(database.CollectionFailureCache).CountDocuments(ctx, bson.M{
		"resolvedBy": bson.M{"$exists": true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count resolved failures: %w", err)
	}
	return &models.CacheStats{
		Plans:              plans,
		Failures:           failures,
		ResolvedFailures:   resolved,
		UnresolvedFailures: failures - resolved,
	}, nil
}

// SuggestFix returns the canned remediation hint for an error code.
func SuggestFix(code models.ErrorCode) string {
	switch code {
	case models.ErrNoResults:
		return "Broaden the search filters or verify the referenced entity exists before filtering on it."
	case models.ErrAPIError:
		return "The upstream API rejected the call. Check the endpoint path and filter names against the entity schema."
	case models.ErrExtractionFailed:
		return "The extract field was missing from the step results. Confirm the field name matches the response shape."
	case models.ErrPlanGenerationFailed:
		return "The model did not produce a parseable plan. Rephrase the query or reduce its scope."
	case models.ErrEntityNotFound:
		return "No entity by that name is known. Check the spelling or register the entity."
	case models.ErrPermissionDenied:
		return "The executing credentials lack access to this entity. Use an authorized scope."
	case models.ErrTimeout:
		return "The step exceeded its deadline. Narrow the filters or split the query."
	case models.ErrValidationError:
		return "The plan referenced a step that had not run yet or used an unknown relation."
	default:
		return "Inspect the step log for the failing step and retry with adjusted filters."
	}
}
