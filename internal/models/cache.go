package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SimilarityBand classifies how closely a new query matches a cached one.
type SimilarityBand string

const (
	BandHigh     SimilarityBand = "high"     // safe to reuse verbatim
	BandModerate SimilarityBand = "moderate" // usable as a worked example
	BandLow      SimilarityBand = "low"      // ignored
)

// CachedPlanRecord is one learned (query -> plan) pair. The plan is stored
// as its JSON encoding so it round-trips exactly and can be pasted into
// prompts as a worked example.
type CachedPlanRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Query        string             `bson:"query" json:"query"`
	Embedding    []float32          `bson:"embedding" json:"-"`
	PlanJSON     string             `bson:"planJson" json:"plan_json"`
	SuccessCount int                `bson:"successCount" json:"success_count"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
	LastUsedAt   time.Time          `bson:"lastUsedAt" json:"last_used_at"`
}

// CachedFailureRecord is one recorded planning or execution failure.
// ResolvedBy points at the plan record that later answered an equivalent
// query; unresolved records are eligible for age-based eviction.
type CachedFailureRecord struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Query        string              `bson:"query" json:"query"`
	Embedding    []float32           `bson:"embedding" json:"-"`
	PlanJSON     string              `bson:"planJson,omitempty" json:"plan_json,omitempty"`
	FailedStep   int                 `bson:"failedStep" json:"failed_step"`
	ErrorCode    ErrorCode           `bson:"errorCode" json:"error_code"`
	ErrorMessage string              `bson:"errorMessage" json:"error_message"`
	SuggestedFix string              `bson:"suggestedFix,omitempty" json:"suggested_fix,omitempty"`
	ResolvedBy   *primitive.ObjectID `bson:"resolvedBy,omitempty" json:"resolved_by,omitempty"`
	CreatedAt    time.Time           `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updated_at"`
}

// Resolved reports whether a later success has been linked to this failure.
func (r *CachedFailureRecord) Resolved() bool {
	return r.ResolvedBy != nil
}

// CacheMatch is one ranked result of a similarity search.
type CacheMatch struct {
	Record     *CachedPlanRecord `json:"record"`
	Similarity float64           `json:"similarity"`
	Band       SimilarityBand    `json:"band"`
}

// FailureMatch is one ranked result of a failure-cache search.
type FailureMatch struct {
	Record     *CachedFailureRecord `json:"record"`
	Similarity float64              `json:"similarity"`
	Band       SimilarityBand       `json:"band"`
}

// CacheStats summarizes the durable caches for diagnostics.
type CacheStats struct {
	Plans              int64 `json:"plans"`
	Failures           int64 `json:"failures"`
	ResolvedFailures   int64 `json:"resolved_failures"`
	UnresolvedFailures int64 `json:"unresolved_failures"`
}
