package jobs

import (
	"context"
	"log"
	"time"

	"queryforge/internal/plancache"
)

// RetentionJob evicts stale cache records: plans unused past the
// retention window and unresolved failures past the same window.
// Resolved failures are never purged.
type RetentionJob struct {
	plans     *plancache.PlanCache
	failures  *plancache.FailureCache
	retention time.Duration
}

// NewRetentionJob creates the retention job.
func NewRetentionJob(plans *plancache.PlanCache, failures *plancache.FailureCache, retention time.Duration) *RetentionJob {
	return &RetentionJob{plans: plans, failures: failures, retention: retention}
}

// Run performs one retention pass.
func (j *RetentionJob) Run() {
	if j.plans == nil || j.failures == nil {
		log.Println("[RETENTION] Retention cleanup disabled (requires MongoDB)")
		return
	}

	log.Println("[RETENTION] Starting cache retention cleanup...")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	plansDeleted, err := j.plans.Purge(ctx, j.retention)
	if err != nil {
		log.Printf("[RETENTION] Plan cache purge failed: %v", err)
	}

	failuresDeleted, err := j.failures.Purge(ctx, j.retention)
	if err != nil {
		log.Printf("[RETENTION] Failure cache purge failed: %v", err)
	}

	log.Printf("[RETENTION] Cleanup complete: %d plan(s), %d failure(s) removed in %v",
		plansDeleted, failuresDeleted, time.Since(start))
}
