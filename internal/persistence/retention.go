package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"PredictMesh/internal/observability"
)

// RetentionPolicy prunes the processed-message log. The log only needs
// to cover the redelivery horizon of the gossip stream; anything older
// can never be redelivered, so its dedup record is dead weight.
type RetentionPolicy interface {
	Prune(ctx context.Context, db *sql.DB) (int64, error)
}

// TimeBucketRetention drops processed-message records older than Keep.
// Keep must comfortably exceed the gossip stream's max age.
type TimeBucketRetention struct {
	Keep time.Duration
}

func (r TimeBucketRetention) Prune(ctx context.Context, db *sql.DB) (int64, error) {
	res, err := db.ExecContext(ctx, `
        DELETE FROM message_log.processed_messages
        WHERE processed_at < NOW() - $1::interval
    `, r.Keep.String())
	if err != nil {
		return 0, fmt.Errorf("prune processed messages: %w", err)
	}
	return res.RowsAffected()
}

// RetentionRunner periodically applies a policy.
type RetentionRunner struct {
	db      *sql.DB
	policy  RetentionPolicy
	metrics *observability.Metrics
}

func NewRetentionRunner(db *sql.DB, policy RetentionPolicy, metrics *observability.Metrics) *RetentionRunner {
	return &RetentionRunner{db: db, policy: policy, metrics: metrics}
}

// RunOnce applies the policy one time; scheduled by the shell's cron.
func (rr *RetentionRunner) RunOnce(ctx context.Context) {
	pruned, err := rr.policy.Prune(ctx, rr.db)
	if err != nil {
		log.Printf("WARN: retention prune failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("INFO: retention pruned %d processed messages", pruned)
	}
	if rr.metrics != nil {
		rr.metrics.RetentionPruned.Add(float64(pruned))
	}
}
