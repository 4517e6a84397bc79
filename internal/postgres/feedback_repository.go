package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scenecast/scenecast/internal/domain"
)

// FeedbackRepo persists feedback frames received from subscribers.
type FeedbackRepo struct {
	pool *pgxpool.Pool
}

var _ domain.FeedbackRecorder = (*FeedbackRepo)(nil)

func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

// Record upserts the feedback state for one external id. A repeated frame
// for the same id updates the stored vote instead of accumulating rows.
func (r *FeedbackRepo) Record(ctx context.Context, externalID string, upvoted bool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO feedback (id, external_id, upvoted) VALUES ($1, $2, $3)
		 ON CONFLICT (external_id) DO UPDATE SET upvoted = EXCLUDED.upvoted, received_at = now()`,
		uuid.New(), externalID, upvoted,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert feedback: %w", err)
	}
	return nil
}
