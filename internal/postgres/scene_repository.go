package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scenecast/scenecast/internal/domain"
)

// SceneRepo is the persistent scene catalog. It decides which scenes exist;
// the state store only tracks which of them remain outstanding.
type SceneRepo struct {
	pool *pgxpool.Pool
}

var _ domain.SceneCatalog = (*SceneRepo)(nil)

func NewSceneRepo(pool *pgxpool.Pool) *SceneRepo {
	return &SceneRepo{pool: pool}
}

func (r *SceneRepo) GetAll(ctx context.Context) ([]domain.Scene, error) {
	rows, err := r.pool.Query(ctx, "SELECT scene_id, external_ref, chapter FROM scenes")
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	return collectScenes(rows)
}

func (r *SceneRepo) GetAllSorted(ctx context.Context) ([]domain.Scene, error) {
	rows, err := r.pool.Query(ctx, "SELECT scene_id, external_ref, chapter FROM scenes ORDER BY scene_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query sorted scenes: %w", err)
	}
	return collectScenes(rows)
}

// Add inserts a new scene mapping. Returns domain.ErrSceneExists when the
// scene id is already cataloged.
func (r *SceneRepo) Add(ctx context.Context, scene domain.Scene) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO scenes (scene_id, external_ref, chapter) VALUES ($1, $2, $3)",
		scene.ID, scene.ExternalRef, scene.Chapter,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domain.ErrSceneExists
		}
		return fmt.Errorf("failed to insert scene: %w", err)
	}
	return nil
}

// Delete removes a scene mapping. Returns domain.ErrSceneNotFound when the
// scene id is unknown.
func (r *SceneRepo) Delete(ctx context.Context, sceneID int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM scenes WHERE scene_id = $1", sceneID)
	if err != nil {
		return fmt.Errorf("failed to delete scene: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSceneNotFound
	}
	return nil
}

func collectScenes(rows pgx.Rows) ([]domain.Scene, error) {
	defer rows.Close()

	var scenes []domain.Scene
	for rows.Next() {
		var s domain.Scene
		if err := rows.Scan(&s.ID, &s.ExternalRef, &s.Chapter); err != nil {
			return nil, fmt.Errorf("failed to scan scene row: %w", err)
		}
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scene rows: %w", err)
	}
	return scenes, nil
}
