package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is one finished game as persisted.
type Result struct {
	ID         string        `json:"id"`
	MechanicID string        `json:"mechanicId"`
	Outcome    string        `json:"outcome"`
	Detail     string        `json:"detail,omitempty"`
	Score      int           `json:"score"`
	Rounds     int           `json:"rounds"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// ResultRepository stores finished games in the game_results table.
type ResultRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewResultRepository builds a repository over the shared pool.
func NewResultRepository(db *DB, logger *zap.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: logger}
}

// EnsureSchema creates the results table when it does not exist yet.
func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_results (
			id          TEXT PRIMARY KEY,
			mechanic_id TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			score       INT NOT NULL DEFAULT 0,
			rounds      INT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			finished_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("repository: create game_results: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS game_results_finished_at_idx
		ON game_results (finished_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("repository: index game_results: %w", err)
	}
	return nil
}

// Save inserts a result row. An empty ID gets a fresh uuid.
func (r *ResultRepository) Save(ctx context.Context, res Result) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now()
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO game_results (
			id, mechanic_id, outcome, detail, score, rounds, duration_ms, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		res.ID,
		res.MechanicID,
		res.Outcome,
		res.Detail,
		res.Score,
		res.Rounds,
		res.Duration.Milliseconds(),
		res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: save result: %w", err)
	}

	r.logger.Debug("game result saved",
		zap.String("id", res.ID),
		zap.String("mechanic", res.MechanicID),
		zap.String("outcome", res.Outcome))
	return nil
}

// ListRecent returns the newest results, newest first.
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT id, mechanic_id, outcome, detail, score, rounds, duration_ms, finished_at
		FROM game_results
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: list results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var (
			res        Result
			durationMS int64
		)
		if err := rows.Scan(
			&res.ID,
			&res.MechanicID,
			&res.Outcome,
			&res.Detail,
			&res.Score,
			&res.Rounds,
			&durationMS,
			&res.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("repository: scan result: %w", err)
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate results: %w", err)
	}
	return out, nil
}
