package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
)

const pgInsertState = `INSERT INTO learner_content_states (` + stateColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// PostgresStateRepository stores learner states in PostgreSQL through pgx.
// Mutations lock the row with SELECT ... FOR UPDATE inside one transaction.
type PostgresStateRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresStateRepository constructs a pgx-backed repository.
func NewPostgresStateRepository(pool *pgxpool.Pool) *PostgresStateRepository {
	return &PostgresStateRepository{pool: pool}
}

var _ repository.LearnerStateRepository = (*PostgresStateRepository)(nil)

func pgScanState(row pgx.Row) (*entity.LearnerContentState, error) {
	var st entity.LearnerContentState
	err := row.Scan(
		&st.ID, &st.LearnerID, &st.ContentID, &st.EaseFactor, &st.CurrentInterval,
		&st.Repetitions, &st.TotalReviews, &st.SuccessCount, &st.LastReviewed, &st.NextReview,
		&st.LastResponseQuality, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func pgStateArgs(st *entity.LearnerContentState) []any {
	return []any{
		st.ID, st.LearnerID, st.ContentID, st.EaseFactor, st.CurrentInterval,
		st.Repetitions, st.TotalReviews, st.SuccessCount, st.LastReviewed, st.NextReview,
		st.LastResponseQuality, st.Version, st.CreatedAt, st.UpdatedAt,
	}
}

func (r *PostgresStateRepository) Get(ctx context.Context, key entity.StateKey) (*entity.LearnerContentState, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE learner_id = $1 AND content_id = $2`,
		key.LearnerID, key.ContentID)
	st, err := pgScanState(row)
	if err != nil {
		return nil, translatePgError("get state", err, key)
	}
	return st, nil
}

func (r *PostgresStateRepository) ListByLearner(ctx context.Context, learnerID string) ([]*entity.LearnerContentState, error) {
	states, err := r.queryStates(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE learner_id = $1 ORDER BY next_review, content_id`, learnerID)
	if err != nil {
		return nil, entity.NewStorageError("list states by learner", err)
	}
	return states, nil
}

func (r *PostgresStateRepository) ListByContent(ctx context.Context, contentID string) ([]*entity.LearnerContentState, error) {
	states, err := r.queryStates(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE content_id = $1 ORDER BY learner_id`, contentID)
	if err != nil {
		return nil, entity.NewStorageError("list states by content", err)
	}
	return states, nil
}

func (r *PostgresStateRepository) List(ctx context.Context, query *repository.ListStateQuery) ([]*entity.LearnerContentState, int64, error) {
	where, args := stateWhere(query, func(n int) string { return fmt.Sprintf("$%d", n) })

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM learner_content_states WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, entity.NewStorageError("count states", err)
	}

	n := len(args)
	stmt := fmt.Sprintf(`SELECT %s FROM learner_content_states WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		stateColumns, where, orderClause(query), n+1, n+2)
	states, err := r.queryStates(ctx, stmt, append(args, query.PageSize, query.Offset())...)
	if err != nil {
		return nil, 0, entity.NewStorageError("list states", err)
	}
	return states, total, nil
}

func (r *PostgresStateRepository) ExistingContentIDs(ctx context.Context, learnerID string, contentIDs []string) ([]string, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT content_id FROM learner_content_states WHERE learner_id = $1 AND content_id = ANY($2)`,
		learnerID, contentIDs)
	if err != nil {
		return nil, entity.NewStorageError("existing content ids", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, entity.NewStorageError("existing content ids", err)
	}
	return existing, nil
}

func (r *PostgresStateRepository) Create(ctx context.Context, state *entity.LearnerContentState) (*entity.LearnerContentState, error) {
	if _, err := r.pool.Exec(ctx, pgInsertState, pgStateArgs(state)...); err != nil {
		return nil, translatePgError("create state", err, state.Key())
	}
	return state.Clone(), nil
}

func (r *PostgresStateRepository) Mutate(ctx context.Context, key entity.StateKey, seed *entity.LearnerContentState, fn repository.MutateFunc) (*entity.LearnerContentState, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, entity.NewStorageError("begin mutate", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if seed != nil {
		if _, err := tx.Exec(ctx, pgInsertState+` ON CONFLICT (learner_id, content_id) DO NOTHING`, pgStateArgs(seed)...); err != nil {
			return nil, translatePgError("seed state", err, key)
		}
	}

	row := tx.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE learner_id = $1 AND content_id = $2 FOR UPDATE`,
		key.LearnerID, key.ContentID)
	current, err := pgScanState(row)
	if err != nil {
		return nil, translatePgError("lock state", err, key)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.LearnerID, next.ContentID = current.ID, current.LearnerID, current.ContentID
	next.CreatedAt = current.CreatedAt

	err = tx.QueryRow(ctx, `UPDATE learner_content_states SET
		ease_factor = $1, current_interval = $2, repetitions = $3, total_reviews = $4, success_count = $5,
		last_reviewed = $6, next_review = $7, last_response_quality = $8, version = version + 1, updated_at = $9
		WHERE id = $10 RETURNING version`,
		next.EaseFactor, next.CurrentInterval, next.Repetitions, next.TotalReviews, next.SuccessCount,
		next.LastReviewed, next.NextReview, next.LastResponseQuality, next.UpdatedAt, next.ID,
	).Scan(&next.Version)
	if err != nil {
		return nil, translatePgError("update state", err, key)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, entity.NewStorageError("commit mutate", err)
	}
	return next, nil
}

func (r *PostgresStateRepository) Upsert(ctx context.Context, state *entity.LearnerContentState) error {
	_, err := r.pool.Exec(ctx, pgInsertState+`
		ON CONFLICT (learner_id, content_id) DO UPDATE SET
			ease_factor = EXCLUDED.ease_factor, current_interval = EXCLUDED.current_interval,
			repetitions = EXCLUDED.repetitions, total_reviews = EXCLUDED.total_reviews,
			success_count = EXCLUDED.success_count, last_reviewed = EXCLUDED.last_reviewed,
			next_review = EXCLUDED.next_review, last_response_quality = EXCLUDED.last_response_quality,
			version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		pgStateArgs(state)...)
	if err != nil {
		return entity.NewStorageError("upsert state", err)
	}
	return nil
}

func (r *PostgresStateRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM learner_content_states`).Scan(&n); err != nil {
		return 0, entity.NewStorageError("count states", err)
	}
	return n, nil
}

func (r *PostgresStateRepository) Walk(ctx context.Context, fn func(*entity.LearnerContentState) error) error {
	var lastLearner, lastContent string
	for {
		batch, err := r.queryStates(ctx,
			`SELECT `+stateColumns+` FROM learner_content_states
			WHERE (learner_id, content_id) > ($1, $2)
			ORDER BY learner_id, content_id LIMIT $3`,
			lastLearner, lastContent, walkBatchSize)
		if err != nil {
			return entity.NewStorageError("walk states", err)
		}
		for _, st := range batch {
			if err := fn(st); err != nil {
				return err
			}
		}
		if len(batch) < walkBatchSize {
			return nil
		}
		last := batch[len(batch)-1]
		lastLearner, lastContent = last.LearnerID, last.ContentID
	}
}

func (r *PostgresStateRepository) queryStates(ctx context.Context, query string, args ...any) ([]*entity.LearnerContentState, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.LearnerContentState, error) {
		return pgScanState(row)
	})
}

func translatePgError(op string, err error, key entity.StateKey) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return entity.ErrDuplicateState
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.NewStateNotFound(key)
	}
	return entity.NewStorageError(op, err)
}
