package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
)

const (
	stateColumns = `id, learner_id, content_id, ease_factor, current_interval, repetitions, total_reviews,
		success_count, last_reviewed, next_review, last_response_quality, version, created_at, updated_at`
	walkBatchSize = 512
)

// SQLiteStateRepository stores learner states through database/sql and go-sqlite3.
// Mutations use optimistic concurrency on the version column with bounded retries.
type SQLiteStateRepository struct {
	db      *sql.DB
	retries int
}

// NewSQLiteStateRepository constructs a sqlite-backed repository. retries bounds
// how often a mutation is re-attempted after losing a version race.
func NewSQLiteStateRepository(db *sql.DB, retries int) *SQLiteStateRepository {
	if retries <= 0 {
		retries = 3
	}
	return &SQLiteStateRepository{db: db, retries: retries}
}

var _ repository.LearnerStateRepository = (*SQLiteStateRepository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*entity.LearnerContentState, error) {
	var (
		st           entity.LearnerContentState
		lastReviewed sql.NullTime
		lastQuality  sql.NullInt64
	)
	err := row.Scan(
		&st.ID, &st.LearnerID, &st.ContentID, &st.EaseFactor, &st.CurrentInterval,
		&st.Repetitions, &st.TotalReviews, &st.SuccessCount, &lastReviewed, &st.NextReview,
		&lastQuality, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastReviewed.Valid {
		t := lastReviewed.Time.UTC()
		st.LastReviewed = &t
	}
	if lastQuality.Valid {
		q := int(lastQuality.Int64)
		st.LastResponseQuality = &q
	}
	st.NextReview = st.NextReview.UTC()
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

func (r *SQLiteStateRepository) Get(ctx context.Context, key entity.StateKey) (*entity.LearnerContentState, error) {
	st, err := getState(ctx, r.db, key)
	if err != nil {
		return nil, translateSQLiteError("get state", err, key)
	}
	return st, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q queryRower, key entity.StateKey) (*entity.LearnerContentState, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE learner_id = ? AND content_id = ?`,
		key.LearnerID, key.ContentID)
	return scanState(row)
}

func (r *SQLiteStateRepository) ListByLearner(ctx context.Context, learnerID string) ([]*entity.LearnerContentState, error) {
	states, err := r.queryStates(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE learner_id = ? ORDER BY next_review, content_id`, learnerID)
	if err != nil {
		return nil, entity.NewStorageError("list states by learner", err)
	}
	return states, nil
}

func (r *SQLiteStateRepository) ListByContent(ctx context.Context, contentID string) ([]*entity.LearnerContentState, error) {
	states, err := r.queryStates(ctx,
		`SELECT `+stateColumns+` FROM learner_content_states WHERE content_id = ? ORDER BY learner_id`, contentID)
	if err != nil {
		return nil, entity.NewStorageError("list states by content", err)
	}
	return states, nil
}

func (r *SQLiteStateRepository) List(ctx context.Context, query *repository.ListStateQuery) ([]*entity.LearnerContentState, int64, error) {
	where, args := stateWhere(query, func(int) string { return "?" })

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM learner_content_states WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, entity.NewStorageError("count states", err)
	}

	stmt := fmt.Sprintf(`SELECT %s FROM learner_content_states WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		stateColumns, where, orderClause(query))
	states, err := r.queryStates(ctx, stmt, append(args, query.PageSize, query.Offset())...)
	if err != nil {
		return nil, 0, entity.NewStorageError("list states", err)
	}
	return states, total, nil
}

func (r *SQLiteStateRepository) ExistingContentIDs(ctx context.Context, learnerID string, contentIDs []string) ([]string, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(contentIDs)+1)
	args = append(args, learnerID)
	for _, id := range contentIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contentIDs)), ",")
	rows, err := r.db.QueryContext(ctx,
		`SELECT content_id FROM learner_content_states WHERE learner_id = ? AND content_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, entity.NewStorageError("existing content ids", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, entity.NewStorageError("existing content ids", err)
		}
		existing = append(existing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.NewStorageError("existing content ids", err)
	}
	return existing, nil
}

func (r *SQLiteStateRepository) Create(ctx context.Context, state *entity.LearnerContentState) (*entity.LearnerContentState, error) {
	if err := insertState(ctx, r.db, state); err != nil {
		return nil, translateSQLiteError("create state", err, state.Key())
	}
	return state.Clone(), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertState(ctx context.Context, ex execer, st *entity.LearnerContentState) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO learner_content_states (`+stateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stateArgs(st)...)
	return err
}

func stateArgs(st *entity.LearnerContentState) []any {
	return []any{
		st.ID, st.LearnerID, st.ContentID, st.EaseFactor, st.CurrentInterval,
		st.Repetitions, st.TotalReviews, st.SuccessCount, nullTime(st.LastReviewed), st.NextReview.UTC(),
		nullInt(st.LastResponseQuality), st.Version, st.CreatedAt.UTC(), st.UpdatedAt.UTC(),
	}
}

func (r *SQLiteStateRepository) Mutate(ctx context.Context, key entity.StateKey, seed *entity.LearnerContentState, fn repository.MutateFunc) (*entity.LearnerContentState, error) {
	for attempt := 0; attempt < r.retries; attempt++ {
		st, err := r.mutateOnce(ctx, key, seed, fn)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, entity.ErrConcurrentUpdate) {
			return nil, translateSQLiteError("mutate state", err, key)
		}
		// lost the version race; re-read and retry
	}
	return nil, entity.NewStorageError("mutate state", fmt.Errorf("%w after %d attempts", entity.ErrConcurrentUpdate, r.retries))
}

func (r *SQLiteStateRepository) mutateOnce(ctx context.Context, key entity.StateKey, seed *entity.LearnerContentState, fn repository.MutateFunc) (*entity.LearnerContentState, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getState(ctx, tx, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if seed == nil {
			return nil, entity.NewStateNotFound(key)
		}
		if err := insertState(ctx, tx, seed); err != nil {
			if isSQLiteUnique(err) {
				return nil, entity.ErrConcurrentUpdate
			}
			return nil, err
		}
		current = seed.Clone()
	case err != nil:
		return nil, err
	}

	prevVersion := current.Version
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.LearnerID, next.ContentID = key.LearnerID, key.ContentID
	next.CreatedAt = current.CreatedAt
	next.Version = prevVersion + 1

	res, err := tx.ExecContext(ctx, `UPDATE learner_content_states SET
		ease_factor = ?, current_interval = ?, repetitions = ?, total_reviews = ?, success_count = ?,
		last_reviewed = ?, next_review = ?, last_response_quality = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		next.EaseFactor, next.CurrentInterval, next.Repetitions, next.TotalReviews, next.SuccessCount,
		nullTime(next.LastReviewed), next.NextReview.UTC(), nullInt(next.LastResponseQuality), next.Version, next.UpdatedAt.UTC(),
		next.ID, prevVersion)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, entity.ErrConcurrentUpdate
	}
	if err := tx.Commit(); err != nil {
		if isSQLiteBusy(err) {
			return nil, entity.ErrConcurrentUpdate
		}
		return nil, err
	}
	return next, nil
}

func (r *SQLiteStateRepository) Upsert(ctx context.Context, state *entity.LearnerContentState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO learner_content_states (`+stateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, content_id) DO UPDATE SET
			ease_factor = excluded.ease_factor, current_interval = excluded.current_interval,
			repetitions = excluded.repetitions, total_reviews = excluded.total_reviews,
			success_count = excluded.success_count, last_reviewed = excluded.last_reviewed,
			next_review = excluded.next_review, last_response_quality = excluded.last_response_quality,
			version = excluded.version, updated_at = excluded.updated_at`,
		stateArgs(state)...)
	if err != nil {
		return entity.NewStorageError("upsert state", err)
	}
	return nil
}

func (r *SQLiteStateRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM learner_content_states`).Scan(&n); err != nil {
		return 0, entity.NewStorageError("count states", err)
	}
	return n, nil
}

func (r *SQLiteStateRepository) Walk(ctx context.Context, fn func(*entity.LearnerContentState) error) error {
	for offset := 0; ; offset += walkBatchSize {
		batch, err := r.queryStates(ctx,
			`SELECT `+stateColumns+` FROM learner_content_states ORDER BY learner_id, content_id LIMIT ? OFFSET ?`,
			walkBatchSize, offset)
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
	}
}

func (r *SQLiteStateRepository) queryStates(ctx context.Context, query string, args ...any) ([]*entity.LearnerContentState, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*entity.LearnerContentState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func translateSQLiteError(op string, err error, key entity.StateKey) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return entity.NewStateNotFound(key)
	case isSQLiteUnique(err):
		return entity.ErrDuplicateState
	default:
		return entity.NewStorageError(op, err)
	}
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
