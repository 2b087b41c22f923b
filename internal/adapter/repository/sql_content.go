package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
)

// SQLContentRepository reads content_items through database/sql. It serves both
// sqlite3 and the lib/pq postgres driver; only the placeholder style differs.
type SQLContentRepository struct {
	db       *sql.DB
	dollarPH bool
}

// NewSQLContentRepository builds a content repository for the given driver name.
func NewSQLContentRepository(db *sql.DB, driver string) *SQLContentRepository {
	return &SQLContentRepository{db: db, dollarPH: driver == "postgres"}
}

var _ repository.ContentRepository = (*SQLContentRepository)(nil)

func (r *SQLContentRepository) ph(n int) string {
	if r.dollarPH {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (r *SQLContentRepository) Get(ctx context.Context, id string) (*entity.ContentItem, error) {
	var item entity.ContentItem
	err := r.db.QueryRowContext(ctx, `SELECT id, difficulty FROM content_items WHERE id = `+r.ph(1), id).
		Scan(&item.ID, &item.Difficulty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, entity.NewStorageError("get content", err)
	}
	return &item, nil
}

func (r *SQLContentRepository) GetMany(ctx context.Context, ids []string) (map[string]*entity.ContentItem, error) {
	out := make(map[string]*entity.ContentItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = r.ph(i + 1)
		args[i] = id
	}
	items, err := r.query(ctx, `SELECT id, difficulty FROM content_items WHERE id IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return nil, entity.NewStorageError("get contents", err)
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (r *SQLContentRepository) List(ctx context.Context) ([]*entity.ContentItem, error) {
	items, err := r.query(ctx, `SELECT id, difficulty FROM content_items ORDER BY id`)
	if err != nil {
		return nil, entity.NewStorageError("list contents", err)
	}
	return items, nil
}

func (r *SQLContentRepository) Save(ctx context.Context, item *entity.ContentItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO content_items (id, difficulty) VALUES (`+r.ph(1)+`, `+r.ph(2)+`)
		ON CONFLICT (id) DO UPDATE SET difficulty = excluded.difficulty`,
		item.ID, item.Difficulty)
	if err != nil {
		return entity.NewStorageError("save content", err)
	}
	return nil
}

func (r *SQLContentRepository) query(ctx context.Context, q string, args ...any) ([]*entity.ContentItem, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*entity.ContentItem
	for rows.Next() {
		var item entity.ContentItem
		if err := rows.Scan(&item.ID, &item.Difficulty); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}
