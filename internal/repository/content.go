package repository

import (
	"context"

	"github.com/eslsoft/spacedrep/internal/entity"
)

// ContentRepository reads the content catalogue. Lookups of unknown ids return nil without error.
type ContentRepository interface {
	Get(ctx context.Context, id string) (*entity.ContentItem, error)
	GetMany(ctx context.Context, ids []string) (map[string]*entity.ContentItem, error)
	List(ctx context.Context) ([]*entity.ContentItem, error)
	Save(ctx context.Context, item *entity.ContentItem) error
}
