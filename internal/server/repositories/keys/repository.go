package keys

import (
	"context"

	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, k *models.Key) (*models.Key, error)
	Update(ctx context.Context, k *models.Key) (*models.Key, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Key, error)
	CountByLine(ctx context.Context, lineID string) (int, error)
	DeleteByLine(ctx context.Context, lineID string) (int64, error)
	DeleteBySupplier(ctx context.Context, supplierID string) (int64, error)
	Search(ctx context.Context, filter models.KeyFilter, limit, offset int) ([]models.Key, error)
	Count(ctx context.Context, filter models.KeyFilter) (int, error)
	Stats(ctx context.Context, filter models.KeyFilter) (models.StatusStats, error)
	Neighbour(ctx context.Context, code string, forward bool) (*models.Key, error)
}
