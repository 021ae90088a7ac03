package lines

import (
	"context"

	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, l *models.Line) (*models.Line, error)
	Update(ctx context.Context, l *models.Line) (*models.Line, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Line, error)
	GetByPair(ctx context.Context, identifier, supplierID string) (*models.Line, error)
	CountBySupplier(ctx context.Context, supplierID string) (int, error)
	DeleteBySupplier(ctx context.Context, supplierID string) (int64, error)
	Search(ctx context.Context, prefix ident.Prefix, limit, offset int, withKeyCount bool) ([]models.Line, error)
	Count(ctx context.Context, prefix ident.Prefix) (int, error)
}
