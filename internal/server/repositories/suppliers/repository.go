package suppliers

import (
	"context"

	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Supplier) (*models.Supplier, error)
	Update(ctx context.Context, s *models.Supplier) (*models.Supplier, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Supplier, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.Supplier, error)
	List(ctx context.Context) ([]models.Supplier, error)
}
