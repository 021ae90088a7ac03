package slots

import (
	"context"

	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// Repository manages the image slots of keys (the key_images table).
type Repository interface {
	GetForUpdate(ctx context.Context, keyID string, idN int) (*models.ImageSlot, error)
	Upsert(ctx context.Context, keyID string, slot models.ImageSlot) error
	DeletePreFinal(ctx context.Context, keyID string, idN int) (bool, error)
	DeleteSaved(ctx context.Context, keyID string, idN int) (*models.ImageSlot, error)
	Snapshot(ctx context.Context, scope models.SlotScope) ([]models.SlotRef, error)
	Reset(ctx context.Context, scope models.SlotScope, status models.Status) (int64, error)
}
