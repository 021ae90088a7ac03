package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/imaging"
	"github.com/dmitrijs2005/keycatalog/internal/server/artifacts"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
)

// ImageService serves renditions of saved slot artifacts.
type ImageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       artifacts.Store
}

func NewImageService(db *sql.DB, m repomanager.RepositoryManager, store artifacts.Store) *ImageService {
	return &ImageService{db: db, repomanager: m, store: store}
}

// GetImage loads the artifact of a saved slot and derives the requested
// rendition. Zero width and height return the master as stored.
func (s *ImageService) GetImage(ctx context.Context, keyID string, idN, width, height int) ([]byte, imaging.Format, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, 0, err
	}
	if err := validSlot(idN); err != nil {
		return nil, 0, err
	}

	key, err := s.repomanager.Keys(s.db).GetByID(ctx, keyID)
	if err != nil {
		return nil, 0, fmt.Errorf("error loading key: %w", err)
	}
	slot, ok := key.Slot(idN)
	if !ok || slot.Status != models.StatusSaved {
		return nil, 0, fmt.Errorf("image %s/%d: %w", key.KeyCode(), idN, common.ErrorNotFound)
	}

	master, err := s.store.Get(ctx, ArtifactHandle(refOf(key, slot)))
	if err != nil {
		return nil, 0, fmt.Errorf("error loading artifact: %w", err)
	}
	return imaging.Derive(master, width, height)
}
