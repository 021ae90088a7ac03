package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/imaging"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/artifacts"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TransitionRecorder counts slot status writes. *metrics.Metrics implements
// it.
type TransitionRecorder interface {
	StatusTransition(status string)
}

// StatusService drives the per-slot workflow of keys. Every write is a single
// upsert inside a transaction that first locks the previous slot state, so
// that a released artifact can be evicted once the transaction committed.
type StatusService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       artifacts.Store
	retention   *RetentionCoordinator
	recorder    TransitionRecorder
	log         logging.Logger

	// revision names each stored master uniquely.
	revision func() string
}

func NewStatusService(db *sql.DB, m repomanager.RepositoryManager, store artifacts.Store,
	retention *RetentionCoordinator, recorder TransitionRecorder, log logging.Logger) *StatusService {
	return &StatusService{
		db:          db,
		repomanager: m,
		store:       store,
		retention:   retention,
		recorder:    recorder,
		log:         log.With("module", "status"),
		revision:    uuid.NewString,
	}
}

func validSlot(idN int) error {
	if !models.ValidSlot(idN) {
		return fmt.Errorf("%w: slot index %d", common.ErrorValidation, idN)
	}
	return nil
}

func (s *StatusService) transition(status models.Status) {
	if s.recorder != nil {
		s.recorder.StatusTransition(status.String())
	}
}

// lockSlot reads the current slot for update. A missing slot is nil, nil.
func (s *StatusService) lockSlot(ctx context.Context, tx dbx.DBTX, keyID string, idN int) (*models.ImageSlot, error) {
	prev, err := s.repomanager.Slots(tx).GetForUpdate(ctx, keyID, idN)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return prev, nil
}

func refOf(k *models.Key, slot models.ImageSlot) models.SlotRef {
	return models.SlotRef{KeyID: k.ID, LineCode: k.LineCode(), KeyCode: k.KeyCode(), Slot: slot}
}

// SetStatus writes the status of one slot, creating it when absent. Setting
// saved keeps the artifact already recorded; any other status drops it and
// the artifact is evicted.
func (s *StatusService) SetStatus(ctx context.Context, keyID string, idN int, status models.Status) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.Writers...); err != nil {
		return nil, err
	}
	if err := validSlot(idN); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %d", common.ErrorValidation, int(status))
	}

	var (
		key      *models.Key
		released []models.SlotRef
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		prev, err := s.lockSlot(ctx, tx, keyID, idN)
		if err != nil {
			return err
		}

		slot := models.ImageSlot{IDN: idN, Status: status}
		if prev != nil && status == models.StatusSaved {
			slot.PublicID, slot.URL = prev.PublicID, prev.URL
		}
		if err := s.repomanager.Slots(tx).Upsert(ctx, keyID, slot); err != nil {
			return err
		}

		if key, err = s.repomanager.Keys(tx).GetByID(ctx, keyID); err != nil {
			return err
		}
		if prev != nil && status != models.StatusSaved && Retained(*prev) {
			released = append(released, refOf(key, *prev))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error setting status: %w", err)
	}

	s.transition(status)
	s.log.Info(ctx, "slot status set", "key", key.KeyCode(), "slot", idN, "status", status.String())
	s.retention.Evict(ctx, released)
	return key, nil
}

// ClearStatus removes a pre-final slot. A saved slot is refused with
// common.ErrorSlotSaved; clearing a slot that does not exist changes nothing.
func (s *StatusService) ClearStatus(ctx context.Context, keyID string, idN int) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.Writers...); err != nil {
		return nil, err
	}
	if err := validSlot(idN); err != nil {
		return nil, err
	}

	var key *models.Key
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed, err := s.repomanager.Slots(tx).DeletePreFinal(ctx, keyID, idN)
		if err != nil {
			return err
		}
		if !removed {
			slot, err := s.lockSlot(ctx, tx, keyID, idN)
			if err != nil {
				return err
			}
			if slot != nil {
				return fmt.Errorf("%w: slot %d", common.ErrorSlotSaved, idN)
			}
		}
		key, err = s.repomanager.Keys(tx).GetByID(ctx, keyID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error clearing status: %w", err)
	}

	s.log.Info(ctx, "slot status cleared", "key", key.KeyCode(), "slot", idN)
	return key, nil
}

// BulkReset replaces the slots of every key in scope. A nil or saved status
// empties the slots; a pre-final status installs three fresh ones. Artifacts
// of saved slots that were replaced are evicted.
func (s *StatusService) BulkReset(ctx context.Context, scope models.SlotScope, status *models.Status) (int64, error) {
	if err := auth.Requires(ctx, auth.AdminsOnly...); err != nil {
		return 0, err
	}
	target := models.StatusSaved
	if status != nil {
		if !status.Valid() {
			return 0, fmt.Errorf("%w: status %d", common.ErrorValidation, int(*status))
		}
		target = *status
	}

	var (
		n    int64
		refs []models.SlotRef
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		switch {
		case scope.KeyID != "":
			_, err = s.repomanager.Keys(tx).GetByID(ctx, scope.KeyID)
		case scope.LineID != "":
			_, err = s.repomanager.Lines(tx).GetByID(ctx, scope.LineID)
		case scope.SupplierID != "":
			_, err = s.repomanager.Suppliers(tx).GetByID(ctx, scope.SupplierID)
		}
		if err != nil {
			return err
		}

		if refs, err = s.repomanager.Slots(tx).Snapshot(ctx, scope); err != nil {
			return err
		}
		n, err = s.repomanager.Slots(tx).Reset(ctx, scope, target)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("error resetting slots: %w", err)
	}

	s.log.Info(ctx, "slots reset", "scope", scope, "status", target.String(), "rows", n)
	s.retention.Evict(ctx, refs)
	return n, nil
}

// SaveArtifact stores master as the artifact of one slot and marks the slot
// saved. The artifact is written under a fresh revision first; if the slot
// cannot be updated it is removed again. The artifact the slot held before is
// evicted.
func (s *StatusService) SaveArtifact(ctx context.Context, keyID string, idN int, master []byte) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.Writers...); err != nil {
		return nil, err
	}
	if err := validSlot(idN); err != nil {
		return nil, err
	}
	format, err := imaging.Sniff(master)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}

	key, err := s.repomanager.Keys(s.db).GetByID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("error saving artifact: %w", err)
	}

	code := key.KeyCode()
	name := ident.ArtifactRevisionPath(key.LineCode(), code, idN, s.revision(), imaging.Extension(format))
	art, err := s.store.Put(ctx, name, master)
	if err != nil {
		return nil, fmt.Errorf("error storing artifact: %w", err)
	}

	var prev *models.ImageSlot
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if prev, err = s.lockSlot(ctx, tx, keyID, idN); err != nil {
			return err
		}
		slot := models.ImageSlot{IDN: idN, Status: models.StatusSaved, PublicID: &art.Handle, URL: &art.URL}
		if err := s.repomanager.Slots(tx).Upsert(ctx, keyID, slot); err != nil {
			return err
		}
		key, err = s.repomanager.Keys(tx).GetByID(ctx, keyID)
		return err
	})
	if err != nil {
		s.retention.EvictHandle(ctx, art.Handle, "key", code, "slot", idN)
		return nil, fmt.Errorf("error saving artifact: %w", err)
	}

	s.transition(models.StatusSaved)
	s.log.Info(ctx, "artifact saved", "key", key.KeyCode(), "slot", idN, "handle", art.Handle)
	if prev != nil && Retained(*prev) {
		s.retention.EvictHandle(ctx, ArtifactHandle(refOf(key, *prev)), "key", key.KeyCode(), "slot", idN)
	}
	return key, nil
}

// DeleteArtifact removes a saved slot together with its artifact. A slot that
// is not saved is common.ErrorNotFound.
func (s *StatusService) DeleteArtifact(ctx context.Context, keyID string, idN int) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.Writers...); err != nil {
		return nil, err
	}
	if err := validSlot(idN); err != nil {
		return nil, err
	}

	var (
		key  *models.Key
		slot *models.ImageSlot
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if slot, err = s.repomanager.Slots(tx).DeleteSaved(ctx, keyID, idN); err != nil {
			return err
		}
		key, err = s.repomanager.Keys(tx).GetByID(ctx, keyID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error deleting artifact: %w", err)
	}

	s.log.Info(ctx, "artifact deleted", "key", key.KeyCode(), "slot", idN)
	s.retention.Evict(ctx, []models.SlotRef{refOf(key, *slot)})
	return key, nil
}
