package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/artifacts"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// legacyExt is the extension of artifacts written before handles were
// stored with the slot.
const legacyExt = "jpg"

// RetentionRecorder receives eviction outcomes. *metrics.Metrics
// implements it.
type RetentionRecorder interface {
	ArtifactEvicted()
	CleanupFailed()
}

// RetentionCoordinator removes artifacts that are no longer backed by a
// saved slot. It only runs after the database change that released them has
// committed, and it never fails the caller: a failed deletion is logged,
// counted and left behind.
type RetentionCoordinator struct {
	store    artifacts.Store
	log      logging.Logger
	recorder RetentionRecorder
}

func NewRetentionCoordinator(store artifacts.Store, log logging.Logger, recorder RetentionRecorder) *RetentionCoordinator {
	return &RetentionCoordinator{store: store, log: log.With("module", "retention"), recorder: recorder}
}

// ArtifactHandle resolves the artifact of a slot: the stored public id, or
// the deterministic path "<lineCode>/<keyCode> <idN>.jpg" when none was
// recorded.
func ArtifactHandle(ref models.SlotRef) string {
	if h := ref.Slot.Handle(); h != "" {
		return h
	}
	return ident.ArtifactPath(ref.LineCode, ref.KeyCode, ref.Slot.IDN, legacyExt)
}

// Retained reports whether a slot may own an artifact at all.
func Retained(slot models.ImageSlot) bool {
	return slot.Status == models.StatusSaved || slot.PublicID != nil
}

// Evict deletes the artifacts of the given slots that owned one. Duplicate
// handles are deleted once. Returns the number of failed deletions.
func (r *RetentionCoordinator) Evict(ctx context.Context, refs []models.SlotRef) int {
	seen := make(map[string]struct{}, len(refs))
	failed := 0
	for _, ref := range refs {
		if !Retained(ref.Slot) {
			continue
		}
		h := ArtifactHandle(ref)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if !r.EvictHandle(ctx, h, "key", ref.KeyCode, "slot", ref.Slot.IDN) {
			failed++
		}
	}
	return failed
}

// EvictHandle deletes one artifact by handle. A missing artifact counts as
// deleted.
func (r *RetentionCoordinator) EvictHandle(ctx context.Context, handle string, attrs ...any) bool {
	if handle == "" {
		return true
	}
	if err := r.store.Delete(ctx, handle); err != nil {
		err = fmt.Errorf("%w: %w", common.ErrArtifactCleanupFailed, err)
		r.log.Warn(ctx, "artifact left behind", append([]any{"handle", handle, "error", err}, attrs...)...)
		if r.recorder != nil {
			r.recorder.CleanupFailed()
		}
		return false
	}
	r.log.Debug(ctx, "artifact evicted", append([]any{"handle", handle}, attrs...)...)
	if r.recorder != nil {
		r.recorder.ArtifactEvicted()
	}
	return true
}
