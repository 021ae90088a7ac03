package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
)

// LineInput carries the editable fields of a line.
type LineInput struct {
	Identifier string
	SupplierID string
	Name       string
}

// KeyInput carries the editable fields of a key. The line is given either by
// id or by its 5 or 6 character code.
type KeyInput struct {
	LineID   string
	LineCode string
	Code     string
	Desc     string
}

// CatalogService maintains the supplier → line → key hierarchy. Deleting a
// parent with force removes its children in one transaction and hands every
// saved slot to the retention coordinator once that transaction committed.
type CatalogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	retention   *RetentionCoordinator
	log         logging.Logger
}

func NewCatalogService(db *sql.DB, m repomanager.RepositoryManager, retention *RetentionCoordinator, log logging.Logger) *CatalogService {
	return &CatalogService{db: db, repomanager: m, retention: retention, log: log.With("module", "catalog")}
}

// --- suppliers ---

func (s *CatalogService) CreateSupplier(ctx context.Context, identifier string) (*models.Supplier, error) {
	if err := auth.Requires(ctx, auth.Granters...); err != nil {
		return nil, err
	}
	norm, err := ident.NormalizeSupplier(identifier)
	if err != nil {
		return nil, err
	}
	sup, err := s.repomanager.Suppliers(s.db).Create(ctx, &models.Supplier{Identifier: norm})
	if err != nil {
		return nil, fmt.Errorf("error creating supplier: %w", err)
	}
	s.log.Info(ctx, "supplier created", "supplier", sup.Identifier)
	return sup, nil
}

func (s *CatalogService) UpdateSupplier(ctx context.Context, id, identifier string) (*models.Supplier, error) {
	if err := auth.Requires(ctx, auth.Editors...); err != nil {
		return nil, err
	}
	norm, err := ident.NormalizeSupplier(identifier)
	if err != nil {
		return nil, err
	}
	sup, err := s.repomanager.Suppliers(s.db).Update(ctx, &models.Supplier{ID: id, Identifier: norm})
	if err != nil {
		return nil, fmt.Errorf("error updating supplier: %w", err)
	}
	return sup, nil
}

func (s *CatalogService) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	return s.repomanager.Suppliers(s.db).List(ctx)
}

// ResolveSupplier finds a supplier by its 2 or 3 character identifier in any
// case. Malformed input is reported as not found.
func (s *CatalogService) ResolveSupplier(ctx context.Context, identifier string) (*models.Supplier, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	return s.resolveSupplier(ctx, s.db, identifier)
}

func (s *CatalogService) resolveSupplier(ctx context.Context, db dbx.DBTX, identifier string) (*models.Supplier, error) {
	norm, err := ident.NormalizeSupplier(identifier)
	if err != nil {
		return nil, fmt.Errorf("supplier %q: %w", identifier, common.ErrorNotFound)
	}
	return s.repomanager.Suppliers(db).GetByIdentifier(ctx, norm)
}

// DeleteSupplier removes a supplier. With lines attached it fails with
// common.ErrorConflict unless force is set, in which case the lines and their
// keys go too.
func (s *CatalogService) DeleteSupplier(ctx context.Context, id string, force bool) (*models.Supplier, error) {
	if err := auth.Requires(ctx, auth.AdminsOnly...); err != nil {
		return nil, err
	}

	var (
		sup  *models.Supplier
		refs []models.SlotRef
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		sup, err = s.repomanager.Suppliers(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		n, err := s.repomanager.Lines(tx).CountBySupplier(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			if !force {
				return fmt.Errorf("%w: supplier %s has %d lines", common.ErrorConflict, strings.TrimSpace(sup.Identifier), n)
			}
			if refs, err = s.repomanager.Slots(tx).Snapshot(ctx, models.SlotScope{SupplierID: id}); err != nil {
				return err
			}
			if _, err := s.repomanager.Keys(tx).DeleteBySupplier(ctx, id); err != nil {
				return err
			}
			if _, err := s.repomanager.Lines(tx).DeleteBySupplier(ctx, id); err != nil {
				return err
			}
		}
		return s.repomanager.Suppliers(tx).Delete(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("error deleting supplier: %w", err)
	}

	s.log.Info(ctx, "supplier deleted", "supplier", sup.Identifier, "force", force, "slots", len(refs))
	s.retention.Evict(ctx, refs)
	return sup, nil
}

// --- lines ---

func (s *CatalogService) lineFields(ctx context.Context, db dbx.DBTX, in LineInput) (*models.Line, error) {
	identifier, err := ident.NormalizeLine(in.Identifier)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: line name is required", common.ErrorValidation)
	}
	sup, err := s.repomanager.Suppliers(db).GetByID(ctx, in.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("supplier %s: %w", in.SupplierID, err)
	}
	return &models.Line{Identifier: identifier, SupplierID: sup.ID, SupplierIdentifier: sup.Identifier, Name: name}, nil
}

func (s *CatalogService) CreateLine(ctx context.Context, in LineInput) (*models.Line, error) {
	if err := auth.Requires(ctx, auth.Granters...); err != nil {
		return nil, err
	}

	var line *models.Line
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		l, err := s.lineFields(ctx, tx, in)
		if err != nil {
			return err
		}
		line, err = s.repomanager.Lines(tx).Create(ctx, l)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating line: %w", err)
	}
	s.log.Info(ctx, "line created", "line", line.Code())
	return line, nil
}

func (s *CatalogService) UpdateLine(ctx context.Context, id string, in LineInput) (*models.Line, error) {
	if err := auth.Requires(ctx, auth.Editors...); err != nil {
		return nil, err
	}

	var line *models.Line
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		l, err := s.lineFields(ctx, tx, in)
		if err != nil {
			return err
		}
		l.ID = id
		line, err = s.repomanager.Lines(tx).Update(ctx, l)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error updating line: %w", err)
	}
	return line, nil
}

func (s *CatalogService) GetLine(ctx context.Context, id string) (*models.Line, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	return s.repomanager.Lines(s.db).GetByID(ctx, id)
}

// ResolveLine finds a line by its 5 or 6 character code. The supplier is
// resolved first, then the (line, supplier) pair. Malformed codes are
// reported as not found.
func (s *CatalogService) ResolveLine(ctx context.Context, code string) (*models.Line, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	return s.resolveLine(ctx, s.db, code)
}

func (s *CatalogService) resolveLine(ctx context.Context, db dbx.DBTX, code string) (*models.Line, error) {
	line, supplier, ok := ident.SplitLineCode(strings.TrimSpace(code))
	if !ok {
		return nil, fmt.Errorf("line %q: %w", code, common.ErrorNotFound)
	}
	sup, err := s.resolveSupplier(ctx, db, supplier)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Lines(db).GetByPair(ctx, line, sup.ID)
}

// DeleteLine removes a line. With keys attached it fails with
// common.ErrorConflict unless force is set.
func (s *CatalogService) DeleteLine(ctx context.Context, id string, force bool) (*models.Line, error) {
	if err := auth.Requires(ctx, auth.AdminsOnly...); err != nil {
		return nil, err
	}

	var (
		line *models.Line
		refs []models.SlotRef
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		line, err = s.repomanager.Lines(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		n, err := s.repomanager.Keys(tx).CountByLine(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			if !force {
				return fmt.Errorf("%w: line %s has %d keys", common.ErrorConflict, line.Code(), n)
			}
			if refs, err = s.repomanager.Slots(tx).Snapshot(ctx, models.SlotScope{LineID: id}); err != nil {
				return err
			}
			if _, err := s.repomanager.Keys(tx).DeleteByLine(ctx, id); err != nil {
				return err
			}
		}
		return s.repomanager.Lines(tx).Delete(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("error deleting line: %w", err)
	}

	s.log.Info(ctx, "line deleted", "line", line.Code(), "force", force, "slots", len(refs))
	s.retention.Evict(ctx, refs)
	return line, nil
}

// --- keys ---

func (s *CatalogService) keyFields(ctx context.Context, db dbx.DBTX, in KeyInput) (*models.Key, error) {
	code, err := ident.NormalizeCode(in.Code)
	if err != nil {
		return nil, err
	}
	desc := strings.TrimSpace(in.Desc)
	if desc == "" {
		return nil, fmt.Errorf("%w: key description is required", common.ErrorValidation)
	}

	var line *models.Line
	switch {
	case in.LineID != "":
		line, err = s.repomanager.Lines(db).GetByID(ctx, in.LineID)
	case in.LineCode != "":
		line, err = s.resolveLine(ctx, db, in.LineCode)
	default:
		return nil, fmt.Errorf("%w: key line is required", common.ErrorValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("line: %w", err)
	}

	return &models.Key{
		LineID:             line.ID,
		LineIdentifier:     line.Identifier,
		SupplierIdentifier: line.SupplierIdentifier,
		Code:               code,
		Desc:               desc,
	}, nil
}

func (s *CatalogService) CreateKey(ctx context.Context, in KeyInput) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.Granters...); err != nil {
		return nil, err
	}

	var key *models.Key
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		k, err := s.keyFields(ctx, tx, in)
		if err != nil {
			return err
		}
		key, err = s.repomanager.Keys(tx).Create(ctx, k)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating key: %w", err)
	}
	s.log.Info(ctx, "key created", "key", key.KeyCode())
	return key, nil
}

func (s *CatalogService) UpdateKey(ctx context.Context, id string, in KeyInput) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.Editors...); err != nil {
		return nil, err
	}

	var key *models.Key
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		k, err := s.keyFields(ctx, tx, in)
		if err != nil {
			return err
		}
		k.ID = id
		if _, err := s.repomanager.Keys(tx).Update(ctx, k); err != nil {
			return err
		}
		key, err = s.repomanager.Keys(tx).GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error updating key: %w", err)
	}
	return key, nil
}

func (s *CatalogService) GetKey(ctx context.Context, id string) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	return s.repomanager.Keys(s.db).GetByID(ctx, id)
}

// DeleteKey removes a key and evicts the artifacts of its saved slots.
func (s *CatalogService) DeleteKey(ctx context.Context, id string) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.AdminsOnly...); err != nil {
		return nil, err
	}

	var key *models.Key
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if key, err = s.repomanager.Keys(tx).GetByID(ctx, id); err != nil {
			return err
		}
		return s.repomanager.Keys(tx).Delete(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("error deleting key: %w", err)
	}

	s.log.Info(ctx, "key deleted", "key", key.KeyCode())
	s.retention.Evict(ctx, slotRefs(key))
	return key, nil
}

// slotRefs lists the slots of a key with the codes needed to address their
// artifacts.
func slotRefs(k *models.Key) []models.SlotRef {
	refs := make([]models.SlotRef, 0, len(k.Images))
	for _, slot := range k.Images {
		refs = append(refs, models.SlotRef{KeyID: k.ID, LineCode: k.LineCode(), KeyCode: k.KeyCode(), Slot: slot})
	}
	return refs
}

// isNotFound is shorthand used where a missing row is an expected outcome.
func isNotFound(err error) bool {
	return errors.Is(err, common.ErrorNotFound)
}
