package slots

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// PostgresRepository implements slot storage over a dbx.DBTX. The primary
// key (key_id, id_n) together with the id_n check keeps at most one slot per
// index and at most three per key.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetForUpdate reads one slot and locks its row until the surrounding
// transaction ends. A missing slot is common.ErrorNotFound.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, keyID string, idN int) (*models.ImageSlot, error) {
	query := `SELECT id_n, status, public_id, url FROM key_images
		WHERE key_id = $1 AND id_n = $2
		FOR UPDATE`

	s := &models.ImageSlot{}
	if err := r.db.QueryRowContext(ctx, query, keyID, idN).Scan(&s.IDN, &s.Status, &s.PublicID, &s.URL); err != nil {
		return nil, dbx.Classify("get slot", err)
	}
	return s, nil
}

// Upsert writes a slot in one statement. The row is only inserted when the
// key exists; otherwise nothing is affected and common.ErrorNotFound is
// returned.
func (r *PostgresRepository) Upsert(ctx context.Context, keyID string, slot models.ImageSlot) error {
	query := `
		INSERT INTO key_images (key_id, id_n, status, public_id, url)
		SELECT $1::uuid, $2::smallint, $3::smallint, $4::text, $5::text
		WHERE EXISTS (SELECT 1 FROM keys WHERE id = $1)
		ON CONFLICT (key_id, id_n)
		DO UPDATE SET
			status = EXCLUDED.status,
			public_id = EXCLUDED.public_id,
			url = EXCLUDED.url`

	res, err := r.db.ExecContext(ctx, query, keyID, slot.IDN, int(slot.Status), slot.PublicID, slot.URL)
	if err != nil {
		return dbx.Classify("upsert slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("upsert slot: key %s: %w", keyID, common.ErrorNotFound)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// DeletePreFinal removes a slot only while its status is below saved and
// reports whether a row went away.
func (r *PostgresRepository) DeletePreFinal(ctx context.Context, keyID string, idN int) (bool, error) {
	query := `DELETE FROM key_images
		WHERE key_id = $1 AND id_n = $2 AND status BETWEEN $3 AND $4`

	res, err := r.db.ExecContext(ctx, query, keyID, idN, int(models.StatusDefective), int(models.StatusEdited))
	if err != nil {
		return false, dbx.Classify("delete slot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

// DeleteSaved removes a saved slot and returns what it held. A slot that is
// missing or not saved is common.ErrorNotFound.
func (r *PostgresRepository) DeleteSaved(ctx context.Context, keyID string, idN int) (*models.ImageSlot, error) {
	query := `DELETE FROM key_images
		WHERE key_id = $1 AND id_n = $2 AND status = $3
		RETURNING id_n, status, public_id, url`

	s := &models.ImageSlot{}
	err := r.db.QueryRowContext(ctx, query, keyID, idN, int(models.StatusSaved)).Scan(&s.IDN, &s.Status, &s.PublicID, &s.URL)
	if err != nil {
		return nil, dbx.Classify("delete saved slot", err)
	}
	return s, nil
}

// scopeWhere restricts a query over keys k joined to lines l.
func scopeWhere(scope models.SlotScope) (string, []any) {
	switch {
	case scope.KeyID != "":
		return `k.id = $1`, []any{scope.KeyID}
	case scope.LineID != "":
		return `k.line_id = $1`, []any{scope.LineID}
	case scope.SupplierID != "":
		return `l.supplier_id = $1`, []any{scope.SupplierID}
	default:
		return `TRUE`, nil
	}
}

// Snapshot reads and locks every slot in scope, together with the codes of
// its key, so that artifacts can still be addressed after the rows change.
func (r *PostgresRepository) Snapshot(ctx context.Context, scope models.SlotScope) ([]models.SlotRef, error) {
	cond, args := scopeWhere(scope)
	query := `SELECT k.id, l.identifier, s.identifier, k.code, ki.id_n, ki.status, ki.public_id, ki.url
	FROM key_images ki
	JOIN keys k ON k.id = ki.key_id
	JOIN lines l ON l.id = k.line_id
	JOIN suppliers s ON s.id = l.supplier_id
	WHERE ` + cond + `
	ORDER BY k.id, ki.id_n
	FOR UPDATE OF ki`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Classify("snapshot slots", err)
	}
	defer rows.Close()

	result := []models.SlotRef{}
	for rows.Next() {
		var (
			ref                  models.SlotRef
			line, supplier, code string
		)
		if err := rows.Scan(&ref.KeyID, &line, &supplier, &code, &ref.Slot.IDN, &ref.Slot.Status, &ref.Slot.PublicID, &ref.Slot.URL); err != nil {
			return nil, err
		}
		ref.LineCode = ident.LineCode(line, supplier)
		ref.KeyCode = ident.KeyCode(line, supplier, code)
		result = append(result, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Reset replaces the slots of every key in scope. A pre-final status installs
// three fresh slots at that status; anything else leaves no slots at all.
// The zero scope covers only keys that currently have slots. Returns the
// number of rows written or removed.
func (r *PostgresRepository) Reset(ctx context.Context, scope models.SlotScope, status models.Status) (int64, error) {
	cond, args := scopeWhere(scope)
	if scope == (models.SlotScope{}) {
		cond = `EXISTS (SELECT 1 FROM key_images x WHERE x.key_id = k.id)`
	}

	var query string
	if fresh := models.FreshSlots(status); len(fresh) > 0 {
		rows := make([]string, 0, len(fresh))
		for _, slot := range fresh {
			rows = append(rows, fmt.Sprintf("($%d::smallint, $%d::smallint)", len(args)+1, len(args)+2))
			args = append(args, slot.IDN, int(slot.Status))
		}
		query = `
		INSERT INTO key_images (key_id, id_n, status, public_id, url)
		SELECT k.id, f.id_n, f.status, NULL, NULL
		FROM keys k
		JOIN lines l ON l.id = k.line_id
		CROSS JOIN (VALUES ` + strings.Join(rows, ", ") + `) AS f(id_n, status)
		WHERE ` + cond + `
		ON CONFLICT (key_id, id_n)
		DO UPDATE SET
			status = EXCLUDED.status,
			public_id = NULL,
			url = NULL`
	} else {
		query = `
		DELETE FROM key_images ki
		USING keys k
		JOIN lines l ON l.id = k.line_id
		WHERE ki.key_id = k.id AND ` + cond
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dbx.Classify("reset slots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
