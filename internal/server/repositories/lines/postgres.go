package lines

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// PostgresRepository stores product lines over a dbx.DBTX. Reads join the
// owning supplier so that the line code can be built without a second query.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectLine = `SELECT l.id, l.identifier, l.supplier_id, s.identifier, l.name, l.created_at, l.updated_at
	FROM lines l
	JOIN suppliers s ON s.id = l.supplier_id`

// Create inserts a line. A missing supplier surfaces as common.ErrorNotFound
// through the foreign key.
func (r *PostgresRepository) Create(ctx context.Context, l *models.Line) (*models.Line, error) {
	query := `INSERT INTO lines (identifier, supplier_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, l.Identifier, l.SupplierID, l.Name).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify("create line", err)
	}
	return l, nil
}

func (r *PostgresRepository) Update(ctx context.Context, l *models.Line) (*models.Line, error) {
	query := `UPDATE lines SET identifier = $2, supplier_id = $3, name = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, l.ID, l.Identifier, l.SupplierID, l.Name).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify("update line", err)
	}
	return l, nil
}

// Delete removes one line. Keys still referencing it surface as
// common.ErrorConflict.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lines WHERE id = $1`, id)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return fmt.Errorf("delete line: %w: line has keys", common.ErrorConflict)
		}
		return dbx.Classify("delete line", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Line, error) {
	return r.getOne(ctx, "get line", selectLine+` WHERE l.id = $1`, id)
}

// GetByPair finds a line by its identifier within one supplier.
func (r *PostgresRepository) GetByPair(ctx context.Context, identifier, supplierID string) (*models.Line, error) {
	return r.getOne(ctx, "get line by pair", selectLine+` WHERE l.identifier = $1 AND l.supplier_id = $2`, identifier, supplierID)
}

func (r *PostgresRepository) getOne(ctx context.Context, op, query string, args ...any) (*models.Line, error) {
	l := &models.Line{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&l.ID, &l.Identifier, &l.SupplierID, &l.SupplierIdentifier, &l.Name, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify(op, err)
	}
	return l, nil
}

func (r *PostgresRepository) CountBySupplier(ctx context.Context, supplierID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM lines WHERE supplier_id = $1`, supplierID).Scan(&n)
	if err != nil {
		return 0, dbx.Classify("count lines", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteBySupplier(ctx context.Context, supplierID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lines WHERE supplier_id = $1`, supplierID)
	if err != nil {
		return 0, dbx.Classify("delete lines", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// prefixWhere constrains lines by the line and supplier segments of a code
// prefix. Identifiers are stored upper-cased so LIKE is case-insensitive
// here.
const prefixWhere = ` WHERE l.identifier LIKE $1 AND s.identifier LIKE $2`

func prefixArgs(p ident.Prefix) []any {
	return []any{p.Line + "%", p.Supplier + "%"}
}

// Search lists lines matching prefix ordered by line code. withKeyCount
// adds the number of keys of every line.
func (r *PostgresRepository) Search(ctx context.Context, prefix ident.Prefix, limit, offset int, withKeyCount bool) ([]models.Line, error) {
	countExpr := `NULL::bigint`
	if withKeyCount {
		countExpr = `(SELECT count(*) FROM keys k WHERE k.line_id = l.id)`
	}
	query := `SELECT l.id, l.identifier, l.supplier_id, s.identifier, l.name, l.created_at, l.updated_at, ` + countExpr + `
	FROM lines l
	JOIN suppliers s ON s.id = l.supplier_id` + prefixWhere + `
	ORDER BY (l.identifier || s.identifier) COLLATE "C", l.created_at, l.id
	LIMIT $3 OFFSET $4`

	args := append(prefixArgs(prefix), limit, offset)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.Classify("search lines", err)
	}
	defer rows.Close()

	result := []models.Line{}
	for rows.Next() {
		var (
			l     models.Line
			count sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.Identifier, &l.SupplierID, &l.SupplierIdentifier, &l.Name, &l.CreatedAt, &l.UpdatedAt, &count); err != nil {
			return nil, err
		}
		if count.Valid {
			n := int(count.Int64)
			l.KeyCount = &n
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context, prefix ident.Prefix) (int, error) {
	query := `SELECT count(*)
	FROM lines l
	JOIN suppliers s ON s.id = l.supplier_id` + prefixWhere

	var n int
	if err := r.db.QueryRowContext(ctx, query, prefixArgs(prefix)...).Scan(&n); err != nil {
		return 0, dbx.Classify("count lines", err)
	}
	return n, nil
}
