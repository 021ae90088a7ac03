package suppliers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// PostgresRepository stores suppliers over a dbx.DBTX (*sql.DB or *sql.Tx).
// Identifiers are expected in their normalized, padded form.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Supplier) (*models.Supplier, error) {
	query := `INSERT INTO suppliers (identifier)
		VALUES ($1)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, s.Identifier).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify("create supplier", err)
	}
	return s, nil
}

func (r *PostgresRepository) Update(ctx context.Context, s *models.Supplier) (*models.Supplier, error) {
	query := `UPDATE suppliers SET identifier = $2, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, s.ID, s.Identifier).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify("update supplier", err)
	}
	return s, nil
}

// Delete removes a supplier. Lines still referencing it make the foreign key
// fail, which surfaces as a conflict.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return fmt.Errorf("delete supplier: %w: supplier has lines", common.ErrorConflict)
		}
		return dbx.Classify("delete supplier", err)
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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Supplier, error) {
	query := `SELECT id, identifier, created_at, updated_at FROM suppliers
		WHERE id = $1`
	return r.get(ctx, "get supplier", query, id)
}

func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Supplier, error) {
	query := `SELECT id, identifier, created_at, updated_at FROM suppliers
		WHERE identifier = $1`
	return r.get(ctx, "get supplier by identifier", query, identifier)
}

func (r *PostgresRepository) get(ctx context.Context, op, query string, arg string) (*models.Supplier, error) {
	s := &models.Supplier{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&s.ID, &s.Identifier, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify(op, err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Supplier, error) {
	query := `SELECT id, identifier, created_at, updated_at FROM suppliers
		ORDER BY identifier`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, dbx.Classify("list suppliers", err)
	}
	defer rows.Close()

	result := []models.Supplier{}
	for rows.Next() {
		var s models.Supplier
		if err := rows.Scan(&s.ID, &s.Identifier, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
