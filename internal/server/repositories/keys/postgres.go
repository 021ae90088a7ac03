package keys

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// PostgresRepository stores keys over a dbx.DBTX. The slots of a key live in
// key_images and are folded back into Key.Images with json_agg on read.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	fromKeys = `
	FROM keys k
	JOIN lines l ON l.id = k.line_id
	JOIN suppliers s ON s.id = l.supplier_id`

	selectKey = `SELECT k.id, k.line_id, l.identifier, s.identifier, k.code, k.description, k.created_at, k.updated_at,
	COALESCE((SELECT json_agg(json_build_object('idN', ki.id_n, 'status', ki.status, 'publicId', ki.public_id, 'url', ki.url) ORDER BY ki.id_n)
		FROM key_images ki WHERE ki.key_id = k.id), '[]'::json)` + fromKeys

	compositeCode = `(l.identifier || s.identifier || k.code) COLLATE "C"`
	orderByCode   = ` ORDER BY ` + compositeCode + `, k.created_at, k.id`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*models.Key, error) {
	var (
		k      models.Key
		images []byte
	)
	if err := row.Scan(&k.ID, &k.LineID, &k.LineIdentifier, &k.SupplierIdentifier, &k.Code, &k.Desc, &k.CreatedAt, &k.UpdatedAt, &images); err != nil {
		return nil, err
	}
	k.Images = []models.ImageSlot{}
	if err := json.Unmarshal(images, &k.Images); err != nil {
		return nil, fmt.Errorf("decode slots of key %s: %w", k.ID, err)
	}
	return &k, nil
}

// Create inserts a key without slots. A missing line surfaces as
// common.ErrorNotFound through the foreign key.
func (r *PostgresRepository) Create(ctx context.Context, k *models.Key) (*models.Key, error) {
	query := `INSERT INTO keys (line_id, code, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, k.LineID, k.Code, k.Desc).Scan(&k.ID, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify("create key", err)
	}
	if k.Images == nil {
		k.Images = []models.ImageSlot{}
	}
	return k, nil
}

func (r *PostgresRepository) Update(ctx context.Context, k *models.Key) (*models.Key, error) {
	query := `UPDATE keys SET line_id = $2, code = $3, description = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, k.ID, k.LineID, k.Code, k.Desc).Scan(&k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, dbx.Classify("update key", err)
	}
	return k, nil
}

// Delete removes a key; its slots go with it (ON DELETE CASCADE).
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM keys WHERE id = $1`, id)
	if err != nil {
		return dbx.Classify("delete key", err)
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

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Key, error) {
	k, err := scanKey(r.db.QueryRowContext(ctx, selectKey+` WHERE k.id = $1`, id))
	if err != nil {
		return nil, dbx.Classify("get key", err)
	}
	return k, nil
}

func (r *PostgresRepository) CountByLine(ctx context.Context, lineID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM keys WHERE line_id = $1`, lineID).Scan(&n); err != nil {
		return 0, dbx.Classify("count keys", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteByLine(ctx context.Context, lineID string) (int64, error) {
	return r.deleteMany(ctx, `DELETE FROM keys WHERE line_id = $1`, lineID)
}

func (r *PostgresRepository) DeleteBySupplier(ctx context.Context, supplierID string) (int64, error) {
	return r.deleteMany(ctx, `DELETE FROM keys k USING lines l WHERE k.line_id = l.id AND l.supplier_id = $1`, supplierID)
}

func (r *PostgresRepository) deleteMany(ctx context.Context, query, arg string) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, dbx.Classify("delete keys", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Search returns one page of keys matching filter, sorted by composite code
// with ties broken by insertion time and id.
func (r *PostgresRepository) Search(ctx context.Context, filter models.KeyFilter, limit, offset int) ([]models.Key, error) {
	w := filterWhere(filter)
	query := selectKey + w.sql() + orderByCode + ` LIMIT ` + w.next()
	w.args = append(w.args, limit)
	query += ` OFFSET ` + w.next()
	w.args = append(w.args, offset)

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, dbx.Classify("search keys", err)
	}
	defer rows.Close()

	result := []models.Key{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context, filter models.KeyFilter) (int, error) {
	w := filterWhere(filter)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*)`+fromKeys+w.sql(), w.args...).Scan(&n); err != nil {
		return 0, dbx.Classify("count keys", err)
	}
	return n, nil
}

// Stats aggregates over the keys matching filter: a histogram of every slot
// status, the number of keys, and the number of keys with at least one saved
// slot.
func (r *PostgresRepository) Stats(ctx context.Context, filter models.KeyFilter) (models.StatusStats, error) {
	var stats models.StatusStats
	w := filterWhere(filter)

	histogram := `SELECT ki.status, count(*)
	FROM key_images ki
	JOIN keys k ON k.id = ki.key_id
	JOIN lines l ON l.id = k.line_id
	JOIN suppliers s ON s.id = l.supplier_id` + w.sql() + `
	GROUP BY ki.status`

	rows, err := r.db.QueryContext(ctx, histogram, w.args...)
	if err != nil {
		return stats, dbx.Classify("status histogram", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		if models.Status(status).Valid() {
			stats.Histogram[status] = n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	totals := `SELECT count(*),
	count(*) FILTER (WHERE EXISTS (SELECT 1 FROM key_images x WHERE x.key_id = k.id AND x.status = ` + fmt.Sprint(int(models.StatusSaved)) + `))` +
		fromKeys + w.sql()
	if err := r.db.QueryRowContext(ctx, totals, w.args...).Scan(&stats.TotalCount, &stats.SuccessCount); err != nil {
		return stats, dbx.Classify("status totals", err)
	}
	if stats.TotalCount > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalCount)
	}
	return stats, nil
}

// Neighbour returns the key whose composite code immediately follows
// (forward) or precedes code. common.ErrorNotFound marks either end of the
// catalog.
func (r *PostgresRepository) Neighbour(ctx context.Context, code string, forward bool) (*models.Key, error) {
	query := selectKey + ` WHERE ` + compositeCode + ` > $1` + orderByCode + ` LIMIT 1`
	if !forward {
		query = selectKey + ` WHERE ` + compositeCode + ` < $1` +
			` ORDER BY ` + compositeCode + ` DESC, k.created_at DESC, k.id DESC LIMIT 1`
	}

	k, err := scanKey(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, dbx.Classify("neighbour key", err)
	}
	return k, nil
}
