package users

import (
	"context"

	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (nickname, password_hash, role)
         VALUES ($1, $2, $3)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query, user.Nickname, user.PasswordHash, user.Role).Scan(&user.ID)
	if err != nil {
		return nil, dbx.Classify("create user", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByNickname(ctx context.Context, nickname string) (*models.User, error) {
	query :=
		`SELECT id, nickname, password_hash, role FROM users
		 WHERE nickname = $1`

	return r.getOne(ctx, "get user by nickname", query, nickname)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, nickname, password_hash, role FROM users
		 WHERE id = $1`

	return r.getOne(ctx, "get user", query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, op, query, arg string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Nickname, &user.PasswordHash, &user.Role)
	if err != nil {
		return nil, dbx.Classify(op, err)
	}
	return user, nil
}

// List returns every user ordered by nickname. Password hashes are not
// read.
func (r *PostgresRepository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, nickname, role FROM users ORDER BY nickname`)
	if err != nil {
		return nil, dbx.Classify("list users", err)
	}
	defer rows.Close()

	result := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Nickname, &u.Role); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
