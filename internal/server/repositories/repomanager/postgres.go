// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/server/migrations"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/keys"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/lines"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/slots"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/suppliers"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Suppliers(db dbx.DBTX) suppliers.Repository {
	return suppliers.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Lines(db dbx.DBTX) lines.Repository {
	return lines.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Keys(db dbx.DBTX) keys.Repository {
	return keys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Slots(db dbx.DBTX) slots.Repository {
	return slots.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
