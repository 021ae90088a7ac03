package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keycatalog/internal/dbx"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/keys"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/lines"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/slots"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/suppliers"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so that services can
// run the same repository code inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Suppliers(db dbx.DBTX) suppliers.Repository
	Lines(db dbx.DBTX) lines.Repository
	Keys(db dbx.DBTX) keys.Repository
	Slots(db dbx.DBTX) slots.Repository
	Users(db dbx.DBTX) users.Repository
}
