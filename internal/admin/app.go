// Package admin implements the keyadmin maintenance tool: applying database
// migrations, provisioning users without going through the API and bulk
// resetting slot statuses.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// Usage is printed for unknown commands and missing arguments.
const Usage = `usage: keyadmin <command> [args]

commands:
  migrate                          apply database migrations
  create-user <nickname> [role...] create a user (roles: READ WRITE EDIT GRANT ADMIN)
  reset [status]                   reset every slot of every key (status 0-5, empty slots when omitted)`

var ErrUsage = errors.New("invalid usage")

type Migrator interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
}

type UserCreator interface {
	CreateUser(ctx context.Context, nickname, password string, role auth.Permissions) (*models.User, error)
}

type Resetter interface {
	BulkReset(ctx context.Context, scope models.SlotScope, status *models.Status) (int64, error)
}

type App struct {
	db       *sql.DB
	migrator Migrator
	users    UserCreator
	resetter Resetter
	logger   logging.Logger
	out      io.Writer
}

func NewApp(db *sql.DB, migrator Migrator, users UserCreator, resetter Resetter, logger logging.Logger, out io.Writer) *App {
	return &App{db: db, migrator: migrator, users: users, resetter: resetter, logger: logger, out: out}
}

// principal is the identity maintenance commands act as.
func principal() auth.Principal {
	return auth.Principal{Nickname: "keyadmin", Role: auth.NewPermissions(auth.Admin)}
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		return a.migrate(ctx)
	case "create-user":
		return a.createUser(ctx, args[1:])
	case "reset":
		return a.reset(ctx, args[1:])
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (a *App) migrate(ctx context.Context) error {
	if err := a.migrator.RunMigrations(ctx, a.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	a.logger.Info(ctx, "migrations applied")
	fmt.Fprintln(a.out, "Success!")
	return nil
}

func (a *App) createUser(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: nickname required", ErrUsage)
	}

	role := auth.DefaultRole
	if len(args) > 1 {
		var err error
		if role, err = auth.ParsePermissions(args[1:]); err != nil {
			return err
		}
	}

	password, err := GetPassword(a.out, "Enter password")
	if err != nil {
		return err
	}
	defer wipe(password)

	u, err := a.users.CreateUser(ctx, args[0], string(password), role)
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "user created", "user_id", u.ID, "nickname", u.Nickname)
	fmt.Fprintf(a.out, "Created %s (%s) with roles %s\n", u.Nickname, u.ID, strings.Join(auth.Permissions(u.Role).Names(), ","))
	return nil
}

func (a *App) reset(ctx context.Context, args []string) error {
	var status *models.Status
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: status %q", ErrUsage, args[0])
		}
		s := models.Status(n)
		status = &s
	default:
		return fmt.Errorf("%w: too many arguments", ErrUsage)
	}

	n, err := a.resetter.BulkReset(auth.WithPrincipal(ctx, principal()), models.SlotScope{}, status)
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "slots reset", "keys", n)
	fmt.Fprintf(a.out, "Reset %d keys\n", n)
	return nil
}
