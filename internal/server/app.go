// Package server wires the catalog server together: configuration, logging,
// the database and its migrations, the artifact store, the services and the
// HTTP and gRPC endpoints, and it handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server/artifacts"
	"github.com/dmitrijs2005/keycatalog/internal/server/config"
	"github.com/dmitrijs2005/keycatalog/internal/server/httpapi"
	"github.com/dmitrijs2005/keycatalog/internal/server/metrics"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keycatalog/internal/server/services"

	gs "github.com/dmitrijs2005/keycatalog/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *httpapi.Server
	grpc   *gs.GRPCServer
}

// NewArtifactStore builds the configured backend. For the filesystem backend it
// also returns the directory to serve under the public URL.
func NewArtifactStore(ctx context.Context, c *config.Config) (artifacts.Store, string, error) {
	switch c.ArtifactBackend {
	case config.ArtifactBackendFS:
		fs, err := artifacts.NewFSStore(c.ArtifactDir, c.PublicURL)
		if err != nil {
			return nil, "", err
		}
		return fs, fs.Root(), nil
	case config.ArtifactBackendS3:
		s3, err := artifacts.NewS3Store(ctx, artifacts.S3Options{
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, "", err
		}
		return s3, "", nil
	default:
		return nil, "", fmt.Errorf("unknown artifact backend %q", c.ArtifactBackend)
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Backend:     c.LogBackend,
		Level:       c.LogLevel,
		Environment: c.Environment,
		Service:     "keycatalog",
	}, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, staticDir, err := NewArtifactStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("artifact store init error: %w", err)
	}

	m := metrics.New()
	retention := services.NewRetentionCoordinator(store, logger, m)

	deps := httpapi.Deps{
		Users:   services.NewUserService(db, rm, c),
		Catalog: services.NewCatalogService(db, rm, retention, logger),
		Status:  services.NewStatusService(db, rm, store, retention, m, logger),
		Search:  services.NewSearchService(db, rm, c.KeyPageSize, c.LinePageSize),
		Images:  services.NewImageService(db, rm, store),
		Metrics: m,
		DB:      db,
		Logger:  logger,
	}
	if staticDir != "" {
		deps.StaticPrefix, deps.StaticDir = c.PublicURL, staticDir
	}

	return &App{
		config: c,
		logger: logger,
		db:     db,
		http:   httpapi.NewServer(c.EndpointAddrHTTP, deps),
		grpc:   gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a signal arrives, ctx ends or one of the servers fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	runners := []func(context.Context) error{app.http.Run, app.grpc.Run}

	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				app.logger.Error(ctx, err.Error())
				cancelFunc()
			}
		}()
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
