package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/keycatalog/internal/admin"
	"github.com/dmitrijs2005/keycatalog/internal/flagx"
	"github.com/dmitrijs2005/keycatalog/internal/logging"
	"github.com/dmitrijs2005/keycatalog/internal/server"
	"github.com/dmitrijs2005/keycatalog/internal/server/config"
	"github.com/dmitrijs2005/keycatalog/internal/server/metrics"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keycatalog/internal/server/services"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	logger, err := logging.New(logging.Options{
		Backend:     cfg.LogBackend,
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		Service:     "keyadmin",
	}, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()

	store, _, err := server.NewArtifactStore(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	m := metrics.New()
	retention := services.NewRetentionCoordinator(store, logger, m)

	app := admin.NewApp(db, rm,
		services.NewUserService(db, rm, cfg),
		services.NewStatusService(db, rm, store, retention, m, logger),
		logger, os.Stdout)

	args := flagx.Positional(os.Args[1:], config.ValueFlags)
	if err := app.Run(ctx, args); err != nil {
		if errors.Is(err, admin.ErrUsage) {
			fmt.Fprintln(os.Stderr, admin.Usage)
		}
		log.Printf("%v", err)
		os.Exit(1)
	}

}
