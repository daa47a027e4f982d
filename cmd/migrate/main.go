package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/pkg/database"
	"github.com/segyhp/emi-engine/pkg/logger"
)

func main() {
	steps := flag.Int("steps", 0, "number of migrations to roll back with down (0 = all)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [-steps n] up|down|version\n")
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.Must(cfg.Logging)
	defer func() { _ = log.Sync() }()

	switch flag.Arg(0) {
	case "up":
		err = database.MigrateUp(cfg.Database)
	case "down":
		err = database.MigrateDown(cfg.Database, *steps)
	case "version":
		version, dirty, verr := database.Version(cfg.Database)
		if verr == nil {
			log.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		}
		err = verr
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal("migration failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
	log.Info("migration finished", zap.String("command", flag.Arg(0)))
}
