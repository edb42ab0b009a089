package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"geoattend/internal/config"
	"geoattend/internal/identity"
	"geoattend/internal/logger"
	"geoattend/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, "console")
	ctx := context.Background()

	stores, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, false)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}

	cli := commandLine{
		identities: identity.NewService(stores.Identity),
		ids:        stores.Identity,
		courses:    stores.Courses,
		out:        os.Stdout,
	}
	if stores.DB != nil {
		cli.migrate = stores.DB.Migrate
	}

	err = cli.run(ctx, os.Args)
	_ = stores.Close()
	if err != nil {
		if err != errHelp {
			log.Error().Err(err).Msg("admin command failed")
		}
		os.Exit(1)
	}
}
