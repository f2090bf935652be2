package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

// Usage: migrate [up|down|version|force <version>]
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "dev").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env)

	mg, err := db.NewMigrator(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("create migrator")
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.Error().Err(err).Msg("close migrator")
		}
	}()

	cmd := "up"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = mg.Up()
	case "down":
		err = mg.Down()
	case "force":
		if len(os.Args) < 3 {
			logger.Fatal().Msg("force needs a version")
		}
		version, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			logger.Fatal().Err(convErr).Msg("invalid version")
		}
		err = mg.Force(version)
	case "version":
		v, dirty, verr := mg.Version()
		if verr != nil {
			logger.Fatal().Err(verr).Msg("read version")
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return
	default:
		logger.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}

	logger.Info().Str("command", cmd).Msg("migrations complete")
}
