package main

import (
	"database/sql"
	"flag"

	_ "github.com/lib/pq"
	"github.com/pressly/goose"

	"studio/internal/infra"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	command := flag.String("command", "up", "goose command: up, down, status")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal().Err(err).Msg("failed to set dialect")
	}

	switch *command {
	case "up":
		err = goose.Up(db, *dir)
	case "down":
		err = goose.Down(db, *dir)
	case "status":
		err = goose.Status(db, *dir)
	default:
		logger.Fatal().Str("command", *command).Msg("unknown migrate command")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", *command).Msg("migration failed")
	}
	logger.Info().Str("command", *command).Msg("migrations applied")
}
