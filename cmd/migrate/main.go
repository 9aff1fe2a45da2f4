// Command migrate applies the embedded schema to DATABASE_URL.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/aimerfeng/scribe/internal/database"
	"github.com/aimerfeng/scribe/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// schema is the part of *migrate.Migrate the commands drive
type schema interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Drop() error
	Version() (uint, bool, error)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		command     string
		steps       int
		version     int
		databaseURL string
	)
	flag.StringVar(&command, "command", "up", "up, down, force, version, drop")
	flag.IntVar(&steps, "steps", 0, "Apply or roll back n migrations (0 = all)")
	flag.IntVar(&version, "version", -1, "Version to record with -command force")
	flag.StringVar(&databaseURL, "database", "", "Postgres URL, defaults to DATABASE_URL")
	flag.Parse()

	_ = godotenv.Load()
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL or -database is required")
	}

	m, err := database.NewMigrator(databaseURL, migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open schema")
	}
	defer m.Close()

	msg, err := run(m, command, steps, version)
	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("Migration failed")
		m.Close()
		os.Exit(1)
	}
	log.Info().Str("command", command).Msg(msg)
}

func run(m schema, command string, steps, version int) (string, error) {
	var err error
	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		if version < 0 {
			return "", errors.New("force needs -version")
		}
		err = m.Force(version)
	case "drop":
		err = m.Drop()
	case "version":
		v, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return "schema is empty", nil
		}
		if verr != nil {
			return "", verr
		}
		return fmt.Sprintf("schema at version %d (dirty=%t)", v, dirty), nil
	default:
		return "", fmt.Errorf("unknown command %q", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return "schema already current", nil
	}
	if err != nil {
		return "", err
	}
	return "done", nil
}
