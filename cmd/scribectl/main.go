// Command scribectl performs operator actions on user accounts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aimerfeng/scribe/internal/config"
	"github.com/aimerfeng/scribe/internal/database"
	"github.com/aimerfeng/scribe/internal/share"
	"github.com/aimerfeng/scribe/internal/store"
	"github.com/aimerfeng/scribe/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// accounts is the subset of the user store the commands need
type accounts interface {
	SetPro(ctx context.Context, email string, isPro bool) error
	ResetUsage(ctx context.Context, email string) error
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		command string
		email   string
		timeout time.Duration
	)
	flag.StringVar(&command, "command", "", "Command: promote, demote, reset, stats, purge-shares")
	flag.StringVar(&email, "email", "", "Account email (promote, demote, reset)")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	loc, err := cfg.Quota.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid quota timezone")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	c := &cli{
		users:  store.NewUserStore(db.Pool),
		shares: share.NewService(store.NewShareStore(db.Pool), cfg.Share.TTL),
		loc:    loc,
		now:    time.Now,
		out:    os.Stdout,
	}
	if err := c.run(ctx, command, email); err != nil {
		log.Error().Err(err).Str("command", command).Msg("Command failed")
		db.Close()
		os.Exit(1)
	}
}

type cli struct {
	users  accounts
	shares purger
	loc    *time.Location
	now    func() time.Time
	out    io.Writer
}

func (c *cli) run(ctx context.Context, command, email string) error {
	switch command {
	case "promote", "demote", "reset":
		if email == "" {
			return fmt.Errorf("-email is required for %s", command)
		}
	}

	var err error
	switch command {
	case "promote":
		err = c.users.SetPro(ctx, email, true)
	case "demote":
		err = c.users.SetPro(ctx, email, false)
	case "reset":
		err = c.users.ResetUsage(ctx, email)
	case "stats":
		n, serr := c.users.CountActiveSince(ctx, usage.StartOfDay(c.now(), c.loc))
		if serr != nil {
			return serr
		}
		fmt.Fprintf(c.out, "active users today: %d\n", n)
		return nil
	case "purge-shares":
		n, perr := c.shares.PurgeExpired(ctx)
		if perr != nil {
			return perr
		}
		fmt.Fprintf(c.out, "purged %d expired shares\n", n)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no account with email %s", email)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %s\n", command, email)
	return nil
}
