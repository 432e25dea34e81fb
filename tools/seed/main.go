// Command seed loads demo users, conversations, quizzes and flags into Postgres
// so the dashboard has something to moderate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/db"
	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/observability"
	"github.com/patrickwarner/flagdesk/internal/token"
)

var (
	students = flag.Int("students", 8, "number of students")
	faculty  = flag.Int("faculty", 3, "number of faculty members")
	flagsPer = flag.Int("flags", 2, "flags raised per student")
	seed     = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	force    = flag.Bool("force", false, "seed even if flags already exist")
	tokens   = flag.Bool("tokens", true, "print session tokens for the admin and faculty when TOKEN_SECRET is set")
)

func main() {
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.InitCLILogger("seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	existing, err := pg.FlagIDsByStatus(ctx, models.StatusPending, models.StatusAssigned, models.StatusResolved)
	if err != nil {
		logger.Fatal("check existing flags", zap.Error(err))
	}
	if len(existing) > 0 && !*force {
		fmt.Printf("%d flags already present, skipping (use -force to add more)\n", len(existing))
		return
	}

	g := newGenerator(*seed, time.Now().UTC())
	res, err := g.Populate(ctx, pg, Options{Students: *students, Faculty: *faculty, FlagsPerStudent: *flagsPer})
	if err != nil {
		logger.Fatal("seed data", zap.Error(err))
	}
	fmt.Printf("Seeded %d users, %d conversations, %d quizzes and %d flags (seed %d)\n",
		len(res.Users), res.Conversations, res.Quizzes, len(res.Flags), *seed)

	if *tokens && cfg.TokenSecret != "" {
		for _, u := range res.Users {
			if u.Role == models.RoleStudent {
				continue
			}
			tok, err := token.Generate(u, []byte(cfg.TokenSecret), cfg.TokenTTL)
			if err != nil {
				logger.Fatal("generate token", zap.Error(err))
			}
			fmt.Printf("%-8s %-18s %s\n", u.Role, u.Name, tok)
		}
	}
}
