package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AdolfoEscobar473/hospital/internal/accounts"
	"github.com/AdolfoEscobar473/hospital/internal/auth"
	"github.com/AdolfoEscobar473/hospital/internal/config"
	"github.com/AdolfoEscobar473/hospital/internal/migrate"
	"github.com/AdolfoEscobar473/hospital/internal/sessions"
	"github.com/AdolfoEscobar473/hospital/pkg/logger"
	"github.com/AdolfoEscobar473/hospital/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

const usage = "usage: migrate [up|down|seed|status|purge-sessions]"

func main() {
	timeout := flag.Duration("timeout", 60*time.Second, "overall deadline for the command")
	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(os.Getenv("APP_ENV"))
	slog.SetDefault(log)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadMigrate()
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.DB.DSN(), utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrate.Migrations(), migrate.Seeds(), migrate.WithLogger(log))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		_, err = mgr.Up(ctx)
	case "down":
		_, err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	case "seed":
		if _, err = mgr.Seed(ctx); err == nil {
			err = bootstrapAdmin(ctx, log, cfg, accounts.NewPGStore(db), sessions.NewPGLedger(db))
		}
	case "purge-sessions":
		var n int64
		n, err = sessions.NewPGLedger(db).PurgeExpired(ctx, time.Now().UTC())
		if err == nil {
			log.Info("expired sessions purged", "count", n)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("migrate failed", "command", cmd, "err", err)
		os.Exit(1)
	}
}

// bootstrapAdmin creates the initial administrator when it does not exist yet.
// Without ADMIN_PASSWORD a temporary password is generated and printed once.
func bootstrapAdmin(ctx context.Context, log *slog.Logger, cfg config.MigrateConfig, store accounts.Store, ledger sessions.Ledger) error {
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	svc := accounts.NewService(store, ledger, nil, hasher, accounts.WithLogger(log))
	b := cfg.Bootstrap
	created, temp, err := svc.Bootstrap(ctx, b.AdminUsername, b.AdminPassword, b.AdminEmail, b.AdminName)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if !created {
		log.Info("admin account already present", "username", b.AdminUsername)
		return nil
	}
	log.Info("admin account created", "username", b.AdminUsername)
	if temp != "" {
		fmt.Printf("temporary password for %s: %s\n", b.AdminUsername, temp)
	}
	return nil
}
