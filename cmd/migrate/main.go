package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
	"github.com/c-f-an/tov-nextjs-sub002/internal/ids"
	"github.com/c-f-an/tov-nextjs-sub002/internal/migrate"
	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
	"github.com/c-f-an/tov-nextjs-sub002/internal/store/pg"
)

const usage = "usage: migrate [up|down|seed|status|pending|create-admin]"

func main() {
	_ = godotenv.Load()
	var (
		dsn            = flag.String("dsn", os.Getenv("TOV_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "", "Directory with SQL migrations (default: embedded)")
		seedsPath      = flag.String("seeds", "", "Directory with SQL seeds")
		email          = flag.String("email", "", "create-admin: account email")
		name           = flag.String("name", "Administrator", "create-admin: display name")
		logLevel       = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger := obs.NewLogger(*logLevel, os.Stderr)
	defer func() { _ = logger.Sync() }()

	if *dsn == "" {
		logger.Fatal("missing DSN: provide via -dsn or TOV_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		logger.Fatal(usage)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	var migrations fs.FS
	if *migrationsPath != "" {
		migrations = os.DirFS(*migrationsPath)
	}
	opts := []migrate.Option{migrate.WithLogger(logger)}
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(db, migrations, opts...)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil {
			logger.Info("migrations applied", zap.Strings("files", applied))
		}
	case "down":
		var reverted string
		reverted, err = mgr.Down(ctx)
		if err == nil {
			logger.Info("migration reverted", zap.String("file", reverted))
		}
	case "seed":
		err = mgr.Seed(ctx)
	case "status", "pending":
		var items []string
		if cmd == "status" {
			items, err = mgr.Status(ctx)
		} else {
			items, err = mgr.Pending(ctx)
		}
		if err == nil {
			for _, item := range items {
				fmt.Println(item)
			}
		}
	case "create-admin":
		var id string
		id, err = createAdmin(ctx, pg.New(db), *email, *name, os.Getenv("TOV_ADMIN_PASSWORD"))
		if err == nil {
			logger.Info("admin created", zap.String("id", id), zap.String("email", *email))
		}
	default:
		logger.Fatal(usage, zap.String("command", cmd))
	}
	if err != nil {
		logger.Fatal("migrate "+cmd, zap.Error(err))
	}
}

// createAdmin inserts an ADMIN account. The password comes from the
// environment so it never appears in the process list.
func createAdmin(ctx context.Context, store *pg.Store, email, name, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("-email is required")
	}
	if len(password) < 8 {
		return "", errors.New("TOV_ADMIN_PASSWORD must be at least 8 characters")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	u := &auth.User{
		Identity: auth.Identity{
			ID:            ids.New(),
			Email:         email,
			Name:          strings.TrimSpace(name),
			Role:          auth.RoleAdmin,
			EmailVerified: true,
		},
		PasswordHash: hash,
	}
	if err := store.Users().Create(ctx, u); err != nil {
		return "", err
	}
	return u.ID, nil
}
