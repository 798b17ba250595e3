package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/audit"
	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
	"github.com/c-f-an/tov-nextjs-sub002/internal/config"
	"github.com/c-f-an/tov-nextjs-sub002/internal/store/pg"
)

// deps are the storage backends selected by configuration.
type deps struct {
	db       *sql.DB
	users    auth.UserStore
	sessions auth.SessionStore
	audit    audit.Store
	closers  []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func wire(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{}

	var store *pg.Store
	if cfg.PGDSN != "" {
		var err error
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		d.db = store.DB()
		d.users = store.Users()
		d.audit = store.Audit()
		d.closers = append(d.closers, func() { _ = store.Close() })
	} else {
		if cfg.SessionStore != config.SessionStoreMemory {
			return nil, errors.New("TOV_PG_DSN is required unless TOV_SESSION_STORE=memory")
		}
		logger.Warn("running without PostgreSQL; users and audit entries are kept in memory")
		d.users = auth.NewMemoryUserStore()
		d.audit = audit.NewMemoryStore()
	}

	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		rs, err := auth.NewRedisSessionStore(ctx, auth.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			d.close()
			return nil, err
		}
		d.sessions = rs
		d.closers = append(d.closers, func() { _ = rs.Close() })
	case config.SessionStoreMemory:
		ms := auth.NewMemorySessionStore(10*time.Minute, nil)
		d.sessions = ms
		d.closers = append(d.closers, ms.Close)
	default:
		ss := store.Sessions()
		d.sessions = ss
		sweepCtx, cancel := context.WithCancel(ctx)
		go sweepSessions(sweepCtx, ss, logger)
		d.closers = append(d.closers, cancel)
	}
	return d, nil
}

// sweepSessions deletes refresh sessions that expired more than a day ago.
func sweepSessions(ctx context.Context, ss *pg.SessionStore, logger *zap.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ss.DeleteExpired(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				logger.Error("sweep refresh sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("swept refresh sessions", zap.Int64("deleted", n))
			}
		}
	}
}
