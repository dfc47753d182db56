package bootstrap

import (
	"context"
	"fmt"

	cacheadapter "github.com/viralforge/sessionauth/internal/adapters/cache"
	"github.com/viralforge/sessionauth/internal/adapters/memory"
	"github.com/viralforge/sessionauth/internal/adapters/postgres"
	"github.com/viralforge/sessionauth/internal/ports"
)

// storage groups the driver-specific adapters behind the ports the runtime needs.
type storage struct {
	users  ports.UserStore
	outbox ports.OutboxRepository
	ready  func(ctx context.Context) error
	close  func()
}

func openStorage(ctx context.Context, cfg StorageConfig) (storage, error) {
	switch cfg.Driver {
	case StorageDriverPostgres:
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return storage{}, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return storage{}, fmt.Errorf("gorm sql db: %w", err)
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			_ = sqlDB.Close()
			return storage{}, fmt.Errorf("run migrations: %w", err)
		}
		return storage{
			users:  postgres.NewUserStore(db),
			outbox: postgres.NewOutboxRepository(db),
			ready:  sqlDB.PingContext,
			close:  func() { _ = sqlDB.Close() },
		}, nil

	case StorageDriverRedis:
		client, err := cacheadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return storage{}, fmt.Errorf("connect redis: %w", err)
		}
		return storage{
			users:  cacheadapter.NewRedisUserStore(client),
			outbox: cacheadapter.NewRedisOutboxRepository(client),
			ready:  func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close:  func() { _ = client.Close() },
		}, nil

	case StorageDriverMemory:
		store := memory.NewStore()
		return storage{
			users:  store,
			outbox: store,
			ready:  func(context.Context) error { return nil },
			close:  func() {},
		}, nil

	default:
		return storage{}, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
