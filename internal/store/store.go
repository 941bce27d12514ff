// Package store implements the todo item store on Redis and SQLite.
package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"todoapi/internal/config"
	"todoapi/internal/todo"
)

// Backend is an item store that owns a connection.
type Backend interface {
	todo.ItemStore
	Close() error
}

var (
	_ Backend = (*RedisStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
)

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Store) (Backend, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: -1,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("could not connect to redis (%s): %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client), nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
