// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/invoicebot/internal/config"
)

// Open builds the configured state store and returns a cleanup function for
// whatever connections it holds. Every command that touches tracker state
// must open it through here — the processed set lives wherever the backend
// puts it, and a command reading a different location would see an empty set
// and resubmit invoices the ledger already has.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, func(), error) {
	switch cfg.Backend {
	case config.StoreFile:
		return NewFileStore(cfg.WatermarkFile, cfg.ProcessedFile), func() {}, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create Postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
		store, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("connected to PostgreSQL")
		return store, pool.Close, nil

	case config.StoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to Redis: %w", err)
		}
		slog.Info("connected to Redis")
		return NewRedisStore(rdb), func() { _ = rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown tracker backend %q", cfg.Backend)
	}
}
