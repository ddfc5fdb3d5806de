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
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisWatermarkKey holds the ISO watermark date.
	redisWatermarkKey = "invoicebot:watermark"
	// redisProcessedKey is the SET of processed email ids. No TTL — unlike
	// an event dedup window, this set is authoritative and must never
	// expire while the mailbox can still return those messages.
	redisProcessedKey = "invoicebot:processed"
)

// RedisStore keeps tracker state in Redis, for deployments that already run
// one and don't want pipeline state on local disk.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Load reads the watermark key and the processed SET.
func (s *RedisStore) Load(ctx context.Context) (time.Time, []string, error) {
	var watermark time.Time

	val, err := s.rdb.Get(ctx, redisWatermarkKey).Result()
	switch {
	case err == nil:
		watermark, err = time.Parse(dateLayout, val)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("parse watermark %q: %w", val, err)
		}
	case errors.Is(err, redis.Nil):
		// No prior state.
	default:
		return time.Time{}, nil, fmt.Errorf("redis GET %s: %w", redisWatermarkKey, err)
	}

	ids, err := s.rdb.SMembers(ctx, redisProcessedKey).Result()
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("redis SMEMBERS %s: %w", redisProcessedKey, err)
	}

	return watermark, ids, nil
}

// Save adds the ids to the SET and updates the watermark in one pipeline.
// SADD makes the set-union semantics free — the processed set only grows.
func (s *RedisStore) Save(ctx context.Context, watermark time.Time, ids []string) error {
	pipe := s.rdb.TxPipeline()

	if len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, redisProcessedKey, members...)
	}

	if !watermark.IsZero() {
		pipe.Set(ctx, redisWatermarkKey, watermark.Format(dateLayout), 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}
