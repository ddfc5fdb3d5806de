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
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps tracker state in Postgres: a single-row watermark
// table plus one row per processed email. It ensures its own schema on
// creation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure tracker schema: %w", err)
	}
	slog.Info("postgres tracker store initialised")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS processed_emails (
			message_id   TEXT PRIMARY KEY,
			processed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS tracker_watermark (
			singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			watermark  DATE NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Load reads the watermark row and every processed id.
func (s *PostgresStore) Load(ctx context.Context) (time.Time, []string, error) {
	var watermark time.Time

	err := s.pool.QueryRow(ctx, `SELECT watermark FROM tracker_watermark`).Scan(&watermark)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil, fmt.Errorf("select watermark: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT message_id FROM processed_emails`)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("select processed ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return time.Time{}, nil, fmt.Errorf("scan processed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, nil, fmt.Errorf("iterate processed ids: %w", err)
	}

	return watermark, ids, nil
}

// Save upserts the watermark and inserts any ids not yet recorded, in one
// transaction. Existing rows are left alone — the processed set only grows.
func (s *PostgresStore) Save(ctx context.Context, watermark time.Time, ids []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tracker save: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `
			INSERT INTO processed_emails (message_id)
			VALUES ($1)
			ON CONFLICT (message_id) DO NOTHING
		`, id); err != nil {
			return fmt.Errorf("insert processed id %s: %w", id, err)
		}
	}

	if !watermark.IsZero() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tracker_watermark (singleton, watermark)
			VALUES (TRUE, $1)
			ON CONFLICT (singleton) DO UPDATE SET
				watermark  = EXCLUDED.watermark,
				updated_at = NOW()
		`, watermark); err != nil {
			return fmt.Errorf("upsert watermark: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tracker save: %w", err)
	}
	return nil
}
