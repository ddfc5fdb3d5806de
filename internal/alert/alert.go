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

// Package alert publishes pipeline failure events to a Redis list for an
// external alerting consumer. Alerting is best-effort: a failure to publish
// is logged and swallowed, never allowed to fail the pipeline itself.
package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notifier sends failure events to a Redis queue. A nil Notifier is valid
// and silently discards events, so callers never have to branch on whether
// alerting is configured.
type Notifier struct {
	rdb       *redis.Client
	queueName string
}

// NewNotifier creates a notifier targeting the given queue.
func NewNotifier(rdb *redis.Client, queueName string) *Notifier {
	return &Notifier{
		rdb:       rdb,
		queueName: queueName,
	}
}

// event is the JSON shape consumers read off the queue.
type event struct {
	ID         string `json:"id"`
	Stage      string `json:"stage"`
	EmailID    string `json:"email_id,omitempty"`
	Error      string `json:"error"`
	OccurredAt string `json:"occurred_at"`
}

// NotifyFailure publishes one failure event. stage names the pipeline step
// that failed (fetch, extract, submit, archive, commit) and emailID may be
// empty for cycle-level failures.
func (n *Notifier) NotifyFailure(ctx context.Context, stage, emailID string, cause error) {
	if n == nil {
		return
	}

	ev := event{
		ID:         uuid.New().String(),
		Stage:      stage,
		EmailID:    emailID,
		Error:      cause.Error(),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal alert event", "error", err)
		return
	}

	if err := n.rdb.LPush(ctx, n.queueName, payload).Err(); err != nil {
		slog.Error("failed to publish alert",
			"stage", stage,
			"email_id", emailID,
			"error", err,
		)
		return
	}

	slog.Debug("published alert", "event_id", ev.ID, "stage", stage, "queue", n.queueName)
}

// Ping checks the Redis connection.
func (n *Notifier) Ping(ctx context.Context) error {
	if n == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return n.rdb.Ping(ctx).Err()
}
