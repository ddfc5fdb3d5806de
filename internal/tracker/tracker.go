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

// Package tracker remembers which emails have already been turned into
// ledger entries. It keeps two pieces of durable state: a calendar-date
// watermark used as a cheap server-side fetch filter, and the set of
// processed email identifiers, which is the actual de-dup authority —
// email timestamps are not strictly increasing in delivery order and the
// watermark is deliberately day-coarse.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bcem/invoicebot/internal/models"
)

// ErrSave wraps any failure to persist tracker state. Callers must treat it
// as fatal: continuing after a failed commit means a future run could
// resubmit an invoice the ledger already has.
var ErrSave = errors.New("tracker state save failed")

// Store persists the watermark and the processed-id set. A zero watermark
// means "no prior state". Implementations: FileStore (default),
// PostgresStore, RedisStore.
type Store interface {
	Load(ctx context.Context) (watermark time.Time, ids []string, err error)
	Save(ctx context.Context, watermark time.Time, ids []string) error
}

// Tracker is the in-memory view of the progress state. It is not safe for
// concurrent use; the pipeline is strictly sequential by design.
type Tracker struct {
	store     Store
	watermark time.Time
	processed map[string]struct{}
}

// New builds a Tracker from whatever state the store holds. A load failure
// is non-fatal — the tracker starts from empty state and the processed-id
// filter simply has nothing to skip. Unreachable backends are expected to
// be caught by the startup pings before this point.
func New(ctx context.Context, store Store) *Tracker {
	t := &Tracker{
		store:     store,
		processed: make(map[string]struct{}),
	}

	watermark, ids, err := store.Load(ctx)
	if err != nil {
		slog.Warn("tracker state unavailable, starting from empty state", "error", err)
		return t
	}

	t.watermark = midnightUTC(watermark)
	for _, id := range ids {
		t.processed[id] = struct{}{}
	}

	slog.Info("tracker loaded",
		"processed", len(t.processed),
		"watermark", watermarkString(t.watermark),
	)
	return t
}

// IsNew reports whether the email has not been processed yet. Pure
// predicate, no side effects.
func (t *Tracker) IsNew(email *models.EmailMessage) bool {
	_, seen := t.processed[email.ID]
	return !seen
}

// Watermark returns the last-processed calendar date and whether one
// exists. It is a lower bound for candidate fetching, nothing more.
func (t *Tracker) Watermark() (time.Time, bool) {
	return t.watermark, !t.watermark.IsZero()
}

// Processed returns the number of committed emails, for logging.
func (t *Tracker) Processed() int {
	return len(t.processed)
}

// Commit durably records the email as fully processed. It must be called
// exactly once per email, and only after the ledger entry and the archive
// copy exist — "committed" has to imply "fully processed" for crash
// recovery to be safe. The watermark is raised by calendar date, never
// lowered. The state is persisted before Commit returns; a persistence
// failure is returned wrapped in ErrSave and leaves the in-memory set
// updated (the email *was* processed) so the current process will not
// resubmit it either way.
func (t *Tracker) Commit(ctx context.Context, email *models.EmailMessage) error {
	t.processed[email.ID] = struct{}{}

	if date := midnightUTC(email.Date); date.After(t.watermark) {
		t.watermark = date
	}

	if err := t.store.Save(ctx, t.watermark, t.ids()); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrSave, email.ID, err)
	}

	slog.Debug("tracker committed email",
		"email_id", email.ID,
		"watermark", watermarkString(t.watermark),
	)
	return nil
}

// ids returns the processed set as a sorted slice for stable on-disk output.
func (t *Tracker) ids() []string {
	out := make([]string, 0, len(t.processed))
	for id := range t.processed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// midnightUTC truncates a timestamp to its UTC calendar date.
func midnightUTC(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Time{}
	}
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func watermarkString(wm time.Time) string {
	if wm.IsZero() {
		return "none"
	}
	return wm.Format(dateLayout)
}

// dateLayout is the ISO-8601 calendar date used everywhere a watermark is
// serialised.
const dateLayout = "2006-01-02"
