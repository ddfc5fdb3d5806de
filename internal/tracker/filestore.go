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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// FileStore is the default state backend: a single-value watermark file
// holding an ISO calendar date, and a JSON string-array file of processed
// ids, rewritten in full on every save. The flat layout is deliberate —
// trivially inspectable and portable, and the set is small (one mailbox,
// a handful of invoices a month).
type FileStore struct {
	watermarkPath string
	processedPath string
}

// NewFileStore creates a file-backed store. The files don't need to exist;
// a first run starts from empty state.
func NewFileStore(watermarkPath, processedPath string) *FileStore {
	return &FileStore{
		watermarkPath: watermarkPath,
		processedPath: processedPath,
	}
}

// Load reads both records. Missing or unparseable files degrade to empty
// values with a warning rather than an error: losing the watermark only
// costs a wider fetch, and the processed file is recreated on next commit.
func (s *FileStore) Load(_ context.Context) (time.Time, []string, error) {
	var watermark time.Time

	if data, err := os.ReadFile(s.watermarkPath); err == nil {
		parsed, perr := time.Parse(dateLayout, strings.TrimSpace(string(data)))
		if perr != nil {
			slog.Warn("watermark file is unparseable, ignoring it",
				"path", s.watermarkPath,
				"error", perr,
			)
		} else {
			watermark = parsed
		}
	} else if !os.IsNotExist(err) {
		slog.Warn("watermark file is unreadable, ignoring it", "path", s.watermarkPath, "error", err)
	}

	var ids []string
	if data, err := os.ReadFile(s.processedPath); err == nil {
		if perr := json.Unmarshal(data, &ids); perr != nil {
			slog.Warn("processed-ids file is unparseable, ignoring it",
				"path", s.processedPath,
				"error", perr,
			)
			ids = nil
		}
	} else if !os.IsNotExist(err) {
		slog.Warn("processed-ids file is unreadable, ignoring it", "path", s.processedPath, "error", err)
	}

	return watermark, dedupe(ids), nil
}

// Save rewrites both files. The processed list is written first so that a
// crash between the two writes can only lose watermark progress, never a
// processed id. Each file is replaced atomically — truncating in place
// could leave a half-written processed list, which Load would degrade to
// the empty set and reopen the whole window to resubmission.
func (s *FileStore) Save(_ context.Context, watermark time.Time, ids []string) error {
	data, err := json.MarshalIndent(dedupe(ids), "", "    ")
	if err != nil {
		return fmt.Errorf("marshal processed ids: %w", err)
	}
	if err := writeFileAtomic(s.processedPath, data); err != nil {
		return fmt.Errorf("write processed-ids file: %w", err)
	}

	if watermark.IsZero() {
		return nil
	}
	if err := writeFileAtomic(s.watermarkPath, []byte(watermark.Format(dateLayout))); err != nil {
		return fmt.Errorf("write watermark file: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// dedupe returns the ids with duplicates removed, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
