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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorePaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, ".tracker"), filepath.Join(dir, ".processed_emails")
}

func TestFileStoreLoadMissingFiles(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	store := NewFileStore(wmPath, idsPath)

	wm, ids, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, wm.IsZero())
	assert.Empty(t, ids)
}

func TestFileStoreLoadCorruptFiles(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	require.NoError(t, os.WriteFile(wmPath, []byte("not a date"), 0o644))
	require.NoError(t, os.WriteFile(idsPath, []byte("{broken json"), 0o644))

	store := NewFileStore(wmPath, idsPath)
	wm, ids, err := store.Load(context.Background())
	require.NoError(t, err, "corrupt state must degrade to empty, not fail")
	assert.True(t, wm.IsZero())
	assert.Empty(t, ids)
}

func TestFileStoreRoundTrip(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	store := NewFileStore(wmPath, idsPath)
	ctx := context.Background()

	watermark := time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, watermark, []string{"A", "B"}))

	gotWM, gotIDs, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, watermark, gotWM)
	assert.ElementsMatch(t, []string{"A", "B"}, gotIDs)

	// The watermark file is a bare ISO calendar date.
	raw, err := os.ReadFile(wmPath)
	require.NoError(t, err)
	assert.Equal(t, "2022-03-02", string(raw))
}

func TestFileStoreSaveDeduplicates(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	store := NewFileStore(wmPath, idsPath)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, time.Time{}, []string{"A", "B", "A", "A"}))

	raw, err := os.ReadFile(idsPath)
	require.NoError(t, err)

	var onDisk []string
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, []string{"A", "B"}, onDisk)
}

func TestFileStoreLoadDeduplicates(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	require.NoError(t, os.WriteFile(idsPath, []byte(`["A","A","B"]`), 0o644))

	store := NewFileStore(wmPath, idsPath)
	_, ids, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)
}

func TestFileStoreSaveReplacesAtomically(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	store := NewFileStore(wmPath, idsPath)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), []string{"A"}))
	require.NoError(t, store.Save(ctx, time.Date(2022, 3, 2, 0, 0, 0, 0, time.UTC), []string{"A", "B"}))

	_, ids, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids)

	// The rename-over-destination write must not leave temp files behind.
	entries, err := os.ReadDir(filepath.Dir(idsPath))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{".tracker", ".processed_emails"}, names)
}

func TestFileStoreZeroWatermarkWritesNoFile(t *testing.T) {
	wmPath, idsPath := newStorePaths(t)
	store := NewFileStore(wmPath, idsPath)

	require.NoError(t, store.Save(context.Background(), time.Time{}, []string{"A"}))

	_, err := os.Stat(wmPath)
	assert.True(t, os.IsNotExist(err), "no watermark yet means no watermark file")
}
