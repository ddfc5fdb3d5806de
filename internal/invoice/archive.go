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

package invoice

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive keeps a durable copy of every processed invoice PDF, one file per
// invoice, named by invoice number. The pipeline writes here only after the
// ledger has accepted the entry.
type Archive struct {
	dir string
}

// NewArchive creates the archive directory if needed.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
	}
	return &Archive{dir: dir}, nil
}

// Save writes the invoice's original PDF bytes and returns the file path.
// Re-archiving the same invoice number overwrites the previous copy with
// identical bytes, so retries are harmless.
func (a *Archive) Save(inv *Invoice) (string, error) {
	path := filepath.Join(a.dir, fmt.Sprintf("invoice-%s.pdf", inv.InvoiceNumber))
	if err := os.WriteFile(path, inv.RawPDF, 0o644); err != nil {
		return "", fmt.Errorf("archive invoice %s: %w", inv.InvoiceNumber, err)
	}
	return path, nil
}
