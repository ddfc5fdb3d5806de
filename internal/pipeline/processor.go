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

// Package pipeline drives one poll cycle end to end: fetch candidates since
// the watermark, filter out already-processed emails, extract each invoice,
// submit it to the ledger, archive the PDF, and commit progress. Emails are
// handled strictly one at a time, oldest first — the ledger session cannot
// interleave submissions and the watermark must advance monotonically.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/invoicebot/internal/alert"
	"github.com/bcem/invoicebot/internal/invoice"
	"github.com/bcem/invoicebot/internal/models"
	"github.com/bcem/invoicebot/internal/tracker"
)

// Pipeline stage names, used in logs and alert events.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageSubmit  = "submit"
	StageArchive = "archive"
	StageCommit  = "commit"
)

// MailSource lists candidate emails since a calendar-date lower bound
// (zero = unbounded), ascending by timestamp. Implemented by gmail.Client.
type MailSource interface {
	ListCandidates(ctx context.Context, since time.Time) ([]*models.EmailMessage, error)
}

// Ledger accepts one invoice entry, opaquely: success or failure, no
// partial states. Implemented by ledger.Client.
type Ledger interface {
	Submit(inv *invoice.Invoice) error
}

// Archiver persists a durable copy of a processed invoice PDF.
// Implemented by invoice.Archive.
type Archiver interface {
	Save(inv *invoice.Invoice) (string, error)
}

// Processor runs poll cycles.
type Processor struct {
	mail    MailSource
	tracker *tracker.Tracker
	ledger  Ledger
	archive Archiver
	alerts  *alert.Notifier // nil disables alerting

	formats invoice.Formats
	extract func(raw []byte, f invoice.Formats) (*invoice.Invoice, error)

	// strictExtract aborts the whole cycle on the first extraction
	// failure. The lenient alternative skips the email (it is retried
	// next cycle, since it is never committed) — cheaper to operate, but
	// a persistently malformed invoice then fails quietly every cycle.
	strictExtract bool
}

// ProcessorConfig holds the collaborators for a Processor.
type ProcessorConfig struct {
	Mail          MailSource
	Tracker       *tracker.Tracker
	Ledger        Ledger
	Archive       Archiver
	Alerts        *alert.Notifier
	Formats       invoice.Formats
	StrictExtract bool
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		mail:          cfg.Mail,
		tracker:       cfg.Tracker,
		ledger:        cfg.Ledger,
		archive:       cfg.Archive,
		alerts:        cfg.Alerts,
		formats:       cfg.Formats,
		extract:       invoice.Extract,
		strictExtract: cfg.StrictExtract,
	}
}

// CycleResult summarises one completed (or aborted) poll cycle.
type CycleResult struct {
	CycleID   string
	Fetched   int
	Filtered  int // skipped: already processed
	Skipped   int // skipped: extraction failed (lenient mode only)
	Processed int
	Elapsed   time.Duration
}

// Cycle runs one poll cycle. On error, the returned result still reflects
// whatever progress was committed before the abort — committed emails stay
// committed, and the uncommitted remainder is refetched next cycle.
func (p *Processor) Cycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{CycleID: uuid.New().String()}

	since, _ := p.tracker.Watermark()
	slog.Info("poll cycle starting",
		"cycle_id", result.CycleID,
		"since", formatSince(since),
	)

	candidates, err := p.mail.ListCandidates(ctx, since)
	if err != nil {
		p.alerts.NotifyFailure(ctx, StageFetch, "", err)
		return result, fmt.Errorf("fetch candidates: %w", err)
	}
	result.Fetched = len(candidates)

	for _, email := range candidates {
		if !p.tracker.IsNew(email) {
			slog.Info("skipping already-processed email",
				"cycle_id", result.CycleID,
				"email_id", email.ID,
			)
			result.Filtered++
			continue
		}

		if err := p.processEmail(ctx, email, result); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}
	}

	result.Elapsed = time.Since(start)
	slog.Info("poll cycle complete",
		"cycle_id", result.CycleID,
		"fetched", result.Fetched,
		"filtered", result.Filtered,
		"skipped", result.Skipped,
		"processed", result.Processed,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// processEmail drives one email through EXTRACT → SUBMIT → ARCHIVE → COMMIT.
// Any error before COMMIT leaves the tracker untouched, so the email is
// retried on the next cycle.
func (p *Processor) processEmail(ctx context.Context, email *models.EmailMessage, result *CycleResult) error {
	logAttrs := []any{
		"cycle_id", result.CycleID,
		"email_id", email.ID,
		"email_date", email.Date.Format(time.RFC3339),
	}

	inv, err := p.extract(email.Attachment, p.formats)
	if err != nil {
		p.alerts.NotifyFailure(ctx, StageExtract, email.ID, err)
		if p.strictExtract {
			return fmt.Errorf("extract invoice from email %s: %w", email.ID, err)
		}
		slog.Warn("extraction failed, skipping email until next cycle",
			append(logAttrs, "error", err)...)
		result.Skipped++
		return nil
	}

	// A submit failure aborts the whole cycle, not just this email: the
	// browser session state after a failed submit is unknown, and pushing
	// more entries through it risks duplicates.
	if err := p.ledger.Submit(inv); err != nil {
		p.alerts.NotifyFailure(ctx, StageSubmit, email.ID, err)
		return fmt.Errorf("submit invoice %s (email %s): %w", inv.InvoiceNumber, email.ID, err)
	}

	path, err := p.archive.Save(inv)
	if err != nil {
		p.alerts.NotifyFailure(ctx, StageArchive, email.ID, err)
		return fmt.Errorf("archive invoice %s (email %s): %w", inv.InvoiceNumber, email.ID, err)
	}

	if err := p.tracker.Commit(ctx, email); err != nil {
		p.alerts.NotifyFailure(ctx, StageCommit, email.ID, err)
		return err
	}

	result.Processed++
	slog.Info("invoice processed",
		append(logAttrs,
			"invoice_number", inv.InvoiceNumber,
			"archived_to", path,
		)...)
	return nil
}

func formatSince(since time.Time) string {
	if since.IsZero() {
		return "beginning"
	}
	return since.Format("2006-01-02")
}
