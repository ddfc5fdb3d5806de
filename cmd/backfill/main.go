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

// invoicebot backfill — Catch-up Run
//
// Standalone CLI that runs one cycle against the full mailbox (or a
// bounded lookback), ignoring the watermark. The processed-id set is still
// honoured, so a lost or corrupt watermark file can be recovered from
// without double-booking invoices the ledger already has.
//
// Usage:
//
//	go run ./cmd/backfill/ [--since 720h]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/invoicebot/internal/alert"
	"github.com/bcem/invoicebot/internal/config"
	"github.com/bcem/invoicebot/internal/gmail"
	"github.com/bcem/invoicebot/internal/invoice"
	"github.com/bcem/invoicebot/internal/ledger"
	"github.com/bcem/invoicebot/internal/models"
	"github.com/bcem/invoicebot/internal/pipeline"
	"github.com/bcem/invoicebot/internal/tracker"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	sinceFlag := flag.String("since", "", "lookback duration (e.g. 720h for 30 days; empty = entire mailbox)")
	flag.Parse()

	_ = godotenv.Load()

	var since time.Time
	if *sinceFlag != "" {
		d, err := time.ParseDuration(*sinceFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --since duration %q: %v\n", *sinceFlag, err)
			os.Exit(1)
		}
		since = time.Now().UTC().Add(-d)
	}

	slog.Info("starting backfill", "since", formatSince(since))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient, err := gmail.NewHTTPClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile, cfg.HTTPTimeout)
	if err != nil {
		slog.Error("failed to build gmail session", "error", err)
		os.Exit(1)
	}

	mail := gmail.NewClient(httpClient, gmail.ClientConfig{
		UserID:        cfg.Gmail.UserID,
		LabelID:       cfg.Gmail.LabelID,
		SenderFilter:  cfg.Gmail.SenderFilter,
		SnippetFilter: cfg.Gmail.SnippetFilter,
		MailDateFmt:   cfg.Formats.MailDate,
	})

	// Backfill must read the same processed set the main service writes,
	// whichever backend holds it.
	store, cleanup, err := tracker.Open(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open tracker store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	trk := tracker.New(ctx, store)

	var alerts *alert.Notifier
	if cfg.Alerts.Enabled {
		opt, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			slog.Error("invalid redis URL for alerts", "error", err)
			os.Exit(1)
		}
		alerts = alert.NewNotifier(redis.NewClient(opt), cfg.Alerts.Queue)
		if err := alerts.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis for alerts", "error", err)
			os.Exit(1)
		}
		slog.Info("alerting enabled", "queue", cfg.Alerts.Queue)
	}

	archive, err := invoice.NewArchive(cfg.Storage.InvoiceDir)
	if err != nil {
		slog.Error("failed to create invoice archive", "error", err)
		os.Exit(1)
	}

	book, err := ledger.New(ledger.Config{
		BaseURL:      cfg.Ledger.BaseURL,
		Username:     cfg.Ledger.Username,
		Password:     cfg.Ledger.Password,
		WebDriverURL: cfg.Ledger.WebDriverURL,
	})
	if err != nil {
		slog.Error("failed to open ledger session", "error", err)
		os.Exit(1)
	}
	defer book.Close()

	processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Mail:    &fixedWindow{mail: mail, since: since},
		Tracker: trk,
		Ledger:  book,
		Archive: archive,
		Alerts:  alerts,
		Formats: invoice.Formats{
			PDFDate:    cfg.Formats.PDFDate,
			LedgerDate: cfg.Formats.LedgerDate,
		},
		StrictExtract: cfg.StrictExtract,
	})

	result, err := processor.Cycle(ctx)
	if err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	slog.Info("backfill complete",
		"fetched", result.Fetched,
		"filtered", result.Filtered,
		"processed", result.Processed,
		"elapsed", result.Elapsed,
	)
}

// fixedWindow substitutes the backfill window for the tracker's watermark.
type fixedWindow struct {
	mail  pipeline.MailSource
	since time.Time
}

func (f *fixedWindow) ListCandidates(ctx context.Context, _ time.Time) ([]*models.EmailMessage, error) {
	return f.mail.ListCandidates(ctx, f.since)
}

func formatSince(since time.Time) string {
	if since.IsZero() {
		return "entire mailbox"
	}
	return since.Format(time.RFC3339)
}
