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

// invoicebot — Invoice Pipeline
//
// Entry point for the invoice automation service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Builds the Gmail session from the stored OAuth token
//  3. Opens the tracker state store (file, Postgres or Redis)
//  4. Connects the ledger browser session
//  5. Runs one poll cycle (-once) or a periodic poll loop with /healthz
//  6. Handles graceful shutdown on SIGTERM/SIGINT
//
// Exit status is non-zero on any unrecovered failure, so an external
// scheduler can alert on it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
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
	"github.com/bcem/invoicebot/internal/pipeline"
	"github.com/bcem/invoicebot/internal/tracker"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	once := flag.Bool("once", false, "run a single poll cycle and exit")
	flag.Parse()

	// Local development convenience; absence of a .env file is fine.
	_ = godotenv.Load()

	slog.Info("starting invoicebot")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tracker_backend", cfg.Storage.Backend,
		"poll_interval", cfg.PollInterval,
		"strict_extract", cfg.StrictExtract,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Gmail session ---
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

	// --- Tracker store ---
	store, cleanup, err := tracker.Open(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open tracker store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	trk := tracker.New(ctx, store)

	// --- Alerts (optional) ---
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

	// --- Archive ---
	archive, err := invoice.NewArchive(cfg.Storage.InvoiceDir)
	if err != nil {
		slog.Error("failed to create invoice archive", "error", err)
		os.Exit(1)
	}

	// --- Ledger browser session ---
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
		Mail:    mail,
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

	if *once {
		result, err := processor.Cycle(ctx)
		if err != nil {
			slog.Error("poll cycle failed", "error", err)
			os.Exit(1)
		}
		slog.Info("cycle finished", "processed", result.Processed, "elapsed", result.Elapsed)
		return
	}

	// --- Daemon mode: health endpoint + poll loop ---
	healthSrv := startHealthServer(cfg.Port)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthSrv.Shutdown(shutdownCtx)
	}()

	poller := pipeline.NewPoller(processor, cfg.PollInterval)
	if err := poller.Run(ctx); err != nil {
		slog.Error("poller stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("invoicebot stopped")
}

// startHealthServer serves /healthz for the scheduler's liveness checks.
func startHealthServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	slog.Info("health endpoint listening", "port", port)
	return srv
}
