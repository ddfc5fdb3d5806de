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

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bcem/invoicebot/internal/tracker"
)

// Poller runs poll cycles at a fixed interval. Cycles never overlap: the
// ticker is only read between cycles, and a cycle that outlasts the
// interval simply delays the next one.
type Poller struct {
	processor *Processor
	interval  time.Duration
}

// NewPoller creates a poller.
func NewPoller(processor *Processor, interval time.Duration) *Poller {
	return &Poller{
		processor: processor,
		interval:  interval,
	}
}

// Run polls until the context is cancelled, starting with an immediate
// cycle. Ordinary cycle failures are logged and retried on the next tick —
// nothing was committed for the failed email, so the refetch is safe. A
// tracker save failure is different: state on disk no longer matches what
// was submitted to the ledger, so Run returns the error and the process
// must exit for a human to look at the storage.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller starting", "interval", p.interval)

	if err := p.runCycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopping")
			return nil
		case <-ticker.C:
			if err := p.runCycle(ctx); err != nil {
				return err
			}
		}
	}
}

// runCycle executes one cycle, returning an error only for failures that
// must stop the loop.
func (p *Poller) runCycle(ctx context.Context) error {
	_, err := p.processor.Cycle(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, tracker.ErrSave) {
		slog.Error("tracker state save failed, stopping", "error", err)
		return err
	}

	slog.Error("poll cycle failed, will retry next interval", "error", err)
	return nil
}
