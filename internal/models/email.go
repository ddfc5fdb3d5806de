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

// Package models defines the data structures shared across the invoice
// pipeline.
package models

import "time"

// EmailMessage represents one candidate invoice email, fully resolved:
// headers parsed, PDF attachment downloaded and decoded. It is built once
// per poll cycle by the gmail parser and never mutated afterwards.
type EmailMessage struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	To       string `json:"to"`

	// Date is the parsed Date header. The tracker's watermark is derived
	// from its calendar date.
	Date time.Time `json:"date"`

	Snippet string `json:"snippet,omitempty"`
	Body    string `json:"body,omitempty"`

	// AttachmentID identifies the PDF part on the provider side;
	// Attachment holds the decoded bytes.
	AttachmentID string `json:"attachment_id"`
	Attachment   []byte `json:"-"`
}
