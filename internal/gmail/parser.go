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

package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/bcem/invoicebot/internal/models"
)

// rawMessage represents the relevant fields of a Gmail message resource.
type rawMessage struct {
	ID       string     `json:"id"`
	ThreadID string     `json:"threadId"`
	Snippet  string     `json:"snippet"`
	Payload  rawPayload `json:"payload"`
}

type rawPayload struct {
	Headers []rawHeader `json:"headers"`
	Body    rawBody     `json:"body"`
	Parts   []rawPart   `json:"parts"`
}

type rawHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type rawBody struct {
	AttachmentID string `json:"attachmentId"`
	Data         string `json:"data"`
}

type rawPart struct {
	PartID   string    `json:"partId"`
	MimeType string    `json:"mimeType"`
	Filename string    `json:"filename"`
	Body     rawBody   `json:"body"`
	Parts    []rawPart `json:"parts"`
}

// headerValue returns the value of a message header, matched
// case-insensitively. Gmail preserves whatever casing the sending MTA used,
// so "Date", "date" and "DATE" must all resolve.
func headerValue(msg *rawMessage, name string) (string, error) {
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, nil
		}
	}
	return "", fmt.Errorf("header %q is not present", name)
}

// attachmentID locates the PDF attachment part of a message and returns its
// attachment identifier. Nested multipart containers are searched depth-first.
func attachmentID(msg *rawMessage) (string, error) {
	if id := findPDFPart(msg.Payload.Parts); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("message %s has no PDF attachment", msg.ID)
}

func findPDFPart(parts []rawPart) string {
	for _, p := range parts {
		isPDF := p.MimeType == "application/pdf" ||
			strings.HasSuffix(strings.ToLower(p.Filename), ".pdf")
		if isPDF && p.Body.AttachmentID != "" {
			return p.Body.AttachmentID
		}
		if id := findPDFPart(p.Parts); id != "" {
			return id
		}
	}
	return ""
}

// parseMessage converts a Gmail message resource into an EmailMessage.
// The attachment bytes are not fetched here — only the part identifier is
// resolved; the client downloads the body separately.
func parseMessage(msg *rawMessage, mailDateFmt string) (*models.EmailMessage, error) {
	dateStr, err := headerValue(msg, "Date")
	if err != nil {
		return nil, err
	}
	date, err := time.Parse(mailDateFmt, dateStr)
	if err != nil {
		return nil, fmt.Errorf("parse Date header %q with layout %q: %w", dateStr, mailDateFmt, err)
	}

	subject, err := headerValue(msg, "Subject")
	if err != nil {
		return nil, err
	}

	// From/To are informational; absence is tolerated.
	from, _ := headerValue(msg, "From")
	to, _ := headerValue(msg, "To")

	attID, err := attachmentID(msg)
	if err != nil {
		return nil, err
	}

	return &models.EmailMessage{
		ID:           msg.ID,
		ThreadID:     msg.ThreadID,
		Subject:      subject,
		From:         from,
		To:           to,
		Date:         date,
		Snippet:      msg.Snippet,
		Body:         decodeBody(msg.Payload),
		AttachmentID: attID,
	}, nil
}

// decodeBody returns the top-level body text if the message carries one
// inline; multipart messages keep their text in parts we don't need.
func decodeBody(p rawPayload) string {
	if p.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(p.Body.Data, "="))
	if err != nil {
		return ""
	}
	return string(data)
}
