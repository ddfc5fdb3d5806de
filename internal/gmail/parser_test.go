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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMailDateFmt = "Mon, 2 Jan 2006 15:04:05 -0700 (MST)"

func sampleRawMessage() *rawMessage {
	return &rawMessage{
		ID:       "17f5a9b2c3d4e5f6",
		ThreadID: "17f5a9b2c3d4e5f6",
		Snippet:  "Please find attached your invoice and timesheet",
		Payload: rawPayload{
			Headers: []rawHeader{
				{Name: "Date", Value: "Tue, 8 Mar 2022 11:53:45 +0000 (UTC)"},
				{Name: "From", Value: "billing@agency.example"},
				{Name: "To", Value: "contractor@example.com"},
				{Name: "Subject", Value: "Invoices From Agency"},
				{Name: "X-Mimecast-Originator", Value: "agency.example"},
			},
			Parts: []rawPart{
				{
					PartID:   "0",
					MimeType: "text/plain",
					Body:     rawBody{Data: "UGxlYXNlIGZpbmQgYXR0YWNoZWQ"},
				},
				{
					PartID:   "1",
					MimeType: "application/pdf",
					Filename: "invoice SB-1042.pdf",
					Body:     rawBody{AttachmentID: "ANGjdJ_attachment_token"},
				},
			},
		},
	}
}

func TestHeaderValueIsCaseInsensitive(t *testing.T) {
	msg := sampleRawMessage()

	for _, name := range []string{"Date", "date", "DATE", "dAtE"} {
		got, err := headerValue(msg, name)
		require.NoError(t, err, "header name %q", name)
		assert.Equal(t, "Tue, 8 Mar 2022 11:53:45 +0000 (UTC)", got)
	}

	from, err := headerValue(msg, "from")
	require.NoError(t, err)
	assert.Equal(t, "billing@agency.example", from)

	orig, err := headerValue(msg, "x-mimecast-originator")
	require.NoError(t, err)
	assert.Equal(t, "agency.example", orig)
}

func TestHeaderValueMissing(t *testing.T) {
	msg := sampleRawMessage()

	_, err := headerValue(msg, "Reply-To")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Reply-To"`)
}

func TestAttachmentIDFlatParts(t *testing.T) {
	id, err := attachmentID(sampleRawMessage())
	require.NoError(t, err)
	assert.Equal(t, "ANGjdJ_attachment_token", id)
}

func TestAttachmentIDNestedMultipart(t *testing.T) {
	// multipart/mixed wrapping multipart/alternative wrapping the PDF.
	msg := &rawMessage{
		ID: "nested",
		Payload: rawPayload{
			Parts: []rawPart{
				{
					PartID:   "0",
					MimeType: "multipart/alternative",
					Parts: []rawPart{
						{PartID: "0.0", MimeType: "text/plain", Body: rawBody{Data: "aGk"}},
						{PartID: "0.1", MimeType: "text/html", Body: rawBody{Data: "PGI-aGk8L2I-"}},
					},
				},
				{
					PartID:   "1",
					MimeType: "multipart/mixed",
					Parts: []rawPart{
						{
							PartID:   "1.0",
							MimeType: "application/octet-stream",
							Filename: "Invoice_TS_998877.PDF",
							Body:     rawBody{AttachmentID: "nested-token"},
						},
					},
				},
			},
		},
	}

	id, err := attachmentID(msg)
	require.NoError(t, err)
	assert.Equal(t, "nested-token", id, "filename match must work regardless of mime type and case")
}

func TestAttachmentIDNoPDF(t *testing.T) {
	msg := &rawMessage{
		ID: "textonly",
		Payload: rawPayload{
			Parts: []rawPart{
				{PartID: "0", MimeType: "text/plain", Body: rawBody{Data: "aGk"}},
			},
		},
	}

	_, err := attachmentID(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PDF attachment")
}

func TestParseMessage(t *testing.T) {
	email, err := parseMessage(sampleRawMessage(), testMailDateFmt)
	require.NoError(t, err)

	assert.Equal(t, "17f5a9b2c3d4e5f6", email.ID)
	assert.Equal(t, "Invoices From Agency", email.Subject)
	assert.Equal(t, "billing@agency.example", email.From)
	assert.Equal(t, "contractor@example.com", email.To)
	assert.Equal(t, "ANGjdJ_attachment_token", email.AttachmentID)
	assert.True(t, email.Date.Equal(time.Date(2022, 3, 8, 11, 53, 45, 0, time.UTC)))
}

func TestParseMessageRejectsMissingHeaders(t *testing.T) {
	noDate := sampleRawMessage()
	noDate.Payload.Headers = noDate.Payload.Headers[1:]
	_, err := parseMessage(noDate, testMailDateFmt)
	assert.Error(t, err)

	noSubject := sampleRawMessage()
	var kept []rawHeader
	for _, h := range noSubject.Payload.Headers {
		if h.Name != "Subject" {
			kept = append(kept, h)
		}
	}
	noSubject.Payload.Headers = kept
	_, err = parseMessage(noSubject, testMailDateFmt)
	assert.Error(t, err)
}

func TestParseMessageToleratesMissingFromAndTo(t *testing.T) {
	msg := sampleRawMessage()
	msg.Payload.Headers = []rawHeader{
		{Name: "Date", Value: "Tue, 8 Mar 2022 11:53:45 +0000 (UTC)"},
		{Name: "Subject", Value: "Invoices From Agency"},
	}

	email, err := parseMessage(msg, testMailDateFmt)
	require.NoError(t, err)
	assert.Empty(t, email.From)
	assert.Empty(t, email.To)
}

func TestDecodeBody(t *testing.T) {
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("hello invoice"))

	got := decodeBody(rawPayload{Body: rawBody{Data: encoded}})
	assert.Equal(t, "hello invoice", got)

	assert.Empty(t, decodeBody(rawPayload{}), "multipart messages carry no top-level body")
}
