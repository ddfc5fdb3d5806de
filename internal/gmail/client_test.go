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
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeMustParse reads an ISO calendar date; empty means the zero time.
func timeMustParse(t *testing.T, date string) time.Time {
	t.Helper()
	if date == "" {
		return time.Time{}
	}
	parsed, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	return parsed
}

func messageJSON(t *testing.T, id, date, snippet, attID string) []byte {
	t.Helper()
	msg := rawMessage{
		ID:       id,
		ThreadID: id,
		Snippet:  snippet,
		Payload: rawPayload{
			Headers: []rawHeader{
				{Name: "Date", Value: date},
				{Name: "From", Value: "billing@agency.example"},
				{Name: "Subject", Value: "Invoices From Agency"},
			},
			Parts: []rawPart{
				{
					PartID:   "1",
					MimeType: "application/pdf",
					Filename: "invoice.pdf",
					Body:     rawBody{AttachmentID: "att-" + id},
				},
			},
		},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func attachmentJSON(t *testing.T, content string) []byte {
	t.Helper()
	raw, err := json.Marshal(attachmentResponse{
		Size: len(content),
		Data: base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(content)),
	})
	require.NoError(t, err)
	return raw
}

// newFakeGmail serves two list pages: page one holds the newer email B, page
// two the older email A plus an off-topic message the snippet filter rejects.
func newFakeGmail(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string

	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprint(w, `{"messages":[{"id":"B","threadId":"B"}],"nextPageToken":"page2"}`)
			return
		}
		fmt.Fprint(w, `{"messages":[{"id":"A","threadId":"A"},{"id":"SPAM","threadId":"SPAM"}]}`)
	})
	mux.HandleFunc("/users/me/messages/A", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(messageJSON(t, "A", "Tue, 1 Mar 2022 11:53:45 +0000 (UTC)", "attached your invoice and timesheet", "att-A"))
	})
	mux.HandleFunc("/users/me/messages/B", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(messageJSON(t, "B", "Wed, 2 Mar 2022 09:00:00 +0000 (UTC)", "attached your invoice and timesheet", "att-B"))
	})
	mux.HandleFunc("/users/me/messages/SPAM", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(messageJSON(t, "SPAM", "Wed, 2 Mar 2022 10:00:00 +0000 (UTC)", "win a free cruise", "att-SPAM"))
	})
	mux.HandleFunc("/users/me/messages/A/attachments/att-A", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(attachmentJSON(t, "%PDF-A"))
	})
	mux.HandleFunc("/users/me/messages/B/attachments/att-B", func(w http.ResponseWriter, _ *http.Request) {
		w.Write(attachmentJSON(t, "%PDF-B"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &queries
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.Client(), ClientConfig{
		UserID:        "me",
		SenderFilter:  "billing@agency.example",
		SnippetFilter: "invoice",
		MailDateFmt:   testMailDateFmt,
		BaseURL:       srv.URL,
	})
}

func TestListCandidatesPagesFiltersAndSorts(t *testing.T) {
	srv, queries := newFakeGmail(t)
	client := newTestClient(srv)

	emails, err := client.ListCandidates(context.Background(), timeMustParse(t, "2022-03-01"))
	require.NoError(t, err)

	require.Len(t, emails, 2, "off-topic message must be dropped by the snippet filter")
	assert.Equal(t, "A", emails[0].ID, "candidates come back ascending by date")
	assert.Equal(t, "B", emails[1].ID)
	assert.Equal(t, []byte("%PDF-A"), emails[0].Attachment)
	assert.Equal(t, []byte("%PDF-B"), emails[1].Attachment)

	require.NotEmpty(t, *queries)
	assert.Equal(t, "from:billing@agency.example after:2022/03/01", (*queries)[0])
}

func TestListCandidatesWithoutWatermarkOmitsAfter(t *testing.T) {
	srv, queries := newFakeGmail(t)
	client := newTestClient(srv)

	_, err := client.ListCandidates(context.Background(), timeMustParse(t, ""))
	require.NoError(t, err)

	require.NotEmpty(t, *queries)
	assert.Equal(t, "from:billing@agency.example", (*queries)[0])
}

func TestListCandidatesSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":503}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(srv)
	_, err := client.ListCandidates(context.Background(), timeMustParse(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestGetAttachmentDecodes(t *testing.T) {
	srv, _ := newFakeGmail(t)
	client := newTestClient(srv)

	data, err := client.GetAttachment(context.Background(), "A", "att-A")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-A"), data)
}
