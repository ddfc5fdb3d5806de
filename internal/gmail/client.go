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

// Package gmail provides a client for the Gmail REST API that lists and
// resolves candidate invoice emails. The client only needs readonly access;
// it never labels, archives or deletes anything in the mailbox.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bcem/invoicebot/internal/models"
)

// DefaultBaseURL is the root of the Gmail REST API.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// Client talks to the Gmail API on behalf of a single mailbox.
type Client struct {
	httpClient *http.Client
	baseURL    string

	userID        string
	labelID       string
	senderFilter  string
	snippetFilter string
	mailDateFmt   string
}

// ClientConfig holds the mailbox settings for a Client.
type ClientConfig struct {
	UserID        string
	LabelID       string
	SenderFilter  string
	SnippetFilter string
	MailDateFmt   string // Go layout for the Date header
	BaseURL       string // defaults to DefaultBaseURL
}

// NewClient creates a Gmail client. The httpClient must already handle
// authentication (see NewHTTPClient).
func NewClient(httpClient *http.Client, cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       baseURL,
		userID:        cfg.UserID,
		labelID:       cfg.LabelID,
		senderFilter:  cfg.SenderFilter,
		snippetFilter: cfg.SnippetFilter,
		mailDateFmt:   cfg.MailDateFmt,
	}
}

// listResponse represents a page of the users.messages.list response.
type listResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// attachmentResponse is the users.messages.attachments.get response body.
type attachmentResponse struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}

// ListCandidates returns the invoice emails matching the configured filters,
// ascending by Date so the pipeline can commit them in chronological order.
//
// since is a calendar-date lower bound applied server-side via the `after:`
// query operator. Gmail's after: is day-granular, so same-day messages are
// returned again on every poll — the tracker's processed set, not this
// filter, is what prevents reprocessing. A zero since means no lower bound
// (first ever run).
func (c *Client) ListCandidates(ctx context.Context, since time.Time) ([]*models.EmailMessage, error) {
	query := fmt.Sprintf("from:%s", c.senderFilter)
	if !since.IsZero() {
		query += fmt.Sprintf(" after:%s", since.Format("2006/01/02"))
	}

	var candidates []*models.EmailMessage
	pageToken := ""

	for {
		page, err := c.listPage(ctx, query, pageToken)
		if err != nil {
			return nil, err
		}

		for _, stub := range page.Messages {
			msg, err := c.fetchMessage(ctx, stub.ID)
			if err != nil {
				return nil, fmt.Errorf("fetch message %s: %w", stub.ID, err)
			}

			if c.snippetFilter != "" && !strings.Contains(msg.Snippet, c.snippetFilter) {
				slog.Debug("snippet filter rejected message", "message_id", stub.ID)
				continue
			}

			email, err := parseMessage(msg, c.mailDateFmt)
			if err != nil {
				// Malformed candidates are rejected here, before the
				// tracker or extractor ever see them.
				slog.Warn("rejecting unparseable message",
					"message_id", stub.ID,
					"error", err,
				)
				continue
			}

			attachment, err := c.GetAttachment(ctx, email.ID, email.AttachmentID)
			if err != nil {
				return nil, fmt.Errorf("fetch attachment for message %s: %w", email.ID, err)
			}
			email.Attachment = attachment

			candidates = append(candidates, email)
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Date.Before(candidates[j].Date)
	})

	return candidates, nil
}

// listPage fetches a single page of message stubs.
func (c *Client) listPage(ctx context.Context, query, pageToken string) (*listResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	if c.labelID != "" {
		params.Set("labelIds", c.labelID)
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	u := fmt.Sprintf("%s/users/%s/messages?%s", c.baseURL, url.PathEscape(c.userID), params.Encode())

	var page listResponse
	if err := c.getJSON(ctx, u, &page); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &page, nil
}

// fetchMessage retrieves the full message resource for a stub.
func (c *Client) fetchMessage(ctx context.Context, messageID string) (*rawMessage, error) {
	u := fmt.Sprintf("%s/users/%s/messages/%s",
		c.baseURL, url.PathEscape(c.userID), url.PathEscape(messageID))

	var msg rawMessage
	if err := c.getJSON(ctx, u, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetAttachment downloads and decodes one attachment body.
func (c *Client) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	u := fmt.Sprintf("%s/users/%s/messages/%s/attachments/%s",
		c.baseURL, url.PathEscape(c.userID), url.PathEscape(messageID), url.PathEscape(attachmentID))

	var resp attachmentResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}

	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(resp.Data, "="))
	if err != nil {
		return nil, fmt.Errorf("decode attachment data: %w", err)
	}
	return data, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gmail API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
