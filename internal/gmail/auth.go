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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// readonlyScope is the only Gmail permission the pipeline needs.
const readonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// NewHTTPClient builds an authenticated Gmail HTTP client from an
// installed-app credentials file and a previously authorised token file.
// The token is refreshed automatically and written back to tokenFile when
// it changes, so the next process start reuses it.
//
// Obtaining the initial token (the interactive consent flow) is a one-time
// manual step outside this service; a missing token file is a startup error.
func NewHTTPClient(ctx context.Context, credentialsFile, tokenFile string, timeout time.Duration) (*http.Client, error) {
	credBytes, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth credentials %s: %w", credentialsFile, err)
	}

	oauthCfg, err := google.ConfigFromJSON(credBytes, readonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth credentials: %w", err)
	}

	tok, err := readToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token %s (run the authorisation flow first): %w", tokenFile, err)
	}

	src := &persistingTokenSource{
		wrapped:   oauthCfg.TokenSource(ctx, tok),
		tokenFile: tokenFile,
		last:      tok.AccessToken,
	}

	client := oauth2.NewClient(ctx, src)
	client.Timeout = timeout
	return client, nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token JSON: %w", err)
	}
	return &tok, nil
}

// persistingTokenSource writes refreshed tokens back to disk so restarts
// don't depend on the old access token still being valid.
type persistingTokenSource struct {
	wrapped   oauth2.TokenSource
	tokenFile string

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.wrapped.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := writeToken(s.tokenFile, tok); err != nil {
			// A stale token file only costs an extra refresh next start.
			slog.Warn("failed to persist refreshed oauth token", "path", s.tokenFile, "error", err)
		} else {
			slog.Debug("persisted refreshed oauth token", "path", s.tokenFile)
		}
	}

	return tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
