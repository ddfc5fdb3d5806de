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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
gmail:
  sender_filter: billing@agency.example
ledger:
  base_url: https://books.example.com
  username: contractor
  password: hunter2
  webdriver_url: http://localhost:4444/wd/hub
`

func writeConfig(t *testing.T, yaml string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadAppliesDefaults(t *testing.T) {
	writeConfig(t, minimalYAML)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "me", cfg.Gmail.UserID)
	assert.Equal(t, "credentials.json", cfg.Gmail.CredentialsFile)
	assert.Equal(t, "token.json", cfg.Gmail.TokenFile)
	assert.Equal(t, "Mon, 2 Jan 2006 15:04:05 -0700 (MST)", cfg.Formats.MailDate)
	assert.Equal(t, "02/01/2006", cfg.Formats.PDFDate)
	assert.Equal(t, StoreFile, cfg.Storage.Backend)
	assert.Equal(t, ".tracker", cfg.Storage.WatermarkFile)
	assert.Equal(t, ".processed_emails", cfg.Storage.ProcessedFile)
	assert.Equal(t, "invoices", cfg.Storage.InvoiceDir)
	assert.Equal(t, time.Hour, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.StrictExtract, "strict extraction is the default")
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadReadsPollSettings(t *testing.T) {
	writeConfig(t, minimalYAML+`
poll:
  interval: 15m
  http_timeout: 10s
  strict_extract: false
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.StrictExtract)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("LEDGER_PASSWORD", "s3cret")
	writeConfig(t, `
gmail:
  sender_filter: billing@agency.example
ledger:
  base_url: https://books.example.com
  username: contractor
  password: ${LEDGER_PASSWORD}
  webdriver_url: http://localhost:4444/wd/hub
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Ledger.Password)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	writeConfig(t, `
gmail:
  sender_filter: billing@agency.example
`)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.base_url")
	assert.Contains(t, err.Error(), "ledger.password")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	writeConfig(t, minimalYAML+`
storage:
  backend: dynamodb
`)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid storage backend "dynamodb"`)
}

func TestLoadPostgresBackendRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	writeConfig(t, minimalYAML+`
storage:
  backend: postgres
`)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.database_url")
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
