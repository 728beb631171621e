// Copyright 2026 fanjia1024
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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-indexer/pkg/secrets"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
chunking:
  max_size: 1500
  overlap: 100
rate_limit:
  requests: 3
  window: 10s
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1500, cfg.Chunking.MaxSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.RateLimit.Requests)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 10, cfg.API.MaxUploadMB)
	assert.Equal(t, 50, cfg.API.MaxSampleMB)
	assert.Equal(t, 2000, cfg.Chunking.MaxSize)
	assert.Equal(t, 0, cfg.Chunking.Overlap)
	assert.Equal(t, 50, cfg.Model.Embedding.BatchSize)
	assert.Equal(t, 20000, cfg.Model.Embedding.MaxChars)
	assert.Equal(t, 1024, cfg.Model.Embedding.Dimension)
	assert.Equal(t, "text-embedding-3-small", cfg.Model.Embedding.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.LLM.Model)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.InDelta(t, 0.35, cfg.Search.ScoreThreshold, 1e-9)
	assert.Equal(t, "memory", cfg.Storage.Vector.Type)
}

func TestLoadConfig_EnvAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Model.Embedding.APIKey)
	assert.Equal(t, "sk-env", cfg.Model.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  max_size: 100\n  overlap: 100\n"), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestResolveSecrets(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Model.Embedding.APIKey = "secret:emb"
	cfg.Model.LLM.APIKey = "literal"

	store := secrets.NewMemoryStore(map[string]string{"emb": "sk-vault"})
	require.NoError(t, cfg.ResolveSecrets(context.Background(), store))
	assert.Equal(t, "sk-vault", cfg.Model.Embedding.APIKey)
	assert.Equal(t, "literal", cfg.Model.LLM.APIKey)
}
