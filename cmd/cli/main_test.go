package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSession = "11111111-1111-1111-1111-111111111111"

type recorded struct {
	method, path, query, contentType string
	body                             []byte
}

func newFakeAPI(t *testing.T, status int, reply interface{}) *[]recorded {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("RAG_API_URL", srv.URL)
	t.Setenv("RAG_SESSION_ID", testSession)
	return &calls
}

func TestRun_Upload(t *testing.T) {
	calls := newFakeAPI(t, 200, map[string]interface{}{"id": "doc-1", "status": "indexed", "chunk_count": 3})
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello"), 0644))

	var out bytes.Buffer
	require.NoError(t, run("upload", []string{path}, &out))
	assert.Equal(t, "doc-1\tindexed\tchunks=3\n", out.String())

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, "POST", c.method)
	assert.Equal(t, "/api/v1/rag/documents", c.path)
	assert.True(t, strings.HasPrefix(c.contentType, "multipart/form-data"))
	assert.Contains(t, string(c.body), testSession)
	assert.Contains(t, string(c.body), `filename="notes.md"`)
}

func TestRun_Search(t *testing.T) {
	calls := newFakeAPI(t, 200, map[string]interface{}{
		"query": "q",
		"total": 1,
		"results": []map[string]interface{}{
			{"filename": "a.txt", "chunk_index": 0, "score": 0.9, "text": "line one\nline two"},
		},
	})

	var out bytes.Buffer
	require.NoError(t, run("search", []string{"q", "3"}, &out))
	assert.Contains(t, out.String(), "1. [0.900] a.txt #0")
	assert.Contains(t, out.String(), "line one line two")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal((*calls)[0].body, &body))
	assert.Equal(t, "q", body["query"])
	assert.Equal(t, testSession, body["session_id"])
	assert.Equal(t, float64(3), body["top_k"])
}

func TestRun_Delete(t *testing.T) {
	calls := newFakeAPI(t, 200, map[string]string{"message": "Document deleted successfully"})

	var out bytes.Buffer
	require.NoError(t, run("delete", []string{"doc-1"}, &out))
	c := (*calls)[0]
	assert.Equal(t, "DELETE", c.method)
	assert.Equal(t, "/api/v1/rag/documents/doc-1", c.path)
	assert.Equal(t, "session_id="+testSession, c.query)
}

func TestRun_APIError(t *testing.T) {
	newFakeAPI(t, 403, map[string]interface{}{"error": "You can only delete your own documents", "details": map[string]interface{}{}})

	err := run("delete", []string{"doc-1"}, io.Discard)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Status)
	assert.Equal(t, "HTTP 403: You can only delete your own documents", err.Error())
}

func TestRun_RequiresSession(t *testing.T) {
	t.Setenv("RAG_SESSION_ID", "")
	err := run("list", nil, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAG_SESSION_ID")
}

func TestRun_Session(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run("session", nil, &out))
	assert.Len(t, strings.TrimSpace(out.String()), 36)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "ab", preview("ab", 5))
	assert.Equal(t, "ab...", preview("abcdef", 2))
}
