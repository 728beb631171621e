package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineAction(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{"POST", "/api/v1/admin/login", "login"},
		{"GET", "/api/v1/admin/documents", "list_samples"},
		{"POST", "/api/v1/admin/documents", "upload_sample"},
		{"DELETE", "/api/v1/admin/documents", "delete_all_samples"},
		{"DELETE", "/api/v1/admin/documents/abc", "delete_sample"},
		{"GET", "/api/v1/admin/other", "unknown"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, determineAction(c.method, c.path), "%s %s", c.method, c.path)
	}
}

func TestExtractResource(t *testing.T) {
	typ, id := extractResource("/api/v1/admin/documents/abc")
	assert.Equal(t, "document", typ)
	assert.Equal(t, "abc", id)

	typ, id = extractResource("/api/v1/admin/login")
	assert.Equal(t, "unknown", typ)
	assert.Empty(t, id)
}
