package atproto

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveHandleURL(t *testing.T) {
	assert.Equal(t,
		"https://bsky.social/xrpc/com.atproto.identity.resolveHandle?handle=alice.bsky.social",
		ResolveHandleURL("https://bsky.social/", "alice.bsky.social"))
}

func TestListRecordsURL(t *testing.T) {
	tests := []struct {
		name      string
		params    ListRecordsParams
		wantLimit string
		hasCursor bool
	}{
		{"default limit", ListRecordsParams{Repo: "did:plc:a", Collection: CollectionPost}, "100", false},
		{"clamped limit", ListRecordsParams{Repo: "did:plc:a", Collection: CollectionPost, Limit: 500}, "100", false},
		{"small limit with cursor", ListRecordsParams{Repo: "did:plc:a", Collection: CollectionPost, Limit: 10, Cursor: "3k2a"}, "10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(ListRecordsURL("https://pds.example.com", tt.params))
			require.NoError(t, err)

			q := u.Query()
			assert.Equal(t, "/xrpc/com.atproto.repo.listRecords", u.Path)
			assert.Equal(t, tt.params.Repo, q.Get("repo"))
			assert.Equal(t, tt.wantLimit, q.Get("limit"))
			assert.Equal(t, tt.hasCursor, q.Has("cursor"))
		})
	}
}

func TestImageURL(t *testing.T) {
	assert.Equal(t,
		"https://cdn.bsky.app/img/feed_fullsize/plain/did:plc:abc/bafkreib@jpeg",
		ImageURL("", "did:plc:abc", "bafkreib"))
	assert.Equal(t,
		"https://cdn.example/plain/did:plc:abc/bafkreib@jpeg",
		ImageURL("https://cdn.example/plain/", "did:plc:abc", "bafkreib"))
}

func TestBlobCID(t *testing.T) {
	var current, legacy Blob
	require.NoError(t, json.Unmarshal([]byte(`{"$type":"blob","ref":{"$link":"bafynew"},"mimeType":"image/jpeg","size":1234}`), &current))
	require.NoError(t, json.Unmarshal([]byte(`{"cid":"bafyold","mimeType":"image/png"}`), &legacy))

	assert.Equal(t, "bafynew", current.CID())
	assert.Equal(t, int64(1234), current.Size)
	assert.Equal(t, "bafyold", legacy.CID())
	assert.Empty(t, Blob{}.CID())
}

func TestSanitizeHandle(t *testing.T) {
	tests := map[string]string{
		"alice.bsky.social":      "alice.bsky.social",
		"  @Alice.Bsky.Social  ": "alice.bsky.social",
		"alice.example.com.":     "alice.example.com",
		"alice.example.com/":     "alice.example.com",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeHandle(in), in)
	}
}

func TestIsValidHandle(t *testing.T) {
	valid := []string{"alice.bsky.social", "a.co", "xn--ls8h.test", "john-doe.example.com"}
	invalid := []string{"", "alice", "alice..bsky.social", "-alice.bsky.social", "alice.123", "alice bsky.social", "did:plc:abc"}

	for _, h := range valid {
		assert.True(t, IsValidHandle(h), h)
	}
	for _, h := range invalid {
		assert.False(t, IsValidHandle(h), h)
	}
}
