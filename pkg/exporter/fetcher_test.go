package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symmetricalboy/bsky-to-gem/pkg/atproto"
	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

// scriptedLister answers ListRecords from a fixed list of responses
type scriptedLister struct {
	base    string
	steps   []listStep
	cursors []string
}

type listStep struct {
	resp *atproto.ListRecordsResponse
	err  error
}

func (s *scriptedLister) BaseURL() string { return s.base }

func (s *scriptedLister) ListRecords(ctx context.Context, params atproto.ListRecordsParams) (*atproto.ListRecordsResponse, error) {
	s.cursors = append(s.cursors, params.Cursor)
	if len(s.steps) == 0 {
		return nil, errors.New(errors.KindServerError, "list", "no more steps")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.resp, step.err
}

func newTestFetcher(t *testing.T, listers map[string]*scriptedLister) *Fetcher {
	t.Helper()
	ui.SetOutput(io.Discard)
	t.Cleanup(func() { ui.SetOutput(os.Stdout) })

	return NewFetcher(func(baseURL string) RecordLister {
		l, ok := listers[baseURL]
		require.True(t, ok, "unexpected endpoint %s", baseURL)
		return l
	}, "https://bsky.social", "", 0, nil, nil, logger.NewTestLogger())
}

func TestNormalize(t *testing.T) {
	value := `{
		"$type": "app.bsky.feed.post",
		"text": "two pictures",
		"createdAt": "2024-05-01T12:00:00.000Z",
		"embed": {
			"$type": "app.bsky.embed.images",
			"images": [
				{"alt": "a cat", "image": {"$type": "blob", "ref": {"$link": "bafkcat"}, "mimeType": "image/jpeg", "size": 100}},
				{"alt": "", "image": {"cid": "bafklegacy", "mimeType": "image/png"}},
				{"alt": "broken", "image": {}}
			]
		}
	}`

	post, err := Normalize(atproto.Record{Value: json.RawMessage(value)}, "did:plc:alice", "")
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01T12:00:00.000Z", post.CreatedAt)
	assert.Equal(t, "two pictures", post.Text)
	require.Len(t, post.Images, 2)
	assert.Equal(t, "https://cdn.bsky.app/img/feed_fullsize/plain/did:plc:alice/bafkcat@jpeg", post.Images[0].URL)
	assert.Equal(t, "a cat", post.Images[0].AltText)
	assert.Equal(t, "https://cdn.bsky.app/img/feed_fullsize/plain/did:plc:alice/bafklegacy@jpeg", post.Images[1].URL)
	assert.Equal(t, "", post.Images[1].AltText)
}

func TestNormalizeIgnoresOtherEmbeds(t *testing.T) {
	value := `{"text":"quote","createdAt":"2024-05-01T12:00:00Z","embed":{"$type":"app.bsky.embed.record","record":{"uri":"at://x"}}}`

	post, err := Normalize(atproto.Record{Value: json.RawMessage(value)}, "did:plc:alice", "https://cdn.test/")
	require.NoError(t, err)
	assert.NotNil(t, post.Images)
	assert.Empty(t, post.Images)
}

func TestNormalizeRejectsMalformedValue(t *testing.T) {
	_, err := Normalize(atproto.Record{Value: json.RawMessage(`"just a string"`)}, "did:plc:alice", "")
	assert.Error(t, err)
}

func TestFetchSkipsMalformedRecords(t *testing.T) {
	lister := &scriptedLister{base: "https://bsky.social", steps: []listStep{
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{
			record(1, "2024-01-01T00:00:00Z"),
			{URI: "at://bad", Value: json.RawMessage(`[]`)},
		}}},
	}}
	f := newTestFetcher(t, map[string]*scriptedLister{"https://bsky.social": lister})

	result, err := f.Fetch(context.Background(), testDID, "")
	require.NoError(t, err)
	assert.Len(t, result.Posts, 1)
	assert.Equal(t, 1, result.Skipped)
}

func TestFetchPrintsSummary(t *testing.T) {
	lister := &scriptedLister{base: "https://bsky.social", steps: []listStep{
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(1, "2024-01-01T00:00:00Z")}, Cursor: "c1"}},
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(2, "2024-01-02T00:00:00Z")}}},
	}}
	log := logger.NewTestLogger()
	f := NewFetcher(func(string) RecordLister { return lister }, "https://bsky.social", "", 0, nil, nil, log)

	var out bytes.Buffer
	ui.SetOutput(&out)
	t.Cleanup(func() { ui.SetOutput(os.Stdout) })

	_, err := f.Fetch(context.Background(), testDID, "")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Fetched 2 posts in 2 pages")

	var fields map[string]interface{}
	for _, msg := range log.GetMessages() {
		if msg.Message == "pagination complete" {
			fields = msg.Fields
		}
	}
	require.NotNil(t, fields)
	assert.Contains(t, fields, "posts_per_second")
}

func TestFetchStopsOnStalledCursor(t *testing.T) {
	lister := &scriptedLister{base: "https://pds.test", steps: []listStep{
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(1, "2024-01-01T00:00:00Z")}, Cursor: "c1"}},
		{resp: &atproto.ListRecordsResponse{Cursor: "c1"}},
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(2, "2024-01-02T00:00:00Z")}}},
	}}
	f := newTestFetcher(t, map[string]*scriptedLister{"https://pds.test": lister})

	result, err := f.Fetch(context.Background(), testDID, "https://pds.test/")
	require.NoError(t, err)
	assert.Len(t, result.Posts, 1)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, []string{"", "c1"}, lister.cursors)
}

func TestFetchFallbackPreservesState(t *testing.T) {
	pds := &scriptedLister{base: "https://pds.test", steps: []listStep{
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(1, "2024-01-01T00:00:00Z")}, Cursor: "c1"}},
		{err: errors.New(errors.KindServerError, "list", "bad gateway")},
	}}
	public := &scriptedLister{base: "https://bsky.social", steps: []listStep{
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(2, "2024-01-02T00:00:00Z")}}},
	}}
	f := newTestFetcher(t, map[string]*scriptedLister{"https://pds.test": pds, "https://bsky.social": public})

	var fallbacks []string
	f.OnFallback = func(endpoint string, err error) {
		fallbacks = append(fallbacks, endpoint)
		assert.ErrorIs(t, err, errors.ErrFetch)
	}

	result, err := f.Fetch(context.Background(), testDID, "https://pds.test")
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, "https://bsky.social", result.Endpoint)
	assert.Len(t, result.Posts, 2)
	assert.Equal(t, []string{"c1"}, public.cursors)
	assert.Equal(t, []string{"https://pds.test"}, fallbacks)
}

func TestFetchFallsBackAtMostOnce(t *testing.T) {
	pds := &scriptedLister{base: "https://pds.test", steps: []listStep{
		{err: errors.New(errors.KindNetwork, "list", "connection reset")},
	}}
	public := &scriptedLister{base: "https://bsky.social", steps: []listStep{
		{resp: &atproto.ListRecordsResponse{Records: []atproto.Record{record(1, "2024-01-01T00:00:00Z")}, Cursor: "c1"}},
		{err: errors.New(errors.KindServerError, "list", "boom")},
	}}
	f := newTestFetcher(t, map[string]*scriptedLister{"https://pds.test": pds, "https://bsky.social": public})

	_, err := f.Fetch(context.Background(), testDID, "https://pds.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFetch)
	assert.Len(t, pds.cursors, 1)
	assert.Len(t, public.cursors, 2)
}

func TestFetchDiscoveredDefaultIsDefault(t *testing.T) {
	public := &scriptedLister{base: "https://bsky.social", steps: []listStep{
		{err: errors.New(errors.KindServerError, "list", "boom")},
	}}
	f := newTestFetcher(t, map[string]*scriptedLister{"https://bsky.social": public})

	_, err := f.Fetch(context.Background(), testDID, "https://bsky.social/")
	require.Error(t, err)
	assert.Len(t, public.cursors, 1, "no fallback onto the same endpoint")
}

func TestFetchCancelledContext(t *testing.T) {
	pds := &scriptedLister{base: "https://pds.test"}
	f := newTestFetcher(t, map[string]*scriptedLister{"https://pds.test": pds})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, testDID, "https://pds.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pds.cursors)
}
