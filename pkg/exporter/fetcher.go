package exporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/symmetricalboy/bsky-to-gem/pkg/archive"
	"github.com/symmetricalboy/bsky-to-gem/pkg/atproto"
	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ratelimit"
	"github.com/symmetricalboy/bsky-to-gem/pkg/retry"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

// State is a step of the pagination state machine
type State string

const (
	StateFetching      State = "fetching"
	StateFallbackRetry State = "fallback_retry"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// RecordLister lists repository records from one service endpoint
type RecordLister interface {
	ListRecords(ctx context.Context, params atproto.ListRecordsParams) (*atproto.ListRecordsResponse, error)
	BaseURL() string
}

// ClientFactory returns a lister bound to baseURL
type ClientFactory func(baseURL string) RecordLister

// FetchResult is the outcome of a completed pagination run
type FetchResult struct {
	// Posts in arrival order
	Posts        []archive.Post
	Endpoint     string
	FallbackUsed bool
	Pages        int
	Skipped      int
}

// Fetcher pages through a repo's post collection, falling back to the
// default service once when a discovered endpoint fails
type Fetcher struct {
	newClient  ClientFactory
	defaultURL string
	cdnURL     string
	pageSize   int
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger

	// OnFallback is called when the fetcher abandons endpoint for the default
	OnFallback func(endpoint string, err error)
}

// NewFetcher creates a fetcher. Zero values fall back to the defaults of
// the atproto package and an unlimited, non-retrying policy.
func NewFetcher(newClient ClientFactory, defaultURL, cdnURL string, pageSize int, limiter ratelimit.Limiter, retryCfg *retry.Config, log logger.Logger) *Fetcher {
	if defaultURL == "" {
		defaultURL = atproto.DefaultServiceURL
	}
	if pageSize <= 0 {
		pageSize = atproto.DefaultPageSize
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxAttempts: 1}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fetcher{
		newClient:  newClient,
		defaultURL: normalizeEndpoint(defaultURL),
		cdnURL:     cdnURL,
		pageSize:   pageSize,
		limiter:    limiter,
		retry:      retryCfg,
		logger:     log,
	}
}

// DefaultURL returns the public endpoint used when discovery fails
func (f *Fetcher) DefaultURL() string {
	return f.defaultURL
}

// Fetch collects every post of did starting at endpoint. An empty endpoint
// starts at the default service. Zero posts is an error.
func (f *Fetcher) Fetch(ctx context.Context, did, endpoint string) (*FetchResult, error) {
	current := normalizeEndpoint(endpoint)
	if current == "" {
		current = f.defaultURL
	}

	client := f.newClient(current)
	progress := ui.NewProgress()
	result := &FetchResult{Posts: []archive.Post{}}

	var (
		state   = StateFetching
		cursor  string
		lastErr error
	)

	for {
		switch state {
		case StateFetching:
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, errors.Fetch(current, err)
			}

			page, err := retry.DoWithResult(ctx, f.retry, func() (*atproto.ListRecordsResponse, error) {
				return client.ListRecords(ctx, atproto.ListRecordsParams{
					Repo:       did,
					Collection: atproto.CollectionPost,
					Limit:      f.pageSize,
					Cursor:     cursor,
				})
			})
			if err != nil {
				lastErr = errors.Fetch(current, err)
				if ctx.Err() != nil {
					state = StateFailed
				} else if current != f.defaultURL && !result.FallbackUsed {
					state = StateFallbackRetry
				} else {
					state = StateFailed
				}
				continue
			}

			firstPage := cursor == "" && len(result.Posts) == 0
			result.Pages++
			for _, rec := range page.Records {
				post, err := Normalize(rec, did, f.cdnURL)
				if err != nil {
					result.Skipped++
					f.logger.WithError(err).WarnWithFields("skipping malformed post record", map[string]interface{}{
						"uri": rec.URI,
					})
					continue
				}
				result.Posts = append(result.Posts, post)
			}

			progress.Page(len(page.Records))
			logger.LogPageProgress(f.logger, did, result.Pages, len(page.Records), len(result.Posts), current)

			if len(page.Records) == 0 && firstPage {
				if current == f.defaultURL {
					lastErr = &errors.Error{
						Kind:    errors.KindEmptyResult,
						Op:      "list records",
						Message: fmt.Sprintf("no posts found on %s; the account is likely hosted on a different PDS that could not be discovered", current),
					}
					state = StateFailed
				} else {
					state = StateDone
				}
				continue
			}

			if page.Cursor == "" {
				state = StateDone
				continue
			}
			if len(page.Records) == 0 && page.Cursor == cursor {
				f.logger.WarnWithFields("cursor did not advance, stopping pagination", map[string]interface{}{
					"cursor":   cursor,
					"endpoint": current,
				})
				state = StateDone
				continue
			}
			cursor = page.Cursor

		case StateFallbackRetry:
			f.logger.WithError(lastErr).WarnWithFields("falling back to default service", map[string]interface{}{
				"from":   current,
				"to":     f.defaultURL,
				"cursor": cursor,
			})
			ui.PrintWarning("Fetching from " + current + " failed, retrying once via " + f.defaultURL)
			if f.OnFallback != nil {
				f.OnFallback(current, lastErr)
			}

			result.FallbackUsed = true
			current = f.defaultURL
			client = f.newClient(current)
			f.limiter.Reset()
			state = StateFetching

		case StateDone:
			result.Endpoint = current
			if len(result.Posts) == 0 {
				return nil, &errors.Error{
					Kind:    errors.KindEmptyResult,
					Op:      "export",
					Message: "no posts to save",
				}
			}
			ui.Println("Fetched " + progress.Summary())
			f.logger.InfoWithFields("pagination complete", map[string]interface{}{
				"did":              did,
				"endpoint":         current,
				"posts":            len(result.Posts),
				"pages":            result.Pages,
				"fallback_used":    result.FallbackUsed,
				"posts_per_second": progress.Rate(),
			})
			return result, nil

		case StateFailed:
			f.logger.WithError(lastErr).ErrorWithFields("fetching posts failed", map[string]interface{}{
				"did":           did,
				"endpoint":      current,
				"fallback_used": result.FallbackUsed,
			})
			return nil, lastErr
		}
	}
}

// Normalize converts a raw post record to its archive form. Images are
// expanded only for app.bsky.embed.images embeds.
func Normalize(rec atproto.Record, did, cdnURL string) (archive.Post, error) {
	value, err := rec.Post()
	if err != nil {
		return archive.Post{}, err
	}

	post := archive.Post{
		CreatedAt: value.CreatedAt,
		Text:      value.Text,
		Images:    []archive.Image{},
	}

	if value.Embed == nil || value.Embed.Type != atproto.EmbedImagesType {
		return post, nil
	}
	for _, img := range value.Embed.Images {
		cid := img.Image.CID()
		if cid == "" {
			continue
		}
		post.Images = append(post.Images, archive.Image{
			URL:     atproto.ImageURL(cdnURL, did, cid),
			AltText: img.Alt,
		})
	}
	return post, nil
}

func normalizeEndpoint(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/")
}
