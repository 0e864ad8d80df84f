package atproto

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultServiceURL is the public entryway used for handle resolution
	// and as the fallback listing endpoint
	DefaultServiceURL = "https://bsky.social"

	// DefaultCDNURL serves full size feed images by DID and blob CID
	DefaultCDNURL = "https://cdn.bsky.app/img/feed_fullsize/plain"

	// ResolveHandleMethod is the XRPC method resolving a handle to a DID
	ResolveHandleMethod = "com.atproto.identity.resolveHandle"

	// ListRecordsMethod is the XRPC method listing records in a repo collection
	ListRecordsMethod = "com.atproto.repo.listRecords"

	// CollectionPost is the NSID of feed posts
	CollectionPost = "app.bsky.feed.post"

	// EmbedImagesType is the $type of an image embed
	EmbedImagesType = "app.bsky.embed.images"

	// DefaultPageSize is the number of records requested per page
	DefaultPageSize = 100

	// MaxPageSize is the largest page listRecords accepts
	MaxPageSize = 100
)

// XRPCURL builds the URL of an XRPC query against base
func XRPCURL(base, method string, params url.Values) string {
	u := fmt.Sprintf("%s/xrpc/%s", strings.TrimRight(base, "/"), method)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// ResolveHandleURL constructs the URL resolving handle against base
func ResolveHandleURL(base, handle string) string {
	params := url.Values{}
	params.Set("handle", handle)
	return XRPCURL(base, ResolveHandleMethod, params)
}

// ListRecordsURL constructs the URL for one page of records
func ListRecordsURL(base string, p ListRecordsParams) string {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	} else if limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("repo", p.Repo)
	params.Set("collection", p.Collection)
	params.Set("limit", strconv.Itoa(limit))
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}
	return XRPCURL(base, ListRecordsMethod, params)
}

// ImageURL returns the CDN URL of an image blob. The URL is only
// constructed, never fetched.
func ImageURL(cdnBase, did, cid string) string {
	if cdnBase == "" {
		cdnBase = DefaultCDNURL
	}
	return fmt.Sprintf("%s/%s/%s@jpeg", strings.TrimRight(cdnBase, "/"), did, cid)
}
