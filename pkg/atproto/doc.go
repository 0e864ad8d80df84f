// Package atproto provides a minimal unauthenticated XRPC client for the
// AT Protocol endpoints the exporter needs.
//
// This package includes:
//   - A configurable HTTP client with headers, logging and typed errors
//   - Models for handle resolution and repository record listing
//   - Helpers for building XRPC and image CDN URLs
//   - Handle normalization and syntax checks
//
// Example usage:
//
//	client := atproto.NewClient(atproto.DefaultServiceURL, 0, log)
//
//	did, err := client.ResolveHandle(ctx, "alice.bsky.social")
//	if err != nil {
//	    return err
//	}
//
//	page, err := client.ListRecords(ctx, atproto.ListRecordsParams{
//	    Repo:       did,
//	    Collection: atproto.CollectionPost,
//	})
package atproto
