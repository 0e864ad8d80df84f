// Package exporter runs a complete Bluesky post export.
//
// The Exporter coordinates the steps of one run:
//   - resolves the handle to a DID, optionally through the identity cache
//   - discovers the PDS hosting the repo from the DID document
//   - pages through app.bsky.feed.post records, falling back once to the
//     public service when the discovered PDS fails
//   - writes the newest-first JSON archive
//   - checks the archive against the token budget and offers a trim
//
// Usage:
//
//	cfg, err := config.Load("", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	exp, err := exporter.New(cfg, logger.GetLogger())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := exp.Run(ctx, "alice.bsky.social")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Path)
//
// Pagination:
//
// The Fetcher is an explicit state machine (fetching, fallback_retry, done,
// failed). The cursor and the posts collected so far survive the fallback.
// An export with zero posts always fails and writes nothing.
package exporter
