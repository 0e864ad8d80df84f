package exporter

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/symmetricalboy/bsky-to-gem/pkg/archive"
	"github.com/symmetricalboy/bsky-to-gem/pkg/atproto"
	"github.com/symmetricalboy/bsky-to-gem/pkg/config"
	"github.com/symmetricalboy/bsky-to-gem/pkg/identity"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ratelimit"
	"github.com/symmetricalboy/bsky-to-gem/pkg/retry"
	"github.com/symmetricalboy/bsky-to-gem/pkg/store"
	"github.com/symmetricalboy/bsky-to-gem/pkg/tokens"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

// HistoryRecorder stores finished exports
type HistoryRecorder interface {
	RecordExport(ctx context.Context, e store.Export) (int64, error)
}

// Result describes a finished export
type Result struct {
	RunID        string
	Identity     *identity.Identity
	Discovery    identity.Discovery
	Endpoint     string
	FallbackUsed bool
	Posts        int
	ArchivePath  string
	ArchiveBytes int64
	// Path is the archive to hand on: the trimmed one when a trim happened
	Path     string
	Trim     *tokens.Result
	Duration time.Duration
}

// Exporter runs the full export of one account
type Exporter struct {
	cfg       *config.Config
	cache     identity.Cache
	limiter   ratelimit.Limiter
	retry     *retry.Config
	archive   *archive.Manager
	estimator tokens.Estimator
	confirmer tokens.Confirmer
	history   HistoryRecorder
	logger    logger.Logger
}

// run holds the components of one export. They all log with its run id.
type run struct {
	id         string
	log        logger.Logger
	resolver   *identity.Resolver
	discoverer *identity.Discoverer
	fetcher    *Fetcher
	archive    *archive.Manager
	trimmer    *tokens.Trimmer
}

// Option customizes an Exporter
type Option func(*exporterOptions)

type exporterOptions struct {
	cache     identity.Cache
	history   HistoryRecorder
	confirmer tokens.Confirmer
	estimator tokens.Estimator
	limiter   ratelimit.Limiter
	retry     *retry.Config
}

// WithStore caches identities (when enabled in the config) and records
// export history in s
func WithStore(s *store.Store) Option {
	return func(o *exporterOptions) {
		if s == nil {
			return
		}
		o.cache = s
		o.history = s
	}
}

// WithIdentityCache sets the identity cache
func WithIdentityCache(c identity.Cache) Option {
	return func(o *exporterOptions) { o.cache = c }
}

// WithHistory sets where finished exports are recorded
func WithHistory(h HistoryRecorder) Option {
	return func(o *exporterOptions) { o.history = h }
}

// WithConfirmer sets who answers the trim prompt
func WithConfirmer(c tokens.Confirmer) Option {
	return func(o *exporterOptions) { o.confirmer = c }
}

// WithEstimator overrides the configured token estimator
func WithEstimator(e tokens.Estimator) Option {
	return func(o *exporterOptions) { o.estimator = e }
}

// WithLimiter overrides the configured request pacing
func WithLimiter(l ratelimit.Limiter) Option {
	return func(o *exporterOptions) { o.limiter = l }
}

// WithRetry overrides the configured retry policy
func WithRetry(r *retry.Config) Option {
	return func(o *exporterOptions) { o.retry = r }
}

// New creates an exporter from cfg
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Exporter, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.GetLogger()
	}

	var o exporterOptions
	for _, opt := range opts {
		opt(&o)
	}

	mgr, err := archive.NewManager(cfg.Output.Directory, log)
	if err != nil {
		return nil, err
	}

	e := &Exporter{
		cfg:     cfg,
		limiter: o.limiter,
		retry:   o.retry,
		archive: mgr,
		history: o.history,
		logger:  log,
	}
	if o.cache != nil && cfg.Store.CacheIdentities {
		e.cache = o.cache
	}
	if e.limiter == nil {
		e.limiter = ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute)
	}

	if cfg.Tokens.Enabled {
		e.estimator = o.estimator
		if e.estimator == nil {
			e.estimator, err = tokens.NewEstimator(cfg.Tokens.Estimator, cfg.Tokens.Encoding)
			if err != nil {
				return nil, err
			}
		}
		e.confirmer = o.confirmer
		if e.confirmer == nil {
			e.confirmer = ConfirmerFor(cfg.Tokens.AutoConfirm)
		}
	}

	return e, nil
}

// newRun wires the components of one export to a logger carrying its id
func (e *Exporter) newRun() *run {
	id := uuid.NewString()
	log := e.logger.WithField("run_id", id)
	r := &run{id: id, log: log}

	svc := e.cfg.Service
	newClient := func(baseURL string, timeout time.Duration) *atproto.Client {
		c := atproto.NewClient(baseURL, timeout, log)
		if svc.UserAgent != "" {
			c.SetHeader("User-Agent", svc.UserAgent)
		}
		return c
	}

	r.resolver = identity.NewResolver(newClient(svc.PublicURL, svc.RequestTimeout), log)
	if e.cache != nil {
		r.resolver.WithCache(e.cache, e.cfg.Store.CacheTTL)
	}
	r.discoverer = identity.NewDiscoverer(newClient(svc.PLCDirectory, 0), svc.PLCDirectory, svc.DiscoveryTimeout, log)

	retryCfg := e.retry
	if retryCfg == nil {
		retryCfg = retry.FromConfig(e.cfg.Retry, log)
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			ui.PrintWarning(fmt.Sprintf("Rate limited, retrying in %s", delay.Round(time.Millisecond)))
		}
	}
	r.fetcher = NewFetcher(func(baseURL string) RecordLister {
		return newClient(baseURL, svc.RequestTimeout)
	}, svc.PublicURL, svc.CDNURL, svc.PageSize, e.limiter, retryCfg, log)

	r.archive = e.archive.WithLogger(log)
	if e.estimator != nil {
		r.trimmer = tokens.NewTrimmer(e.estimator, e.confirmer, r.archive, e.cfg.Tokens.Limit, e.cfg.Tokens.SafetyMargin, log)
	}
	return r
}

// ConfirmerFor maps the auto_confirm setting to a confirmer
func ConfirmerFor(autoConfirm string) tokens.Confirmer {
	switch strings.ToLower(strings.TrimSpace(autoConfirm)) {
	case "yes", "y", "true":
		return tokens.FixedConfirmer(true)
	case "no", "n", "false":
		return tokens.FixedConfirmer(false)
	default:
		return tokens.NewConsoleConfirmer()
	}
}

// Run exports every post of handle. Nothing is written unless the whole
// listing succeeds.
func (e *Exporter) Run(ctx context.Context, handle string) (*Result, error) {
	start := time.Now()
	r := e.newRun()
	result := &Result{RunID: r.id}

	ui.PrintTitle("Bluesky post export")

	id, err := r.resolver.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}
	result.Identity = id
	ui.PrintInfo("Handle", id.Handle)
	ui.PrintInfo("DID", id.DID)

	endpoint := r.endpointFor(ctx, id, result)

	// a failing endpoint must not be served from the cache next time
	r.fetcher.OnFallback = func(string, error) {
		r.resolver.Purge(ctx, id.Handle)
	}

	fetched, err := r.fetcher.Fetch(ctx, id.DID, endpoint)
	if err != nil {
		return nil, err
	}
	result.Endpoint = fetched.Endpoint
	result.FallbackUsed = fetched.FallbackUsed
	result.Posts = len(fetched.Posts)

	path, err := r.archive.Save(id.Handle, fetched.Posts)
	if err != nil {
		return nil, err
	}
	result.ArchivePath = path
	result.Path = path
	saved := fmt.Sprintf("Saved %s posts to %s", ui.FormatCount(result.Posts), path)
	if info, err := os.Stat(path); err == nil {
		result.ArchiveBytes = info.Size()
		saved += " (" + ui.FormatBytes(info.Size()) + ")"
	}
	ui.PrintSuccess(saved)

	if r.trimmer != nil {
		tr, err := r.trimmer.Check(ctx, path, fetched.Posts, id.Handle)
		if err != nil {
			return nil, err
		}
		result.Trim = tr
		result.Path = tr.Path
	}

	if !result.FallbackUsed {
		id.PDSURL = endpoint
		r.resolver.Remember(ctx, id)
	}

	result.Duration = time.Since(start)
	e.record(ctx, r.log, result)

	r.log.InfoWithFields("export complete", map[string]interface{}{
		"handle":        id.Handle,
		"did":           id.DID,
		"endpoint":      result.Endpoint,
		"fallback_used": result.FallbackUsed,
		"posts":         result.Posts,
		"bytes":         result.ArchiveBytes,
		"path":          result.Path,
		"duration_ms":   result.Duration.Milliseconds(),
	})
	return result, nil
}

// endpointFor picks the listing endpoint: the cached PDS, then discovery,
// then the default service (returned as "")
func (r *run) endpointFor(ctx context.Context, id *identity.Identity, result *Result) string {
	if id.Method == identity.MethodCache && id.PDSURL != "" {
		ui.PrintInfo("PDS", id.PDSURL+" (cached)")
		result.Discovery = identity.Discovery{Endpoint: id.PDSURL, Outcome: identity.OutcomeFound}
		return r.nonDefault(id.PDSURL)
	}

	disc := r.discoverer.Discover(ctx, id.DID)
	result.Discovery = disc
	if !disc.Found() {
		ui.PrintWarning(fmt.Sprintf("Could not discover PDS (%s), using %s", disc.Outcome, r.fetcher.DefaultURL()))
		return ""
	}
	ui.PrintInfo("PDS", disc.Endpoint)
	return r.nonDefault(disc.Endpoint)
}

// nonDefault returns "" when endpoint is the default service itself
func (r *run) nonDefault(endpoint string) string {
	if normalizeEndpoint(endpoint) == r.fetcher.DefaultURL() {
		return ""
	}
	return endpoint
}

func (e *Exporter) record(ctx context.Context, log logger.Logger, result *Result) {
	if e.history == nil {
		return
	}

	rec := store.Export{
		RunID:        result.RunID,
		Handle:       result.Identity.Handle,
		DID:          result.Identity.DID,
		Endpoint:     result.Endpoint,
		FallbackUsed: result.FallbackUsed,
		Posts:        result.Posts,
		File:         result.ArchivePath,
	}
	if result.Trim != nil {
		rec.Tokens = result.Trim.Tokens
		if result.Trim.Trimmed {
			rec.TrimmedFile = result.Trim.Path
		}
	}

	if _, err := e.history.RecordExport(ctx, rec); err != nil {
		log.WithError(err).Warn("failed to record export history")
	}
}
