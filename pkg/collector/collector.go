// Package collector drives the collection pipeline: it pages listings per
// configured target, filters posts, resolves them through the extractor
// registry, and hands surviving assets to the download workers.
package collector

import (
	"context"
	"strings"
	"sync"

	"redditcollector/internal/downloader"
	"redditcollector/pkg/config"
	"redditcollector/pkg/errors"
	"redditcollector/pkg/extractor"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/logger"
	"redditcollector/pkg/ratelimit"
	"redditcollector/pkg/reddit"
	"redditcollector/pkg/storage"
	"redditcollector/pkg/store"
)

// Collector owns one collection run's collaborators. One token bucket is
// shared by listing calls, oEmbed lookups, and asset downloads.
type Collector struct {
	cfg      *config.Config
	logger   logger.Logger
	limiter  ratelimit.Limiter
	fetcher  *fetcher.Fetcher
	client   *reddit.Client
	registry *extractor.Registry
	store    *store.Store
	files    *storage.Manager
	dryRun   bool
}

// New wires a collector from configuration. Store or output directory
// problems are fatal here, before any network activity.
func New(cfg *config.Config, log logger.Logger) (*Collector, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
	f := fetcher.New(limiter, fetcher.Options{
		Timeout:     cfg.Download.DownloadTimeout,
		MaxSize:     cfg.MaxFileSizeBytes(),
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		BaseDelay:   cfg.RateLimit.BaseDelay,
		MaxDelay:    cfg.RateLimit.MaxDelay,
	}, log)

	st, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		return nil, err
	}

	files, err := storage.NewManager(cfg.Download.OutputDir)
	if err != nil {
		st.Close()
		return nil, errors.Wrap(errors.TypeConfigInvalid, "output directory is unusable", err)
	}

	return &Collector{
		cfg:      cfg,
		logger:   log,
		limiter:  limiter,
		fetcher:  f,
		client:   reddit.NewClient(f, log),
		registry: extractor.DefaultRegistry(f, log),
		store:    st,
		files:    files,
	}, nil
}

// SetDryRun makes the run report what it would download without fetching
// assets or writing anything.
func (c *Collector) SetDryRun(dryRun bool) {
	c.dryRun = dryRun
}

// Store exposes the underlying store for reporting commands.
func (c *Collector) Store() *store.Store {
	return c.store
}

// Close releases the store.
func (c *Collector) Close() error {
	return c.store.Close()
}

// Run collects all configured targets sequentially. A target whose listing
// stays unreachable is abandoned and counted; the run carries on with the
// next one. The returned summary is valid even when err is non-nil.
func (c *Collector) Run(ctx context.Context) (*Summary, error) {
	if c.cfg.Download.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Download.RunTimeout)
		defer cancel()
	}

	summary := NewSummary()

	targets := c.targets()
	c.logger.InfoWithFields("starting collection run", map[string]interface{}{
		"targets": len(targets),
		"dry_run": c.dryRun,
	})

	for _, target := range targets {
		if ctx.Err() != nil {
			c.logger.Warn("run cancelled, stopping")
			return summary, ctx.Err()
		}
		c.collectTarget(ctx, target, summary)
	}

	c.logger.InfoWithFields("collection run finished", map[string]interface{}{
		"summary": summary.String(),
	})
	return summary, nil
}

type target struct {
	source reddit.Source
	limit  int
}

func (c *Collector) targets() []target {
	var targets []target
	for _, t := range c.cfg.Targets.Subreddits {
		targets = append(targets, target{
			source: reddit.Source{
				Kind:       reddit.SourceSubreddit,
				Name:       t.Name,
				Sort:       t.Sort,
				TimeFilter: t.TimeFilter,
			},
			limit: t.Limit,
		})
	}
	for _, t := range c.cfg.Targets.Users {
		targets = append(targets, target{
			source: reddit.Source{Kind: reddit.SourceUser, Name: t.Name},
			limit:  t.Limit,
		})
	}
	return targets
}

// collectTarget pages one listing until its post limit or the end of the
// listing, feeding a worker pool that lives for the duration of the target.
func (c *Collector) collectTarget(ctx context.Context, t target, summary *Summary) {
	c.logger.InfoWithFields("collecting target", map[string]interface{}{
		"source": t.source.Label(),
		"limit":  t.limit,
	})

	pool := downloader.NewWorkerPool(ctx, c.cfg.Download.ConcurrentDownloads,
		c.fetcher, c.store, c.files, c.cfg.Download.GenerateSidecar, c.logger)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range pool.Results() {
			summary.record(result)
			if result.Status == downloader.StatusFailed {
				c.logger.WarnWithFields("asset failed", map[string]interface{}{
					"item_id": result.Job.ItemID,
					"url":     result.Job.Ref.URL,
					"error":   result.Err.Error(),
				})
			}
		}
	}()

	processed := 0
	after := ""
	for ctx.Err() == nil {
		pageSize := 100
		if t.limit > 0 {
			remaining := t.limit - processed
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		posts, next, err := c.client.FetchPage(ctx, t.source, after, pageSize)
		if err != nil {
			c.logger.ErrorWithFields("listing unavailable, abandoning target", map[string]interface{}{
				"source": t.source.Label(),
				"error":  err.Error(),
			})
			summary.abortTarget()
			break
		}
		if len(posts) == 0 {
			break
		}

		for i := range posts {
			if ctx.Err() != nil {
				break
			}
			if t.limit > 0 && processed >= t.limit {
				break
			}
			processed++
			summary.incProcessed()
			c.processPost(ctx, &posts[i], pool, summary)
		}

		if next == "" {
			break
		}
		after = next
	}

	pool.Stop()
	wg.Wait()
}

// processPost runs the per-post stages: pure filtering, extraction, and the
// per-asset gates before submission. Extraction errors skip the post only.
func (c *Collector) processPost(ctx context.Context, post *reddit.Post, pool *downloader.WorkerPool, summary *Summary) {
	if reason := c.filterPost(post); reason != "" {
		summary.addFiltered(reason)
		c.logger.DebugWithFields("post filtered", map[string]interface{}{
			"post_id": post.ID,
			"reason":  reason,
		})
		return
	}

	refs, err := c.registry.Resolve(ctx, post)
	if err != nil {
		switch errors.TypeOf(err) {
		case errors.TypeUnsupportedSource:
			summary.addSkipped("unsupported_source")
		case errors.TypeResolutionFailed:
			summary.addSkipped("resolution_failed")
		default:
			summary.addFailure(string(errors.TypeOf(err)))
		}
		c.logger.DebugWithFields("post not resolvable", map[string]interface{}{
			"post_id": post.ID,
			"url":     post.URL,
			"error":   err.Error(),
		})
		return
	}

	for _, ref := range refs {
		c.processAsset(post, ref, pool, summary)
	}
}

func (c *Collector) processAsset(post *reddit.Post, ref extractor.AssetReference, pool *downloader.WorkerPool, summary *Summary) {
	if !c.cfg.KindAllowed(string(ref.Kind)) {
		summary.addSkipped("kind_not_allowed")
		return
	}

	if ref.Kind == fetcher.KindVideo && c.cfg.Download.VideosOnlyFromFavorites {
		favorite, err := c.store.IsFavorite(post.ID)
		if err != nil {
			summary.addFailure(string(errors.TypeOf(err)))
			return
		}
		if !favorite {
			summary.addSkipped("video_not_favorited")
			return
		}
	}

	itemID := downloader.ItemID(post.ID, ref.Ordinal)
	downloaded, err := c.store.ItemDownloaded(itemID)
	if err != nil {
		summary.addFailure(string(errors.TypeOf(err)))
		return
	}
	if downloaded {
		summary.addSkipped("already_downloaded")
		return
	}

	if c.dryRun {
		summary.addSkipped("dry_run")
		c.logger.InfoWithFields("would download", map[string]interface{}{
			"item_id": itemID,
			"url":     ref.URL,
			"kind":    string(ref.Kind),
		})
		return
	}

	if err := pool.Submit(downloader.Job{Post: post, Ref: ref, ItemID: itemID}); err != nil {
		summary.addFailure("submit")
	}
}

// filterPost applies the pure pre-network filters. Returns the reason a
// post is dropped, or "" when it survives.
func (c *Collector) filterPost(post *reddit.Post) string {
	if c.cfg.Download.SkipNSFW && post.Over18 {
		return "nsfw"
	}
	if post.Score < c.cfg.Download.MinScore {
		return "score"
	}

	for _, author := range c.cfg.Blacklist.Authors {
		if strings.EqualFold(post.Author, author) {
			return "blacklisted_author"
		}
	}
	for _, sub := range c.cfg.Blacklist.Subreddits {
		if strings.EqualFold(post.Subreddit, sub) {
			return "blacklisted_subreddit"
		}
	}
	for _, domain := range c.cfg.Blacklist.Domains {
		if strings.EqualFold(post.Domain, domain) {
			return "blacklisted_domain"
		}
	}
	title := strings.ToLower(post.Title)
	for _, keyword := range c.cfg.Blacklist.TitleKeywords {
		if keyword != "" && strings.Contains(title, strings.ToLower(keyword)) {
			return "blacklisted_title"
		}
	}

	return ""
}
