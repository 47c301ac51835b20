package extractor

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

const defaultOEmbedBase = "https://api.redgifs.com/v1/oembed"

// RedgifsExtractor resolves redgifs and gfycat links through the redgifs
// oEmbed endpoint. The lookup goes through the shared fetcher so it counts
// against the same token bucket as everything else. Any failure degrades to
// ResolutionFailed for the affected post.
type RedgifsExtractor struct {
	fetcher    *fetcher.Fetcher
	oembedBase string
}

// NewRedgifsExtractor creates the extractor. A nil fetcher disables
// resolution; affected posts then fail softly instead of crashing the run.
func NewRedgifsExtractor(f *fetcher.Fetcher) *RedgifsExtractor {
	return &RedgifsExtractor{fetcher: f, oembedBase: defaultOEmbedBase}
}

// SetOEmbedBase overrides the lookup endpoint, used by tests.
func (e *RedgifsExtractor) SetOEmbedBase(base string) {
	e.oembedBase = base
}

func (e *RedgifsExtractor) Name() string { return "redgifs" }

func (e *RedgifsExtractor) Matches(post *reddit.Post) bool {
	host := urlHost(post.URL)
	return strings.HasSuffix(host, "redgifs.com") || strings.HasSuffix(host, "gfycat.com")
}

func (e *RedgifsExtractor) Resolve(ctx context.Context, post *reddit.Post) ([]AssetReference, error) {
	if e.fetcher == nil {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"no resolver available for %s", post.URL)
	}

	var oembed struct {
		ThumbnailURL string `json:"thumbnail_url"`
	}
	lookupURL := fmt.Sprintf("%s?url=%s", e.oembedBase, url.QueryEscape(post.URL))
	if err := e.fetcher.FetchJSON(ctx, lookupURL, &oembed); err != nil {
		return nil, errors.Wrap(errors.TypeResolutionFailed,
			fmt.Sprintf("oembed lookup failed for %s", post.URL), err)
	}
	if oembed.ThumbnailURL == "" {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"oembed response for %s has no thumbnail", post.URL)
	}

	return []AssetReference{{
		URL:  videoFromThumbnail(oembed.ThumbnailURL),
		Kind: fetcher.KindVideo,
	}}, nil
}

// videoFromThumbnail derives the MP4 URL from the oEmbed poster image. The
// poster lives beside the video as {name}-poster.jpg.
func videoFromThumbnail(thumbnail string) string {
	if base, ok := strings.CutSuffix(thumbnail, "-poster.jpg"); ok {
		return base + ".mp4"
	}
	return strings.TrimSuffix(thumbnail, path.Ext(thumbnail)) + ".mp4"
}
