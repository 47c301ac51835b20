// Package extractor turns raw post links into concrete, fetchable asset
// URLs. Each extractor claims a domain pattern; the registry dispatches to
// the first match in registration order.
package extractor

import (
	"context"
	"net/url"
	"path"
	"strings"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/logger"
	"redditcollector/pkg/reddit"
)

// AssetReference is one resolved asset: a directly fetchable URL, its media
// kind, and a gallery ordinal (1..N for gallery members, 0 otherwise).
type AssetReference struct {
	URL     string
	Kind    fetcher.MediaKind
	Ordinal int
}

// Extractor resolves posts whose URLs it claims via Matches.
type Extractor interface {
	Name() string
	Matches(post *reddit.Post) bool
	Resolve(ctx context.Context, post *reddit.Post) ([]AssetReference, error)
}

// Registry dispatches posts to extractors. The first registered extractor
// whose Matches returns true wins; ambiguity is resolved by registration
// order, not specificity.
type Registry struct {
	extractors []Extractor
	logger     logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Registry{logger: log}
}

// Register appends an extractor. Order of registration is dispatch order.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Resolve finds the first claiming extractor and returns its assets.
// UnsupportedSource means no extractor claimed the URL; ResolutionFailed
// means the claiming extractor could not produce a fetchable URL. Both are
// recoverable per post.
func (r *Registry) Resolve(ctx context.Context, post *reddit.Post) ([]AssetReference, error) {
	for _, e := range r.extractors {
		if !e.Matches(post) {
			continue
		}

		refs, err := e.Resolve(ctx, post)
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			return nil, errors.Newf(errors.TypeResolutionFailed,
				"extractor %s produced no assets for post %s", e.Name(), post.ID)
		}

		r.logger.DebugWithFields("resolved post", map[string]interface{}{
			"post_id":   post.ID,
			"extractor": e.Name(),
			"assets":    len(refs),
		})
		return refs, nil
	}

	return nil, errors.Newf(errors.TypeUnsupportedSource,
		"no extractor claims %s (domain %s)", post.URL, post.Domain)
}

// DefaultRegistry wires the standard extractor chain. Registration order
// matters: gallery posts carry direct-looking URLs and must be claimed
// first, and the preview fallback must come last.
func DefaultRegistry(f *fetcher.Fetcher, log logger.Logger) *Registry {
	r := NewRegistry(log)
	r.Register(&GalleryExtractor{})
	r.Register(&DirectExtractor{})
	r.Register(&ImgurExtractor{})
	r.Register(&RedditVideoExtractor{})
	r.Register(NewRedgifsExtractor(f))
	r.Register(&PreviewExtractor{})
	return r
}

// unescapeURL undoes the HTML entity escaping the listing API applies to
// preview and gallery URLs.
func unescapeURL(raw string) string {
	return strings.ReplaceAll(raw, "&amp;", "&")
}

// urlHost returns the lowercased host of raw, or "" if unparseable.
func urlHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// urlExtension returns the lowercased path extension of raw, ignoring any
// query string.
func urlExtension(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}

var extensionKinds = map[string]fetcher.MediaKind{
	".jpg":  fetcher.KindImage,
	".jpeg": fetcher.KindImage,
	".png":  fetcher.KindImage,
	".webp": fetcher.KindImage,
	".gif":  fetcher.KindGIF,
	".mp4":  fetcher.KindVideo,
	".webm": fetcher.KindVideo,
}

// kindForURL maps a URL's extension to a media kind, or "" when unknown.
func kindForURL(raw string) fetcher.MediaKind {
	return extensionKinds[urlExtension(raw)]
}
