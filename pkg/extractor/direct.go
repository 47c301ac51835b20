package extractor

import (
	"context"

	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

// DirectExtractor claims URLs that are already fetchable assets: anything on
// i.redd.it plus any URL carrying a known media extension.
type DirectExtractor struct{}

func (e *DirectExtractor) Name() string { return "direct" }

func (e *DirectExtractor) Matches(post *reddit.Post) bool {
	if urlHost(post.URL) == "i.redd.it" {
		return true
	}
	return kindForURL(post.URL) != ""
}

func (e *DirectExtractor) Resolve(_ context.Context, post *reddit.Post) ([]AssetReference, error) {
	kind := kindForURL(post.URL)
	if kind == "" {
		// i.redd.it links occasionally omit the extension.
		kind = fetcher.KindImage
	}
	return []AssetReference{{URL: unescapeURL(post.URL), Kind: kind}}, nil
}
