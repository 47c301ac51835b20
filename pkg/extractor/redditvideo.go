package extractor

import (
	"context"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

// RedditVideoExtractor resolves v.redd.it posts to the MP4 fallback URL
// carried in the post's media payload. Audio is muxed separately by reddit
// and is intentionally not fetched.
type RedditVideoExtractor struct{}

func (e *RedditVideoExtractor) Name() string { return "redditvideo" }

func (e *RedditVideoExtractor) Matches(post *reddit.Post) bool {
	return post.Domain == "v.redd.it" || urlHost(post.URL) == "v.redd.it"
}

func (e *RedditVideoExtractor) Resolve(_ context.Context, post *reddit.Post) ([]AssetReference, error) {
	video := post.RedditVideo()
	if video == nil || video.FallbackURL == "" {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"post %s has no video payload", post.ID)
	}

	// The fallback is always an MP4 rendition, even for is_gif posts.
	return []AssetReference{{URL: unescapeURL(video.FallbackURL), Kind: fetcher.KindVideo}}, nil
}
