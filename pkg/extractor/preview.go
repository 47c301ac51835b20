package extractor

import (
	"context"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

// PreviewExtractor is the last-resort fallback: any post carrying a reddit
// preview block yields its full-size preview image. Registered last so it
// only catches posts no dedicated extractor claimed.
type PreviewExtractor struct{}

func (e *PreviewExtractor) Name() string { return "preview" }

func (e *PreviewExtractor) Matches(post *reddit.Post) bool {
	return post.Preview != nil &&
		len(post.Preview.Images) > 0 &&
		post.Preview.Images[0].Source.URL != ""
}

func (e *PreviewExtractor) Resolve(_ context.Context, post *reddit.Post) ([]AssetReference, error) {
	rawURL := post.Preview.Images[0].Source.URL
	if rawURL == "" {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"post %s has an empty preview source", post.ID)
	}
	return []AssetReference{{URL: unescapeURL(rawURL), Kind: fetcher.KindImage}}, nil
}
