package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

// ImgurExtractor normalizes imgur links: .gifv wrappers become their .mp4
// rendition and bare page links are mapped to the direct image host. Albums
// and galleries are not supported.
type ImgurExtractor struct{}

func (e *ImgurExtractor) Name() string { return "imgur" }

func (e *ImgurExtractor) Matches(post *reddit.Post) bool {
	host := urlHost(post.URL)
	return host == "imgur.com" || strings.HasSuffix(host, ".imgur.com")
}

func (e *ImgurExtractor) Resolve(_ context.Context, post *reddit.Post) ([]AssetReference, error) {
	parsed, err := url.Parse(post.URL)
	if err != nil {
		return nil, errors.Wrap(errors.TypeResolutionFailed,
			fmt.Sprintf("unparseable imgur URL %s", post.URL), err)
	}

	trimmed := strings.Trim(parsed.Path, "/")
	if strings.HasPrefix(trimmed, "a/") || strings.HasPrefix(trimmed, "gallery/") {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"imgur albums are not supported (%s)", post.URL)
	}

	// The .gifv wrapper is an HTML page; the same path with .mp4 is the
	// actual video.
	if strings.HasSuffix(trimmed, ".gifv") {
		id := strings.TrimSuffix(trimmed, ".gifv")
		return []AssetReference{{
			URL:  fmt.Sprintf("https://i.imgur.com/%s.mp4", id),
			Kind: fetcher.KindVideo,
		}}, nil
	}

	if kind := kindForURL(post.URL); kind != "" {
		return []AssetReference{{
			URL:  fmt.Sprintf("https://i.imgur.com/%s", trimmed),
			Kind: kind,
		}}, nil
	}

	// A bare page link like imgur.com/abc123 serves the image directly
	// once an extension is appended.
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"unrecognized imgur link %s", post.URL)
	}
	return []AssetReference{{
		URL:  fmt.Sprintf("https://i.imgur.com/%s.jpg", trimmed),
		Kind: fetcher.KindImage,
	}}, nil
}
