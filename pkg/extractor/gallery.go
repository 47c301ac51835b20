package extractor

import (
	"context"
	"sort"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

// GalleryExtractor expands a reddit gallery post into one reference per
// image, ordinals following the author-chosen gallery order.
type GalleryExtractor struct{}

func (e *GalleryExtractor) Name() string { return "gallery" }

func (e *GalleryExtractor) Matches(post *reddit.Post) bool {
	return post.IsGallery
}

func (e *GalleryExtractor) Resolve(_ context.Context, post *reddit.Post) ([]AssetReference, error) {
	if len(post.MediaMetadata) == 0 {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"gallery post %s has no media metadata", post.ID)
	}

	refs := make([]AssetReference, 0, len(post.MediaMetadata))
	for i, mediaID := range e.orderedIDs(post) {
		meta, ok := post.MediaMetadata[mediaID]
		if !ok || meta.Status != "valid" || meta.Source == nil {
			continue
		}

		rawURL, kind := pickGallerySource(meta)
		if rawURL == "" {
			continue
		}

		refs = append(refs, AssetReference{
			URL:     unescapeURL(rawURL),
			Kind:    kind,
			Ordinal: i + 1,
		})
	}

	if len(refs) == 0 {
		return nil, errors.Newf(errors.TypeResolutionFailed,
			"gallery post %s has no usable entries", post.ID)
	}
	return refs, nil
}

// orderedIDs returns media IDs in gallery order. gallery_data carries the
// author's ordering; sorted metadata keys are the fallback when it is absent.
func (e *GalleryExtractor) orderedIDs(post *reddit.Post) []string {
	if post.GalleryData != nil && len(post.GalleryData.Items) > 0 {
		ids := make([]string, 0, len(post.GalleryData.Items))
		for _, item := range post.GalleryData.Items {
			ids = append(ids, item.MediaID)
		}
		return ids
	}

	ids := make([]string, 0, len(post.MediaMetadata))
	for id := range post.MediaMetadata {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// pickGallerySource chooses the best variant of one gallery entry. Static
// images use the full-size URL; animated entries prefer the gif variant and
// fall back to the mp4 rendition.
func pickGallerySource(meta reddit.GalleryMedia) (string, fetcher.MediaKind) {
	source := meta.Source
	if meta.Kind == "AnimatedImage" {
		if source.GIF != "" {
			return source.GIF, fetcher.KindGIF
		}
		if source.MP4 != "" {
			return source.MP4, fetcher.KindVideo
		}
	}
	if source.URL != "" {
		return source.URL, fetcher.KindImage
	}
	if source.MP4 != "" {
		return source.MP4, fetcher.KindVideo
	}
	return "", ""
}
