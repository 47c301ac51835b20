package reddit

import (
	"fmt"
	"time"
)

// SourceKind distinguishes the two listing types a collection run can target.
type SourceKind string

const (
	SourceSubreddit SourceKind = "subreddit"
	SourceUser      SourceKind = "user"
)

// Source identifies one listing to page through.
type Source struct {
	Kind       SourceKind
	Name       string
	Sort       string // hot, new, top, rising (subreddits only)
	TimeFilter string // hour, day, week, month, year, all (top only)
}

// Label returns the conventional short form, r/name or u/name.
func (s Source) Label() string {
	if s.Kind == SourceUser {
		return "u/" + s.Name
	}
	return "r/" + s.Name
}

// Post is one submission as returned by the public JSON listings. Only the
// fields the pipeline consumes are mapped.
type Post struct {
	ID            string  `json:"id"`
	Subreddit     string  `json:"subreddit"`
	Author        string  `json:"author"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	Score         int     `json:"score"`
	CreatedUTC    float64 `json:"created_utc"`
	Over18        bool    `json:"over_18"`
	IsGallery     bool    `json:"is_gallery"`
	IsVideo       bool    `json:"is_video"`
	Permalink     string  `json:"permalink"`
	LinkFlairText string  `json:"link_flair_text"`

	Preview       *Preview                `json:"preview,omitempty"`
	GalleryData   *GalleryData            `json:"gallery_data,omitempty"`
	MediaMetadata map[string]GalleryMedia `json:"media_metadata,omitempty"`
	Media         *Media                  `json:"media,omitempty"`
	SecureMedia   *Media                  `json:"secure_media,omitempty"`

	// Set by the client after decoding, not part of the wire format.
	SourceKind SourceKind `json:"-"`
	SourceName string     `json:"-"`
}

// CreatedTime converts the epoch timestamp to UTC.
func (p *Post) CreatedTime() time.Time {
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// FullPermalink returns the absolute permalink URL.
func (p *Post) FullPermalink() string {
	return fmt.Sprintf("https://reddit.com%s", p.Permalink)
}

// RedditVideo returns the hosted-video descriptor, preferring secure_media.
func (p *Post) RedditVideo() *RedditVideo {
	if p.SecureMedia != nil && p.SecureMedia.RedditVideo != nil {
		return p.SecureMedia.RedditVideo
	}
	if p.Media != nil && p.Media.RedditVideo != nil {
		return p.Media.RedditVideo
	}
	return nil
}

// GalleryData carries the author-chosen ordering of gallery entries.
type GalleryData struct {
	Items []GalleryItem `json:"items"`
}

// GalleryItem references one entry of media_metadata by its media_id.
type GalleryItem struct {
	MediaID string `json:"media_id"`
	ID      int    `json:"id"`
}

// GalleryMedia is one media_metadata entry.
type GalleryMedia struct {
	Status string         `json:"status"` // only "valid" entries are usable
	Kind   string         `json:"e"`      // "Image" or "AnimatedImage"
	Mime   string         `json:"m"`      // e.g. "image/jpg"
	Source *GallerySource `json:"s"`
}

// GallerySource holds the full-resolution variants of a gallery entry.
type GallerySource struct {
	URL string `json:"u"`
	GIF string `json:"gif"`
	MP4 string `json:"mp4"`
	X   int    `json:"x"`
	Y   int    `json:"y"`
}

// Preview mirrors the preview block attached to link posts.
type Preview struct {
	Images []PreviewImage `json:"images"`
}

// PreviewImage is one rendition set within a preview block.
type PreviewImage struct {
	Source PreviewSource `json:"source"`
}

// PreviewSource is the full-size preview rendition.
type PreviewSource struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Media wraps the hosted-video descriptor of media / secure_media.
type Media struct {
	RedditVideo *RedditVideo `json:"reddit_video"`
}

// RedditVideo describes a v.redd.it video.
type RedditVideo struct {
	FallbackURL string `json:"fallback_url"`
	Duration    int    `json:"duration"`
	IsGIF       bool   `json:"is_gif"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}
