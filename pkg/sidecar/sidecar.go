// Package sidecar builds Immich-compatible JSON sidecar metadata and the
// descriptive filenames assets are stored under. Immich picks up a .json
// file sharing the media file's name for date sorting, albums, and tags.
package sidecar

import (
	"encoding/json"
	"fmt"
	"strings"

	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/reddit"
)

// Metadata is the sidecar document written beside each asset.
type Metadata struct {
	DateTimeOriginal string   `json:"dateTimeOriginal"`
	Description      string   `json:"description"`
	Albums           []string `json:"albums"`
	Tags             []string `json:"tags"`
	Rating           int      `json:"rating"`
	People           []string `json:"people,omitempty"`
	ExternalURL      string   `json:"externalUrl,omitempty"`
}

const maxDescriptionRunes = 500

// Build derives sidecar metadata from a post. Pure function of its inputs.
func Build(post *reddit.Post, kind fetcher.MediaKind) Metadata {
	sourceName := post.SourceName
	if sourceName == "" {
		sourceName = post.Subreddit
	}

	album := "r/" + post.Subreddit
	if post.SourceKind == reddit.SourceUser {
		album = "u/" + sourceName
	}

	tags := []string{"reddit", sourceName, string(kind)}
	if post.LinkFlairText != "" {
		tags = append(tags, post.LinkFlairText)
	}
	if post.SourceKind != "" {
		tags = append(tags, "from_"+string(post.SourceKind))
	}

	meta := Metadata{
		DateTimeOriginal: post.CreatedTime().Format("2006-01-02T15:04:05Z07:00"),
		Description:      truncateRunes(post.Title, maxDescriptionRunes),
		Albums:           []string{album},
		Tags:             tags,
		Rating:           Rating(post.Score),
	}

	if author := post.Author; author != "" && author != "[deleted]" && author != "AutoModerator" {
		meta.People = []string{author}
	}
	if post.Permalink != "" {
		meta.ExternalURL = post.FullPermalink()
	}

	return meta
}

// Rating maps a post score onto Immich's 1..5 star scale.
func Rating(score int) int {
	switch {
	case score >= 1000:
		return 5
	case score >= 200:
		return 4
	case score >= 50:
		return 3
	case score >= 10:
		return 2
	default:
		return 1
	}
}

// Encode renders the metadata as indented JSON.
func Encode(meta Metadata) ([]byte, error) {
	return json.MarshalIndent(meta, "", "  ")
}

// Filename builds the descriptive asset filename:
// {source}_{author}_{YYYYMMDD}_{HHmmss}_{postid}[_{ordinal}]{ext}.
// Components are sanitized to alphanumerics plus - and _; a deleted or
// missing author becomes "unknown". Ordinal 0 means a single asset.
func Filename(post *reddit.Post, ext string, ordinal int) string {
	source := post.SourceName
	if source == "" {
		source = post.Subreddit
	}
	safeSource := truncateRunes(sanitizeName(source), 30)

	safeAuthor := truncateRunes(sanitizeName(post.Author), 20)
	if safeAuthor == "" || safeAuthor == "deleted" || safeAuthor == "AutoModerator" {
		safeAuthor = "unknown"
	}

	dateStr := post.CreatedTime().Format("20060102_150405")

	if ordinal > 0 {
		return fmt.Sprintf("%s_%s_%s_%s_%d%s", safeSource, safeAuthor, dateStr, post.ID, ordinal, ext)
	}
	return fmt.Sprintf("%s_%s_%s_%s%s", safeSource, safeAuthor, dateStr, post.ID, ext)
}

// sanitizeName strips everything but alphanumerics, dashes, and underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
