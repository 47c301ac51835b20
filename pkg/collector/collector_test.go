package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"redditcollector/pkg/config"
	"redditcollector/pkg/logger"
	"redditcollector/pkg/reddit"
)

// testServer serves both the listing endpoint and the assets. Anything
// ending in .json is answered with the configured listing; /fail/ paths
// return 500; everything else returns bytes from the assets map.
type testServer struct {
	*httptest.Server
	listing   []byte
	assets    map[string][]byte
	assetHits int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{assets: make(map[string][]byte)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".json"):
			w.Header().Set("Content-Type", "application/json")
			w.Write(ts.listing)
		case strings.HasPrefix(r.URL.Path, "/fail/"):
			atomic.AddInt64(&ts.assetHits, 1)
			w.WriteHeader(http.StatusInternalServerError)
		default:
			atomic.AddInt64(&ts.assetHits, 1)
			data, ok := ts.assets[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if strings.HasSuffix(r.URL.Path, ".mp4") {
				w.Header().Set("Content-Type", "video/mp4")
			} else {
				w.Header().Set("Content-Type", "image/jpeg")
			}
			w.Write(data)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) setListing(t *testing.T, posts ...map[string]interface{}) {
	t.Helper()
	children := make([]map[string]interface{}, 0, len(posts))
	for _, post := range posts {
		children = append(children, map[string]interface{}{"data": post})
	}
	doc := map[string]interface{}{
		"data": map[string]interface{}{"after": "", "children": children},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal listing: %v", err)
	}
	ts.listing = data
}

func imagePost(ts *testServer, id string, score int, assetPath string) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"subreddit":   "testsub",
		"author":      "someone",
		"title":       "post " + id,
		"url":         ts.URL + assetPath,
		"domain":      "example.com",
		"score":       score,
		"created_utc": 1700000000.0,
		"permalink":   "/r/testsub/comments/" + id + "/post/",
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Targets.Subreddits = []config.SubredditTarget{{Name: "testsub", Sort: "hot"}}
	cfg.Download.OutputDir = t.TempDir()
	cfg.Download.MinScore = 10
	cfg.Download.GenerateSidecar = false
	cfg.Download.ConcurrentDownloads = 3
	cfg.Store.Path = filepath.Join(t.TempDir(), "media.db")
	cfg.RateLimit.RequestsPerMinute = 60000
	cfg.RateLimit.BurstSize = 1000
	cfg.RateLimit.MaxAttempts = 2
	cfg.RateLimit.BaseDelay = time.Millisecond
	cfg.RateLimit.MaxDelay = 10 * time.Millisecond
	cfg.Logging.Level = "error"
	return cfg
}

func newTestCollector(t *testing.T, cfg *config.Config, ts *testServer) *Collector {
	t.Helper()
	log, err := logger.New(&config.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	c, err := New(cfg, log)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.client.SetBaseURL(ts.URL)
	return c
}

func mediaFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	var files []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	return files
}

func TestRunDownloadsAndFiltersByScore(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/img/a.jpg"] = []byte("image a")
	ts.setListing(t,
		imagePost(ts, "good1", 100, "/img/a.jpg"),
		imagePost(ts, "low1", 3, "/img/a.jpg"),
	)

	cfg := testConfig(t)
	c := newTestCollector(t, cfg, ts)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Processed() != 2 {
		t.Errorf("Expected 2 processed, got %d", summary.Processed())
	}
	if summary.Downloaded() != 1 {
		t.Errorf("Expected 1 downloaded, got %d", summary.Downloaded())
	}
	if summary.Filtered()["score"] != 1 {
		t.Errorf("Expected 1 score-filtered, got %v", summary.Filtered())
	}
	if files := mediaFiles(t, cfg.Download.OutputDir); len(files) != 1 {
		t.Errorf("Expected 1 file on disk, got %v", files)
	}
}

func TestRunSkipsNSFW(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/img/a.jpg"] = []byte("image a")
	post := imagePost(ts, "nsfw1", 100, "/img/a.jpg")
	post["over_18"] = true
	ts.setListing(t, post)

	cfg := testConfig(t)
	c := newTestCollector(t, cfg, ts)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Filtered()["nsfw"] != 1 || summary.Downloaded() != 0 {
		t.Errorf("Expected the post to be filtered as nsfw: %s", summary)
	}
}

func TestGalleryPartialFailureDoesNotAbort(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/img/g1.jpg"] = []byte("gallery image 1")
	ts.assets["/img/g3.jpg"] = []byte("gallery image 3")

	gallery := map[string]interface{}{
		"id":          "gal1",
		"subreddit":   "testsub",
		"author":      "someone",
		"title":       "a gallery",
		"url":         "https://www.reddit.com/gallery/gal1",
		"domain":      "reddit.com",
		"score":       100,
		"created_utc": 1700000000.0,
		"permalink":   "/r/testsub/comments/gal1/a_gallery/",
		"is_gallery":  true,
		"gallery_data": map[string]interface{}{
			"items": []map[string]interface{}{
				{"media_id": "m1"}, {"media_id": "m2"}, {"media_id": "m3"},
			},
		},
		"media_metadata": map[string]interface{}{
			"m1": map[string]interface{}{"status": "valid", "e": "Image",
				"s": map[string]interface{}{"u": ts.URL + "/img/g1.jpg"}},
			"m2": map[string]interface{}{"status": "valid", "e": "Image",
				"s": map[string]interface{}{"u": ts.URL + "/fail/g2.jpg"}},
			"m3": map[string]interface{}{"status": "valid", "e": "Image",
				"s": map[string]interface{}{"u": ts.URL + "/img/g3.jpg"}},
		},
	}
	ts.setListing(t, gallery)

	cfg := testConfig(t)
	c := newTestCollector(t, cfg, ts)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Downloaded() != 2 {
		t.Errorf("Expected 2 downloaded, got %d (%s)", summary.Downloaded(), summary)
	}
	if summary.FailureCount() != 1 {
		t.Errorf("Expected 1 failure, got %v", summary.Failures())
	}

	// Filenames carry the gallery ordinals of the surviving images.
	files := mediaFiles(t, cfg.Download.OutputDir)
	joined := strings.Join(files, " ")
	if !strings.Contains(joined, "_gal1_1.jpg") || !strings.Contains(joined, "_gal1_3.jpg") {
		t.Errorf("Expected ordinals 1 and 3 in filenames, got %v", files)
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/img/a.jpg"] = []byte("image a")
	ts.setListing(t, imagePost(ts, "post1", 100, "/img/a.jpg"))

	cfg := testConfig(t)

	first := newTestCollector(t, cfg, ts)
	summary, err := first.Run(context.Background())
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if summary.Downloaded() != 1 {
		t.Fatalf("Expected 1 downloaded on first run, got %d", summary.Downloaded())
	}
	first.Close()

	second := newTestCollector(t, cfg, ts)
	summary, err = second.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if summary.Downloaded() != 0 {
		t.Errorf("Expected 0 downloaded on re-run, got %d", summary.Downloaded())
	}
	if summary.Skipped()["already_downloaded"] != 1 {
		t.Errorf("Expected the item to be skipped, got %v", summary.Skipped())
	}
	if files := mediaFiles(t, cfg.Download.OutputDir); len(files) != 1 {
		t.Errorf("Expected a single file after both runs, got %v", files)
	}
}

func TestCrossPostDeduplicatedByHash(t *testing.T) {
	ts := newTestServer(t)
	identical := []byte("the same bytes under two urls")
	ts.assets["/img/first.jpg"] = identical
	ts.assets["/img/second.jpg"] = identical
	ts.setListing(t,
		imagePost(ts, "orig1", 100, "/img/first.jpg"),
		imagePost(ts, "xpost1", 100, "/img/second.jpg"),
	)

	cfg := testConfig(t)
	cfg.Download.ConcurrentDownloads = 1 // deterministic ordering
	c := newTestCollector(t, cfg, ts)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Downloaded() != 1 || summary.Duplicates() != 1 {
		t.Fatalf("Expected 1 download + 1 duplicate, got %s", summary)
	}
	files := mediaFiles(t, cfg.Download.OutputDir)
	if len(files) != 1 {
		t.Fatalf("Expected a single file, got %v", files)
	}

	// Both items are recorded, the duplicate pointing at the winner's file.
	records, err := c.Store().RecentDownloads(10)
	if err != nil {
		t.Fatalf("RecentDownloads failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].LocalPath != records[1].LocalPath {
		t.Errorf("Expected both records to share one path: %q vs %q",
			records[0].LocalPath, records[1].LocalPath)
	}
}

func TestVideosOnlyFromFavorites(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/vid/clip.mp4"] = []byte("video bytes")
	ts.setListing(t, imagePost(ts, "vid1", 100, "/vid/clip.mp4"))

	cfg := testConfig(t)
	cfg.Download.VideosOnlyFromFavorites = true
	c := newTestCollector(t, cfg, ts)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Downloaded() != 0 || summary.Skipped()["video_not_favorited"] != 1 {
		t.Fatalf("Expected the video to be gated, got %s", summary)
	}

	// Favoriting the post lets the same video through.
	if err := c.Store().AddFavorite("vid1"); err != nil {
		t.Fatalf("AddFavorite failed: %v", err)
	}
	summary, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if summary.Downloaded() != 1 {
		t.Errorf("Expected the favorited video to download, got %s", summary)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/img/a.jpg"] = []byte("image a")
	ts.setListing(t, imagePost(ts, "post1", 100, "/img/a.jpg"))

	cfg := testConfig(t)
	c := newTestCollector(t, cfg, ts)
	c.SetDryRun(true)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Downloaded() != 0 || summary.Skipped()["dry_run"] != 1 {
		t.Errorf("Expected dry-run skip, got %s", summary)
	}
	if files := mediaFiles(t, cfg.Download.OutputDir); len(files) != 0 {
		t.Errorf("Expected no files, got %v", files)
	}
	if hits := atomic.LoadInt64(&ts.assetHits); hits != 0 {
		t.Errorf("Expected no asset requests, got %d", hits)
	}
}

func TestSidecarWrittenBesideAsset(t *testing.T) {
	ts := newTestServer(t)
	ts.assets["/img/a.jpg"] = []byte("image a")
	ts.setListing(t, imagePost(ts, "post1", 100, "/img/a.jpg"))

	cfg := testConfig(t)
	cfg.Download.GenerateSidecar = true
	c := newTestCollector(t, cfg, ts)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries, err := os.ReadDir(cfg.Download.OutputDir)
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	var asset, sidecarFile string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".json") {
			sidecarFile = entry.Name()
		} else {
			asset = entry.Name()
		}
	}
	if asset == "" || sidecarFile != asset+".json" {
		t.Fatalf("Expected sidecar beside asset, got %v", entries)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Download.OutputDir, sidecarFile))
	if err != nil {
		t.Fatalf("Failed to read sidecar: %v", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("Sidecar is not valid JSON: %v", err)
	}
	if meta["albums"].([]interface{})[0] != "r/testsub" {
		t.Errorf("Unexpected sidecar albums: %v", meta["albums"])
	}
}

func TestFilterPostBlacklists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Blacklist = config.BlacklistConfig{
		Authors:       []string{"Spammer"},
		Subreddits:    []string{"badsub"},
		Domains:       []string{"spam.example"},
		TitleKeywords: []string{"giveaway"},
	}
	c := &Collector{cfg: cfg}

	base := reddit.Post{Subreddit: "testsub", Author: "fine", Score: 100, Title: "ok"}

	cases := []struct {
		mutate func(*reddit.Post)
		want   string
	}{
		{func(p *reddit.Post) {}, ""},
		{func(p *reddit.Post) { p.Author = "spammer" }, "blacklisted_author"},
		{func(p *reddit.Post) { p.Subreddit = "BadSub" }, "blacklisted_subreddit"},
		{func(p *reddit.Post) { p.Domain = "spam.example" }, "blacklisted_domain"},
		{func(p *reddit.Post) { p.Title = "Huge GIVEAWAY today" }, "blacklisted_title"},
		{func(p *reddit.Post) { p.Score = 5 }, "score"},
		{func(p *reddit.Post) { p.Over18 = true }, "nsfw"},
	}
	for _, tc := range cases {
		post := base
		tc.mutate(&post)
		if got := c.filterPost(&post); got != tc.want {
			t.Errorf("filterPost(%+v) = %q, want %q", post, got, tc.want)
		}
	}
}

func TestCancellationStopsMidPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var listing []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".json") {
			w.Header().Set("Content-Type", "application/json")
			w.Write(listing)
			return
		}
		// The first asset request stops the run.
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	children := make([]map[string]interface{}, 0, 8)
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("post%d", i)
		children = append(children, map[string]interface{}{"data": map[string]interface{}{
			"id": id, "subreddit": "testsub", "author": "a", "title": "t",
			"url": server.URL + "/img/" + id + ".jpg", "domain": "example.com",
			"score": 100, "created_utc": 1700000000.0,
			"permalink": "/r/testsub/comments/" + id + "/t/",
		}})
	}
	doc := map[string]interface{}{
		"data": map[string]interface{}{"after": "", "children": children},
	}
	listing, _ = json.Marshal(doc)

	cfg := testConfig(t)
	// One worker and a small queue so submission blocks until the first
	// asset fetch, which cancels the context.
	cfg.Download.ConcurrentDownloads = 1

	log, _ := logger.New(&config.LoggingConfig{Level: "error"})
	c, err := New(cfg, log)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	defer c.Close()
	c.client.SetBaseURL(server.URL)

	summary, _ := c.Run(ctx)
	if summary.Processed() >= 8 {
		t.Errorf("Expected cancellation to stop the page mid-way, processed %d", summary.Processed())
	}
	if summary.Downloaded() != 0 {
		t.Errorf("Expected no downloads, got %d", summary.Downloaded())
	}
}

func TestListingFailureAbortsOnlyTarget(t *testing.T) {
	// First target's listing 404s, the second succeeds.
	var listing []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/r/broken/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".json") {
			w.Header().Set("Content-Type", "application/json")
			w.Write(listing)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("image"))
	}))
	defer server.Close()

	post := map[string]interface{}{
		"id": "ok1", "subreddit": "working", "author": "a", "title": "t",
		"url": server.URL + "/img/a.jpg", "domain": "example.com",
		"score": 100, "created_utc": 1700000000.0, "permalink": "/r/working/comments/ok1/t/",
	}
	doc := map[string]interface{}{
		"data": map[string]interface{}{"after": "", "children": []map[string]interface{}{{"data": post}}},
	}
	listing, _ = json.Marshal(doc)

	cfg := testConfig(t)
	cfg.Targets.Subreddits = []config.SubredditTarget{{Name: "broken"}, {Name: "working"}}

	log, _ := logger.New(&config.LoggingConfig{Level: "error"})
	c, err := New(cfg, log)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	defer c.Close()
	c.client.SetBaseURL(server.URL)

	summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.TargetsAborted() != 1 {
		t.Errorf("Expected 1 aborted target, got %d", summary.TargetsAborted())
	}
	if summary.Downloaded() != 1 {
		t.Errorf("Expected the second target to still download, got %s", summary)
	}
}
