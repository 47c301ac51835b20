// Package downloader runs the download workers. Each worker takes resolved
// assets off the job queue, fetches the bytes, dedupes by content hash,
// writes the file and its metadata, and reports a result.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"redditcollector/pkg/extractor"
	"redditcollector/pkg/fetcher"
	"redditcollector/pkg/logger"
	"redditcollector/pkg/reddit"
	"redditcollector/pkg/sidecar"
	"redditcollector/pkg/store"
)

// Job is a single asset to download.
type Job struct {
	Post   *reddit.Post
	Ref    extractor.AssetReference
	ItemID string
}

// Status classifies how a job ended.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusDuplicate  Status = "duplicate"
	StatusFailed     Status = "failed"
)

// Result is the outcome of one job.
type Result struct {
	Job      Job
	Status   Status
	Path     string
	Hash     string
	Size     int
	Err      error
	Duration time.Duration
}

// AssetFetcher downloads raw bytes with a kind check.
type AssetFetcher interface {
	Fetch(ctx context.Context, url string, expected fetcher.MediaKind) ([]byte, string, error)
}

// MetadataStore is the slice of the store the workers need.
type MetadataStore interface {
	CommitHash(hash, localPath string) (existingPath string, inserted bool, err error)
	DeleteHash(hash string) error
	AddPost(rec *store.PostRecord) error
}

// FileWriter writes assets into the output directory.
type FileWriter interface {
	Write(filename string, data []byte) (string, error)
	Path(filename string) string
}

// ItemID names one downloadable item: the post id, suffixed with the
// gallery ordinal for gallery members.
func ItemID(postID string, ordinal int) string {
	if ordinal > 0 {
		return fmt.Sprintf("%s_%d", postID, ordinal)
	}
	return postID
}

// WorkerPool manages concurrent download workers.
type WorkerPool struct {
	numWorkers      int
	jobQueue        chan Job
	resultQueue     chan Result
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
	fetcher         AssetFetcher
	store           MetadataStore
	files           FileWriter
	generateSidecar bool
	logger          logger.Logger
}

// NewWorkerPool creates a pool of numWorkers download workers. Cancelling
// the parent context stops in-flight work.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	assetFetcher AssetFetcher,
	metadataStore MetadataStore,
	files FileWriter,
	generateSidecar bool,
	log logger.Logger,
) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)

	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	return &WorkerPool{
		numWorkers:      numWorkers,
		jobQueue:        make(chan Job, numWorkers*2),
		resultQueue:     make(chan Result, numWorkers),
		ctx:             poolCtx,
		cancel:          cancel,
		fetcher:         assetFetcher,
		store:           metadataStore,
		files:           files,
		generateSidecar: generateSidecar,
		logger:          log,
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop drains the queue, waits for the workers, and closes the result
// channel.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Submit queues a job. Fails once the pool is shutting down.
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the channel results are delivered on.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob runs the per-asset pipeline: fetch, hash, conditional dedup
// commit, file write, metadata persist, sidecar. The hash is claimed in the
// store before the file is written; a failed write releases the claim.
func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job, Status: StatusFailed}

	data, contentType, err := wp.fetcher.Fetch(wp.ctx, job.Ref.URL, job.Ref.Kind)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		wp.logger.WarnWithFields("asset download failed", map[string]interface{}{
			"worker_id": workerID,
			"item_id":   job.ItemID,
			"url":       job.Ref.URL,
			"error":     err.Error(),
		})
		return result
	}
	result.Size = len(data)

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	result.Hash = hash

	ext := extensionFor(contentType, job.Ref.URL, job.Ref.Kind)
	filename := sidecar.Filename(job.Post, ext, job.Ref.Ordinal)
	finalPath := wp.files.Path(filename)

	existingPath, inserted, err := wp.store.CommitHash(hash, finalPath)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	if !inserted {
		// Identical bytes were already saved, possibly under another post.
		// Record this item as pointing at the existing file; nothing is
		// written to disk.
		result.Status = StatusDuplicate
		result.Path = existingPath
		if err := wp.store.AddPost(wp.record(job, existingPath, hash)); err != nil {
			result.Status = StatusFailed
			result.Err = err
		}
		result.Duration = time.Since(start)
		wp.logger.DebugWithFields("duplicate content", map[string]interface{}{
			"worker_id":     workerID,
			"item_id":       job.ItemID,
			"existing_path": existingPath,
		})
		return result
	}

	writtenPath, err := wp.files.Write(filename, data)
	if err != nil {
		// Release the claim so a later attempt can retry this content.
		if delErr := wp.store.DeleteHash(hash); delErr != nil {
			wp.logger.ErrorWithFields("failed to release hash claim", map[string]interface{}{
				"hash":  hash,
				"error": delErr.Error(),
			})
		}
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	if err := wp.store.AddPost(wp.record(job, writtenPath, hash)); err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	if wp.generateSidecar {
		if err := wp.writeSidecar(job, filename); err != nil {
			wp.logger.WarnWithFields("sidecar write failed", map[string]interface{}{
				"item_id": job.ItemID,
				"error":   err.Error(),
			})
		}
	}

	result.Status = StatusDownloaded
	result.Path = writtenPath
	result.Duration = time.Since(start)

	wp.logger.DebugWithFields("asset downloaded", map[string]interface{}{
		"worker_id": workerID,
		"item_id":   job.ItemID,
		"path":      writtenPath,
		"size":      result.Size,
		"duration":  result.Duration,
	})
	return result
}

func (wp *WorkerPool) record(job Job, localPath, hash string) *store.PostRecord {
	post := job.Post
	return &store.PostRecord{
		ItemID:       job.ItemID,
		PostID:       post.ID,
		Subreddit:    post.Subreddit,
		Author:       post.Author,
		Title:        post.Title,
		URL:          post.URL,
		MediaURL:     job.Ref.URL,
		MediaType:    string(job.Ref.Kind),
		Score:        post.Score,
		CreatedUTC:   post.CreatedUTC,
		Permalink:    post.Permalink,
		SourceKind:   string(post.SourceKind),
		SourceName:   post.SourceName,
		Flair:        post.LinkFlairText,
		DownloadedAt: time.Now().UTC(),
		LocalPath:    localPath,
		ContentHash:  hash,
	}
}

func (wp *WorkerPool) writeSidecar(job Job, assetFilename string) error {
	data, err := sidecar.Encode(sidecar.Build(job.Post, job.Ref.Kind))
	if err != nil {
		return err
	}
	_, err = wp.files.Write(assetFilename+".json", data)
	return err
}

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// extensionFor picks the file extension: content type first, then the URL
// path, then a per-kind default.
func extensionFor(contentType, rawURL string, kind fetcher.MediaKind) string {
	if ext, ok := mimeExtensions[contentType]; ok {
		return ext
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	switch kind {
	case fetcher.KindVideo:
		return ".mp4"
	case fetcher.KindGIF:
		return ".gif"
	default:
		return ".jpg"
	}
}
