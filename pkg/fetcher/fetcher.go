package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"redditcollector/pkg/errors"
	"redditcollector/pkg/logger"
	"redditcollector/pkg/ratelimit"
	"redditcollector/pkg/retry"
)

// MediaKind tags what a fetched asset is expected to be. A response whose
// content type contradicts the expected kind is rejected so an HTML error
// page never gets saved under a media extension.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindGIF   MediaKind = "gif"
	// KindAny disables the content-type check, used for listing calls.
	KindAny MediaKind = ""
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration
	MaxSize     int64 // byte cap for a single asset, 0 means no cap
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	UserAgent   string
}

// Fetcher wraps outbound HTTP with a shared token bucket and bounded
// retry/backoff. One Fetcher serves both listing calls and asset downloads.
type Fetcher struct {
	httpClient  *http.Client
	limiter     ratelimit.Limiter
	headers     map[string]string
	maxSize     int64
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      logger.Logger
}

// New creates a Fetcher sharing the given token bucket.
func New(limiter ratelimit.Limiter, opts Options, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
		headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "image/*,video/*,application/json,*/*",
		},
		maxSize:     opts.MaxSize,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		logger:      log,
	}
}

// SetHeader sets a custom header sent with every request.
func (f *Fetcher) SetHeader(key, value string) {
	f.headers[key] = value
}

// Fetch downloads url, blocking on the token bucket before each attempt.
// Transient failures are retried with exponential backoff; a 429 doubles the
// backoff multiplier beyond the default curve and honours Retry-After.
// Returns the raw bytes and the response content type.
func (f *Fetcher) Fetch(ctx context.Context, url string, expected MediaKind) ([]byte, string, error) {
	backoff := &rateLimitAwareBackoff{
		inner: &retry.ExponentialBackoff{
			BaseDelay:    f.baseDelay,
			MaxDelay:     f.maxDelay,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
	}

	var contentType string
	cfg := &retry.Config{
		MaxAttempts: f.maxAttempts,
		Backoff:     backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      f.logger,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if errors.Is(err, errors.TypeRateLimit) {
				backoff.inner.Multiplier *= 2
			}
		},
	}

	data, err := retry.DoWithResult(func() ([]byte, error) {
		body, ct, err := f.fetchOnce(ctx, url, expected, backoff)
		contentType = ct
		return body, err
	}, cfg)
	if err != nil {
		switch errors.TypeOf(err) {
		case errors.TypeFetchTooLarge, errors.TypeFetchKindMismatch:
			return nil, "", err
		}
		return nil, "", errors.Wrap(errors.TypeFetchExhausted,
			fmt.Sprintf("giving up on %s", url), err)
	}

	return data, contentType, nil
}

// FetchJSON performs a rate-limited GET and decodes the JSON response.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, target interface{}) error {
	body, _, err := f.Fetch(ctx, url, KindAny)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		f.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errors.Wrap(errors.TypeParsing, fmt.Sprintf("failed to parse JSON from %s", url), err)
	}

	return nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, expected MediaKind, backoff *rateLimitAwareBackoff) ([]byte, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Wrap(errors.TypeUnknown, "failed to create request", err)
	}
	for key, value := range f.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, "", errors.Wrap(errors.TypeNetwork, fmt.Sprintf("network error: %v", err), err)
	}
	defer resp.Body.Close()

	if err := f.checkResponseStatus(resp, backoff); err != nil {
		return nil, "", err
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, "", errors.Newf(errors.TypeFetchTooLarge,
			"declared size %d exceeds cap %d for %s", resp.ContentLength, f.maxSize, url)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(contentType)

	if !kindMatches(contentType, expected) {
		return nil, "", errors.Newf(errors.TypeFetchKindMismatch,
			"expected %s, got content type %q for %s", expected, contentType, url)
	}

	reader := io.Reader(resp.Body)
	if f.maxSize > 0 {
		reader = io.LimitReader(resp.Body, f.maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", errors.Wrap(errors.TypeNetwork, "failed to read response body", err)
	}
	if f.maxSize > 0 && int64(len(body)) > f.maxSize {
		return nil, "", errors.Newf(errors.TypeFetchTooLarge,
			"measured size exceeds cap %d for %s", f.maxSize, url)
	}

	f.logger.DebugWithFields("fetch completed", map[string]interface{}{
		"url":          url,
		"status":       resp.StatusCode,
		"size":         len(body),
		"content_type": contentType,
		"duration":     time.Since(start),
	})

	return body, contentType, nil
}

// checkResponseStatus maps HTTP status codes onto the error taxonomy. A 429
// records the server's Retry-After hint for the next backoff delay.
func (f *Fetcher) checkResponseStatus(resp *http.Response, backoff *rateLimitAwareBackoff) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if after := resp.Header.Get("Retry-After"); after != "" {
			if seconds, err := strconv.Atoi(after); err == nil && seconds >= 0 {
				backoff.retryAfter = time.Duration(seconds) * time.Second
			}
		}
		f.logger.WarnWithFields("rate limited by server", map[string]interface{}{
			"url": resp.Request.URL.String(),
		})
		return errors.WithCode(errors.TypeRateLimit, "rate limit exceeded", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return errors.WithCode(errors.TypeNotFound, "resource not found", resp.StatusCode)
	case resp.StatusCode >= 500:
		return errors.WithCode(errors.TypeServerError,
			fmt.Sprintf("server returned status %d", resp.StatusCode), resp.StatusCode)
	default:
		return errors.WithCode(errors.TypeUnknown,
			fmt.Sprintf("unexpected status code %d", resp.StatusCode), resp.StatusCode)
	}
}

func kindMatches(contentType string, expected MediaKind) bool {
	switch expected {
	case KindAny:
		return true
	case KindImage, KindGIF:
		return strings.HasPrefix(contentType, "image/")
	case KindVideo:
		return strings.HasPrefix(contentType, "video/")
	default:
		return false
	}
}

// rateLimitAwareBackoff wraps exponential backoff with a one-shot override
// taken from a 429 response's Retry-After header.
type rateLimitAwareBackoff struct {
	inner      *retry.ExponentialBackoff
	retryAfter time.Duration
}

func (b *rateLimitAwareBackoff) NextDelay(attempt int) time.Duration {
	if b.retryAfter > 0 {
		delay := b.retryAfter
		b.retryAfter = 0
		return delay
	}
	return b.inner.NextDelay(attempt)
}

func (b *rateLimitAwareBackoff) Reset() {
	b.retryAfter = 0
	b.inner.Reset()
}
