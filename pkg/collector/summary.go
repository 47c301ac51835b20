package collector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"redditcollector/internal/downloader"
	"redditcollector/pkg/errors"
)

// Summary aggregates the outcome of one collection run. Safe for concurrent
// use; the result-processing goroutine and the paging loop both write to it.
type Summary struct {
	mu             sync.Mutex
	processed      int
	downloaded     int
	duplicates     int
	filtered       map[string]int
	skipped        map[string]int
	failures       map[string]int
	targetsAborted int
}

// NewSummary creates an empty summary.
func NewSummary() *Summary {
	return &Summary{
		filtered: make(map[string]int),
		skipped:  make(map[string]int),
		failures: make(map[string]int),
	}
}

func (s *Summary) incProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
}

func (s *Summary) addFiltered(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filtered[reason]++
}

func (s *Summary) addSkipped(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[reason]++
}

func (s *Summary) addFailure(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind]++
}

func (s *Summary) abortTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetsAborted++
}

// record folds one worker result into the summary.
func (s *Summary) record(result downloader.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch result.Status {
	case downloader.StatusDownloaded:
		s.downloaded++
	case downloader.StatusDuplicate:
		s.duplicates++
	case downloader.StatusFailed:
		s.failures[string(errors.TypeOf(result.Err))]++
	}
}

// Processed returns the number of posts that entered the pipeline.
func (s *Summary) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// Downloaded returns the number of assets written to disk.
func (s *Summary) Downloaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloaded
}

// Duplicates returns the number of assets deduplicated by content hash.
func (s *Summary) Duplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}

// Filtered returns per-reason counts of posts dropped by filters.
func (s *Summary) Filtered() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounts(s.filtered)
}

// Skipped returns per-reason counts of posts and assets skipped after
// filtering (unsupported source, already downloaded, gates, dry run).
func (s *Summary) Skipped() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounts(s.skipped)
}

// Failures returns per-kind counts of asset failures.
func (s *Summary) Failures() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounts(s.failures)
}

// TargetsAborted returns how many targets were abandoned because their
// listing stayed unreachable.
func (s *Summary) TargetsAborted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetsAborted
}

// FailureCount returns the total number of failed assets.
func (s *Summary) FailureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.failures {
		total += n
	}
	return total
}

func (s *Summary) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "processed %d, downloaded %d, duplicates %d",
		s.processed, s.downloaded, s.duplicates)
	if len(s.filtered) > 0 {
		fmt.Fprintf(&b, ", filtered [%s]", formatCounts(s.filtered))
	}
	if len(s.skipped) > 0 {
		fmt.Fprintf(&b, ", skipped [%s]", formatCounts(s.skipped))
	}
	if len(s.failures) > 0 {
		fmt.Fprintf(&b, ", failures [%s]", formatCounts(s.failures))
	}
	if s.targetsAborted > 0 {
		fmt.Fprintf(&b, ", targets aborted %d", s.targetsAborted)
	}
	return b.String()
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
