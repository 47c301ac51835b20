// Package retry provides bounded retry with pluggable backoff strategies.
// The fetcher retries transient transport failures through Do; error
// classification comes from the errors package.
package retry
