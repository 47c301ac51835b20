// Package ratelimit bounds the outbound request rate of the collection
// pipeline. A single token bucket is shared by listing calls and asset
// downloads alike; callers block in Wait until a token is released.
package ratelimit
