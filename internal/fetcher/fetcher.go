// Package fetcher defines the media-fetching boundary. The cycle engine
// never inspects file contents; it only trusts the outcome of Fetch.
package fetcher

import "context"

// FileMetadata describes a fetched file. The tracker records its identity
// and nothing more.
type FileMetadata struct {
	Path string
	Size int64
}

// Fetcher downloads the media behind a locator. Implementations must honor
// the context and return an error wrapping shared.ErrFetchFailed when the
// download cannot be completed.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*FileMetadata, error)
}
