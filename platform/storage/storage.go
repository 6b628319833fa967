package storage

import (
	"io"
	"time"
)

type UsageStats struct {
	TotalBytes uint64 `json:"total_bytes"`
	UsedBytes  uint64 `json:"used_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

// Storage is the file backend used for uploaded documents and note images.
// Paths are slash separated keys relative to the backend root.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	// DeleteBatch removes all of the given paths, continuing past individual
	// failures and returning the first error encountered.
	DeleteBatch(paths []string) error

	List(path string) ([]string, error)

	Exists(path string) (bool, error)

	// SignedURL returns a url that grants read access to the given path for
	// the given duration.
	SignedURL(path string, expiry time.Duration) (string, error)

	Usage() (UsageStats, error)

	Location() string
}
