// Package storage provides object storage for PostPilot's monthly usage
// snapshots.
//
// Implementations:
//   - LocalStorage: files under a directory, for development
//   - R2Storage: Cloudflare R2 (S3-compatible) for production
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the object operations the export job and postctl need.
type Storage interface {
	// Put stores data at key. Unless opts.Overwrite is set, an existing
	// object at key yields ErrKeyExists.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get opens the object at key. The caller must close the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns a link to the object. R2 presigns it for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType defaults to the type implied by the key's extension.
	ContentType string

	// MaxSize rejects bodies larger than this many bytes. Zero means no limit.
	MaxSize int64

	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// =============================================================================
// Configuration
// =============================================================================

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL prefixes links returned by URL, e.g. "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Endpoint overrides the account endpoint (used against S3-compatible
	// test servers).
	Endpoint string

	// Region defaults to "auto".
	Region string
}

// =============================================================================
// Keys
// =============================================================================

const usagePrefix = "usage/"

// UsageSnapshotKey is the key of the CSV snapshot for the month containing
// month, in UTC. Example: "usage/2026-02.csv".
func UsageSnapshotKey(month time.Time) string {
	return fmt.Sprintf("%s%s.csv", usagePrefix, month.UTC().Format("2006-01"))
}

// ParseSnapshotMonth parses "YYYY-MM" into the first instant of that month.
func ParseSnapshotMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("month must be formatted YYYY-MM: %w", err)
	}
	return t, nil
}

// contentTypeFor returns the MIME type implied by key's extension.
func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(key))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// validateKey rejects empty keys and path traversal.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
