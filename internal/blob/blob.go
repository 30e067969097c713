// Package blob stores export artifacts on the local filesystem or in an S3
// bucket behind one small interface.
package blob

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"psurops/internal/config"
)

// Driver names a storage implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = stderrors.New("blob not found")

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
	// URL is where a reader can fetch the object: a file:// URL for the
	// filesystem driver, a presigned https URL for S3.
	URL string `json:"url,omitempty"`
}

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is a flat key/value object store. Put replaces an existing object
// with the same key.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
}

// Open builds the store selected by cfg. A relative filesystem dir is
// resolved against root.
func Open(ctx context.Context, cfg config.BlobConfig, root string) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(config.DirName, "exports")
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		return NewFSStore(dir)
	case DriverS3:
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			Prefix:    cfg.Prefix,
			PathStyle: cfg.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
}

// sanitizeKey rejects keys that are empty, absolute or escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	key = filepath.ToSlash(key)
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "/../") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

// contentType falls back to the key's extension.
func contentType(key string, opts PutOptions) string {
	if opts.ContentType != "" {
		return opts.ContentType
	}
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return "text/csv"
	case ".ics":
		return "text/calendar"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
