// Package source lists and reads input documents and stores outputs, locally or in S3.
package source

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// ErrNotFound is returned when a document reference does not resolve
var ErrNotFound = errors.New("document not found")

// Source lists and reads input documents. Implementations are safe for concurrent use.
type Source interface {
	// List returns the supported documents, sorted by reference
	List(ctx context.Context) ([]string, error)
	// Read returns the document content for a reference returned by List
	Read(ctx context.Context, ref string) ([]byte, error)
}

// Sink stores named outputs
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
}

// S3Options holds credentials for s3:// locations
type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
}

// Supported reports whether the document has an extension the extraction backends accept
func Supported(ref string) bool {
	_, ok := domain.SupportedExtensions[strings.ToLower(path.Ext(ref))]
	return ok
}

// MimeType maps a document reference to its MIME type by extension
func MimeType(ref string) string {
	if mt, ok := domain.SupportedExtensions[strings.ToLower(filepath.Ext(ref))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsS3 reports whether location is an s3:// URI
func IsS3(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

// ParseS3URI splits s3://bucket/prefix into bucket and prefix
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(uri, "s3://")
	if rest == uri || rest == "" {
		return "", "", domain.NewConfigurationError("invalid s3 location %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", domain.NewConfigurationError("invalid s3 location %q", uri)
	}
	return bucket, prefix, nil
}

// Open returns the Source for a local directory or an s3:// location
func Open(ctx context.Context, location string, opts S3Options) (Source, error) {
	if IsS3(location) {
		return NewS3(ctx, location, opts)
	}
	return NewLocal(location), nil
}

// OpenSink returns the Sink for a local directory or an s3:// location
func OpenSink(ctx context.Context, location string, opts S3Options) (Sink, error) {
	if IsS3(location) {
		return NewS3(ctx, location, opts)
	}
	return NewLocal(location), nil
}
