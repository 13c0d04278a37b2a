// Package extract performs remote document extraction through pluggable backends.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/logging"
	"github.com/hochfrequenz/docai-batch/internal/source"
)

// Client performs one extraction per document reference.
// Implementations must be safe for concurrent use.
type Client interface {
	Extract(ctx context.Context, ref string) (*domain.Extraction, error)
}

// Document is the raw input handed to a backend
type Document struct {
	Ref      string
	MimeType string
	Content  []byte
}

// Backend turns document bytes into an extraction
type Backend interface {
	// Name identifies the backend and processor; it is part of the cache key
	Name() string
	Process(ctx context.Context, doc Document) (*domain.Extraction, error)
}

// Cache stores extractions by content key
type Cache interface {
	Get(key string) (*domain.Extraction, bool, error)
	Put(key string, ext *domain.Extraction) error
}

// Option configures a Service
type Option func(*Service)

// WithCache enables the result cache
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

// Service reads documents from a source and runs them through a backend
type Service struct {
	src     source.Source
	backend Backend
	cache   Cache
	logger  *zap.Logger
}

// NewService creates a Client backed by src and backend
func NewService(src source.Source, backend Backend, opts ...Option) *Service {
	s := &Service{src: src, backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the configured backend
func (s *Service) Backend() Backend {
	return s.backend
}

// Extract reads ref and returns its extraction. Every error is an *domain.ExtractionError.
func (s *Service) Extract(ctx context.Context, ref string) (*domain.Extraction, error) {
	data, err := s.src.Read(ctx, ref)
	if err != nil {
		return nil, Wrap(err)
	}
	if len(data) == 0 {
		return nil, &domain.ExtractionError{Kind: domain.KindInvalidDocument, Message: fmt.Sprintf("%s is empty", ref)}
	}

	key := CacheKey(s.backend.Name(), data)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(key)
		if err != nil {
			s.logger.Warn("cache read failed", zap.String("document", ref), zap.Error(err))
		}
		if ok {
			s.logger.Debug("cache hit", zap.String("document", ref))
			out := *cached
			out.SizeBytes = int64(len(data))
			return &out, nil
		}
	}

	ext, err := s.backend.Process(ctx, Document{Ref: ref, MimeType: source.MimeType(ref), Content: data})
	if err != nil {
		return nil, Wrap(err)
	}
	if ext == nil {
		return nil, &domain.ExtractionError{Kind: domain.KindTransient, Message: "backend returned no result"}
	}
	ext.SizeBytes = int64(len(data))
	if ext.TableCount == 0 {
		ext.TableCount = len(ext.Tables)
	}

	if s.cache != nil {
		if err := s.cache.Put(key, ext); err != nil {
			s.logger.Warn("cache write failed", zap.String("document", ref), zap.Error(err))
		}
	}
	return ext, nil
}

// CacheKey identifies content processed by a given backend
func CacheKey(backend string, content []byte) string {
	sum := sha256.Sum256(content)
	return backend + ":" + hex.EncodeToString(sum[:])
}

// Wrap converts err into an *domain.ExtractionError, classifying it if needed
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var xe *domain.ExtractionError
	if errors.As(err, &xe) {
		return err
	}
	return domain.NewExtractionError(Classify(err), err)
}

var _ Client = (*Service)(nil)
