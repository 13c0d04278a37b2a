package extract

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/config"
	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// NewBackend builds the backend selected in cfg. Callers close the result if it is an io.Closer.
func NewBackend(ctx context.Context, cfg config.ExtractionConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case "documentai", "":
		return NewDocumentAI(ctx, DocumentAIConfig{
			ProjectID:       cfg.ProjectID,
			Location:        cfg.Location,
			ProcessorID:     cfg.ProcessorID,
			CredentialsFile: cfg.CredentialsFile,
		}, logger)
	case "gemini":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "docconv":
		return NewDocconv(false), nil
	case "simulated":
		return &Simulated{Latency: 200 * time.Millisecond}, nil
	default:
		return nil, domain.NewConfigurationError("unknown extraction backend %q", cfg.Backend)
	}
}

// CloseBackend closes b when it holds a connection
func CloseBackend(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
