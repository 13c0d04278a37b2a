package extract

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// Simulated is a credential-free backend with fixed latency, used for benchmarks and dry runs
type Simulated struct {
	Latency time.Duration
	// FailEvery makes roughly one in FailEvery documents fail as rate limited; 0 disables
	FailEvery int
}

// Name implements Backend
func (s *Simulated) Name() string {
	return "simulated"
}

// Process waits Latency and returns a synthetic one-table extraction
func (s *Simulated) Process(ctx context.Context, doc Document) (*domain.Extraction, error) {
	select {
	case <-time.After(s.Latency):
	case <-ctx.Done():
		return nil, Wrap(ctx.Err())
	}

	h := fnv.New32a()
	h.Write([]byte(doc.Ref))
	sum := h.Sum32()
	if s.FailEvery > 0 && sum%uint32(s.FailEvery) == 0 {
		return nil, &domain.ExtractionError{Kind: domain.KindRateLimited, Message: "simulated quota exceeded"}
	}

	pages := int(sum%3) + 1
	return &domain.Extraction{
		Content:   fmt.Sprintf("Simulated extraction of %s (%d bytes)", doc.Ref, len(doc.Content)),
		PageCount: pages,
		Tables: []domain.Table{{
			Headers: []string{"Item", "Value"},
			Rows:    [][]string{{"pages", fmt.Sprint(pages)}, {"bytes", fmt.Sprint(len(doc.Content))}},
		}},
		TableCount:    1,
		ProcessorInfo: "simulated",
	}, nil
}

var _ Backend = (*Simulated)(nil)
