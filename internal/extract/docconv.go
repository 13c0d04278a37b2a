package extract

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"code.sajari.com/docconv"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

// Docconv is an offline backend that extracts plain text locally.
// It finds no tables; tab-separated lines are kept in the text.
type Docconv struct {
	useReadability bool
}

// NewDocconv creates the offline backend
func NewDocconv(useReadability bool) *Docconv {
	return &Docconv{useReadability: useReadability}
}

// Name implements Backend
func (d *Docconv) Name() string {
	return "docconv"
}

// Process converts the document with docconv
func (d *Docconv) Process(ctx context.Context, doc Document) (*domain.Extraction, error) {
	res, err := docconv.Convert(bytes.NewReader(doc.Content), doc.MimeType, d.useReadability)
	if err != nil {
		return nil, &domain.ExtractionError{Kind: domain.KindInvalidDocument, Message: "docconv: " + err.Error(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, Wrap(err)
	}

	pages := 1
	if v, ok := res.Meta["Pages"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			pages = n
		}
	}
	return &domain.Extraction{
		Content:       res.Body,
		PageCount:     pages,
		ProcessorInfo: "docconv",
	}, nil
}

var _ Backend = (*Docconv)(nil)
