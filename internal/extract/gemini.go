package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hochfrequenz/docai-batch/internal/domain"
)

const geminiInstruction = `You extract tables and text from documents.
Reply with a single JSON object: {"pages": <number of pages>, "text": <full text>, "tables": [{"headers": [..], "rows": [[..], ..]}]}.
Use an empty list when there are no tables.`

// Gemini extracts tables with a multimodal Gemini model
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini creates a Gemini backend. The key falls back to GEMINI_API_KEY.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, domain.NewConfigurationError("gemini api key is not set")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &Gemini{client: cl, modelName: modelName}, nil
}

// Name implements Backend
func (g *Gemini) Name() string {
	return "gemini:" + g.modelName
}

// Process sends the document inline and parses the JSON reply
func (g *Gemini) Process(ctx context.Context, doc Document) (*domain.Extraction, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(geminiInstruction)},
	}
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx,
		genai.Blob{MIMEType: doc.MimeType, Data: doc.Content},
		genai.Text("Extract every table in this document."),
	)
	if err != nil {
		return nil, Wrap(fmt.Errorf("gemini generate: %w", err))
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return nil, &domain.ExtractionError{
			Kind:    domain.KindInvalidDocument,
			Message: fmt.Sprintf("document blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &domain.ExtractionError{Kind: domain.KindTransient, Message: "gemini returned no candidates"}
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	ext, err := parseGeminiReply(b.String())
	if err != nil {
		return nil, err
	}
	ext.ProcessorInfo = g.modelName
	return ext, nil
}

type geminiReply struct {
	Pages  int    `json:"pages"`
	Text   string `json:"text"`
	Tables []struct {
		Headers []string   `json:"headers"`
		Rows    [][]string `json:"rows"`
	} `json:"tables"`
}

func parseGeminiReply(raw string) (*domain.Extraction, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var reply geminiReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, &domain.ExtractionError{Kind: domain.KindTransient, Message: "unparseable model reply", Err: err}
	}

	ext := &domain.Extraction{Content: reply.Text, PageCount: reply.Pages}
	if ext.PageCount == 0 {
		ext.PageCount = 1
	}
	for _, t := range reply.Tables {
		ext.Tables = append(ext.Tables, domain.Table{Headers: t.Headers, Rows: t.Rows})
	}
	ext.TableCount = len(ext.Tables)
	return ext, nil
}

// Close releases the client
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

var _ Backend = (*Gemini)(nil)
