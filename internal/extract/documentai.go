package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/logging"
)

// processorTypes are the processor types able to return tables, in preference order
var processorTypes = []string{"DOCUMENT_OCR_PROCESSOR", "FORM_PARSER_PROCESSOR"}

// DocumentAIConfig configures the Google Document AI backend
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string // discovered when empty
	CredentialsFile string // application default credentials when empty
}

// DocumentAI extracts text and tables with a Document AI processor
type DocumentAI struct {
	client      *documentai.DocumentProcessorClient
	process     func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)
	processorID string
	name        string
	logger      *zap.Logger
}

// NewDocumentAI connects to the regional endpoint and resolves the processor
func NewDocumentAI(ctx context.Context, cfg DocumentAIConfig, logger *zap.Logger) (*DocumentAI, error) {
	logger = logging.OrNop(logger)
	if cfg.ProjectID == "" {
		return nil, domain.NewConfigurationError("document ai project id is not set")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating document ai client: %w", err)
	}

	parent := fmt.Sprintf("projects/%s/locations/%s", cfg.ProjectID, cfg.Location)
	processorID := cfg.ProcessorID
	if processorID == "" {
		processorID, err = findProcessor(ctx, client, parent)
		if err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("discovered document ai processor", zap.String("processor", processorID))
	}

	name := fmt.Sprintf("%s/processors/%s", parent, processorID)
	return &DocumentAI{
		client: client,
		process: func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
			return client.ProcessDocument(ctx, req)
		},
		processorID: processorID,
		name:        name,
		logger:      logger,
	}, nil
}

func findProcessor(ctx context.Context, client *documentai.DocumentProcessorClient, parent string) (string, error) {
	var processors []*documentaipb.Processor
	it := client.ListProcessors(ctx, &documentaipb.ListProcessorsRequest{Parent: parent})
	for {
		p, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("listing processors under %s: %w", parent, Wrap(err))
		}
		processors = append(processors, p)
	}

	id := pickProcessor(processors)
	if id == "" {
		return "", domain.NewConfigurationError("no OCR or form parser processor found under %s", parent)
	}
	return id, nil
}

// pickProcessor returns the ID of the first processor with a table-capable type
func pickProcessor(processors []*documentaipb.Processor) string {
	for _, p := range processors {
		for _, t := range processorTypes {
			if p.GetType() == t {
				name := p.GetName()
				return name[strings.LastIndex(name, "/")+1:]
			}
		}
	}
	return ""
}

// Name implements Backend
func (d *DocumentAI) Name() string {
	return "documentai:" + d.processorID
}

// Process sends the raw document to the processor
func (d *DocumentAI) Process(ctx context.Context, doc Document) (*domain.Extraction, error) {
	resp, err := d.process(ctx, &documentaipb.ProcessRequest{
		Name: d.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.Content,
				MimeType: doc.MimeType,
			},
		},
	})
	if err != nil {
		return nil, Wrap(err)
	}
	if resp.GetDocument() == nil {
		return nil, &domain.ExtractionError{Kind: domain.KindTransient, Message: "empty response from document ai"}
	}
	return convertDocument(resp.GetDocument(), d.processorID), nil
}

// Close releases the gRPC connection
func (d *DocumentAI) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func convertDocument(doc *documentaipb.Document, processorID string) *domain.Extraction {
	text := []rune(doc.GetText())
	ext := &domain.Extraction{
		Content:       doc.GetText(),
		PageCount:     len(doc.GetPages()),
		ProcessorInfo: processorID,
	}
	for _, page := range doc.GetPages() {
		for _, table := range page.GetTables() {
			ext.Tables = append(ext.Tables, convertTable(table, text))
		}
	}
	ext.TableCount = len(ext.Tables)
	return ext
}

func convertTable(table *documentaipb.Document_Page_Table, text []rune) domain.Table {
	var t domain.Table
	if headers := table.GetHeaderRows(); len(headers) > 0 {
		for _, cell := range headers[0].GetCells() {
			t.Headers = append(t.Headers, layoutText(cell.GetLayout(), text))
		}
	}
	for _, row := range table.GetBodyRows() {
		cells := make([]string, 0, len(row.GetCells()))
		for _, cell := range row.GetCells() {
			cells = append(cells, layoutText(cell.GetLayout(), text))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// layoutText resolves the first text segment of a layout against the document text
func layoutText(layout *documentaipb.Document_Page_Layout, text []rune) string {
	segments := layout.GetTextAnchor().GetTextSegments()
	if len(segments) == 0 {
		return ""
	}
	start, end := segments[0].GetStartIndex(), segments[0].GetEndIndex()
	if start < 0 || end > int64(len(text)) || start >= end {
		return ""
	}
	return strings.TrimSpace(string(text[start:end]))
}

var _ Backend = (*DocumentAI)(nil)
