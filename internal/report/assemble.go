// Package report assembles ordered extraction results into Markdown and PDF reports.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/ordering"
)

// Input is one successful extraction offered to the assembler
type Input struct {
	DocumentID  string
	Seq         int
	Extraction  *domain.Extraction
	ProcessedAt time.Time
}

// Summary is the cover page data
type Summary struct {
	Files       int       `json:"files"`
	TotalPages  int       `json:"total_pages"`
	TotalTables int       `json:"total_tables"`
	TotalBytes  int64     `json:"total_bytes"`
	GeneratedAt time.Time `json:"generated_at"`
	Method      string    `json:"method"`
}

// TOCEntry is one table of contents line
type TOCEntry struct {
	Number      int    `json:"number"`
	DisplayName string `json:"display_name"`
	Tables      int    `json:"tables"`
	Description string `json:"description"`
}

// Section is one document's chapter in the report
type Section struct {
	Number      int
	DocumentID  string
	BaseName    string
	DisplayName string
	Description string
	MatchIndex  int
	ProcessedAt time.Time
	Extraction  *domain.Extraction
}

// Document is an assembled report ready for rendering
type Document struct {
	Title         string
	Summary       Summary
	TOC           []TOCEntry
	Sections      []Section
	UnusedEntries []string // configured entries that matched nothing
}

// FromBatch collects the successful results of a batch
func FromBatch(batch *domain.BatchReport) []Input {
	var inputs []Input
	for _, res := range batch.PerTask {
		if !res.Succeeded() {
			continue
		}
		inputs = append(inputs, Input{
			DocumentID:  res.DocumentID,
			Seq:         res.Seq,
			Extraction:  res.Extraction,
			ProcessedAt: res.FinishedAt,
		})
	}
	return inputs
}

// Assemble orders the inputs and numbers the sections. When a document id occurs
// more than once the input with the lowest Seq is used.
func Assemble(inputs []Input, cfg ordering.Config, desc Descriptions, now time.Time) *Document {
	byID := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		if in.Extraction == nil {
			continue
		}
		if prev, ok := byID[in.DocumentID]; ok && prev.Seq <= in.Seq {
			continue
		}
		byID[in.DocumentID] = in
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	ordered := ordering.Order(ids, cfg)

	doc := &Document{
		Title: "Document AI Extraction Results",
		Summary: Summary{
			Files:       len(ordered),
			GeneratedAt: now,
			Method:      "Google Document AI",
		},
		UnusedEntries: ordering.UnusedEntries(ordered, cfg),
	}

	processors := map[string]bool{}
	for i, od := range ordered {
		in := byID[od.DocumentID]
		base := domain.BaseName(od.DocumentID)
		ext := in.Extraction
		tables := ext.TableCount
		if tables == 0 {
			tables = len(ext.Tables)
		}

		sec := Section{
			Number:      i + 1,
			DocumentID:  od.DocumentID,
			BaseName:    base,
			DisplayName: DisplayName(base),
			Description: desc.For(base),
			MatchIndex:  od.MatchIndex,
			ProcessedAt: in.ProcessedAt,
			Extraction:  ext,
		}
		doc.Sections = append(doc.Sections, sec)
		doc.TOC = append(doc.TOC, TOCEntry{
			Number:      sec.Number,
			DisplayName: sec.DisplayName,
			Tables:      tables,
			Description: sec.Description,
		})

		doc.Summary.TotalPages += ext.PageCount
		doc.Summary.TotalTables += tables
		doc.Summary.TotalBytes += ext.SizeBytes
		if ext.ProcessorInfo != "" {
			processors[ext.ProcessorInfo] = true
		}
	}
	if len(processors) > 0 {
		doc.Summary.Method = methodName(processors)
	}
	return doc
}

// methodName describes the backends that produced the processor infos
func methodName(processors map[string]bool) string {
	methods := map[string]bool{}
	for p := range processors {
		switch {
		case p == "docconv":
			methods["docconv (offline)"] = true
		case p == "simulated":
			methods["Simulated"] = true
		case strings.HasPrefix(p, "gemini"):
			methods["Google Gemini"] = true
		default:
			methods["Google Document AI"] = true
		}
	}
	names := make([]string, 0, len(methods))
	for m := range methods {
		names = append(names, m)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// LoadDirectory reads every *_extracted.txt file in dir as an Input
func LoadDirectory(dir string) ([]Input, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+OutputSuffix))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no extracted files found in %s", dir)
	}
	sort.Strings(matches)

	inputs := make([]Input, 0, len(matches))
	for i, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseExtraction(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		inputs = append(inputs, Input{
			DocumentID:  filepath.Base(path),
			Seq:         i,
			Extraction:  parsed.Extraction,
			ProcessedAt: parsed.ProcessedAt,
		})
	}
	return inputs, nil
}

// DefaultFileName names a PDF report after the folder it was built from
func DefaultFileName(outputFolder string, now time.Time) string {
	folder := filepath.Base(strings.TrimRight(outputFolder, "/"))
	return fmt.Sprintf("document_ai_report_%s_%s.pdf", folder, now.Format("20060102_150405"))
}
