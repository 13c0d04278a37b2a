package report

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/ordering"
	"github.com/hochfrequenz/docai-batch/internal/source"
)

var fixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)

func sampleExtraction() *domain.Extraction {
	return &domain.Extraction{
		Content:       "Room 101\nTiling: ceramic\n",
		PageCount:     2,
		TableCount:    1,
		ProcessorInfo: "abc123",
		Tables: []domain.Table{{
			Headers: []string{"Room", "Finish"},
			Rows:    [][]string{{"101", "Ceramic"}, {"102", "Vinyl"}},
		}},
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"scan.png", "scan_extracted.txt"},
		{"inputs/Finish_Schedule_Tiling.pdf", "Finish_Schedule_Tiling_extracted.txt"},
		{"report", "report_extracted.txt"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.input); got != tt.want {
			t.Errorf("OutputName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWriteAndParseExtraction(t *testing.T) {
	ext := sampleExtraction()

	var buf bytes.Buffer
	if err := WriteExtraction(&buf, ext, fixedTime); err != nil {
		t.Fatal(err)
	}

	text := buf.String()
	for _, want := range []string{headerTitle, "Pages: 2", "Tables Found: 1", "Processor: abc123", "Room | Finish", "101 | Ceramic"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q", want)
		}
	}

	parsed, err := ParseExtraction(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	got := parsed.Extraction
	if got.Content != ext.Content {
		t.Errorf("Content = %q, want %q", got.Content, ext.Content)
	}
	if got.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", got.PageCount)
	}
	if got.ProcessorInfo != "abc123" {
		t.Errorf("ProcessorInfo = %q, want abc123", got.ProcessorInfo)
	}
	if !reflect.DeepEqual(got.Tables, ext.Tables) {
		t.Errorf("Tables = %v, want %v", got.Tables, ext.Tables)
	}
	if !parsed.ProcessedAt.Equal(fixedTime) {
		t.Errorf("ProcessedAt = %v, want %v", parsed.ProcessedAt, fixedTime)
	}
}

func TestWriteAndParseExtraction_MultiLineCells(t *testing.T) {
	ext := &domain.Extraction{
		Content: "body",
		Tables: []domain.Table{{
			Headers: []string{"Room", "Finish\r\nNotes"},
			Rows:    [][]string{{"A", "line one\nline two"}, {"B", "  spaced\n\n out "}},
		}},
	}

	var buf bytes.Buffer
	if err := WriteExtraction(&buf, ext, fixedTime); err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseExtraction(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(parsed.Extraction.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(parsed.Extraction.Tables))
	}
	got := parsed.Extraction.Tables[0]
	if want := []string{"Room", "Finish Notes"}; !reflect.DeepEqual(got.Headers, want) {
		t.Errorf("Headers = %q, want %q", got.Headers, want)
	}
	want := [][]string{{"A", "line one line two"}, {"B", "spaced out"}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("Rows = %q, want %q", got.Rows, want)
	}
}

func TestOutputNames(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want map[string]string
	}{
		{
			name: "distinct bases keep the plain name",
			ids:  []string{"in/scan.pdf", "in/sheet.png"},
			want: map[string]string{"in/scan.pdf": "scan_extracted.txt", "in/sheet.png": "sheet_extracted.txt"},
		},
		{
			name: "colliding bases get the extension",
			ids:  []string{"in/scan.pdf", "in/scan.PNG", "in/other.pdf"},
			want: map[string]string{
				"in/scan.pdf":  "scan_pdf_extracted.txt",
				"in/scan.PNG":  "scan_png_extracted.txt",
				"in/other.pdf": "other_extracted.txt",
			},
		},
		{
			name: "same file name in two folders is numbered",
			ids:  []string{"a/scan.pdf", "b/scan.pdf"},
			want: map[string]string{"a/scan.pdf": "scan_pdf_extracted.txt", "b/scan.pdf": "scan_pdf_2_extracted.txt"},
		},
		{
			name: "duplicate ids share one name",
			ids:  []string{"scan.pdf", "scan.pdf"},
			want: map[string]string{"scan.pdf": "scan_extracted.txt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputNames(tt.ids); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("OutputNames(%v) = %v, want %v", tt.ids, got, tt.want)
			}
		})
	}
}

func TestSaveOutputs_CollidingBaseNames(t *testing.T) {
	dir := t.TempDir()
	sink := source.NewLocal(dir)

	started := fixedTime
	results := []domain.TaskResult{
		domain.NewSuccess(domain.NewTask("b", 0, "in/scan.pdf"), &domain.Extraction{Content: "PDF", PageCount: 1}, started, started),
		domain.NewSuccess(domain.NewTask("b", 1, "in/scan.png"), &domain.Extraction{Content: "PNG", PageCount: 1}, started, started),
		domain.NewSuccess(domain.NewTask("b", 2, "in/scan.pdf"), &domain.Extraction{Content: "PDF again", PageCount: 1}, started, started),
	}
	batch := domain.NewBatchReport("b", "test", 2, results, started, started.Add(time.Second))

	n, err := SaveOutputs(context.Background(), sink, batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}

	for name, want := range map[string]string{"scan_pdf_extracted.txt": "PDF", "scan_png_extracted.txt": "PNG"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if !strings.HasSuffix(string(data), "\n"+want) {
			t.Errorf("%s ends with %q, want content %q", name, string(data)[max(0, len(data)-12):], want)
		}
	}

	inputs, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 {
		t.Errorf("LoadDirectory = %d inputs, want 2", len(inputs))
	}
}

func TestWriteExtraction_NoTables(t *testing.T) {
	ext := &domain.Extraction{Content: "just text", PageCount: 1}

	var buf bytes.Buffer
	if err := WriteExtraction(&buf, ext, fixedTime); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), tablesHeading) {
		t.Error("tables heading written for a document without tables")
	}

	parsed, err := ParseExtraction(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Extraction.Tables) != 0 {
		t.Errorf("Tables = %v, want none", parsed.Extraction.Tables)
	}
	if parsed.Extraction.Content != "just text" {
		t.Errorf("Content = %q", parsed.Extraction.Content)
	}
}

func TestParseExtraction_Invalid(t *testing.T) {
	tests := []string{
		"",
		"hello world",
		heavyRule + "\nno text section\n",
	}
	for _, input := range tests {
		if _, err := ParseExtraction(strings.NewReader(input)); err == nil {
			t.Errorf("ParseExtraction(%q) expected error", input)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"finish_schedule_tiling", "Finish Schedule: Tiling"},
		{"door_hardware", "Door Hardware"},
		{"Sheets", "Sheets"},
		{"plan", "Plan"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoadDescriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptions.yaml")
	content := "Sheets: Drawing index\nfinish_schedule_tiling: Tile finishes by room\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	desc, err := LoadDescriptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := desc.For("Sheets"); got != "Drawing index" {
		t.Errorf("For(Sheets) = %q, want Drawing index", got)
	}
	if got := desc.For("unknown"); got != DefaultDescription {
		t.Errorf("For(unknown) = %q, want default", got)
	}
}

func TestLoadDescriptions_EmptyPath(t *testing.T) {
	desc, err := LoadDescriptions("")
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 0 {
		t.Errorf("len = %d, want 0", len(desc))
	}
}

func TestLoadDescriptions_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- just\n- a list\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDescriptions(path); err == nil {
		t.Error("expected error for a list document")
	}
}

func TestAssemble_OrderAndSummary(t *testing.T) {
	mk := func(pages, tables int, proc string) *domain.Extraction {
		ext := &domain.Extraction{PageCount: pages, TableCount: tables, ProcessorInfo: proc, SizeBytes: 1000}
		for i := 0; i < tables; i++ {
			ext.Tables = append(ext.Tables, domain.Table{Headers: []string{"a"}})
		}
		return ext
	}
	inputs := []Input{
		{DocumentID: "zeta.pdf", Seq: 0, Extraction: mk(1, 0, "p1")},
		{DocumentID: "Finish_Schedule_Tiling.png", Seq: 1, Extraction: mk(3, 2, "p1")},
		{DocumentID: "Sheets.pdf", Seq: 2, Extraction: mk(2, 1, "p1")},
		{DocumentID: "alpha.png", Seq: 3, Extraction: mk(1, 1, "p1")},
	}
	cfg := ordering.Config{Priority: []string{"Sheets", "Finish_Schedule", "Missing"}}
	desc := Descriptions{"Sheets": "Drawing index"}

	doc := Assemble(inputs, cfg, desc, fixedTime)

	var order []string
	for _, s := range doc.Sections {
		order = append(order, s.DocumentID)
	}
	want := []string{"Sheets.pdf", "Finish_Schedule_Tiling.png", "alpha.png", "zeta.pdf"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	for i, s := range doc.Sections {
		if s.Number != i+1 {
			t.Errorf("Sections[%d].Number = %d, want %d", i, s.Number, i+1)
		}
	}
	if doc.Sections[0].Description != "Drawing index" {
		t.Errorf("Description = %q, want Drawing index", doc.Sections[0].Description)
	}
	if doc.Sections[1].DisplayName != "Finish Schedule: Tiling" {
		t.Errorf("DisplayName = %q", doc.Sections[1].DisplayName)
	}
	if doc.Sections[2].MatchIndex != -1 {
		t.Errorf("MatchIndex = %d, want -1", doc.Sections[2].MatchIndex)
	}

	s := doc.Summary
	if s.Files != 4 || s.TotalPages != 7 || s.TotalTables != 4 || s.TotalBytes != 4000 {
		t.Errorf("Summary = %+v", s)
	}
	if !s.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v", s.GeneratedAt)
	}
	if s.Method != "Google Document AI" {
		t.Errorf("Method = %q", s.Method)
	}
	if len(doc.TOC) != 4 || doc.TOC[0].Tables != 1 || doc.TOC[1].Tables != 2 {
		t.Errorf("TOC = %+v", doc.TOC)
	}
	if !reflect.DeepEqual(doc.UnusedEntries, []string{"Missing"}) {
		t.Errorf("UnusedEntries = %v, want [Missing]", doc.UnusedEntries)
	}
}

func TestAssemble_DuplicateKeepsLowestSeq(t *testing.T) {
	inputs := []Input{
		{DocumentID: "a.pdf", Seq: 5, Extraction: &domain.Extraction{ProcessorInfo: "late"}},
		{DocumentID: "a.pdf", Seq: 1, Extraction: &domain.Extraction{ProcessorInfo: "early"}},
		{DocumentID: "a.pdf", Seq: 3, Extraction: &domain.Extraction{ProcessorInfo: "middle"}},
		{DocumentID: "b.pdf", Seq: 2, Extraction: nil},
	}

	doc := Assemble(inputs, ordering.Config{}, nil, fixedTime)

	if len(doc.Sections) != 1 {
		t.Fatalf("len(Sections) = %d, want 1", len(doc.Sections))
	}
	if got := doc.Sections[0].Extraction.ProcessorInfo; got != "early" {
		t.Errorf("kept %q, want early", got)
	}
}

func TestAssemble_Empty(t *testing.T) {
	doc := Assemble(nil, ordering.Config{}, nil, fixedTime)
	if len(doc.Sections) != 0 || doc.Summary.Files != 0 {
		t.Errorf("doc = %+v, want empty", doc)
	}
}

func TestMethodName(t *testing.T) {
	tests := []struct {
		procs map[string]bool
		want  string
	}{
		{map[string]bool{"abc": true}, "Google Document AI"},
		{map[string]bool{"gemini-1.5-flash": true}, "Google Gemini"},
		{map[string]bool{"docconv": true, "abc": true}, "Google Document AI, docconv (offline)"},
	}
	for _, tt := range tests {
		if got := methodName(tt.procs); got != tt.want {
			t.Errorf("methodName(%v) = %q, want %q", tt.procs, got, tt.want)
		}
	}
}

func TestFromBatch(t *testing.T) {
	now := time.Now()
	ok := domain.NewSuccess(domain.NewTask("b", 0, "a.pdf"), &domain.Extraction{}, now, now)
	bad := domain.NewFailure(domain.NewTask("b", 1, "b.pdf"), domain.KindTransient, "timeout", now, now)
	batch := domain.NewBatchReport("b", "test", 2, []domain.TaskResult{bad, ok}, now, now)

	inputs := FromBatch(batch)
	if len(inputs) != 1 || inputs[0].DocumentID != "a.pdf" {
		t.Errorf("FromBatch = %+v, want only a.pdf", inputs)
	}
}

func TestWriteMarkdown(t *testing.T) {
	doc := Assemble([]Input{
		{DocumentID: "Sheets.pdf", Extraction: sampleExtraction()},
	}, ordering.Config{Priority: []string{"Sheets", "Gone"}}, nil, fixedTime)

	var buf bytes.Buffer
	if err := WriteMarkdown(&buf, doc); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"# Document AI Extraction Results",
		"| Files Processed | 1 |",
		"| 1 | Sheets | 1 | " + DefaultDescription + " |",
		"## 1. Sheets",
		"| Room | Finish |",
		"| 102 | Vinyl |",
		"Tiling: ceramic",
		"Configured but not found: Gone",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestWriteMarkdownTable_EscapesPipes(t *testing.T) {
	var buf bytes.Buffer
	writeMarkdownTable(&buf, nil, [][]string{{"a|b", "c"}})
	if !strings.Contains(buf.String(), `a\|b`) {
		t.Errorf("pipe not escaped: %q", buf.String())
	}
}

func TestPDFRenderer(t *testing.T) {
	doc := Assemble([]Input{
		{DocumentID: "Sheets.pdf", Extraction: sampleExtraction()},
		{DocumentID: "notes.png", Extraction: &domain.Extraction{Content: "Größe überprüfen", PageCount: 1}},
	}, ordering.Config{}, nil, fixedTime)

	var buf bytes.Buffer
	r := &PDFRenderer{}
	if err := r.Render(&buf, doc); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("output does not start with %%PDF: %q", buf.Bytes()[:min(8, buf.Len())])
	}
}

func TestPDFRenderer_RenderFile(t *testing.T) {
	doc := Assemble(nil, ordering.Config{}, nil, fixedTime)
	path := filepath.Join(t.TempDir(), "reports", DefaultFileName("outputs", fixedTime))

	r := &PDFRenderer{}
	if err := r.RenderFile(path, doc); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("empty pdf")
	}
}

func TestDefaultFileName(t *testing.T) {
	got := DefaultFileName("/tmp/outputs/", fixedTime)
	want := "document_ai_report_outputs_20250314_092653.pdf"
	if got != want {
		t.Errorf("DefaultFileName = %q, want %q", got, want)
	}
}

func TestSaveOutputsAndLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	sink := source.NewLocal(dir)

	started := fixedTime
	results := []domain.TaskResult{
		domain.NewSuccess(domain.NewTask("b", 0, "inputs/Sheets.pdf"), sampleExtraction(), started, started.Add(time.Second)),
		domain.NewFailure(domain.NewTask("b", 1, "inputs/broken.pdf"), domain.KindInvalidDocument, "bad", started, started.Add(time.Second)),
		domain.NewSuccess(domain.NewTask("b", 2, "inputs/alpha.png"), &domain.Extraction{Content: "x", PageCount: 1}, started, started.Add(2*time.Second)),
	}
	batch := domain.NewBatchReport("b", "test", 2, results, started, started.Add(2*time.Second))

	n, err := SaveOutputs(context.Background(), sink, batch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, StatsFile))
	if err != nil {
		t.Fatal(err)
	}
	var stats domain.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}

	inputs, err := LoadDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 2 {
		t.Fatalf("len(inputs) = %d, want 2", len(inputs))
	}
	if inputs[0].DocumentID != "Sheets_extracted.txt" || inputs[1].DocumentID != "alpha_extracted.txt" {
		t.Errorf("inputs = %s, %s", inputs[0].DocumentID, inputs[1].DocumentID)
	}

	doc := Assemble(inputs, ordering.Config{Priority: []string{"alpha"}}, nil, fixedTime)
	if doc.Sections[0].BaseName != "alpha" || doc.Sections[1].BaseName != "Sheets" {
		t.Errorf("sections = %s, %s", doc.Sections[0].BaseName, doc.Sections[1].BaseName)
	}
	if doc.Summary.TotalTables != 1 {
		t.Errorf("TotalTables = %d, want 1", doc.Summary.TotalTables)
	}
}

func TestLoadDirectory_Empty(t *testing.T) {
	if _, err := LoadDirectory(t.TempDir()); err == nil {
		t.Error("expected error for a folder without extracted files")
	}
}
