package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/source"
)

const (
	headerTitle   = "DOCUMENT AI TABLE EXTRACTION RESULTS"
	tablesHeading = "EXTRACTED TABLES:"
	textHeading   = "FULL TEXT CONTENT:"
	timeLayout    = "2006-01-02 15:04:05"

	// OutputSuffix is appended to a document's base name to form its output file name
	OutputSuffix = "_extracted.txt"
	// StatsFile holds the batch-level statistics record
	StatsFile = "batch_stats.json"
)

var (
	heavyRule = strings.Repeat("=", 80)
	lightRule = strings.Repeat("-", 40)
)

// OutputName returns the per-document output file name: "scan.png" -> "scan_extracted.txt"
func OutputName(documentID string) string {
	return domain.BaseName(documentID) + OutputSuffix
}

// OutputNames maps every distinct document id to a unique output file name.
// Ids whose base names collide get their extension added: "scan.pdf" -> "scan_pdf_extracted.txt".
func OutputNames(ids []string) map[string]string {
	var distinct []string
	seen := make(map[string]bool, len(ids))
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
		counts[OutputName(id)]++
	}

	names := make(map[string]string, len(distinct))
	used := make(map[string]bool, len(distinct))
	for _, id := range distinct {
		name := OutputName(id)
		if counts[name] > 1 {
			if ext := strings.TrimPrefix(path.Ext(filepath.ToSlash(id)), "."); ext != "" {
				name = domain.BaseName(id) + "_" + strings.ToLower(ext) + OutputSuffix
			}
		}
		stem := strings.TrimSuffix(name, OutputSuffix)
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d%s", stem, n, OutputSuffix)
		}
		used[name] = true
		names[id] = name
	}
	return names
}

// cellText keeps a cell on one line of the table grid
func cellText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinCells(cells []string) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = cellText(c)
	}
	return strings.Join(out, " | ")
}

// WriteExtraction writes ext in the per-document text format
func WriteExtraction(w io.Writer, ext *domain.Extraction, processedAt time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, heavyRule)
	fmt.Fprintln(bw, headerTitle)
	fmt.Fprintln(bw, heavyRule)
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "Processed: %s\n", processedAt.Format(timeLayout))
	fmt.Fprintf(bw, "Pages: %d\n", ext.PageCount)
	fmt.Fprintf(bw, "Tables Found: %d\n", len(ext.Tables))
	fmt.Fprintf(bw, "Processor: %s\n\n", ext.ProcessorInfo)

	if len(ext.Tables) > 0 {
		fmt.Fprintln(bw, tablesHeading)
		fmt.Fprintln(bw, lightRule)
		for i, t := range ext.Tables {
			fmt.Fprintf(bw, "\nTable %d:\n", i+1)
			if len(t.Headers) > 0 {
				fmt.Fprintln(bw, joinCells(t.Headers))
			}
			for _, row := range t.Rows {
				fmt.Fprintln(bw, joinCells(row))
			}
			fmt.Fprintln(bw)
		}
	}

	fmt.Fprintf(bw, "\n%s\n", textHeading)
	fmt.Fprintln(bw, lightRule)
	fmt.Fprint(bw, ext.Content)

	return bw.Flush()
}

// ParsedExtraction is an extraction read back from its text file
type ParsedExtraction struct {
	ProcessedAt time.Time
	Extraction  *domain.Extraction
	Metadata    map[string]string
}

// ParseExtraction reads the per-document text format. Headers are taken from the first line of each table.
func ParseExtraction(r io.Reader) (*ParsedExtraction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if !strings.HasPrefix(text, "=") {
		return nil, fmt.Errorf("not an extraction file: missing header")
	}

	head, body, found := strings.Cut(text, "\n"+textHeading+"\n")
	if !found {
		return nil, fmt.Errorf("not an extraction file: missing %q section", textHeading)
	}
	body = strings.TrimPrefix(body, lightRule+"\n")

	out := &ParsedExtraction{
		Extraction: &domain.Extraction{Content: body},
		Metadata:   make(map[string]string),
	}

	var current *domain.Table
	inTables := false
	flush := func() {
		if current != nil {
			out.Extraction.Tables = append(out.Extraction.Tables, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(head, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == heavyRule, trimmed == lightRule, trimmed == headerTitle:
			continue
		case trimmed == tablesHeading:
			inTables = true
		case inTables && strings.HasPrefix(trimmed, "Table ") && strings.HasSuffix(trimmed, ":"):
			flush()
			current = &domain.Table{}
		case inTables && trimmed == "":
			flush()
		case inTables && current != nil:
			cells := strings.Split(line, " | ")
			if current.Headers == nil {
				current.Headers = cells
			} else {
				current.Rows = append(current.Rows, cells)
			}
		case !inTables && strings.Contains(trimmed, ":"):
			key, value, _ := strings.Cut(trimmed, ":")
			out.Metadata[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	flush()

	ext := out.Extraction
	ext.ProcessorInfo = out.Metadata["Processor"]
	ext.PageCount, _ = strconv.Atoi(out.Metadata["Pages"])
	ext.TableCount, _ = strconv.Atoi(out.Metadata["Tables Found"])
	if ext.TableCount == 0 {
		ext.TableCount = len(ext.Tables)
	}
	if ts, ok := out.Metadata["Processed"]; ok {
		if t, err := time.ParseInLocation(timeLayout, ts, time.Local); err == nil {
			out.ProcessedAt = t
		}
	}
	return out, nil
}

// SaveOutputs writes one text file per successful document and the batch statistics record.
// A document id that succeeded more than once is written once, from its lowest-Seq result.
// Returns the number of extraction files written.
func SaveOutputs(ctx context.Context, sink source.Sink, batch *domain.BatchReport) (int, error) {
	var successes []domain.TaskResult
	var ids []string
	for _, res := range batch.BySubmission() {
		if res.Succeeded() {
			successes = append(successes, res)
			ids = append(ids, res.DocumentID)
		}
	}
	names := OutputNames(ids)

	written := 0
	done := make(map[string]bool, len(names))
	for _, res := range successes {
		if done[res.DocumentID] {
			continue
		}
		done[res.DocumentID] = true
		var buf bytes.Buffer
		if err := WriteExtraction(&buf, res.Extraction, res.FinishedAt); err != nil {
			return written, err
		}
		if err := sink.Put(ctx, names[res.DocumentID], buf.Bytes()); err != nil {
			return written, fmt.Errorf("saving output for %s: %w", res.DocumentID, err)
		}
		written++
	}

	stats, err := json.MarshalIndent(batch.Stats(), "", "  ")
	if err != nil {
		return written, err
	}
	if err := sink.Put(ctx, StatsFile, stats); err != nil {
		return written, fmt.Errorf("saving batch stats: %w", err)
	}
	return written, nil
}
