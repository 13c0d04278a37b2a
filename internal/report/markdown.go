package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// WriteMarkdown renders doc as Markdown
func WriteMarkdown(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# %s\n\n", doc.Title)
	fmt.Fprintln(bw, "| | |")
	fmt.Fprintln(bw, "|---|---|")
	fmt.Fprintf(bw, "| Report Generated | %s |\n", doc.Summary.GeneratedAt.Format(timeLayout))
	fmt.Fprintf(bw, "| Files Processed | %s |\n", humanize.Comma(int64(doc.Summary.Files)))
	fmt.Fprintf(bw, "| Total Pages Extracted | %s |\n", humanize.Comma(int64(doc.Summary.TotalPages)))
	fmt.Fprintf(bw, "| Total Tables Found | %s |\n", humanize.Comma(int64(doc.Summary.TotalTables)))
	if doc.Summary.TotalBytes > 0 {
		fmt.Fprintf(bw, "| Input Size | %s |\n", humanize.Bytes(uint64(doc.Summary.TotalBytes)))
	}
	fmt.Fprintf(bw, "| Processing Method | %s |\n\n", doc.Summary.Method)

	fmt.Fprintln(bw, "## Table of Contents")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "| # | Document | Tables Found | Description |")
	fmt.Fprintln(bw, "|---|---|---|---|")
	for _, e := range doc.TOC {
		fmt.Fprintf(bw, "| %d | %s | %d | %s |\n", e.Number, mdEscape(e.DisplayName), e.Tables, mdEscape(e.Description))
	}
	fmt.Fprintln(bw)

	for _, sec := range doc.Sections {
		ext := sec.Extraction
		fmt.Fprintf(bw, "## %d. %s\n\n", sec.Number, sec.DisplayName)
		fmt.Fprintf(bw, "_%s_\n\n", sec.Description)
		fmt.Fprintf(bw, "**Processing Details:** Pages: %d | Tables Found: %d | Processor: %s\n\n",
			ext.PageCount, len(ext.Tables), ext.ProcessorInfo)

		for i, t := range ext.Tables {
			fmt.Fprintf(bw, "### Table %d\n\n", i+1)
			writeMarkdownTable(bw, t.Headers, t.Rows)
			fmt.Fprintln(bw)
		}

		if text := strings.TrimSpace(ext.Content); text != "" {
			fmt.Fprintln(bw, "### Full Text")
			fmt.Fprintln(bw)
			fmt.Fprintln(bw, "```")
			fmt.Fprintln(bw, text)
			fmt.Fprintln(bw, "```")
			fmt.Fprintln(bw)
		}
	}

	if len(doc.UnusedEntries) > 0 {
		fmt.Fprintln(bw, "---")
		fmt.Fprintf(bw, "Configured but not found: %s\n", strings.Join(doc.UnusedEntries, ", "))
	}
	return bw.Flush()
}

func writeMarkdownTable(w io.Writer, headers []string, rows [][]string) {
	cols := len(headers)
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return
	}
	if len(headers) == 0 {
		headers = make([]string, cols)
	}
	fmt.Fprintln(w, "| "+strings.Join(padRow(headers, cols), " | ")+" |")
	fmt.Fprintln(w, "|"+strings.Repeat("---|", cols))
	for _, r := range rows {
		fmt.Fprintln(w, "| "+strings.Join(padRow(r, cols), " | ")+" |")
	}
}

func padRow(row []string, cols int) []string {
	out := make([]string, cols)
	for i := range out {
		if i < len(row) {
			out[i] = mdEscape(row[i])
		}
	}
	return out
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
