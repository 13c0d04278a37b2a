package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/ordering"
	"github.com/hochfrequenz/docai-batch/internal/report"
	"github.com/hochfrequenz/docai-batch/internal/source"
)

var (
	reportPDF      bool
	reportMarkdown bool
	reportDir      string
	orderFile      string
)

func init() {
	// report command
	reportCmd := &cobra.Command{
		Use:   "report [OUTPUT_DIR]",
		Short: "Assemble saved extraction results into an ordered report",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().BoolVar(&reportPDF, "pdf", true, "write a PDF report")
	reportCmd.Flags().BoolVar(&reportMarkdown, "markdown", false, "write a Markdown report")
	reportCmd.Flags().StringVar(&reportDir, "reports", "", "folder for the rendered reports (default from config)")
	rootCmd.AddCommand(reportCmd)

	// order command
	orderCmd := &cobra.Command{
		Use:   "order [NAMES...]",
		Short: "Print the report order for document names or a folder",
		RunE:  runOrder,
	}
	orderCmd.Flags().StringVar(&orderFile, "order-file", "", "ordering config (default from config)")
	rootCmd.AddCommand(orderCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	folder := a.cfg.General.OutputDir
	if len(args) > 0 {
		folder = args[0]
	}
	inputs, err := report.LoadDirectory(folder)
	if err != nil {
		return err
	}

	cfg := ordering.LoadOrDefault(a.cfg.Ordering.File, a.logger)
	desc, err := report.LoadDescriptions(a.cfg.Ordering.DescriptionsFile)
	if err != nil {
		a.logger.Warn("descriptions unavailable, using defaults", zap.Error(err))
		desc = report.Descriptions{}
	}

	now := time.Now()
	doc := report.Assemble(inputs, cfg, desc, now)
	for _, entry := range doc.UnusedEntries {
		a.logger.Info("order entry matched no document", zap.String("entry", entry))
	}

	dir := reportDir
	if dir == "" {
		dir = a.cfg.General.ReportsDir
	}
	if !reportPDF && !reportMarkdown {
		return fmt.Errorf("nothing to write: enable --pdf or --markdown")
	}

	pdfPath := filepath.Join(dir, report.DefaultFileName(folder, now))
	if reportPDF {
		r := &report.PDFRenderer{}
		if err := r.RenderFile(pdfPath, doc); err != nil {
			return fmt.Errorf("rendering PDF: %w", err)
		}
		fmt.Printf("PDF report: %s\n", pdfPath)
	}
	if reportMarkdown {
		mdPath := strings.TrimSuffix(pdfPath, ".pdf") + ".md"
		if err := writeMarkdownFile(mdPath, doc); err != nil {
			return err
		}
		fmt.Printf("Markdown report: %s\n", mdPath)
	}

	fmt.Printf("%d sections, %d pages, %d tables\n",
		len(doc.Sections), doc.Summary.TotalPages, doc.Summary.TotalTables)
	return nil
}

func writeMarkdownFile(path string, doc *report.Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteMarkdown(f, doc); err != nil {
		f.Close()
		return fmt.Errorf("writing markdown: %w", err)
	}
	return f.Close()
}

func runOrder(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	path := orderFile
	if path == "" {
		path = a.cfg.Ordering.File
	}
	cfg := ordering.LoadOrDefault(path, a.logger)

	names := args
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			names, err = source.NewLocal(args[0]).List(cmd.Context())
			if err != nil {
				return err
			}
		}
	}
	if len(names) == 0 {
		names, err = source.NewLocal(a.cfg.General.InputDir).List(cmd.Context())
		if err != nil {
			return err
		}
	}

	docs := ordering.Order(names, cfg)
	for _, d := range docs {
		entry := "-"
		if d.Matched() {
			entry = fmt.Sprintf("%d:%s", d.MatchIndex, d.Entry)
		}
		fmt.Printf("%3d  %-50s %s\n", d.Rank+1, d.DocumentID, entry)
	}
	if unused := ordering.UnusedEntries(docs, cfg); len(unused) > 0 {
		fmt.Printf("\nUnused entries: %s\n", strings.Join(unused, ", "))
	}
	return nil
}
