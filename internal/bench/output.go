package bench

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// RawResultsFile holds the JSON sweep result
	RawResultsFile = "raw_results.json"
	// ReportFile holds the Markdown performance report
	ReportFile = "PERFORMANCE_REPORT.md"
)

// RunDir returns benchmarks/<timestamp> under base
func RunDir(base string, now time.Time) string {
	return filepath.Join(base, "benchmarks", now.Format("20060102_150405"))
}

// Save writes the raw results and the Markdown report into dir
func Save(dir string, res *Result, now time.Time) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, RawResultsFile), raw, 0644); err != nil {
		return fmt.Errorf("writing raw results: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, ReportFile))
	if err != nil {
		return err
	}
	if err := WriteReport(f, res, now); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}

func secs(d time.Duration) float64 {
	return d.Seconds()
}

// WriteReport renders the sweep as Markdown
func WriteReport(w io.Writer, res *Result, now time.Time) error {
	a := res.Analysis
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# Document Extraction Performance Report")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "**Generated:** %s\n\n", now.Format("2006-01-02 15:04:05"))

	fmt.Fprintln(bw, "## Summary")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "- **Documents:** %s\n", humanize.Comma(int64(res.Documents)))
	fmt.Fprintf(bw, "- **Worker Configurations Tested:** %d\n", len(res.Runs))
	fmt.Fprintf(bw, "- **Best Configuration:** %d workers\n", a.BestConfiguration)
	fmt.Fprintf(bw, "- **Performance Improvement:** %.2fx faster than sequential\n", a.MaxSpeedup)
	fmt.Fprintf(bw, "- **Time Saved:** %.2f seconds\n\n", secs(a.TimeSaved))

	fmt.Fprintln(bw, "## Performance Metrics")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "| Metric | Value |")
	fmt.Fprintln(bw, "|--------|-------|")
	fmt.Fprintf(bw, "| Sequential Processing Time | %.2fs |\n", secs(a.SequentialTime))
	fmt.Fprintf(bw, "| Best Parallel Processing Time | %.2fs |\n", secs(a.BestTime))
	fmt.Fprintf(bw, "| Maximum Speedup | %.2fx |\n", a.MaxSpeedup)
	fmt.Fprintf(bw, "| Maximum Throughput | %.2f files/sec |\n", a.MaxThroughput)
	fmt.Fprintf(bw, "| Average Success Rate | %.1f%% |\n\n", a.AvgSuccessRate*100)

	fmt.Fprintln(bw, "## Detailed Results")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "| Workers | Processing Type | Total Time (s) | Throughput (files/s) | Speedup | Efficiency | Succeeded | Failed |")
	fmt.Fprintln(bw, "|---------|-----------------|----------------|----------------------|---------|------------|-----------|--------|")
	for _, run := range res.Runs {
		kind := "Parallel"
		if run.Workers == 1 {
			kind = "Sequential"
		}
		fmt.Fprintf(bw, "| %d | %s | %.2f | %.2f | %.2fx | %.2f | %d | %d |\n",
			run.Workers, kind, secs(run.Elapsed), run.Throughput, run.Speedup, run.Efficiency, run.Succeeded, run.Failed)
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "## Scalability Analysis")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "- **Optimal Worker Count:** %d (efficiency %.2f)\n", a.OptimalWorkers, a.OptimalEfficiency)
	fmt.Fprintf(bw, "- **Linear Speedup Deviation:** %.2f\n", a.LinearityDeviation)
	fmt.Fprintf(bw, "- **Speedup Pattern:** %s\n\n", a.ScalingPattern())

	for _, run := range res.Runs {
		if run.Workers == a.OptimalWorkers {
			fmt.Fprintln(bw, "## Recommendation")
			fmt.Fprintln(bw)
			fmt.Fprintf(bw, "Run with %d workers: expected %.2fs for %d documents.\n", run.Workers, secs(run.Elapsed), run.Total)
			break
		}
	}

	return bw.Flush()
}
