package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/bench"
	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/notify"
	"github.com/hochfrequenz/docai-batch/internal/ordering"
	"github.com/hochfrequenz/docai-batch/internal/source"
	"github.com/hochfrequenz/docai-batch/internal/taskstore"
	"github.com/hochfrequenz/docai-batch/tui"
	"github.com/hochfrequenz/docai-batch/web/api"
)

var (
	runWorkers int
	runOutput  string
	runName    string
	runTimeout time.Duration
	runTUI     bool
	runListen  string
	runNoCache bool

	benchWorkers []int
	benchDir     string
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run [INPUT]",
		Short: "Extract every document in a folder or s3:// prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent extraction calls (default from config)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "output folder or s3:// prefix (default from config)")
	runCmd.Flags().StringVar(&runName, "name", "", "batch name")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-document timeout (default from config)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "show the live dashboard")
	runCmd.Flags().StringVar(&runListen, "listen", "", "also serve the API and live events on this address")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "bypass the result cache")
	rootCmd.AddCommand(runCmd)

	// bench command
	benchCmd := &cobra.Command{
		Use:   "bench [INPUT]",
		Short: "Process the same documents at several worker counts and compare",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBench,
	}
	benchCmd.Flags().IntSliceVar(&benchWorkers, "workers-list", bench.DefaultWorkerCounts, "worker counts to sweep")
	benchCmd.Flags().StringVar(&benchDir, "dir", "", "results base folder (default: reports folder)")
	rootCmd.AddCommand(benchCmd)
}

func inputArg(a *app, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.General.InputDir
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	job := batchJob{
		Name:      runName,
		Input:     inputArg(a, args),
		Output:    runOutput,
		Workers:   runWorkers,
		Timeout:   runTimeout,
		NoCache:   runNoCache,
		Observers: []coordinator.Observer{notify.NewBatchObserver(a.notifier(), a.logger)},
	}

	if runListen != "" {
		srv, err := a.startAPI(ctx, runListen)
		if err != nil {
			return err
		}
		defer srv.Stop()
		job.Observers = append(job.Observers, srv.Hub)
	}

	var rep *domain.BatchReport
	if runTUI {
		rep, err = runWithDashboard(ctx, cancel, a, job)
	} else {
		rep, err = a.runBatch(ctx, job)
	}
	if rep != nil {
		printBatch(rep)
	}
	return err
}

// runWithDashboard runs the batch in the background and the dashboard in the foreground
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, a *app, job batchJob) (*domain.BatchReport, error) {
	workers := job.Workers
	if workers == 0 {
		workers = a.cfg.General.Workers
	}
	model := tui.NewModel(tui.ModelConfig{Name: job.Name, Workers: workers, Cancel: cancel})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	bridge := tui.NewBridge(p)
	job.Observers = append(job.Observers, bridge)
	job.Slots = bridge.Slots

	type outcome struct {
		rep *domain.BatchReport
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rep, err := a.runBatch(ctx, job)
		if err != nil {
			p.Send(tui.BatchDoneMsg{Report: rep, Err: err})
		}
		done <- outcome{rep, err}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		a.logger.Warn("dashboard exited", zap.Error(err))
	}
	out := <-done
	return out.rep, out.err
}

// apiServer is a running history API
type apiServer struct {
	Hub    *api.Hub
	store  taskstore.Store
	cancel context.CancelFunc
	errCh  chan error
	once   sync.Once
	err    error
}

// startAPI serves the history API and live events until Stop is called or ctx ends
func (a *app) startAPI(ctx context.Context, addr string) (*apiServer, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	hub := api.NewHub(a.logger)
	server := api.NewServer(store, hub, api.Options{
		Addr:           addr,
		AllowedOrigins: a.cfg.Web.AllowedOrigins,
		Ordering:       ordering.LoadOrDefault(a.cfg.Ordering.File, a.logger),
		Logger:         a.logger,
	})

	srvCtx, cancel := context.WithCancel(ctx)
	s := &apiServer{Hub: hub, store: store, cancel: cancel, errCh: make(chan error, 1)}
	go func() { s.errCh <- server.Start(srvCtx) }()
	return s, nil
}

// Wait blocks until ctx ends or the server fails
func (s *apiServer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case err := <-s.errCh:
		s.errCh <- err
	}
	return s.Stop()
}

// Stop shuts the server down and closes the store
func (s *apiServer) Stop() error {
	s.once.Do(func() {
		s.cancel()
		s.err = <-s.errCh
		s.store.Close()
	})
	return s.err
}

func printBatch(r *domain.BatchReport) {
	fmt.Printf("Batch %s (%s)\n", r.Name, r.ID)
	fmt.Printf("  Documents:  %d (%d succeeded, %d failed)\n", r.TotalTasks, r.Succeeded, r.Failed)
	fmt.Printf("  Workers:    %d\n", r.Workers)
	fmt.Printf("  Wall clock: %s\n", r.WallClock.Round(10*time.Millisecond))
	fmt.Printf("  Throughput: %.2f docs/sec\n", r.Throughput)

	stats := r.Stats()
	fmt.Printf("  Extracted:  %d pages, %d tables, %s\n",
		stats.TotalPages, stats.TotalTables, humanize.Bytes(uint64(stats.TotalBytes)))

	if r.Failed > 0 {
		fmt.Println("\nFailures:")
		for _, res := range r.Failures() {
			fmt.Printf("  %-40s %s\n", res.DocumentID, res.Failure)
		}
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	input := inputArg(a, args)
	src, err := source.Open(ctx, input, a.s3Options())
	if err != nil {
		return err
	}
	ids, err := src.List(ctx)
	if err != nil {
		return fmt.Errorf("listing %s: %w", input, err)
	}

	// cached results would hide the extraction latency being measured
	client, cleanup, err := a.extractor(ctx, src, false)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := coordinator.New(client,
		coordinator.WithLogger(a.logger),
		coordinator.WithTaskTimeout(a.cfg.General.TaskTimeout.Duration),
	)

	fmt.Printf("Benchmarking %d documents at %s workers\n", len(ids), joinInts(benchWorkers))
	res, err := bench.Sweep(ctx, runner, ids, bench.Options{
		WorkerCounts: benchWorkers,
		Logger:       a.logger,
		OnRun: func(r bench.Run) {
			fmt.Printf("  %2d workers: %6.2fs  %5.2f docs/sec  %d/%d ok\n",
				r.Workers, r.Elapsed.Seconds(), r.Throughput, r.Succeeded, r.Total)
		},
	})
	if res == nil {
		return err
	}

	base := benchDir
	if base == "" {
		base = a.cfg.General.ReportsDir
	}
	now := time.Now()
	dir := bench.RunDir(base, now)
	if saveErr := bench.Save(dir, res, now); saveErr != nil {
		return saveErr
	}

	an := res.Analysis
	fmt.Printf("\nMax speedup %.2fx, best throughput %.2f docs/sec at %d workers (%s)\n",
		an.MaxSpeedup, an.MaxThroughput, an.BestConfiguration, an.ScalingPattern())
	fmt.Printf("Results written to %s\n", dir)
	return err
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
