package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/batch"
	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/notify"
	"github.com/hochfrequenz/docai-batch/internal/observer"
)

const stuckThreshold = 10 * time.Minute

var (
	scheduleFile     string
	scheduleInterval time.Duration
	scheduleList     bool

	watchOutput   string
	watchWorkers  int
	watchDebounce time.Duration
)

func init() {
	// schedule command
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the cron-scheduled batches",
		RunE:  runSchedule,
	}
	scheduleCmd.Flags().StringVar(&scheduleFile, "file", "", "schedule file (default from config)")
	scheduleCmd.Flags().DurationVar(&scheduleInterval, "interval", time.Minute, "how often to check for due batches")
	scheduleCmd.Flags().BoolVar(&scheduleList, "list", false, "list scheduled batches and exit")
	rootCmd.AddCommand(scheduleCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch [INPUT_DIR]",
		Short: "Run a batch whenever documents arrive in a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchOutput, "output", "", "output folder (default from config)")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 0, "concurrent extraction calls (default from config)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a batch starts")
	rootCmd.AddCommand(watchCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	path := scheduleFile
	if path == "" {
		path = a.cfg.General.ScheduleFile
	}
	sc, err := batch.LoadScheduleConfig(path)
	if err != nil {
		return err
	}
	if len(sc.Batches) == 0 {
		return fmt.Errorf("no batches configured in %s", path)
	}

	sched, err := batch.NewScheduler(sc.Batches, a.logger)
	if err != nil {
		return err
	}

	if scheduleList {
		for _, name := range sched.ListBatches() {
			cfg, _ := sched.GetConfig(name)
			fmt.Printf("%-20s %-15s next %s  %s -> %s (%d workers)\n",
				name, cfg.Cron, sched.NextRun(name).Format(time.RFC3339), cfg.Input, cfg.Output, cfg.Workers)
		}
		return nil
	}

	obs := observer.New(stuckThreshold)
	notifier := a.notifier()
	run := func(ctx context.Context, bc batch.BatchConfig) error {
		observers := []coordinator.Observer{obs}
		if bc.NotifyOnComplete {
			observers = append(observers, notify.NewBatchObserver(notifier, a.logger))
		}
		rep, err := a.runBatch(ctx, batchJob{
			Name:      bc.Name,
			Input:     bc.Input,
			Output:    bc.Output,
			Workers:   bc.Workers,
			Observers: observers,
		})
		if rep != nil {
			a.logger.Info("scheduled batch finished",
				zap.String("batch", bc.Name),
				zap.Int("succeeded", rep.Succeeded),
				zap.Int("failed", rep.Failed),
			)
		}
		return err
	}

	fmt.Printf("Scheduling %d batches from %s\n", len(sc.Batches), path)
	sched.Start(cmd.Context(), scheduleInterval, run)

	m := obs.GetMetrics()
	a.logger.Info("scheduler stopped",
		zap.Int("batches", m.Batches),
		zap.Int("completed", m.TotalCompleted),
		zap.Int("failed", m.TotalFailed),
	)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	dir := inputArg(a, args)
	obs := observer.New(stuckThreshold)
	notifier := a.notifier()

	// arrivals during a running batch coalesce into one follow-up batch
	var mu sync.Mutex
	running, pending := false, false
	var wg sync.WaitGroup

	var trigger func()
	trigger = func() {
		mu.Lock()
		if running {
			pending = true
			mu.Unlock()
			return
		}
		running = true
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := a.runBatch(ctx, batchJob{
				Name:      "watch-" + time.Now().Format("20060102-150405"),
				Input:     dir,
				Output:    watchOutput,
				Workers:   watchWorkers,
				Observers: []coordinator.Observer{obs, notify.NewBatchObserver(notifier, a.logger)},
			})
			if err != nil {
				a.logger.Error("watch batch failed", zap.Error(err))
			} else {
				printBatch(rep)
			}

			mu.Lock()
			running = false
			again := pending && ctx.Err() == nil
			pending = false
			mu.Unlock()
			if again {
				trigger()
			}
		}()
	}

	watcher, err := observer.NewInputWatcher(dir, func(files []string) {
		a.logger.Info("documents arrived", zap.Strings("files", files))
		trigger()
	}, a.logger)
	if err != nil {
		return err
	}
	watcher.SetDebounce(watchDebounce)
	watcher.Start(ctx)
	defer watcher.Stop()

	fmt.Printf("Watching %s for new documents\n", dir)
	<-ctx.Done()
	wg.Wait()
	return nil
}
