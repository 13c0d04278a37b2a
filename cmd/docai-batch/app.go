package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/docai-batch/internal/config"
	"github.com/hochfrequenz/docai-batch/internal/coordinator"
	"github.com/hochfrequenz/docai-batch/internal/domain"
	"github.com/hochfrequenz/docai-batch/internal/extract"
	"github.com/hochfrequenz/docai-batch/internal/logging"
	"github.com/hochfrequenz/docai-batch/internal/notify"
	"github.com/hochfrequenz/docai-batch/internal/report"
	"github.com/hochfrequenz/docai-batch/internal/resultcache"
	"github.com/hochfrequenz/docai-batch/internal/source"
	"github.com/hochfrequenz/docai-batch/internal/taskstore"
)

// cacheMaxAge expires cached extractions so processor upgrades are picked up eventually
const cacheMaxAge = 30 * 24 * time.Hour

// app holds what every command needs
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	// bbolt holds an exclusive file lock, so batches running side by side
	// under schedule or watch share one handle.
	cacheOnce sync.Once
	cache     *resultcache.Cache
	cacheErr  error
}

func loadApp() (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// resultCache opens the extraction cache on first use and returns the same handle afterwards
func (a *app) resultCache() (*resultcache.Cache, error) {
	a.cacheOnce.Do(func() {
		a.cache, a.cacheErr = resultcache.Open(a.cfg.Extraction.CachePath, cacheMaxAge)
	})
	return a.cache, a.cacheErr
}

// close releases process-wide resources; commands defer it after loadApp
func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing result cache", zap.Error(err))
		}
	}
	a.logger.Sync()
}

func (a *app) s3Options() source.S3Options {
	return source.S3Options{
		Region:    a.cfg.Storage.S3Region,
		AccessKey: a.cfg.Storage.S3AccessKey,
		SecretKey: a.cfg.Storage.S3SecretKey,
	}
}

func (a *app) openStore(ctx context.Context) (taskstore.Store, error) {
	store, err := taskstore.Open(ctx, a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening batch history: %w", err)
	}
	return store, nil
}

func (a *app) notifier() notify.Notifier {
	return notify.NewMultiNotifier(
		notify.NewDesktopNotifier(a.cfg.Notifications.Desktop),
		notify.NewSlackNotifier(a.cfg.Notifications.SlackWebhook),
	)
}

// extractor wires a source, backend and the shared cache into a Client.
// The returned func releases the backend.
func (a *app) extractor(ctx context.Context, src source.Source, useCache bool) (*extract.Service, func(), error) {
	backend, err := extract.NewBackend(ctx, a.cfg.Extraction, a.logger)
	if err != nil {
		return nil, nil, err
	}
	opts := []extract.Option{extract.WithLogger(a.logger)}

	if useCache && a.cfg.Extraction.CacheEnabled {
		cache, err := a.resultCache()
		if err != nil {
			a.logger.Warn("result cache unavailable", zap.Error(err))
		} else {
			opts = append(opts, extract.WithCache(cache))
		}
	}

	cleanup := func() {
		if err := extract.CloseBackend(backend); err != nil {
			a.logger.Warn("closing backend", zap.Error(err))
		}
	}
	return extract.NewService(src, backend, opts...), cleanup, nil
}

// batchJob is one batch invocation shared by run, schedule and watch
type batchJob struct {
	Name      string
	Input     string
	Output    string
	Workers   int
	Timeout   time.Duration
	NoCache   bool
	Observers []coordinator.Observer
	Slots     func(busy int)
	// Started is called with the document count before processing begins
	Started func(total int)
}

// runBatch lists the input, processes every document, records the batch and writes the outputs
func (a *app) runBatch(ctx context.Context, job batchJob) (*domain.BatchReport, error) {
	src, err := source.Open(ctx, job.Input, a.s3Options())
	if err != nil {
		return nil, err
	}
	ids, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", job.Input, err)
	}
	if len(ids) == 0 {
		return nil, domain.NewConfigurationError("no supported documents in %s", job.Input)
	}
	if job.Started != nil {
		job.Started(len(ids))
	}

	client, cleanup, err := a.extractor(ctx, src, !job.NoCache)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = a.cfg.General.TaskTimeout.Duration
	}
	opts := []coordinator.Option{
		coordinator.WithLogger(a.logger),
		coordinator.WithTaskTimeout(timeout),
		coordinator.WithRecorder(store),
	}
	for _, o := range job.Observers {
		opts = append(opts, coordinator.WithObserver(o))
	}
	if job.Slots != nil {
		opts = append(opts, coordinator.WithSlotObserver(job.Slots))
	}

	workers := job.Workers
	if workers == 0 {
		workers = a.cfg.General.Workers
	}
	rep, err := coordinator.New(client, opts...).Process(ctx, coordinator.Request{
		Name:        job.Name,
		DocumentIDs: ids,
		Workers:     workers,
	})
	if err != nil {
		return nil, err
	}

	output := job.Output
	if output == "" {
		output = a.cfg.General.OutputDir
	}
	sink, err := source.OpenSink(ctx, output, a.s3Options())
	if err != nil {
		return rep, err
	}
	written, err := report.SaveOutputs(ctx, sink, rep)
	if err != nil {
		return rep, fmt.Errorf("saving outputs: %w", err)
	}
	a.logger.Info("outputs saved", zap.String("output", output), zap.Int("files", written))
	return rep, nil
}
