// Package app initializes and holds long-lived harvester services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/inc-submissions-harvester/internal/cache"
	"github.com/JakeFAU/inc-submissions-harvester/internal/clock/system"
	"github.com/JakeFAU/inc-submissions-harvester/internal/config"
	"github.com/JakeFAU/inc-submissions-harvester/internal/fetcher/challenge"
	collyfetcher "github.com/JakeFAU/inc-submissions-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/inc-submissions-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/inc-submissions-harvester/internal/hash/sha256"
	"github.com/JakeFAU/inc-submissions-harvester/internal/id/uuid"
	"github.com/JakeFAU/inc-submissions-harvester/internal/langdetect"
	"github.com/JakeFAU/inc-submissions-harvester/internal/pipeline"
	"github.com/JakeFAU/inc-submissions-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/inc-submissions-harvester/internal/publisher/memory"
	"github.com/JakeFAU/inc-submissions-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/inc-submissions-harvester/internal/snapshot"
	"github.com/JakeFAU/inc-submissions-harvester/internal/storage/gcs"
	"github.com/JakeFAU/inc-submissions-harvester/internal/storage/local"
	memstore "github.com/JakeFAU/inc-submissions-harvester/internal/storage/memory"
	"github.com/JakeFAU/inc-submissions-harvester/internal/storage/postgres"
	"github.com/JakeFAU/inc-submissions-harvester/internal/storage/s3"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
	"github.com/JakeFAU/inc-submissions-harvester/internal/taxonomy"
	"github.com/JakeFAU/inc-submissions-harvester/internal/telemetry"
)

// App holds the shared services for one process. It is built once at startup
// and closed by the root command when the subcommand returns.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	fetcher    submission.Fetcher
	downloader submission.Downloader
	store      submission.BlobStore
	writer     *snapshot.Writer
	taxonomy   *taxonomy.Context
	runs       *postgres.RunStore
	publisher  submission.Publisher
	runner     *pipeline.Runner
	sessions   []pipeline.Session

	closers []func()
}

// New builds every service named by cfg. Partially built services are
// released before an error is returned.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	var err error

	logger.Info("initializing harvester services")

	shutdownTracing, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	})

	if a.sessions, err = cfg.PipelineSessions(); err != nil {
		return fmt.Errorf("build sessions: %w", err)
	}
	if err = a.initFetchers(); err != nil {
		return err
	}
	if a.store, err = a.openBlobStore(ctx); err != nil {
		return err
	}
	if a.writer, err = snapshot.NewWriter(a.store, sha256.New(), cfg.Storage.Prefix, logger); err != nil {
		return fmt.Errorf("init snapshot writer: %w", err)
	}
	if a.taxonomy, err = taxonomy.Load(taxonomy.Files{
		Authors:         cfg.Taxonomy.AuthorsFile,
		Topics:          cfg.Taxonomy.TopicsFile,
		KeyElements:     cfg.Taxonomy.KeyElementsFile,
		AuthorOverrides: cfg.Taxonomy.AuthorOverridesFile,
		TopicOverrides:  cfg.Taxonomy.TopicOverridesFile,
	}); err != nil {
		return err
	}
	if err = a.openRunStore(ctx); err != nil {
		return err
	}
	if a.publisher, err = a.openPublisher(ctx); err != nil {
		return err
	}

	deps := pipeline.Deps{
		Fetcher:    a.fetcher,
		Normalizer: taxonomy.NewNormalizer(a.taxonomy, logger),
		Writer:     a.writer,
		Clock:      system.New(),
		IDs:        uuid.New(),
		Logger:     logger,
	}
	if a.runs != nil {
		deps.Runs = a.runs
	}
	if cfg.Pipeline.DetectLanguages {
		deps.Detector = langdetect.New(cfg.Pipeline.MinDetectChars)
	}
	if a.runner, err = pipeline.NewRunner(deps, cfg.Pipeline.Concurrency); err != nil {
		return fmt.Errorf("init runner: %w", err)
	}
	a.closers = append(a.closers, a.runner.Release)

	logger.Info("harvester services initialized",
		zap.Int("sessions", len(a.sessions)),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("ledger", a.runs != nil),
	)
	return nil
}

func (a *App) initFetchers() error {
	cfg := a.cfg
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Fetcher.RatePerSecond,
		Burst:             cfg.Fetcher.Burst,
	})
	primary, err := collyfetcher.New(collyfetcher.Config{
		UserAgents:  cfg.Fetcher.UserAgents,
		Timeout:     cfg.Timeout(),
		MaxAttempts: cfg.Fetcher.MaxRetries + 1,
		Backoff:     cfg.Backoff(),
		Fingerprint: cfg.Fetcher.TLSFingerprint,
	}, limiter, a.logger)
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}
	a.downloader = primary

	var fetcher submission.Fetcher = primary
	if cfg.Headless.Enabled {
		agents := cfg.Fetcher.UserAgents
		if len(agents) == 0 {
			agents = collyfetcher.DefaultUserAgents
		}
		browser, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         agents[0],
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, browser.Close)
		fetcher = challenge.New(primary, browser, challenge.NewDetector(cfg.Headless.SmallBodyBytes), a.logger)
	}
	if cfg.Cache.Enabled {
		store, err := cache.Open(cache.Config{
			Dir:      cfg.Cache.Dir,
			InMemory: cfg.Cache.InMemory,
			TTL:      time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("open page cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("close page cache", zap.Error(err))
			}
		})
		fetcher = cache.NewFetcher(fetcher, store, a.logger)
	}
	a.fetcher = fetcher
	return nil
}

func (a *App) openBlobStore(ctx context.Context) (submission.BlobStore, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case "local":
		store, err := local.New(local.Config{BaseDir: sc.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case "memory":
		a.logger.Warn("using in-memory storage; snapshots are lost on exit")
		return memstore.NewBlobStore(), nil
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: sc.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, nil
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Endpoint:        sc.S3.Endpoint,
			Region:          sc.S3.Region,
			Bucket:          sc.S3.Bucket,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
			UsePathStyle:    sc.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", sc.Backend)
	}
}

func (a *App) openRunStore(ctx context.Context) error {
	pc := a.cfg.Postgres
	if !pc.Enabled {
		return nil
	}
	runs, err := postgres.NewRunStore(ctx, postgres.Config{
		DSN:      pc.DSN,
		Table:    pc.Table,
		MaxConns: pc.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init run ledger: %w", err)
	}
	a.closers = append(a.closers, runs.Close)
	if err := runs.EnsureSchema(ctx); err != nil {
		return err
	}
	a.runs = runs
	return nil
}

func (a *App) openPublisher(ctx context.Context) (submission.Publisher, error) {
	pc := a.cfg.Publisher
	switch pc.Backend {
	case "memory":
		return memory.New(), nil
	case "pubsub":
		client, err := gpubsub.NewClient(ctx, pc.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub, err := pubsub.New(client, pc.Topic)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.closers = append(a.closers, func() {
			pub.Stop()
			_ = client.Close()
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown publisher backend: %s", pc.Backend)
	}
}

// Config returns the configuration the services were built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runner returns the session runner.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Sessions returns the configured sessions in run order.
func (a *App) Sessions() []pipeline.Session { return a.sessions }

// Writer returns the snapshot writer.
func (a *App) Writer() *snapshot.Writer { return a.writer }

// Taxonomy returns the loaded reference taxonomy.
func (a *App) Taxonomy() *taxonomy.Context { return a.taxonomy }

// Downloader returns the document downloader used by sync.
func (a *App) Downloader() submission.Downloader { return a.downloader }

// Publisher returns the index task publisher.
func (a *App) Publisher() submission.Publisher { return a.publisher }

// RunLedger returns the Postgres run ledger, or nil when it is disabled.
func (a *App) RunLedger() *postgres.RunStore { return a.runs }

// Ready pings the ledger when one is configured.
func (a *App) Ready(ctx context.Context) error {
	if a.runs == nil {
		return nil
	}
	if _, err := a.runs.ListRuns(ctx, "", 1); err != nil {
		return errors.Join(errors.New("run ledger unavailable"), err)
	}
	return nil
}

// Close releases services in reverse construction order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
