// Package server builds the harvester's object graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/icon-harvester/internal/api"
	"github.com/JakeFAU/icon-harvester/internal/archive"
	"github.com/JakeFAU/icon-harvester/internal/batch"
	"github.com/JakeFAU/icon-harvester/internal/clock/system"
	"github.com/JakeFAU/icon-harvester/internal/config"
	"github.com/JakeFAU/icon-harvester/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/icon-harvester/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/icon-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/icon-harvester/internal/hash/sha256"
	"github.com/JakeFAU/icon-harvester/internal/headless/detector"
	"github.com/JakeFAU/icon-harvester/internal/icons"
	"github.com/JakeFAU/icon-harvester/internal/id/uuid"
	gcppublisher "github.com/JakeFAU/icon-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/icon-harvester/internal/search"
	localstorage "github.com/JakeFAU/icon-harvester/internal/storage/local"
	"github.com/JakeFAU/icon-harvester/internal/worker"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	fs              afero.Fs
	pubsubOpts      []option.ClientOption
	dispatch        *dispatcher.Dispatcher[icons.Outcome]
	harvester       *batch.Harvester
	apiServer       *api.Server
	headless        *headlessfetcher.Fetcher
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	closeOnce       sync.Once
	closeErr        error
}

// Option customizes Build.
type Option func(*App)

// WithFs swaps the workspace filesystem.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithPubSubOptions passes client options to the Pub/Sub client, for
// example a connection to an emulator.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(a *App) { a.pubsubOpts = append(a.pubsubOpts, opts...) }
}

// Build creates the application's dependencies. Call Start before handing
// work to the harvester.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(app)
	}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Pool.Workers),
		zap.String("work_dir", cfg.Storage.WorkDir),
	)

	workspace, err := localstorage.New(app.fs, localstorage.Config{BaseDir: cfg.Storage.WorkDir})
	if err != nil {
		return nil, fmt.Errorf("workspace init failed: %w", err)
	}
	archiver, err := archive.New(app.fs, cfg.Archive.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("archiver init failed: %w", err)
	}

	executor, err := app.setupExecutor(workspace)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.dispatch, err = dispatcher.New[icons.Outcome](dispatcher.Config{
		Workers:    cfg.Pool.Workers,
		JobTimeout: cfg.JobTimeout(),
		Name:       "words",
	}, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("dispatcher init failed: %w", err)
	}
	logger.Info("word pool ready", zap.Int("workers", app.dispatch.Workers()), zap.Duration("job_timeout", cfg.JobTimeout()))

	runner := batch.NewRunner(app.dispatch, executor, logger)
	if err := app.setupPublisher(ctx, runner); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	ids := uuid.New()
	app.harvester = batch.NewHarvester(runner, workspace, archiver, ids, logger)
	app.apiServer = api.NewServer(
		app.harvester,
		sha256.New(),
		system.New(),
		ids,
		api.Options{
			MaxUploadBytes: cfg.MaxUploadBytes(),
			RequestTimeout: cfg.RequestTimeout(),
			StaticDir:      cfg.Server.StaticDir,
		},
		logger,
	)
	return app, nil
}

func (a *App) setupExecutor(workspace icons.Workspace) (*worker.Worker, error) {
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Search.UserAgent,
		RespectRobots: a.cfg.Search.RespectRobots,
		Timeout:       a.cfg.HTTPTimeout(),
		MaxBodySize:   a.cfg.HTTP.MaxBodyMB << 20,
	})
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", a.cfg.Search.UserAgent),
		zap.Duration("timeout", a.cfg.HTTPTimeout()),
	)

	var (
		headless icons.Fetcher
		detect   icons.HeadlessDetector
	)
	if a.cfg.Headless.Enabled {
		var err error
		a.headless, err = headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Search.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		headless = a.headless
		detect = detector.NewHeuristic(a.cfg.Headless.PromotionThresh)
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}

	searcher := search.New(search.Config{
		DefaultTemplate: a.cfg.Search.DefaultTemplate,
		Limit:           icons.MaxIconsPerWord,
		Headless:        a.cfg.Headless.Enabled,
	}, plain, headless, detect, a.logger)
	return worker.New(searcher, plain, workspace, a.logger), nil
}

func (a *App) setupPublisher(ctx context.Context, runner *batch.Runner) error {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, batch notifications disabled")
		return nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID, a.pubsubOpts...)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = gcppublisher.New(a.pubsubClient.Topic(a.cfg.PubSub.TopicName))
	runner.WithPublisher(a.pubsubPublisher, a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

// Start launches the worker pool.
func (a *App) Start(ctx context.Context) {
	a.dispatch.Start(ctx)
}

// Harvest runs one batch through the pool and streams its archive into w.
func (a *App) Harvest(ctx context.Context, words []string, sourceConfig string, w io.Writer) (batch.Report, error) {
	return a.harvester.Harvest(ctx, words, sourceConfig, w) //nolint:wrapcheck // already wrapped by the harvester
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx ends or SIGINT/SIGTERM arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	return errors.Join(<-serveErr, closeErr)
}

// Close drains the worker pool and releases clients. Repeated calls return
// the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.dispatch != nil {
			if err := a.dispatch.Close(ctx); err != nil {
				a.closeErr = fmt.Errorf("close dispatcher: %w", err)
			}
		}
		a.closeInfrastructure()
		if err := a.logger.Sync(); err != nil {
			a.logger.Debug("logger sync failed", zap.Error(err))
		}
		a.logger.Info("shutdown complete")
	})
	return a.closeErr
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
}
