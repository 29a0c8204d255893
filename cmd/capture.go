package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/artifact"
	"github.com/JakeFAU/webcapture/internal/browser"
	"github.com/JakeFAU/webcapture/internal/capture"
	"github.com/JakeFAU/webcapture/internal/clock/system"
	"github.com/JakeFAU/webcapture/internal/config"
	"github.com/JakeFAU/webcapture/internal/dispatcher"
	"github.com/JakeFAU/webcapture/internal/hash/sha256"
	"github.com/JakeFAU/webcapture/internal/id/uuid"
	"github.com/JakeFAU/webcapture/internal/input"
	"github.com/JakeFAU/webcapture/internal/metrics"
	"github.com/JakeFAU/webcapture/internal/policy/ratelimit"
	"github.com/JakeFAU/webcapture/internal/publisher"
	"github.com/JakeFAU/webcapture/internal/publisher/pubsub"
	"github.com/JakeFAU/webcapture/internal/storage/gcs"
	"github.com/JakeFAU/webcapture/internal/storage/local"
)

func inputRequest(opts *rootOptions, args []string) (input.Request, error) {
	if opts.file != "" {
		if len(args) > 0 {
			return input.Request{}, usagef("positional URLs cannot be combined with --file")
		}
		return input.Request{Mode: input.ModeFile, Path: opts.file}, nil
	}
	urls := append(append([]string(nil), opts.urls...), args...)
	if len(urls) == 0 {
		return input.Request{}, usagef("one of --file or --url is required")
	}
	return input.Request{Mode: input.ModeExplicit, URLs: urls}, nil
}

func runCapture(cmd *cobra.Command, deps dependencies, opts *rootOptions, args []string) error {
	ctx := cmd.Context()

	req, err := inputRequest(opts, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return &usageError{err: err}
	}

	logger, err := deps.logger(cfg.Logging.Development, cfg.Logging.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	runID, err := uuid.New().NewID()
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("run_id", runID))

	targets, err := input.NewResolver(deps.fs).Resolve(ctx, req)
	if err != nil {
		return err
	}

	store, err := local.NewWithFs(deps.fs, local.Config{BaseDir: cfg.Capture.OutputDir})
	if err != nil {
		return &capture.SetupError{Op: "prepare output directory", Err: err}
	}
	stores := []capture.BlobStore{store}
	if cfg.Storage.GCSBucket != "" {
		mirror, closeMirror, err := gcs.Dial(ctx, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: path.Join(cfg.Storage.GCSPrefix, runID),
		})
		if err != nil {
			return &capture.SetupError{Op: "connect gcs mirror", Err: err}
		}
		defer func() {
			if cerr := closeMirror(); cerr != nil {
				logger.Warn("close gcs client failed", zap.Error(cerr))
			}
		}()
		stores = append(stores, mirror)
	}

	var announcer *publisher.Announcer
	if cfg.PubSub.Topic != "" {
		pub, closePub, err := deps.publisher(ctx, pubsub.Config{
			ProjectID: cfg.PubSub.ProjectID,
			Topic:     cfg.PubSub.Topic,
		})
		if err != nil {
			return &capture.SetupError{Op: "connect pubsub", Err: err}
		}
		defer func() {
			if cerr := closePub(); cerr != nil {
				logger.Warn("close pubsub client failed", zap.Error(cerr))
			}
		}()
		announcer = publisher.NewAnnouncer(pub, publisher.Config{
			Topic: cfg.PubSub.Topic,
			RunID: runID,
		}, system.New(), logger.Named("publisher"))
	}

	recorder, err := metrics.New()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	var limiter capture.Limiter
	if cfg.Capture.PerHostQPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{PerHostQPS: cfg.Capture.PerHostQPS}, recorder)
	}

	provider, err := deps.registry(logger).Provider(cfg.Capture.Driver, browser.Options{
		Headless:     cfg.Headless(),
		ImplicitWait: browser.ImplicitWait(cfg.Capture.TimeoutMs),
	})
	if err != nil {
		return err
	}

	logger.Info("capture configured",
		zap.String("driver", provider.Kind()),
		zap.Bool("headless", cfg.Headless()),
		zap.String("output_dir", store.BaseDir()),
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", cfg.Capture.Concurrency),
		zap.Duration("implicit_wait", provider.Options().ImplicitWait),
	)

	d := dispatcher.New(
		provider,
		capture.NewExecutor(system.New(), limiter, logger.Named("capture")),
		artifact.NewWriter(logger.Named("artifact"), sha256.New(), stores...),
		recorder,
		dispatcher.Config{Concurrency: cfg.Capture.Concurrency},
		logger.Named("dispatcher"),
	)
	if announcer != nil {
		d.OnResult(func(res capture.Result) {
			announcer.Announce(ctx, res)
		})
	}
	summary, runErr := d.Run(ctx, targets)
	if announcer != nil {
		sent, failures := announcer.Stats()
		logger.Info("capture events published", zap.Int("sent", sent), zap.Int("failed", failures))
	}

	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("metrics export failed", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatSummary(summary, store.BaseDir()))
	return nil
}

func formatSummary(s dispatcher.Summary, outputDir string) string {
	parts := make([]string, 0, len(capture.Kinds()))
	for _, kind := range capture.Kinds() {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, s.Count(kind)))
	}
	return fmt.Sprintf("captured %d/%d targets (%s); %d artifacts written to %s; %d write errors",
		s.Count(capture.KindSuccess), s.Total, strings.Join(parts, " "), s.Artifacts, outputDir, s.WriteErrors)
}
