// Package cmd defines the webcapture command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webcapture/internal/browser"
	"github.com/JakeFAU/webcapture/internal/logging"
	"github.com/JakeFAU/webcapture/internal/publisher"
	"github.com/JakeFAU/webcapture/internal/publisher/pubsub"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks invocation mistakes; they exit with ExitUsage.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// dependencies are the collaborators a run is built from. Tests swap them
// for in-memory versions.
type dependencies struct {
	fs        afero.Fs
	registry  func(*zap.Logger) *browser.Registry
	publisher func(context.Context, pubsub.Config) (publisher.Publisher, func() error, error)
	logger    func(development, debug bool) (*zap.Logger, error)
	stdout    io.Writer
	stderr    io.Writer
}

func defaultDependencies() dependencies {
	return dependencies{
		fs:        afero.NewOsFs(),
		registry:  browser.DefaultRegistry,
		publisher: dialPubSub,
		logger:    logging.New,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

func dialPubSub(ctx context.Context, cfg pubsub.Config) (publisher.Publisher, func() error, error) {
	return pubsub.Dial(ctx, cfg)
}

type rootOptions struct {
	configPath string
	file       string
	urls       []string
	// started is set once flag parsing and validation have passed.
	started bool
}

// newRootCmd creates and configures the root command.
func newRootCmd(deps dependencies) (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "webcapture [flags] [URL ...]",
		Short: "Capture a screenshot and the rendered text of web endpoints.",
		Long: `webcapture drives a browser to every target URL, photographs the page body
and saves the rendered document text. Artifacts land in the output directory
as {domain}.png and {domain}.xml.

Targets come either from --url (repeatable, positional arguments are added)
or from a --file of domain,port lines; each line expands to an https and an
http URL.`,
		Example: `  webcapture --url https://example.com --environment headless
  webcapture --file hosts.txt --concurrency 8 --timeout-ms 10000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.started = true
			return runCapture(cmd, deps, opts, args)
		},
	}
	cmd.SetOut(deps.stdout)
	cmd.SetErr(deps.stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	flags.StringVarP(&opts.file, "file", "f", "", "file of domain,port lines to capture")
	flags.StringSliceVarP(&opts.urls, "url", "u", nil, "URL to capture (repeatable)")
	flags.String("driver", browser.DriverChrome, "browser driver: chrome, rod (firefox is an alias of chrome)")
	flags.String("environment", "", `"headless" to run without a visible browser`)
	flags.Int("concurrency", 16, "number of parallel browser sessions; 1 runs targets in order")
	flags.Int("timeout-ms", 6500, "per-step wait budget in milliseconds, rounded down to whole seconds")
	flags.String("output-dir", "tmp", "directory receiving {domain}.png and {domain}.xml")
	flags.Float64("per-host-qps", 0, "maximum captures per second against one host (0 disables)")
	flags.String("gcs-bucket", "", "also upload artifacts to this GCS bucket")
	flags.String("gcs-prefix", "", "object prefix inside --gcs-bucket")
	flags.String("pubsub-project", "", "Google Cloud project of --pubsub-topic")
	flags.String("pubsub-topic", "", "publish one event per processed target to this Pub/Sub topic")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile when the run ends")
	flags.Bool("debug", false, "enable debug logging")
	cmd.MarkFlagsMutuallyExclusive("file", "url")

	return cmd, opts
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string) int {
	return run(ctx, args, defaultDependencies())
}

func run(ctx context.Context, args []string, deps dependencies) int {
	cmd, opts := newRootCmd(deps)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(deps.stderr, "webcapture: %v\n", err)
	var uErr *usageError
	if errors.As(err, &uErr) || !opts.started {
		fmt.Fprintf(deps.stderr, "Run 'webcapture --help' for usage.\n")
		return ExitUsage
	}
	return ExitError
}
