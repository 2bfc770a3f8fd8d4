package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dae2blend/internal/cmdline"
	"dae2blend/internal/config"
	"dae2blend/internal/conversion"
	"dae2blend/internal/extraction"
	"dae2blend/internal/inspect"
	"dae2blend/internal/logging"
	"dae2blend/internal/metrics"
	"dae2blend/internal/repository"
	"dae2blend/internal/resolve"
	"dae2blend/internal/services"
	"dae2blend/internal/storage"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK       = 0
	exitFailure  = 1
	exitArgument = 2
)

type rootOptions struct {
	configPath string
	blender    string
	logLevel   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "dae2blend: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var argErr *cmdline.ArgError
	if errors.As(err, &argErr) {
		return exitArgument
	}
	return exitFailure
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "dae2blend [flags] -- <input.dae|input.zip> <output.blend> [--scale=<factor>]",
		Short: "Convert a COLLADA scene into a Blender project file",
		Long: `dae2blend drives Blender in background mode to import a COLLADA scene
and save it as a .blend project with all images packed.

The input may be a .dae file or a .zip archive holding exactly one .dae file
in its models directory, as downloaded from 3D Warehouse. The "--" before the
filenames is mandatory.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), opts, args, cmd.ArgsLenAtDash())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cmdline.ArgError{Msg: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&opts.blender, "blender", "", "Blender executable (overrides blender.path)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newHistoryCmd(opts), newVersionCmd())
	return root
}

// loadConfig merges defaults, the config file, the environment and flags.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(opts.configPath).Load()
	if err != nil {
		return nil, err
	}
	if opts.blender != "" {
		cfg.Blender.Path = opts.blender
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runConvert(ctx context.Context, opts *rootOptions, args []string, dash int) error {
	job, err := cmdline.Parse(args, dash)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "could not build logger")
	}
	defer logger.Sync() //nolint:errcheck

	svc, closeFn, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	collector := metrics.NewCollector(logger)
	svc.Metrics = collector
	defer func() {
		if err := collector.Flush(context.WithoutCancel(ctx), cfg.Metrics); err != nil {
			logger.Warn("could not flush metrics", zap.Error(err))
		}
	}()

	logger.Info("starting conversion",
		zap.String("input", job.Input),
		zap.String("output", job.Output),
		zap.Float64("scale", job.Rescale),
	)
	_, err = svc.Convert(ctx, job)
	return err
}

func newExtractor(cfg config.ExtractionConfig) extraction.Extractor {
	if cfg.Method == "unzip" {
		return extraction.UnzipExtractor{Path: cfg.UnzipPath}
	}
	return extraction.ArchiveExtractor{}
}

// buildService wires the pipeline from cfg. The returned func releases the
// ledger connection.
func buildService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services.ConversionService, func(), error) {
	resolver := resolve.NewResolver(
		newExtractor(cfg.Extraction),
		cfg.Extraction.ModelsDir,
		cfg.Extraction.ScratchPrefix,
		cfg.Extraction.TempDir,
		logger,
	)
	host := conversion.NewBlender(conversion.BlenderOptions{
		Path:           cfg.Blender.Path,
		ImportOperator: cfg.Blender.ImportOperator,
		FactoryStartup: cfg.Blender.FactoryStartup,
		Timeout:        cfg.Blender.Timeout,
		ExtraArgs:      cfg.Blender.ExtraArgs,
	}, logger)

	svc := services.NewConversionService(resolver, host, logger)
	closeFn := func() {}

	if cfg.Inspect.Enabled {
		svc.Inspector = inspect.NewInspector(logger)
	}

	if cfg.Ledger.Enabled {
		db, err := repository.Open(cfg.Ledger)
		if err != nil {
			logger.Warn("ledger unavailable, conversion will not be recorded", zap.Error(err))
		} else {
			svc.Ledger = repository.NewConversionRepository(db)
			closeFn = func() {
				if err := repository.Close(db); err != nil {
					logger.Warn("could not close ledger", zap.Error(err))
				}
			}
		}
	}

	if cfg.Storage.Enabled {
		client, err := storage.NewMinioClient(ctx, cfg.Storage, logger)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		svc.Publisher = storage.NewPublisher(client, cfg.Storage, logger)
	}
	return svc, closeFn, nil
}
