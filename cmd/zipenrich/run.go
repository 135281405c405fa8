package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"zipenrich/internal/cleaner"
	"zipenrich/internal/columnar"
	"zipenrich/internal/config"
	"zipenrich/internal/demographics"
	"zipenrich/internal/exporter"
	"zipenrich/internal/geocode"
	"zipenrich/internal/imputer"
	"zipenrich/internal/infrastructure"
	"zipenrich/internal/loader"
	"zipenrich/internal/operations"
	"zipenrich/internal/region"
	transport "zipenrich/internal/transport/http"
	"zipenrich/internal/zipdb"
	"zipenrich/pkg/contracts/domain"
)

type runOptions struct {
	configFile     string
	input          string
	fromCheckpoint bool
	metricsAddr    string
}

// NewRunCommand returns the command that runs the pipeline once
func NewRunCommand(_ io.Reader, stdout, _ io.Writer) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the enrichment pipeline",
		Long: `Run loads the input table, cleans it, writes a parquet checkpoint, imputes
missing postal codes and region labels, joins demographics from the zip
database and writes the enriched CSV.

With --from-checkpoint the load and clean steps are replaced by reading the
parquet checkpoint of an earlier run.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts, stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file.")
	flags.StringVarP(&opts.input, "input", "i", "", "Input file, http(s) URL or s3://bucket/key. Overrides input.path.")
	flags.BoolVar(&opts.fromCheckpoint, "from-checkpoint", false, "Start from the parquet checkpoint instead of the input.")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /healthz, /status and /metrics on this address while running.")
	return cmd
}

func runPipeline(ctx context.Context, opts *runOptions, stdout io.Writer) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.input != "" {
		cfg.Input.Path = opts.input
	}
	if opts.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = opts.metricsAddr
	}
	if cfg.Input.Path == "" && !opts.fromCheckpoint {
		return errors.New("no input: set input.path or pass --input")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return err
	}
	tracer, err := operations.NewOperationTracer(providers, metrics)
	if err != nil {
		return err
	}

	lookup, closeLookup := openDemographics(ctx, cfg.Demographics.DBPath, logger)
	defer closeLookup()

	components, err := buildComponents(cfg, lookup, metrics, logger)
	if err != nil {
		return err
	}
	registry, err := operations.NewPipelineRegistry(components)
	if err != nil {
		return err
	}
	manager := operations.NewManager(registry, operations.NewConfig(), tracer, logger)

	var resp *operations.OperationResponse
	g, gctx := errgroup.WithContext(ctx)
	pipelineDone := make(chan struct{})

	g.Go(func() error {
		defer close(pipelineDone)
		var runErr error
		resp, runErr = manager.Execute(gctx, operations.OperationRequest{
			Input:          cfg.Input.Path,
			FromCheckpoint: opts.fromCheckpoint,
		})
		return runErr
	})

	if cfg.Telemetry.MetricsAddr != "" {
		router := transport.NewRouter(transport.RouterConfig{
			Status:  manager,
			Metrics: providers.PrometheusHTTP,
			Tracer:  providers.Tracer,
			Logger:  logger,
		})
		srv := transport.NewServer(cfg.Telemetry.MetricsAddr, router, logger)
		g.Go(func() error {
			srvCtx, cancel := context.WithCancel(gctx)
			defer cancel()
			go func() {
				select {
				case <-pipelineDone:
					cancel()
				case <-srvCtx.Done():
				}
			}()
			return srv.Run(srvCtx)
		})
	}

	err = g.Wait()
	if resp != nil {
		printSummary(stdout, resp)
	}
	return err
}

// openDemographics opens the zip database read-only. When it cannot be
// opened every lookup reports no data and the run carries on.
func openDemographics(ctx context.Context, path string, logger *slog.Logger) (demographics.Lookup, func()) {
	store, err := zipdb.Open(path, true)
	if err != nil {
		logger.WarnContext(ctx, "zip database unavailable, demographics will be empty",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return demographics.LookupFunc(func(context.Context, string) (domain.Demographic, error) {
			return domain.Demographic{}, demographics.ErrNotFound
		}), func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.WarnContext(ctx, "closing zip database failed", slog.String("error", err.Error()))
		}
	}
}

func buildComponents(cfg *config.Config, lookup demographics.Lookup, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (operations.Components, error) {
	// left nil when geocoding is off so the imputer skips it
	var resolver imputer.LocationResolver
	if cfg.Geocoder.Enabled {
		client := geocode.NewNominatimClient(geocode.ClientConfig{
			BaseURL:   cfg.Geocoder.BaseURL,
			UserAgent: cfg.Geocoder.UserAgent,
			Email:     cfg.Geocoder.Email,
		})
		resolver = geocode.NewResolver(client, geocode.ResolverOptions{
			MinDelay: cfg.Geocoder.MinDelay,
			Timeout:  cfg.Geocoder.Timeout,
			Metrics:  metrics,
		}, logger)
	}

	loc, err := time.LoadLocation(cfg.Cleaner.Timezone)
	if err != nil {
		return operations.Components{}, fmt.Errorf("cleaner timezone: %w", err)
	}

	csvWriter := exporter.NewCSVWriter(logger)
	csvWriter.BOMPrefix = cfg.Output.CSVBOM

	return operations.Components{
		Loader:        loader.New(loader.OptionsFromConfig(cfg.Input), logger),
		Input:         cfg.Input.Path,
		SourceOptions: loader.SourceOptions{S3Region: cfg.Input.S3Region},
		Cleaner: cleaner.New(cleaner.Options{
			DropColumns:      cfg.Cleaner.DropColumns,
			GeohashPrecision: cfg.Cleaner.GeohashPrecision,
			Location:         loc,
		}, logger),
		CheckpointPath: cfg.Output.ParquetPath,
		Parquet:        columnar.WriteOptions{Compression: cfg.Output.Compression},
		Imputer:        imputer.New(resolver, region.Default(), logger),
		Enricher:       demographics.New(lookup, logger, metrics),
		Exporter:       csvWriter,
		OutputPath:     cfg.Output.CSVPath,
	}, nil
}

func printSummary(w io.Writer, resp *operations.OperationResponse) {
	fmt.Fprintf(w, "operation %s: %s (%s)\n", resp.ID, resp.Status, resp.Duration.Round(time.Millisecond))
	for _, s := range resp.Steps {
		line := fmt.Sprintf("  %-10s %-9s", s.ID, s.Status)
		if n, ok := s.Metadata[operations.MetadataKeyRecords]; ok {
			line += fmt.Sprintf(" records=%v", n)
		}
		if s.Error != "" {
			line += " error=" + s.Error
		} else if s.Message != "" {
			line += " " + s.Message
		}
		fmt.Fprintln(w, line)
	}
}
