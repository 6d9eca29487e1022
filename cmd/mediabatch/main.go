package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"mediabatch/internal/batch"
	"mediabatch/internal/domain"
	"mediabatch/internal/infra"
	"mediabatch/internal/notify"
	"mediabatch/internal/providers/genai"
	imageprovider "mediabatch/internal/providers/image"
	videoprovider "mediabatch/internal/providers/video"
	"mediabatch/internal/status"
	"mediabatch/internal/storage"
)

func main() {
	var (
		inputPath   = flag.String("input", "", "batch input file (.csv or .jsonl)")
		outputDir   = flag.String("output", "", "output directory (default from config)")
		formatHint  = flag.String("format", "", "input format override: csv or jsonl")
		concurrency = flag.Int("concurrency", 0, "max in-flight requests (default from config)")
		rateLimit   = flag.Int("rate-limit", 0, "requests per minute (default from config)")
		resume      = flag.Bool("resume", false, "skip requests already completed in a prior run")
		dryRun      = flag.Bool("dry-run", false, "parse and validate the input without generating anything")
	)
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mediabatch: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *rateLimit > 0 {
		cfg.RateLimitPerMin = *rateLimit
	}
	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("cannot create output directory")
	}

	stream, err := batch.ParseBatchInput(*inputPath, cfg.OutputDir, *formatHint, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("input", *inputPath).Msg("cannot open batch input")
	}
	defer stream.Close()

	if *dryRun {
		runDry(stream, logger)
		return
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	client, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.GeminiModel,
		VideoModel: cfg.VideoModel,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot configure generation client")
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY missing, using synthetic asset generation")
	}

	destination := cfg.Destination
	if destination == "" {
		destination = cfg.OutputDir
	}
	store, err := storage.ForDestination(ctx, destination)
	if err != nil {
		logger.Fatal().Err(err).Str("destination", destination).Msg("cannot configure storage")
	}

	var notifier batch.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, nil, logger)
	}

	runner := batch.NewRunner(batch.RunnerConfig{
		Images:   imageprovider.NewGeminiGenerator(client),
		Videos:   videoprovider.NewGeminiGenerator(client),
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.StatusAddr, runner.Progress, logger)
		g.Go(func() error { return srv.Run(serverCtx) })
	}

	summary, runErr := runner.Run(ctx, stream, batch.Options{
		OutputDir:   cfg.OutputDir,
		Concurrency: cfg.Concurrency,
		RateLimit:   cfg.RateLimitPerMin,
		Resume:      *resume,
	})
	stopServer()
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("status endpoint stopped with error")
	}

	summary.RejectedRowsPath = stream.RejectedPath()
	printSummary(summary, stream.RejectedCount())

	if runErr != nil {
		os.Exit(1)
	}
}

func runDry(stream *batch.Stream, logger infra.Logger) {
	valid := 0
	for {
		if _, ok := stream.Next(); !ok {
			break
		}
		valid++
	}
	if err := stream.Err(); err != nil {
		logger.Fatal().Err(err).Msg("dry run aborted")
	}
	fmt.Printf("Dry run: %d valid request(s), %d rejected row(s)\n", valid, stream.RejectedCount())
	if path := stream.RejectedPath(); path != "" {
		fmt.Printf("Rejected rows written to %s\n", path)
	}
}

func printSummary(s domain.BatchSummary, rejected int) {
	fmt.Println("Batch complete")
	fmt.Printf("  Total requests: %d\n", s.TotalRequests)
	fmt.Printf("  Successful:     %d\n", s.Successful)
	fmt.Printf("  Failed:         %d\n", s.Failed)
	fmt.Printf("  Skipped:        %d\n", s.Skipped)
	fmt.Printf("  Rejected rows:  %d\n", rejected)
	fmt.Printf("  Success rate:   %.1f%%\n", s.SuccessRate())
	fmt.Printf("  Elapsed:        %s\n", s.ProcessingTime.Round(time.Millisecond))
	fmt.Printf("  Throughput:     %.1f req/min\n", s.ThroughputPerMin)
	fmt.Printf("  Checkpoint:     %s\n", s.CheckpointPath)
	if s.RejectedRowsPath != "" {
		fmt.Printf("  Rejected log:   %s\n", s.RejectedRowsPath)
	}
}
