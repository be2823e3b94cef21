package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gazette-ingest/pkg/config"
	"gazette-ingest/pkg/db"
	"gazette-ingest/pkg/extract"
	"gazette-ingest/pkg/extract/mupdf"
	"gazette-ingest/pkg/extract/tesseract"
	"gazette-ingest/pkg/feed"
	"gazette-ingest/pkg/httpclient"
	"gazette-ingest/pkg/logging"
	"gazette-ingest/pkg/pipeline"
	"gazette-ingest/pkg/review"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (defaults to $GAZETTE_CONFIG)")
		feedURL    = flag.String("feed", "", "RSS feed URL to ingest")
		workers    = flag.Int("workers", 0, "Number of entries processed in parallel")
		maxEntries = flag.Int("max", 0, "Max entries to process (<=0 means no limit)")
		outputDir  = flag.String("output", "", "Directory for JSON records")
		sinks      = flag.String("sinks", "", "Comma separated sinks: file,mongo,postgres,supabase")
		tracker    = flag.String("tracker", "", "Processed ledger: none, mongo or redis")
		themesFile = flag.String("themes", "", "JSON file with the allowed themes")
		ocr        = flag.Bool("ocr", true, "Fall back to OCR for low quality text")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logFormat  = flag.String("log-format", "", "Log format: text or json")
		pdfOnly    = flag.Bool("pdf-links-only", false, "Skip entries whose URL does not end in .pdf")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the config file and env.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "feed":
			cfg.Feed.URL = *feedURL
		case "workers":
			cfg.Feed.Workers = *workers
		case "max":
			cfg.Feed.MaxEntries = *maxEntries
		case "output":
			cfg.Output.Dir = *outputDir
		case "sinks":
			cfg.Sinks = config.ParseSinks(*sinks)
		case "tracker":
			cfg.Tracker = *tracker
		case "themes":
			cfg.ThemesFile = *themesFile
		case "ocr":
			cfg.Extraction.OCR.Enabled = *ocr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "pdf-links-only":
			cfg.Feed.PDFLinksOnly = *pdfOnly
		}
	})

	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.JSONLogs())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gazette run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Feed.URL == "" {
		return fmt.Errorf("no feed URL configured")
	}

	client := httpclient.NewClientWithTimeout(httpclient.DocumentClient, cfg.Feed.HTTPTimeout)
	walker := feed.NewWalker(client,
		feed.WithMaxBytes(cfg.Feed.MaxPDFBytes),
		feed.WithLandingPages(cfg.Feed.LandingPages),
		feed.WithLogger(logging.Component(logger, "feed")),
	)

	extractor := newExtractor(cfg, logger)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	completer, err := newCompleter(ctx, cfg.AI, &closers)
	if err != nil {
		return fmt.Errorf("create AI client: %w", err)
	}
	reviewer := review.New(completer, review.WithLogger(logging.Component(logger, "review")))

	var mongoClient *db.Client
	connectMongo := func() (*db.Client, error) {
		if mongoClient != nil {
			return mongoClient, nil
		}
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("mongo URI is not configured")
		}
		c := db.NewClient(cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err := c.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		closers = append(closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		})
		mongoClient = c
		return c, nil
	}

	savers, err := buildSavers(ctx, cfg, connectMongo, &closers)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithSaver(savers),
		pipeline.WithThemes(config.LoadThemes(cfg.ThemesFile)),
		pipeline.WithWorkers(cfg.Feed.Workers),
		pipeline.WithMaxEntries(cfg.Feed.MaxEntries),
		pipeline.WithStageTimeouts(pipeline.StageTimeouts{
			Download: cfg.Timeouts.Download,
			Extract:  cfg.Timeouts.Extract,
			Review:   cfg.Timeouts.Review,
			Save:     cfg.Timeouts.Save,
		}),
		pipeline.WithLogger(logging.Component(logger, "pipeline")),
	}

	filters, err := entryFilters(cfg.Feed)
	if err != nil {
		return err
	}
	opts = append(opts, pipeline.WithFilters(filters...))

	trackerOpts, err := buildTracker(ctx, cfg, connectMongo, &closers, logger)
	if err != nil {
		return err
	}
	opts = append(opts, trackerOpts...)

	p := pipeline.NewPipeline(walker, walker, extractor, reviewer, opts...)

	start := time.Now()
	logger.Info("processing gazette feed", "url", cfg.Feed.URL, "workers", cfg.Feed.Workers, "sinks", cfg.Sinks)
	outcomes, err := p.Run(ctx, cfg.Feed.URL)
	if err != nil {
		return err
	}
	pipeline.Summarize(outcomes).Log(logger)
	logger.Info("done", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// entryFilters returns the pre-download filters the feed settings ask for.
// Without any, every entry reaches Download, which decides by content.
func entryFilters(cfg config.FeedConfig) ([]feed.Filter, error) {
	var filters []feed.Filter
	if cfg.PDFLinksOnly {
		filters = append(filters, feed.NewPDFLinkFilter())
	}
	if cfg.PathContains != "" {
		filters = append(filters, feed.NewContainsPathFilter(cfg.PathContains))
	}
	if cfg.Since != "" {
		since, err := time.Parse("2006-01-02", cfg.Since)
		if err != nil {
			return nil, fmt.Errorf("parse since date %q: %w", cfg.Since, err)
		}
		filters = append(filters, feed.NewSinceFilter(since))
	}
	return filters, nil
}

func newCompleter(ctx context.Context, cfg config.AIConfig, closers *[]func()) (review.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := review.NewGeminiCompleter(ctx, review.GeminiConfig{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			JSONMode: cfg.JSONMode,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = c.Close() })
		return c, nil
	case "", config.ProviderOpenAI:
		return review.NewOpenAICompleter(review.OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Azure:      cfg.Azure,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
			JSONMode:   cfg.JSONMode,
		})
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

func newExtractor(cfg config.Config, logger *slog.Logger) *extract.Extractor {
	opts := []extract.Option{
		extract.WithMethods(extract.NewLayoutMethod(), mupdf.NewMethod(), extract.NewPlainMethod()),
		extract.WithQualityThreshold(cfg.Extraction.QualityThreshold),
		extract.WithMinChars(cfg.Extraction.MinChars),
		extract.WithLogger(logging.Component(logger, "extract")),
	}
	if cfg.Extraction.OCR.Enabled {
		ocr := extract.NewOCRMethod(mupdf.NewRasterizer(), tesseract.NewRecognizer(),
			extract.WithDPI(cfg.Extraction.OCR.DPI),
			extract.WithMaxPages(cfg.Extraction.OCR.MaxPages),
			extract.WithMaxPixels(cfg.Extraction.OCR.MaxPixels),
			extract.WithLanguages(cfg.Extraction.OCR.Languages...),
			extract.WithOCRLogger(logging.Component(logger, "ocr")),
		)
		opts = append(opts, extract.WithOCR(ocr), extract.WithOCRMargin(cfg.Extraction.OCR.Margin))
	}
	return extract.New(opts...)
}

func buildSavers(ctx context.Context, cfg config.Config, connectMongo func() (*db.Client, error), closers *[]func()) (*pipeline.MultiSaver, error) {
	var savers []pipeline.RecordSaver

	if cfg.HasSink(config.SinkFile) {
		savers = append(savers, pipeline.NewFileSaver(cfg.Output.Dir))
	}

	if cfg.HasSink(config.SinkMongo) {
		c, err := connectMongo()
		if err != nil {
			return nil, err
		}
		savers = append(savers, c)
	}

	// One connection per worker is enough; records are written one at a time.
	pool := db.PoolConfig{MaxOpenConns: cfg.Feed.Workers, MaxIdleConns: cfg.Feed.Workers}

	if cfg.HasSink(config.SinkPostgres) {
		pg := db.NewPostgresClient(db.PostgresConfig{DSN: cfg.Postgres.DSN, Pool: pool})
		if err := pg.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = pg.Close() })

		repo := db.NewRecordRepository(pg, cfg.Postgres.Table)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare postgres schema: %w", err)
		}
		savers = append(savers, repo)
	}

	if cfg.HasSink(config.SinkSupabase) {
		sb := db.NewSupabaseClient(db.SupabaseConfig{
			ConnectionString: cfg.Supabase.ConnectionString,
			SupabaseURL:      cfg.Supabase.URL,
			SupabaseKey:      cfg.Supabase.Key,
			RecordsTable:     cfg.Supabase.Table,
			Pool:             pool,
		})
		if err := sb.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to supabase: %w", err)
		}
		*closers = append(*closers, func() { _ = sb.Close() })
		savers = append(savers, sb)
	}

	multi := pipeline.NewMultiSaver(savers...)
	if multi.Len() == 0 {
		return nil, fmt.Errorf("no sinks configured")
	}
	return multi, nil
}

func buildTracker(ctx context.Context, cfg config.Config, connectMongo func() (*db.Client, error), closers *[]func(), logger *slog.Logger) ([]pipeline.Option, error) {
	type ledger interface {
		pipeline.Tracker
		GetProcessedURLs(ctx context.Context) (map[string]bool, error)
	}

	var l ledger
	switch cfg.Tracker {
	case "", config.TrackerNone:
		return nil, nil
	case config.TrackerMongo:
		c, err := connectMongo()
		if err != nil {
			return nil, err
		}
		l = c
	case config.TrackerRedis:
		r := db.NewRedisLedger(db.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		if err := r.Connect(ctx); err != nil {
			return nil, err
		}
		*closers = append(*closers, func() { _ = r.Close() })
		l = r
	default:
		return nil, fmt.Errorf("unknown tracker %q", cfg.Tracker)
	}

	opts := []pipeline.Option{pipeline.WithTracker(l)}

	// Preloading the ledger saves a lookup per entry on large feeds.
	processed, err := l.GetProcessedURLs(ctx)
	if err != nil {
		logger.Warn("could not preload processed URLs", "error", err)
	} else {
		logger.Info("loaded processed URLs", "count", len(processed))
		opts = append(opts, pipeline.WithFilters(feed.NewProcessedFilter(processed)))
	}
	return opts, nil
}
