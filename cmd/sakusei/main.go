// Package main is the Sakusei CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sakusei/internal/ai"
	"github.com/hyperjump/sakusei/internal/chunker"
	"github.com/hyperjump/sakusei/internal/config"
	"github.com/hyperjump/sakusei/internal/fileid"
	"github.com/hyperjump/sakusei/internal/health"
	"github.com/hyperjump/sakusei/internal/ingest"
	"github.com/hyperjump/sakusei/internal/memory"
	"github.com/hyperjump/sakusei/internal/models"
	"github.com/hyperjump/sakusei/internal/pipeline"
	"github.com/hyperjump/sakusei/internal/planning"
	"github.com/hyperjump/sakusei/internal/queue"
	"github.com/hyperjump/sakusei/internal/retrieval"
	"github.com/hyperjump/sakusei/internal/server"
	"github.com/hyperjump/sakusei/internal/storage"
	"github.com/hyperjump/sakusei/internal/watcher"
	"github.com/hyperjump/sakusei/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/sakusei/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// picks up the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "generate":
		runGenerate()
	case "health":
		runHealth()
	case "version", "--version", "-v":
		fmt.Printf("sakusei version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`sakusei - document-grounded report generation service

Usage:
  sakusei server    [-config path] [-debug]        run the API server
  sakusei generate  [-config path] -org ID -project ID [-discipline NAME | -trade NAME]
                                                   run one report end to end
  sakusei health    [-config path]                 check retrieval dependencies
  sakusei version                                  print version
`)
}

// components holds everything the pipeline runtime is wired from. There are
// no package-level singletons: whoever schedules work receives these
// explicitly.
type components struct {
	Storage   storage.Storage
	Vector    *retrieval.MemoryIndex
	Keyword   *retrieval.BleveIndex
	Embedder  retrieval.Embedder
	Ingest    *ingest.Service
	Pipeline  *pipeline.Pipeline
	Memory    *memory.Store
	Monitor   *health.Monitor
	Runtime   *queue.Runtime
	Retriever *retrieval.Retriever
}

func (c *components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Vector != nil {
		_ = c.Vector.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	vector, err := retrieval.NewMemoryIndex(cfg.Retrieval.Dimensions)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.VectorIndexPath != "" {
		if _, statErr := os.Stat(cfg.Storage.VectorIndexPath); statErr == nil {
			if err := vector.Load(cfg.Storage.VectorIndexPath); err != nil {
				logger.Warn("failed to load vector index, starting empty", zap.Error(err))
			} else {
				logger.Info("vector index loaded", zap.Int("vectors", vector.Size()))
			}
		}
	}

	keyword, err := retrieval.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	var embedder retrieval.Embedder
	if cfg.Retrieval.EmbeddingEndpoint != "" {
		embedder = retrieval.NewHTTPEmbedder(
			cfg.Retrieval.EmbeddingEndpoint,
			cfg.Retrieval.EmbeddingAPIKey,
			cfg.Retrieval.EmbeddingModel,
			cfg.Retrieval.Dimensions,
		)
	} else {
		logger.Warn("no embedding endpoint configured, using deterministic local embeddings")
		embedder = retrieval.NewMockEmbedder(cfg.Retrieval.Dimensions)
	}

	var primaryReranker, fallbackReranker retrieval.Reranker
	var primaryProbe, fallbackProbe health.Probe
	if cfg.Retrieval.PrimaryRerankerEndpoint != "" {
		hr := retrieval.NewHTTPReranker(cfg.Retrieval.PrimaryRerankerEndpoint)
		primaryReranker = hr
		primaryProbe = hr.CheckConfig
	}
	if cfg.Retrieval.FallbackRerankerEndpoint != "" {
		hr := retrieval.NewHTTPReranker(cfg.Retrieval.FallbackRerankerEndpoint)
		fallbackReranker = hr
		fallbackProbe = hr.CheckConfig
	}

	retriever := retrieval.NewRetriever(embedder, vector, st, cfg.Retrieval.TopK*4,
		retrieval.WithRerankers(primaryReranker, fallbackReranker),
		retrieval.WithKeywordFallback(keyword),
		retrieval.WithRetrieverLogger(logger),
	)

	var drafter ai.Client
	if cfg.Generation.Endpoint != "" {
		drafter = ai.NewOpenAIClient(cfg.Generation.Endpoint, cfg.Generation.APIKey, cfg.Generation.Model)
	} else {
		logger.Warn("no generation endpoint configured, using canned drafts")
		drafter = ai.NewMockClient()
	}

	mem := memory.NewStore(st, memory.WithLogger(logger))
	loader := planning.NewStorageLoader(st)

	// Queue handlers close over the services built just below; the runtime
	// only dispatches after Start, so the late binding is safe.
	var ingestSvc *ingest.Service
	var pipe *pipeline.Pipeline
	runtime := queue.NewRuntime(&cfg.Queues, queue.Handlers{
		Ingestion: func(ctx context.Context, payload []byte) error {
			return ingestSvc.IngestionHandler()(ctx, payload)
		},
		Embedding: func(ctx context.Context, payload []byte) error {
			return ingestSvc.EmbeddingHandler()(ctx, payload)
		},
		Generation: func(ctx context.Context, payload []byte) error {
			return pipe.GenerationHandler()(ctx, payload)
		},
		GenerationExhausted: func(job *queue.Job, err error) {
			pipe.GenerationExhaustedHandler()(job, err)
		},
	}, logger)

	ingestSvc = ingest.NewService(st, chunker.NewChunker(), embedder, vector,
		&ingest.QueueEmbeddingScheduler{Queue: runtime.Embedding},
		ingest.WithKeywordIndex(keyword),
		ingest.WithLogger(logger),
	)
	pipe = pipeline.New(st, loader, retriever, drafter, mem,
		&pipeline.QueueScheduler{Queue: runtime.Generation},
		pipeline.WithLogger(logger),
		pipeline.WithTopK(cfg.Retrieval.TopK),
	)

	monitor := health.NewMonitor(
		func(ctx context.Context) error {
			_ = vector.Size()
			return nil
		},
		embedder.CheckConfig,
		primaryProbe,
		fallbackProbe,
		health.WithProbeTimeout(cfg.Retrieval.ProbeTimeout),
		health.WithLogger(logger),
	)

	return &components{
		Storage:   st,
		Vector:    vector,
		Keyword:   keyword,
		Embedder:  embedder,
		Ingest:    ingestSvc,
		Pipeline:  pipe,
		Memory:    mem,
		Monitor:   monitor,
		Runtime:   runtime,
		Retriever: retriever,
	}, nil
}

// uploadJob builds the ingestion job for a file dropped into the uploads
// directory. The document ID is derived from the path, so re-drops re-ingest
// the same document.
func uploadJob(path string) *models.IngestionJob {
	return &models.IngestionJob{
		DocumentID:  fileid.UploadDocID(path),
		Filename:    filepath.Base(path),
		StoragePath: path,
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	comps.Runtime.Start(ctx)

	var uploads *watcher.UploadWatcher
	if cfg.Watch.Directory != "" {
		uploads = watcher.NewUploadWatcher(
			cfg.Watch.Directory,
			cfg.Watch.Extensions,
			func(path string) {
				job := uploadJob(path)
				if _, err := comps.Runtime.Ingestion.Enqueue(job.DocumentID, job); err != nil {
					logger.Warn("failed to enqueue upload", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := comps.Ingest.RemoveDocument(context.Background(), fileid.UploadDocID(path)); err != nil {
					logger.Warn("failed to remove document for deleted upload", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := uploads.Start(ctx); err != nil {
			logger.Fatal("Failed to start uploads watcher", zap.Error(err))
		}
		if err := uploads.SyncExisting(); err != nil {
			logger.Warn("failed to sync existing uploads", zap.Error(err))
		}
	}

	srv := server.NewServer(
		comps.Storage,
		comps.Ingest,
		comps.Pipeline,
		comps.Memory,
		comps.Monitor,
		comps.Runtime,
		comps.Vector,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if uploads != nil {
		uploads.Stop()
	}
	comps.Runtime.Stop()
	if cfg.Storage.VectorIndexPath != "" {
		if err := comps.Vector.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	org := fs.String("org", "", "organization id")
	project := fs.String("project", "", "project id")
	reportType := fs.String("type", "tender", "report type")
	discipline := fs.String("discipline", "", "discipline name (consultant report)")
	trade := fs.String("trade", "", "trade name (contractor report)")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the run to settle")
	_ = fs.Parse(os.Args[2:])

	if *org == "" || *project == "" {
		fmt.Println("generate: -org and -project are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	comps.Runtime.Start(ctx)
	defer comps.Runtime.Stop()

	report, err := comps.Pipeline.CreateReport(ctx, &models.ReportInput{
		OrganizationID: *org,
		ProjectID:      *project,
		ReportType:     *reportType,
		Discipline:     *discipline,
		Trade:          *trade,
	})
	if err != nil {
		logger.Fatal("Failed to create report", zap.Error(err))
	}
	if err := comps.Pipeline.Run(ctx, report.ID); err != nil {
		logger.Warn("report run failed", zap.Error(err))
	}

	final, err := waitForReport(ctx, comps.Storage, report.ID)
	if err != nil {
		logger.Fatal("Report did not settle", zap.Error(err))
	}
	out, _ := json.MarshalIndent(final, "", "  ")
	fmt.Println(string(out))
	if final.Status != models.StatusComplete {
		os.Exit(1)
	}
}

// waitForReport polls until the report reaches a terminal state or ctx ends.
func waitForReport(ctx context.Context, st storage.Storage, reportID string) (*models.Report, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		report, err := st.GetReport(ctx, reportID)
		if err != nil {
			return nil, err
		}
		if report.Status.Terminal() {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runHealth() {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	snapshot := comps.Monitor.CheckHealth(context.Background())
	out, _ := json.MarshalIndent(snapshot, "", "  ")
	fmt.Println(string(out))
	if snapshot.Status == models.HealthUnhealthy {
		os.Exit(1)
	}
}
