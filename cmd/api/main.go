package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/channel"
	"github.com/sheetcart-ai/ops-platform/internal/config"
	"github.com/sheetcart-ai/ops-platform/internal/convo"
	"github.com/sheetcart-ai/ops-platform/internal/events"
	"github.com/sheetcart-ai/ops-platform/internal/handler"
	"github.com/sheetcart-ai/ops-platform/internal/ingest"
	"github.com/sheetcart-ai/ops-platform/internal/llm"
	"github.com/sheetcart-ai/ops-platform/internal/middleware"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/internal/scheduler"
	"github.com/sheetcart-ai/ops-platform/internal/store"
	"github.com/sheetcart-ai/ops-platform/internal/vector"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
	"github.com/sheetcart-ai/ops-platform/pkg/tracing"
)

// noopIndexer stands in when no embedding provider is configured.
type noopIndexer struct{}

func (noopIndexer) Index(ctx context.Context, id, text string) error { return nil }

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	var log *logger.Logger
	var err error
	if cfg.Environment == "development" {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ops-platform-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tracing.Shutdown(shutdownCtx, tp)
			}()
		}
	}

	// Database
	st, err := store.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Event bus
	nc, err := events.Connect(ctx, events.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	streams := events.NewStreamManager(nc)
	if err := streams.EnsureStream(ctx); err != nil {
		log.Fatal("failed to ensure event stream", zap.Error(err))
	}

	// LLM clients. Chat follows DEFAULT_LLM; embeddings always resolve to
	// OpenAI because Anthropic has no embedding API.
	chatKey := cfg.OpenAIAPIKey
	if cfg.DefaultLLM == string(llm.ProviderAnthropic) {
		chatKey = cfg.AnthropicAPIKey
	}
	chatClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), chatKey)
	if err != nil {
		log.Fatal("failed to initialize LLM client", zap.Error(err))
	}
	log.Info("LLM client ready", zap.String("provider", chatClient.Name()))

	var indexer ingest.Indexer = noopIndexer{}
	var similarity *vector.Indexer
	if cfg.OpenAIAPIKey != "" {
		embedder, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatal("failed to initialize embedding client", zap.Error(err))
		}
		similarity = vector.NewIndexer(embedder.WithEmbeddingModel(cfg.EmbeddingModel), vector.NewIndex())
		indexer = similarity
	} else {
		log.Warn("no OpenAI API key, similarity indexing disabled")
	}

	// Ingestion pipeline
	extractor := ingest.NewCSVExtractor(&http.Client{Timeout: cfg.SourceFetchTimeout})
	normalizer := ingest.NewNormalizer(chatClient, cfg.NormalizerModel, cfg.DefaultCountryCode, log)
	pipeline := ingest.NewPipeline(extractor, st, normalizer, indexer, st, st, streams, log)

	sched := scheduler.New(cfg.PollInterval, pipeline.RunTick, log)
	go sched.Run(ctx)

	// Conversation worker
	registry := channel.NewRegistry(st, &http.Client{Timeout: cfg.ChannelSendTimeout}, log)
	engine := convo.NewEngine(chatClient, cfg.ConversationModel, log)
	worker := convo.NewWorker(st, st, registry, st, engine, convo.WorkerConfig{
		DefaultLocale: cfg.DefaultLocale,
		AutoStart:     cfg.AutoStartConversations,
		SendTimeout:   cfg.ChannelSendTimeout,
	}, log)

	consumers, err := startConsumers(ctx, streams, worker, cfg.ConversationConcurrency)
	if err != nil {
		log.Fatal("failed to start consumers", zap.Error(err))
	}
	defer func() {
		for _, cc := range consumers {
			cc.Stop()
		}
	}()

	// HTTP surface
	healthHandler := handler.NewHealthHandler(st, nc)
	orderHandler := handler.NewOrderHandler(st, log)
	convHandler := handler.NewConversationHandler(streams, log)
	webhookHandler := handler.NewWebhookHandler(streams, log)
	similarHandler := handler.NewSimilarHandler(similarity, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/orders/{id}", orderHandler.Get)
		r.Get("/rows/similar", similarHandler.Query)
		r.Post("/conversations/start", convHandler.Start)
		r.Post("/webhook/{provider}", webhookHandler.Inbound)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}

// startConsumers wires the three durable consumers to the conversation
// worker. Malformed payloads and channel configuration errors terminate
// the message; anything else redelivers.
func startConsumers(ctx context.Context, streams *events.StreamManager, worker *convo.Worker, concurrency int) ([]jetstream.ConsumeContext, error) {
	var consumers []jetstream.ConsumeContext

	cc, err := streams.Consume(ctx, "orders-upserted", events.SubjectOrderUpserted, concurrency,
		func(ctx context.Context, data []byte) error {
			var evt model.OrderUpserted
			if err := json.Unmarshal(data, &evt); err != nil {
				return fmt.Errorf("%w: bad order.upserted payload: %v", events.ErrDrop, err)
			}
			return dropIfUnroutable(worker.HandleOrderUpserted(ctx, evt))
		})
	if err != nil {
		return nil, err
	}
	consumers = append(consumers, cc)

	cc, err = streams.Consume(ctx, "conv-start", events.SubjectConversationStart, concurrency,
		func(ctx context.Context, data []byte) error {
			var evt model.ConversationStart
			if err := json.Unmarshal(data, &evt); err != nil {
				return fmt.Errorf("%w: bad conversation.start payload: %v", events.ErrDrop, err)
			}
			return dropIfUnroutable(worker.HandleStart(ctx, evt))
		})
	if err != nil {
		return nil, err
	}
	consumers = append(consumers, cc)

	cc, err = streams.Consume(ctx, "conv-inbound", events.SubjectConversationInbound, concurrency,
		func(ctx context.Context, data []byte) error {
			var evt model.ConversationUserMessage
			if err := json.Unmarshal(data, &evt); err != nil {
				return fmt.Errorf("%w: bad conversation.user_message payload: %v", events.ErrDrop, err)
			}
			return dropIfUnroutable(worker.HandleUserMessage(ctx, evt))
		})
	if err != nil {
		return nil, err
	}
	consumers = append(consumers, cc)

	return consumers, nil
}

// dropIfUnroutable converts channel configuration errors into terminal
// drops. Redelivering cannot fix a store with no channel configured.
func dropIfUnroutable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, channel.ErrNotConfigured) || errors.Is(err, channel.ErrUnknownProvider) {
		return fmt.Errorf("%w: %v", events.ErrDrop, err)
	}
	return err
}
