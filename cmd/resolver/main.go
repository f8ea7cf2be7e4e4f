package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/earworm-app/resolver/internal/api"
	"github.com/earworm-app/resolver/internal/breaker"
	"github.com/earworm-app/resolver/internal/config"
	"github.com/earworm-app/resolver/internal/events"
	"github.com/earworm-app/resolver/internal/intent"
	"github.com/earworm-app/resolver/internal/llm"
	"github.com/earworm-app/resolver/internal/lyrics"
	"github.com/earworm-app/resolver/internal/media"
	"github.com/earworm-app/resolver/internal/ratelimit"
	"github.com/earworm-app/resolver/internal/recognize"
	"github.com/earworm-app/resolver/internal/resolver"
	"github.com/earworm-app/resolver/internal/store"
	"github.com/earworm-app/resolver/internal/synth"
	"github.com/earworm-app/resolver/internal/transcribe"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	slog.Info("resolver starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Redis cache (optional, lyrics only)
	var cache *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		cache = redis.NewClient(opts)
		if err := cache.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, lyrics cache disabled", "error", err)
			cache = nil
		} else {
			slog.Info("redis connected")
		}
	} else {
		slog.Warn("REDIS_URL not set, lyrics cache disabled")
	}

	// NATS (optional, lifecycle signals only)
	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		publisher, err = events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("NATS unreachable, lifecycle signals disabled", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	} else {
		slog.Warn("NATS_URL not set, lifecycle signals disabled")
	}

	// LLM client (classification, synthesis, vision)
	llmClient := llm.NewClient(cfg.LLMAPIKey, cfg.LLMModel)
	if cfg.LLMBaseURL != "" {
		llmClient.SetBaseURL(cfg.LLMBaseURL)
	}
	slog.Info("llm client ready", "model", cfg.LLMModel)

	// One breaker per external dependency
	newBreaker := func(name string) *breaker.Breaker {
		b := breaker.New(name, cfg.BreakerThreshold, cfg.BreakerCooldown, slog.Default())
		b.SetStateChangeHook(func(provider string, state breaker.State) {
			publisher.Publish(events.SubjectProviderDegraded, events.ProviderDegradedSignal{
				Provider: provider,
				State:    state.String(),
			})
		})
		return b
	}

	classifier := intent.NewClassifier(llmClient, newBreaker("classify"), slog.Default())

	transcriber := transcribe.NewClient(cfg.TranscribeURL, cfg.TranscribeKey, cfg.TranscribeModel)
	if !transcriber.Configured() {
		slog.Warn("TRANSCRIBE_URL not set, voice input degrades to audio-only")
	}

	audd := recognize.NewAudD(cfg.AudDURL, cfg.AudDToken)
	acrcloud := recognize.NewACRCloud(cfg.ACRCloudHost, cfg.ACRCloudKey)
	recognizer := recognize.NewOrchestrator(
		audd, acrcloud,
		newBreaker("audd"), newBreaker("acrcloud"),
		recognize.Tuning{
			FullSongBytes:    cfg.FullSongBytes,
			SubstituteMin:    cfg.SubstituteMin,
			SubstituteMargin: cfg.SubstituteMargin,
		},
		slog.Default(),
	)

	lyricsClient := lyrics.New(cfg.LyricsURL, cache, cfg.LyricsTTL, slog.Default())
	synthesizer := synth.NewSynthesizer(llmClient, newBreaker("synthesize"), lyricsClient, cfg.FollowUpThreshold, slog.Default())

	blobs := media.NewBlobStore(cfg.BlobStoreURL, cfg.BlobStoreToken)
	if !blobs.Configured() {
		slog.Warn("BLOB_STORE_URL not set, voice and image payloads unavailable")
	}

	limiter := ratelimit.New(ratelimit.Limits{
		PerMinute:  cfg.RatePerMinute,
		PerHour:    cfg.RatePerHour,
		Concurrent: cfg.RateConcurrent,
	})

	pipeline := resolver.New(resolver.Deps{
		Limiter:            limiter,
		Turns:              db,
		Blobs:              blobs,
		Transcriber:        transcriber,
		TranscribeBreaker:  newBreaker("transcribe"),
		Classifier:         classifier,
		Recognizer:         recognizer,
		Synthesizer:        synthesizer,
		Vision:             llmClient,
		Publisher:          publisher,
		TerminalConfidence: cfg.TerminalConfidence,
		RejectedThreshold:  cfg.RejectedThreshold,
		Logger:             slog.Default(),
	})

	auth := api.NewStaticAuthenticator(map[string]string{cfg.APIToken: "api-client"})
	if cfg.APIToken == "" {
		slog.Warn("RESOLVER_API_TOKEN not set, all requests will be rejected")
	}

	srv := api.NewServer(cfg.Port, pipeline, auth, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("resolver ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("resolver stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
