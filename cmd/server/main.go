package main

import (
    "context"
    "errors"
    "fmt"
    "net"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"
    "google.golang.org/grpc"
    grpchealth "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "voicedesk/agent/internal/api"
    "voicedesk/agent/internal/archive"
    "voicedesk/agent/internal/clientws"
    "voicedesk/agent/internal/config"
    "voicedesk/agent/internal/health"
    "voicedesk/agent/internal/llm"
    "voicedesk/agent/internal/logging"
    "voicedesk/agent/internal/orchestrator"
    "voicedesk/agent/internal/search"
    "voicedesk/agent/internal/session"
    "voicedesk/agent/internal/stt"
    "voicedesk/agent/internal/tts"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := session.NewRegistry(cfg.Turn.HistoryCap)
	arch := newArchive(cfg, log)

	orch := orchestrator.New(orchestrator.Deps{
		Transcriber: newTranscriber(cfg, log),
		Generator: llm.NewClient(llm.Config{
			APIKey:          cfg.LLM.APIKey,
			BaseURL:         cfg.LLM.BaseURL,
			Model:           cfg.LLM.Model,
			DecisionModel:   cfg.LLM.DecisionModel,
			AzureEndpoint:   cfg.LLM.AzureEndpoint,
			AzureDeployment: cfg.LLM.AzureDeployment,
			AzureAPIVersion: cfg.LLM.AzureAPIVersion,
		}, log),
		Searcher:    newSearcher(cfg, log),
		Synthesizer: tts.NewClient(cfg.Deepgram.APIKey, cfg.Deepgram.SpeakURL, cfg.Deepgram.Voice),
		Log:         log,
	}, orchestrator.Options{
		EnergyThreshold: cfg.Turn.EnergyThreshold,
		SilenceFrames:   cfg.Turn.SilenceFrames,
		Grace:           cfg.Turn.Grace,
		ChunkChars:      cfg.Turn.ChunkChars,
	})
	if cfg.Deepgram.APIKey == "" {
		log.Warn("DEEPGRAM_API_KEY not set; speech synthesis will fail and transcription is disabled")
	}

	sweeper := orchestrator.NewSweeper(reg, cfg.Turn.HeartbeatInterval, cfg.Turn.SilenceTimeout, log)
	wss := clientws.NewServer(clientws.Config{
		ReadLimit:  cfg.Server.ReadLimit,
		InboundFPS: cfg.Server.InboundFPS,
		WriteQueue: cfg.Server.WriteQueue,
	}, reg, orch, arch, log)
	h := api.NewHandlers(cfg, reg, arch, health.NewChecker(cfg, arch), log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           logMiddleware(log, api.NewRouter(h, wss)),
		ReadHeaderTimeout: 5 * time.Second,
	}

    // gRPC health service with keepalive for fast death detection
    kap := keepalive.ServerParameters{
        MaxConnectionIdle:     2 * time.Minute,
        MaxConnectionAge:      15 * time.Minute,
        MaxConnectionAgeGrace: 30 * time.Second,
        Time:                  30 * time.Second,
        Timeout:               10 * time.Second,
    }
    kasp := keepalive.EnforcementPolicy{
        MinTime:             10 * time.Second,
        PermitWithoutStream: true,
    }
    gs := grpc.NewServer(grpc.KeepaliveParams(kap), grpc.KeepaliveEnforcementPolicy(kasp))
    hs := grpchealth.NewServer()
    healthpb.RegisterHealthServer(gs, hs)
    hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		l, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Info("grpc health listening", zap.String("addr", l.Addr().String()))
		return gs.Serve(l)
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received; draining")
		h.SetReady(false)
		hs.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not drained by Shutdown;
		// closing the sessions ends their loops and connections.
		for _, s := range reg.List() {
			reg.Delete(s.ID)
		}
		gs.GracefulStop()
		return err
	})
	return g.Wait()
}

func newTranscriber(cfg config.Config, log *zap.Logger) orchestrator.Transcriber {
	if cfg.Deepgram.APIKey == "" {
		return stt.Disabled{}
	}
	return stt.NewClient(stt.Config{
		APIKey:         cfg.Deepgram.APIKey,
		BaseURL:        cfg.Deepgram.ListenURL,
		Model:          cfg.Deepgram.Model,
		Language:       cfg.Deepgram.Language,
		EndpointingMs:  cfg.Deepgram.Endpointing,
		UtteranceEndMs: cfg.Deepgram.UtteranceEndMs,
		MaxAge:         55 * time.Minute,
	}, log)
}

func newSearcher(cfg config.Config, log *zap.Logger) orchestrator.Searcher {
	if cfg.Search.APIKey == "" {
		log.Info("SEARCH_API_KEY not set; using canned search results")
		return search.Static{Delay: 300 * time.Millisecond}
	}
	return search.NewClient(cfg.Search.APIKey, cfg.Search.BaseURL, cfg.Search.RPS, cfg.Search.MaxResults)
}

func newArchive(cfg config.Config, log *zap.Logger) archive.Store {
	if cfg.Redis.Addr == "" {
		log.Info("REDIS_ADDR not set; archiving conversations in memory")
		return archive.NewMemory(500)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return archive.NewRedisStore(client, archive.WithTTL(cfg.Redis.TTL))
}

func logMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug("http request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}
