package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oopzlab/oopzbot/pkg/ai"
	"github.com/oopzlab/oopzbot/pkg/bus"
	"github.com/oopzlab/oopzbot/pkg/config"
	"github.com/oopzlab/oopzbot/pkg/dispatch"
	"github.com/oopzlab/oopzbot/pkg/events"
	"github.com/oopzlab/oopzbot/pkg/gateway"
	"github.com/oopzlab/oopzbot/pkg/handlers"
	"github.com/oopzlab/oopzbot/pkg/logging"
	"github.com/oopzlab/oopzbot/pkg/metrics"
	"github.com/oopzlab/oopzbot/pkg/moderation"
	"github.com/oopzlab/oopzbot/pkg/music"
	"github.com/oopzlab/oopzbot/pkg/names"
	"github.com/oopzlab/oopzbot/pkg/router"
	"github.com/oopzlab/oopzbot/pkg/signer"
	"github.com/oopzlab/oopzbot/pkg/stats"
)

func runCmd(configPath string, debug bool) error {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log := logging.Init(level, cfg.Log.Format)

	// Bad or missing key is fatal: every outbound request needs a signature.
	sig, err := signer.LoadFile(cfg.Oopz.PrivateKeyPath, signer.Credentials{
		PersonUID:  cfg.Oopz.PersonUID,
		DeviceID:   cfg.Oopz.DeviceID,
		Token:      cfg.Oopz.Token,
		AppVersion: cfg.Oopz.AppVersion,
		Platform:   cfg.Oopz.Platform,
		Channel:    cfg.Oopz.Channel,
	})
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}

	metrics.Init()

	eventBus := bus.NewEventBus()
	gw := gateway.New(gateway.Config{
		URL:                cfg.Oopz.GatewayURL,
		Heartbeat:          time.Duration(cfg.Oopz.HeartbeatSeconds) * time.Second,
		LivenessMultiplier: cfg.Oopz.LivenessMultiplier,
		ConnectTimeout:     time.Duration(cfg.Oopz.ConnectTimeoutSecs) * time.Second,
	}, sig, eventBus, logging.WithComponent(log, "gateway"))

	resolver, err := names.NewResolver(cfg.Names.FilePath, cfg.Oopz.APIBase, sig,
		logging.WithComponent(log, "names"))
	if err != nil {
		return fmt.Errorf("loading name cache: %w", err)
	}

	keywords, err := handlers.NewKeywordStore(cfg.Commands.KeywordsFile)
	if err != nil {
		return fmt.Errorf("loading keyword table: %w", err)
	}

	var provider ai.Provider
	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		provider, err = ai.NewProvider(cfg.AI)
		if err != nil {
			return fmt.Errorf("configuring ai provider: %w", err)
		}
	}

	var classifier moderation.Classifier
	if cfg.Moderation.AIDetection && provider != nil {
		classifier = ai.NewClassifier(provider)
	}

	admins := func() []string { return cfg.Commands.Admins }
	engine, err := moderation.NewEngine(cfg.Moderation, admins, classifier, gw,
		logging.WithComponent(log, "moderation"))
	if err != nil {
		return fmt.Errorf("configuring moderation: %w", err)
	}

	rt := router.New(cfg.Commands, admins, gw, logging.WithComponent(log, "router"))
	if rt.OpenMode() {
		log.Warn("admin allow-list is empty: every user can run admin commands")
	}

	registerHandlers(rt, cfg, gw, keywords, resolver)
	rt.SetPassive(keywords)
	if provider != nil {
		rt.SetFallback(handlers.NewChatFallback(keywords, provider, cfg.AI.SystemPrompt))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr, log)
	}

	// Moderation always runs before command dispatch for a message; a
	// violating message never reaches its handler.
	disp := dispatch.New(func(ctx context.Context, ev events.InboundEvent) {
		if engine.Process(ctx, ev) {
			return
		}
		rt.Dispatch(ctx, ev)
	}, logging.WithComponent(log, "dispatch"))
	go disp.Run(ctx, eventBus)

	log.Info("starting", "gateway", cfg.Oopz.GatewayURL, "person", cfg.Oopz.PersonUID)
	err = gw.Run(ctx)
	eventBus.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func registerHandlers(
	rt *router.Router,
	cfg *config.Config,
	gw *gateway.Gateway,
	keywords *handlers.KeywordStore,
	resolver *names.Resolver,
) {
	rt.Register(&handlers.Help{Router: rt})
	rt.Register(&handlers.Keywords{Store: keywords})
	rt.Register(&handlers.Mute{
		Sender:      gw,
		Names:       resolver,
		TierSeconds: cfg.Moderation.MuteTierSeconds,
	})
	if cfg.Music.BaseURL != "" {
		rt.Register(&handlers.Play{Music: music.NewClient(cfg.Music.BaseURL, cfg.Music.Cookie)})
	}
	if cfg.Stats.BaseURL != "" {
		rt.Register(&handlers.Stats{Client: stats.NewClient(cfg.Stats.BaseURL, cfg.Stats.APIKey)})
	}
	if cfg.Image.Enabled && cfg.Image.APIKey != "" {
		rt.Register(&handlers.Image{Generator: ai.NewOpenAIImage(cfg.Image)})
	}
}

func serveMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", "error", err)
	}
}
