package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/laurikarhu/hlsproxy/internal/cachetier"
	"github.com/laurikarhu/hlsproxy/internal/config"
	"github.com/laurikarhu/hlsproxy/internal/fetch"
	"github.com/laurikarhu/hlsproxy/internal/middleware"
	"github.com/laurikarhu/hlsproxy/internal/proxy"
	"github.com/laurikarhu/hlsproxy/internal/scraper"
	"github.com/laurikarhu/hlsproxy/internal/sign"
	"github.com/laurikarhu/hlsproxy/internal/ssrf"
)

const handleTableCapacity = 100_000

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load config, using defaults for development")
		cfg = config.LoadWithDefaults()
	}

	log.Info().
		Str("port", cfg.Port).
		Str("base_url", cfg.BaseURL).
		Str("signing_mode", string(cfg.SigningMode)).
		Msg("starting HLS proxy")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memory := cachetier.NewMemoryCache(10_000, 512*1024*1024)

	var remote *cachetier.RedisTier
	if cfg.RedisURL != "" {
		remote, err = cachetier.NewRedisTier(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis tier unavailable, running memory-only")
			remote = nil
		} else {
			defer remote.Close()
			log.Info().Msg("connected to redis")
		}
	}
	tier := cachetier.NewTier(memory, remote, cfg.PlaylistTTL, cfg.SegmentTTL)

	scraperCache := scraper.NewCache(tier, cfg.ScraperTTL, func() (scraper.Source, error) {
		return scraper.NewHTMLSource(cfg.BaseURL), nil
	})
	if cfg.DatabaseURL != "" {
		durable, err := scraper.NewDurableStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("durable scraper store unavailable, falling back to cache-only")
		} else {
			defer durable.Close()
			scraperCache.SetDurableStore(durable)
			log.Info().Msg("connected to postgres scraper store")
		}
	}

	guard := ssrf.New()
	fetcher := fetch.New(guard)

	selfHost := cfg.BaseURL
	if parsed, parseErr := url.Parse(cfg.BaseURL); parseErr == nil && parsed.Host != "" {
		selfHost = parsed.Host
	}

	handlerCfg := proxy.Config{
		SelfHost:       selfHost,
		AllowedOrigins: cfg.AllowedOrigins,
		Fetcher:        fetcher,
		Tier:           tier,
	}

	var table *sign.HandleTable
	if cfg.SigningMode == config.SigningModeHandle {
		signer := sign.NewSigner(cfg.SigningSecret)
		table = sign.NewHandleTable(handleTableCapacity, cfg.HandleTTL)
		defer table.Close()
		handlerCfg.Signer = signer
		handlerCfg.Table = table
	}

	streamHandler := proxy.NewHandler(handlerCfg)
	episodeHandler := proxy.NewEpisodeHandler(cfg.AllowedOrigins, scraperCache, scraper.Category(cfg.DefaultCategory), cfg.DefaultServer)
	catalogSource := scraper.NewHTMLCatalogSource(cfg.BaseURL)
	catalogHandler := proxy.NewCatalogHandler(cfg.AllowedOrigins, catalogSource)

	mux := http.NewServeMux()
	proxy.Mount(mux, streamHandler, episodeHandler, catalogHandler)

	handler := middleware.Recovery(middleware.Logging(mux))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
