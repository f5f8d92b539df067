package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/stagelink/server/internal/api"
	"github.com/stagelink/server/internal/bridge"
	"github.com/stagelink/server/internal/bridge/handlers"
	"github.com/stagelink/server/internal/broker"
	"github.com/stagelink/server/internal/config"
	"github.com/stagelink/server/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	fs := pflag.NewFlagSet("stagelinkd", pflag.ContinueOnError)
	var (
		wsPort       = fs.IntP("ws-port", "w", 9090, "bridge (websocket) listen port")
		resourcePort = fs.IntP("resource-port", "r", 9091, "resource endpoint listen port")
		dataDir      = fs.StringP("data-dir", "d", "./data/resources", "resource data directory")
		token        = fs.StringP("token", "t", "", "shared auth token (empty disables auth)")
		debug        = fs.Bool("debug", false, "enable debug logging")
		logLevel     = fs.StringP("log-level", "l", "info", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse log level")
	}
	logger = logger.Level(lvl)

	overrides := config.Overrides{}
	if fs.Changed("ws-port") {
		overrides.WSPort = wsPort
	}
	if fs.Changed("resource-port") {
		overrides.ResourcePort = resourcePort
	}
	if fs.Changed("data-dir") {
		overrides.ResourceDir = dataDir
	}
	if fs.Changed("token") {
		overrides.AuthToken = token
	}
	if fs.Changed("debug") {
		overrides.Debug = debug
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err = os.MkdirAll(cfg.ResourceDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ResourceDir).Msg("failed to create data directory")
	}

	idx, err := store.OpenIndex(cfg.IndexPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.IndexPath).Msg("failed to open resource index")
	}
	defer idx.Close()

	// Blobs live in a subdirectory so the eviction engine never considers the
	// index database sitting next to it.
	st, err := store.New(store.Config{
		Dir: filepath.Join(cfg.ResourceDir, "blobs"),
		Limits: store.Limits{
			TTL:           cfg.TTL,
			MaxTotalBytes: cfg.MaxTotalBytes,
			MaxTotalFiles: cfg.MaxTotalFiles,
		},
		Index:  idx,
		Logger: logger.With().Str("component", "store").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open resource store")
	}

	br := broker.New(st, broker.Config{
		MaxInlineBytes: cfg.MaxInlineBytes,
		BaseURL:        cfg.EffectiveBaseURL(),
		ResourcePath:   cfg.ResourcePath,
		Token:          cfg.EffectiveResourceToken(),
	}, logger.With().Str("component", "broker").Logger())

	deps := handlers.NewDeps(br, cfg.AuthToken, cfg.MaxMessageLength, nil, nil, nil,
		logger.With().Str("component", "handlers").Logger())
	router := bridge.NewRouter(deps, logger.With().Str("component", "router").Logger())

	bridgeSrv := bridge.NewServer(bridge.Config{
		Addr:           cfg.WSAddr(),
		Path:           cfg.WSPath,
		MaxConnections: cfg.MaxConnections,
		KickOld:        cfg.KickOld,
	}, router, bridge.Callbacks{}, logger.With().Str("component", "bridge").Logger())

	apiSrv := api.NewServer(api.Config{
		Addr:         cfg.ResourceAddr(),
		ResourcePath: cfg.ResourcePath,
		Token:        cfg.EffectiveResourceToken(),
	}, br, logger.With().Str("component", "api").Logger())

	sweeper := store.NewSweeper(st, cfg.CleanupInterval,
		logger.With().Str("component", "sweeper").Logger())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go bridgeSrv.Run(ctx, wg, errc)
	go apiSrv.Run(ctx, wg, errc)
	go sweeper.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
