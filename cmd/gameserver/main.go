// Package main provides the game server binary: it serves browser clients
// over websockets and runs every room in memory.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/config"
	"github.com/cory-johannsen/splash/internal/frontend/ws"
	"github.com/cory-johannsen/splash/internal/game/prompt"
	"github.com/cory-johannsen/splash/internal/game/random"
	"github.com/cory-johannsen/splash/internal/game/room"
	"github.com/cory-johannsen/splash/internal/game/session"
	"github.com/cory-johannsen/splash/internal/gameserver"
	"github.com/cory-johannsen/splash/internal/observability"
	"github.com/cory-johannsen/splash/internal/server"
	"github.com/cory-johannsen/splash/internal/storage/postgres"
)

const (
	dbHealthInterval   = 30 * time.Second
	dbHealthTimeout    = 5 * time.Second
	postgresHealthName = "postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "gameserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("ws_addr", cfg.Websocket.Addr()),
		zap.String("prompt_source", cfg.Game.PromptSource),
	)

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	var healthSvc *server.HealthService
	if cfg.Health.Enabled() {
		healthSvc = server.NewHealthService(cfg.Health.Addr(), logger)
	}

	// Load the prompt catalogue
	var store prompt.Store
	switch cfg.Game.PromptSource {
	case config.PromptSourceDatabase:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		store = postgres.NewPromptRepository(pool.DB())

		var onChange func(bool)
		if healthSvc != nil {
			healthSvc.SetServing(postgresHealthName, true)
			onChange = func(ok bool) { healthSvc.SetServing(postgresHealthName, ok) }
		}
		watchCtx, stopWatch := context.WithCancel(ctx)
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				return pool.Watch(watchCtx, dbHealthInterval, dbHealthTimeout, logger, onChange)
			},
			StopFn: func() {
				stopWatch()
				pool.Close()
			},
		})
	default:
		store = prompt.DirStore{Dir: cfg.Game.PromptDir}
	}

	catStart := time.Now()
	catalogue, err := prompt.LoadCatalogue(ctx, store, cfg.Game.Rounds)
	if err != nil {
		logger.Fatal("loading prompts", zap.Error(err))
	}
	logger.Info("prompts loaded",
		zap.Int("count", catalogue.Len()),
		zap.Duration("elapsed", time.Since(catStart)),
	)

	// Wire the game
	src := random.NewCryptoSource()
	rooms := room.NewRegistry(src)
	conns := session.NewDirectory(logger)
	factory := room.NewPromptRoomFactory(catalogue, src, room.Rules{
		Rounds:     cfg.Game.Rounds,
		MinPlayers: cfg.Game.MinPlayers,
	})
	driver := gameserver.NewDriver(ctx, rooms, conns, gameserver.DriverConfig{
		ResultsDelay: cfg.Game.ResultsDelay,
		PromptDelay:  cfg.Game.PromptDelay,
	}, logger)

	svc := gameserver.NewGameService(rooms, conns, factory, driver, logger)
	endpoint, err := svc.NewEndpoint()
	if err != nil {
		logger.Fatal("building message router", zap.Error(err))
	}
	logger.Info("message router built", zap.Int("message_types", endpoint.Types()))

	acceptor := ws.NewAcceptor(cfg.Websocket, endpoint, logger)

	// Services stop in reverse order: the acceptor first, then pending
	// round advances, then health and the database.
	lifecycle.Add("driver", server.StopOnly(driver.Stop))
	if healthSvc != nil {
		lifecycle.Add("health", healthSvc)
	}
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.Websocket.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
