// Package main runs the game lobby server: HTTP game management, websocket
// sessions, scripted remote calls and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamelobby/internal/config"
	"github.com/cory-johannsen/gamelobby/internal/games"
	"github.com/cory-johannsen/gamelobby/internal/gameserver"
	"github.com/cory-johannsen/gamelobby/internal/lobby"
	"github.com/cory-johannsen/gamelobby/internal/observability"
	"github.com/cory-johannsen/gamelobby/internal/scripting"
	"github.com/cory-johannsen/gamelobby/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (defaults and LOBBY_* environment only when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game lobby server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("default_capacity", cfg.Lobby.DefaultCapacity),
		zap.Int("max_capacity", cfg.Lobby.MaxCapacity),
	)

	scripts := scripting.NewManager(cfg.Lobby.ScriptInstructionLimit, logger)
	defer scripts.Close()

	var scripted []lobby.Call
	if cfg.Lobby.ScriptsDir != "" {
		scripted, err = scripts.Load(cfg.Lobby.ScriptsDir)
		if err != nil {
			logger.Fatal("loading scripted calls", zap.Error(err))
		}
	}
	calls, err := lobby.WithBuiltins(scripted...)
	if err != nil {
		logger.Fatal("building call registry", zap.Error(err))
	}
	logger.Info("remote calls registered", zap.Strings("calls", calls.Names()))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promReg)

	registry := games.NewRegistry(logger)
	gameServer := gameserver.NewServer(cfg.Server, cfg.Lobby, registry, calls, metrics, promReg, logger)

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lifecycle.Add("gameserver", &server.FuncService{
		StartFn: gameServer.ListenAndServe,
		StopFn:  gameServer.Stop,
	})
	if cfg.Lobby.IdleGameTimeout > 0 {
		lifecycle.Add("reaper", gameserver.NewReaper(registry, cfg.Lobby.IdleGameTimeout, cfg.Lobby.ReapInterval, metrics, logger))
	}

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
