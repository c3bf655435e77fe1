package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threatmon/internal/alert"
	"threatmon/internal/api"
	"threatmon/internal/config"
	"threatmon/internal/decode"
	"threatmon/internal/detect"
	"threatmon/internal/ingest"
	"threatmon/internal/logging"
	"threatmon/internal/ml"
	"threatmon/internal/state"
	"threatmon/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	manager, err := config.NewManager(*configPath)
	watch := err == nil
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.NewLogger("info").Error("config load failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
		manager = config.NewManagerFromConfig(nil)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting threatmon", "version", version)
	if !watch {
		logger.Warn("config file not found, using defaults", "path", *configPath)
	}

	rootCtx := context.Background()
	sigCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srcCtx, srcCancel := context.WithCancel(rootCtx)
	workCtx, workCancel := context.WithCancel(rootCtx)
	defer srcCancel()
	defer workCancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage setup failed", "err", err)
		os.Exit(1)
	}
	initCtx, initCancel := context.WithTimeout(rootCtx, 10*time.Second)
	err = store.Init(initCtx)
	initCancel()
	if err != nil {
		logger.Error("storage init failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	logger.Info("storage ready", "driver", cfg.Storage.Driver)

	modelPath := config.ResolvePath(cfg.ML.ModelPath)
	artifacts, err := ml.LoadArtifacts(modelPath, config.ResolvePath(cfg.ML.ScalerPath))
	if err != nil {
		logger.Warn("model artifacts unavailable, environmental scoring disabled", "err", err)
		artifacts = nil
	} else {
		logger.Info("model artifacts loaded", "model", modelPath)
		if stats, serr := ml.LoadStats(config.ResolvePath(cfg.ML.StatsPath)); serr == nil {
			logger.Info("model stats",
				"type", stats.ModelType,
				"estimators", stats.NEstimators,
				"contamination", stats.Contamination,
				"samples", stats.NSamples,
				"trained", stats.TrainingDate)
		}
	}

	engine := detect.NewEngine(cfg, artifacts, logger)
	deviceState := state.NewStore(store, logger)
	alerts := alert.NewGenerator(store, deviceState, logger)
	decoder := decode.NewDecoder()

	queue := ingest.NewQueue(cfg.Pipeline.QueueSize, logger)
	router := ingest.NewRouter(queue, decoder, engine, deviceState, alerts, store, cfg.Pipeline.Workers, logger)
	router.Start(workCtx)
	logger.Info("pipeline started", "workers", cfg.Pipeline.Workers, "queue_size", cfg.Pipeline.QueueSize)

	feed, err := ingest.StartMQTT(manager, queue, logger)
	if err != nil {
		logger.Error("mqtt setup failed", "err", err)
		os.Exit(1)
	}
	ingest.StartKafkaBridge(srcCtx, manager, queue, logger)
	ingest.StartReplay(srcCtx, manager, queue, logger)

	server := api.NewServer(manager, deviceState, store, feed, engine, logger, version)
	httpServer, err := server.Start(workCtx)
	if err != nil {
		logger.Error("api listen failed", "addr", cfg.API.Addr, "err", err)
		os.Exit(1)
	}

	if watch {
		go manager.Watch(3*time.Second, func(next *config.Config) {
			engine.UpdateConfig(next)
			logger.Info("configuration reloaded", "path", manager.Path())
		}, func(err error) {
			logger.Error("config reload failed", "err", err)
		}, workCtx.Done())
	}

	<-sigCtx.Done()
	logger.Info("shutting down")

	feed.Unsubscribe()
	srcCancel()
	grace := cfg.Pipeline.ShutdownGrace
	if !router.Drain(grace) {
		logger.Warn("pipeline drain timed out", "grace", grace.String())
	}
	workCancel()
	router.Wait()
	feed.Disconnect()
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	if err := store.Close(); err != nil {
		logger.Error("storage close failed", "err", err)
	}
	logger.Info("threatmon stopped")
}
