package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"dag-consensus-sim/batch"
	"dag-consensus-sim/config"
	"dag-consensus-sim/db"
	"dag-consensus-sim/handlers"
	"dag-consensus-sim/logger"
	"dag-consensus-sim/report"
	"dag-consensus-sim/repository"
	"dag-consensus-sim/routers"
)

func main() {
	// Load config: file, then DAGSIM_ environment, then flags
	config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	v := config.NewViper()
	if err := config.BindFlags(v, flag.CommandLine); err != nil {
		fmt.Println("Flag error:", err)
		os.Exit(1)
	}
	configPath, required, err := config.FilePath(flag.CommandLine)
	if err != nil {
		fmt.Println("Flag error:", err)
		os.Exit(1)
	}
	if err := config.ReadFile(v, configPath, required); err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(v)
	if err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			fmt.Println("Failed to create log directory:", err)
			os.Exit(1)
		}
	}
	if err := logger.InitLogger(cfg.Log.File, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Logger.Sync()

	logger.Logger.Info("Starting consensus simulator...",
		zap.String("protocol", cfg.Batch.Settings.Protocol.String()),
		zap.String("topology", cfg.Batch.Topology.Type.String()),
		zap.Int("miners", cfg.Batch.Topology.Miners))

	// Connect to LevelDB
	var ldb *db.LevelDB
	if cfg.LevelDB.Path == "" {
		ldb, err = db.NewMemLevelDB()
	} else {
		ldb, err = db.NewLevelDB(cfg.LevelDB.Path)
	}
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	runRepo := repository.NewRunRepository(ldb)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batchErr := batch.Run(ctx, cfg.Batch, func(out batch.Outcome) error {
		if out.Result == nil {
			logger.Logger.Error("Run failed", zap.String("run", out.Run.ID), zap.Error(out.Err))
			return runRepo.PutRun(out.Run, nil, nil)
		}
		if err := runRepo.PutRun(out.Run, out.Result.Transactions, out.Result.Views); err != nil {
			return err
		}

		rep := report.Build(out.Run.Miners, out.Result.Transactions)
		logger.Logger.Info("Run stored",
			zap.String("run", out.Run.ID),
			zap.Int("ticks", out.Run.Ticks),
			zap.Int("distinct_ids", out.Run.DistinctIDs),
			zap.Int("consensed", rep.Summary.Consensed),
			zap.Int("unconsensed", rep.Summary.Unconsensed),
			zap.Int("unaccepted", rep.Summary.Unaccepted),
			zap.Int("disconsensed", rep.Summary.Disconsensed),
			zap.Float64("mean_max_time", rep.Summary.MeanMaxTime))
		if ids := rep.Unconsensed(); len(ids) > 0 {
			logger.Logger.Warn("Consensus not reached for some transactions",
				zap.String("run", out.Run.ID), zap.Ints("ids", ids))
		}
		return nil
	})
	if batchErr != nil {
		logger.Logger.Error("Batch finished with errors", zap.Error(batchErr))
	} else {
		logger.Logger.Info("Batch finished", zap.Int("executions", cfg.Batch.Executions))
	}

	if cfg.Server.Enabled && ctx.Err() == nil {
		serve(ctx, cfg.Server.Port, runRepo)
	}
	if batchErr != nil {
		logger.Logger.Sync()
		os.Exit(1)
	}
}

func serve(ctx context.Context, port int, runRepo repository.RunRepositoryInterface) {
	// Initialize HTTP handlers
	h := handlers.NewHandler(runRepo)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	// HTTP Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", port))

	// Graceful shutdown
	<-ctx.Done()
	logger.Logger.Info("Shutdown signal received, exiting...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Server shutdown failed", zap.Error(err))
	}
}
