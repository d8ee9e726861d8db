// Command brushsim serves the brush/wafer contact simulator over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/brushsim/internal/api"
	"github.com/talgya/brushsim/internal/config"
	"github.com/talgya/brushsim/internal/engine"
	"github.com/talgya/brushsim/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults are embedded)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	dbPath := flag.String("db", "", "run archive path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	slog.SetDefault(newLogger(cfg.Log.SlogLevel()))
	slog.Info("Brush-Wafer Contact Simulator",
		"contour", cfg.Params.BrushContour,
		"rows", cfg.Params.NoduleRows,
		"nodules_per_row", cfg.Params.NodulesPerRow,
		"process_time", cfg.Params.ProcessTime,
	)

	// ── Run archive ───────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			slog.Error("failed to create database directory", "path", cfg.Database.Path, "error", err)
			os.Exit(1)
		}
		db, err = persistence.Open(cfg.Database.Path)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", cfg.Database.Path)
	} else {
		slog.Warn("no database path configured, runs will not be archived")
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(cfg.Params, engine.Options{
		Timestep:      cfg.Simulation.Timestep,
		DoseIncrement: cfg.Simulation.DoseIncrement,
	})
	if err != nil {
		slog.Error("invalid parameters", "error", err)
		os.Exit(1)
	}
	if db != nil {
		sim.OnRunEnd = func(sum engine.RunSummary) {
			if _, err := db.Archive(sum, cfg.Simulation.LowContactThreshold, sum.Events); err != nil {
				slog.Error("archiving run failed", "run", sum.ID, "error", err)
			}
		}
	}

	eng := engine.NewEngine()
	eng.Interval = cfg.Server.TickInterval
	eng.SetSpeed(cfg.Server.Speed)
	eng.OnTick = func(uint64) { sim.Tick() }

	apiServer := &api.Server{
		Sim:           sim,
		Eng:           eng,
		DB:            db,
		Port:          cfg.Server.Port,
		AuthDigest:    cfg.Auth.Digest(),
		CORSOrigins:   cfg.Server.CORSOrigins,
		LowThreshold:  cfg.Simulation.LowContactThreshold,
		Normalization: cfg.Simulation.ColorNormalization,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Ready to simulate... (Ctrl+C to stop)")

	eng.Run(ctx)

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if sim.State() == engine.StateRunning {
		// Archive the interrupted run before the database closes.
		if err := sim.Stop(); err != nil {
			slog.Error("stopping simulation failed", "error", err)
		}
	}
}

// newLogger writes human-readable text to a terminal and JSON otherwise.
func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
