// Command brushrun runs one simulation headless, as fast as possible, and
// writes the report, CSV exports and heatmaps to a directory.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/config"
	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
	"github.com/talgya/brushsim/internal/persistence"
	"github.com/talgya/brushsim/internal/render"
	"github.com/talgya/brushsim/internal/report"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults are embedded)")
	outDir := flag.String("out", "out", "output directory")
	contour := flag.String("contour", "", "override brush contour")
	compression := flag.Float64("compression", -1, "override brush compression in mm")
	processTime := flag.Float64("time", 0, "override process time in seconds")
	scale := flag.Int("scale", 4, "heatmap pixels per grid cell")
	dbPath := flag.String("db", "", "also archive the run in this database")
	flag.Parse()

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	}

	if err := run(*configPath, *outDir, *contour, *compression, *processTime, *scale, *dbPath); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// output is one file written to the output directory.
type output struct {
	name  string
	write func(*bytes.Buffer) error
}

func run(configPath, outDir, contour string, compression, processTime float64, scale int, dbPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	p := cfg.Params
	if contour != "" {
		p.BrushContour = brush.Contour(contour)
	}
	if compression >= 0 {
		p.BrushCompression = compression
	}
	if processTime > 0 {
		p.ProcessTime = processTime
	}

	sim, err := engine.NewSimulation(p, engine.Options{
		Timestep:      cfg.Simulation.Timestep,
		DoseIncrement: cfg.Simulation.DoseIncrement,
	})
	if err != nil {
		return err
	}

	var summary engine.RunSummary
	sim.OnRunEnd = func(s engine.RunSummary) { summary = s }

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := sim.Start(); err != nil {
		return err
	}
	ticks := sim.RunToCompletion(ctx)
	if sim.State() == engine.StateRunning {
		// Interrupted: stop so the partial run is still reported.
		if err := sim.Stop(); err != nil {
			return err
		}
	}
	slog.Info("run finished", "ticks", ticks, "sim_time", engine.SimTime(summary.Snapshot.Elapsed), "wall", time.Since(start).Round(time.Millisecond))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	snap := summary.Snapshot
	cov := dose.Measure(snap.Grid, cfg.Simulation.LowContactThreshold)
	now := summary.FinishedAt

	files := []output{
		{report.Filename(now), func(b *bytes.Buffer) error { return report.Text(b, snap, &cov, now) }},
		{"nodules.csv", func(b *bytes.Buffer) error { return report.NodulesCSV(b, snap) }},
		{"dose.csv", func(b *bytes.Buffer) error { return report.GridCSV(b, snap.Grid, snap.Params.WaferDiameter) }},
	}
	for _, mode := range []render.Mode{render.ModeHeat, render.ModeUncontacted, render.ModeLow} {
		ro := render.Options{
			Mode:          mode,
			Normalization: cfg.Simulation.ColorNormalization,
			LowThreshold:  cfg.Simulation.LowContactThreshold,
			Scale:         scale,
		}
		files = append(files, output{"heatmap_" + string(mode) + ".png", func(b *bytes.Buffer) error { return render.WritePNG(b, snap.Grid, ro) }})
	}

	for _, f := range files {
		var buf bytes.Buffer
		if err := f.write(&buf); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		path := filepath.Join(outDir, f.name)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		slog.Info("wrote", "path", path, "size", humanize.Bytes(uint64(buf.Len())))
	}

	if dbPath != "" {
		db, err := persistence.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.Archive(summary, cfg.Simulation.LowContactThreshold, summary.Events); err != nil {
			return err
		}
	}

	gaps := report.GapAnalysis(snap.Params)
	fmt.Printf("%.1f%% contacted, %s of %s wafer cells uncontacted, %s low (mean dose %.2f, CV %.3f)\n",
		cov.ContactedFraction()*100,
		humanize.Comma(int64(cov.Uncontacted)),
		humanize.Comma(int64(cov.WaferCells)),
		humanize.Comma(int64(cov.Low)),
		cov.Mean, cov.CV)
	fmt.Println(gaps.Message)
	return nil
}
