package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
	"github.com/talgya/brushsim/internal/persistence"
	"github.com/talgya/brushsim/internal/render"
	"github.com/talgya/brushsim/internal/report"
)

func (s *Server) lowThreshold() float64 {
	if s.LowThreshold > 0 {
		return s.LowThreshold
	}
	return dose.DefaultLowThreshold
}

// queryInt reads a bounded integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	p := s.Sim.Params()
	writeJSON(w, map[string]any{
		"name":         "Brush-Wafer Contact Simulator",
		"run_id":       st.RunID,
		"state":        st.State,
		"tick":         st.Tick,
		"elapsed":      st.Elapsed,
		"sim_time":     engine.SimTime(st.Elapsed),
		"process_time": p.ProcessTime,
		"progress":     st.Progress,
		"nodules":      st.Nodules,
		"disabled":     st.Disabled,
		"active":       st.Nodules - st.Disabled,
		"contacts":     st.Contacts,
		"total_dose":   st.Total,
		"resolution":   p.Resolution(),
		"speed":        s.Eng.Speed(),
		"running":      s.Eng.Running(),
	})
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Params())
}

// handleSetParams applies a partial parameter update: fields absent from the
// body keep their current values.
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	p := s.Sim.Params()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.Sim.SetParams(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Sim.Params())
}

func (s *Server) handleNodules(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	writeJSON(w, map[string]any{
		"total":      len(snap.Nodules),
		"active":     snap.ActiveNodules(),
		"contacting": snap.ContactingNodules(),
		"density":    snap.NoduleDensity,
		"nodules":    snap.Nodules,
	})
}

func (s *Server) handleToggleNodule(w http.ResponseWriter, r *http.Request) {
	var key brush.NoduleKey
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, ok := s.Sim.Layout().Find(key); !ok {
		http.Error(w, fmt.Sprintf("no nodule %d-%d", key.Row, key.Index), http.StatusNotFound)
		return
	}
	disabled := s.Sim.Toggle(key)
	writeJSON(w, map[string]any{
		"row":      key.Row,
		"index":    key.Index,
		"disabled": disabled,
	})
}

func (s *Server) handleClearNodules(w http.ResponseWriter, r *http.Request) {
	s.Sim.ClearDisabled()
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Start(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Stop(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.Sim.Clear()
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Sim.Reset()
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	writeJSON(w, map[string]any{
		"resolution":     snap.Grid.Resolution(),
		"wafer_diameter": snap.Params.WaferDiameter,
		"elapsed":        snap.Elapsed,
		"cells":          snap.Grid.Cells(),
	})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	mode, err := render.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap := s.Sim.Snapshot()
	opts := render.Options{
		Mode:          mode,
		Normalization: s.Normalization,
		LowThreshold:  s.lowThreshold(),
		Scale:         queryInt(r, "scale", 1, 1, 8),
	}

	var buf bytes.Buffer
	if err := render.WritePNG(&buf, snap.Grid, opts); err != nil {
		slog.Error("heatmap render failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	cov := dose.Measure(snap.Grid, s.lowThreshold())
	writeJSON(w, map[string]any{
		"coverage":          cov,
		"contacted_percent": cov.ContactedFraction() * 100,
		"elapsed":           snap.Elapsed,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "points", 100, 1, 1000)
	writeJSON(w, brush.SampleProfile(s.Sim.Params(), n))
}

func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, report.GapAnalysis(s.Sim.Params()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.RecentEvents(queryInt(r, "limit", 50, 1, 500)))
}

// handleExport downloads the text report, or a CSV with ?format=csv
// (nodules) or ?format=grid (dose cells).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.Snapshot()
	now := time.Now()

	var (
		buf      bytes.Buffer
		err      error
		filename string
		ctype    string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "text":
		cov := dose.Measure(snap.Grid, s.lowThreshold())
		err = report.Text(&buf, snap, &cov, now)
		filename, ctype = report.Filename(now), "text/plain; charset=utf-8"
	case "csv":
		err = report.NodulesCSV(&buf, snap)
		filename, ctype = report.CSVFilename("nodules", now), "text/csv"
	case "grid":
		err = report.GridCSV(&buf, snap.Grid, snap.Params.WaferDiameter)
		filename, ctype = report.CSVFilename("dose", now), "text/csv"
	default:
		http.Error(w, fmt.Sprintf("unknown export format %q", format), http.StatusBadRequest)
		return
	}
	if err != nil {
		slog.Error("export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run archive disabled", http.StatusNotFound)
		return
	}
	runs, err := s.DB.ListRuns(queryInt(r, "limit", 20, 1, 200))
	if err != nil {
		slog.Error("listing runs failed", "error", err)
		http.Error(w, "listing runs failed", http.StatusInternalServerError)
		return
	}

	type runSummary struct {
		persistence.RunRecord
		Age             string `json:"age"`
		WaferCellsText  string `json:"wafer_cells_text"`
		UncontactedText string `json:"uncontacted_text"`
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			RunRecord:       run,
			Age:             humanize.Time(run.StartedAt),
			WaferCellsText:  humanize.Comma(int64(run.WaferCells)),
			UncontactedText: humanize.Comma(int64(run.UncontactedCells)),
		})
	}
	writeJSON(w, out)
}

// handleRun returns one archived run; ?format=text downloads its report.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run archive disabled", http.StatusNotFound)
		return
	}
	run, err := s.DB.GetRun(r.PathValue("id"))
	if errors.Is(err, persistence.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("loading run failed", "error", err)
		http.Error(w, "loading run failed", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(run.FinishedAt)))
		w.Write([]byte(run.Report))
		return
	}

	params, err := run.Params()
	if err != nil {
		slog.Error("decoding run params failed", "run", run.ID, "error", err)
	}
	writeJSON(w, map[string]any{
		"run":    run,
		"params": params,
		"age":    humanize.Time(run.StartedAt),
	})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "run archive disabled", http.StatusNotFound)
		return
	}
	events, err := s.DB.RunEvents(r.PathValue("id"))
	if err != nil {
		slog.Error("loading run events failed", "error", err)
		http.Error(w, "loading run events failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}
