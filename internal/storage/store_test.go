package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/san-kum/actsched/internal/action"
	"github.com/san-kum/actsched/internal/rollout"
	"github.com/san-kum/actsched/internal/sched"
)

func testResult() *rollout.Result {
	return &rollout.Result{
		Mode: sched.ModeRecedingHorizon,
		Actions: []action.Vector{
			{0.1, 0.2, 1},
			{0.15, 0.25, 0},
		},
		Statuses:  []sched.Status{sched.StatusNominal, sched.StatusFallback},
		Replans:   []bool{true, true},
		Fallbacks: 1,
		Calls:     2,
		Steps:     2,
		Metrics:   map[string]float64{"jitter": 0.5},
	}
}

func testInfo() RunInfo {
	cfg := sched.DefaultConfig()
	cfg.Mode = sched.ModeRecedingHorizon
	return RunInfo{Policy: "flaky", Source: "synthetic", Seed: 42, Scheduler: cfg}
}

func TestNewRunID(t *testing.T) {
	id := NewRunID(sched.ModeTemporalEnsemble, time.Unix(1700000000, 0))
	if !regexp.MustCompile(`^temporal_ensemble_1700000000_[0-9a-f]{8}$`).MatchString(id) {
		t.Errorf("unexpected run id %q", id)
	}
	if NewRunID(sched.ModeTemporalEnsemble, time.Unix(1700000000, 0)) == id {
		t.Error("run ids within the same second must differ")
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(testInfo(), testResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Mode != string(sched.ModeRecedingHorizon) {
		t.Errorf("expected mode %s, got %s", sched.ModeRecedingHorizon, meta.Mode)
	}
	if meta.Seed != 42 || meta.Policy != "flaky" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Fallbacks != 1 || meta.Calls != 2 {
		t.Errorf("expected 1 fallback and 2 calls, got %d and %d", meta.Fallbacks, meta.Calls)
	}
	if meta.Metrics["jitter"] != 0.5 {
		t.Errorf("expected jitter 0.5, got %f", meta.Metrics["jitter"])
	}
	if meta.Scheduler.Layout != "r1" || len(meta.Scheduler.Fields) == 0 {
		t.Errorf("unexpected scheduler metadata %+v", meta.Scheduler)
	}

	log, err := st.LoadActions(runID)
	if err != nil {
		t.Fatalf("load actions failed: %v", err)
	}
	if len(log.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(log.Actions))
	}
	if log.Statuses[1] != "fallback" || !log.Replanned[0] {
		t.Errorf("unexpected log %+v", log)
	}
	if log.Actions[1][1] != 0.25 {
		t.Errorf("expected 0.25, got %f", log.Actions[1][1])
	}
	if col := log.Column(2); len(col) != 2 || col[0] != 1 || col[1] != 0 {
		t.Errorf("unexpected column %v", col)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := st.Save(testInfo(), testResult()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "not-a-run"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestStoreListMissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "missing")).List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(testInfo(), testResult())
	if err != nil {
		t.Fatal(err)
	}
	meta, _ := st.Load(runID)
	log, _ := st.LoadActions(runID)

	var buf bytes.Buffer
	if err := ExportJSON(&buf, meta, log); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var out ExportData
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if out.Run.ID != runID || len(out.Actions) != 2 {
		t.Errorf("unexpected export %+v", out)
	}
}
