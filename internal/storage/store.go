// Package storage persists rollouts as run directories holding a
// metadata.json and an actions.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/actsched/internal/rollout"
	"github.com/san-kum/actsched/internal/sched"
)

const (
	metadataFile = "metadata.json"
	actionsFile  = "actions.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunInfo describes how a rollout was produced.
type RunInfo struct {
	Policy    string
	Source    string
	Seed      int64
	Scheduler sched.Config
}

type SchedulerMetadata struct {
	ReplanInterval int      `json:"replan_interval"`
	MaxChunkLen    int      `json:"max_chunk_len"`
	EnsembleMax    int      `json:"ensemble_max"`
	Decay          float64  `json:"decay"`
	Prompt         string   `json:"prompt"`
	Layout         string   `json:"layout"`
	Fields         []string `json:"fields"`
	Dim            int      `json:"dim"`
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Mode      string             `json:"mode"`
	Timestamp time.Time          `json:"timestamp"`
	Policy    string             `json:"policy"`
	Source    string             `json:"source"`
	Seed      int64              `json:"seed"`
	Steps     int                `json:"steps"`
	Calls     int                `json:"calls"`
	Fallbacks int                `json:"fallbacks"`
	Scheduler SchedulerMetadata  `json:"scheduler"`
	Metrics   map[string]float64 `json:"metrics"`
}

// ActionLog is the per-step content of actions.csv.
type ActionLog struct {
	Steps     []int
	Statuses  []string
	Replanned []bool
	Actions   [][]float64
}

// NewRunID returns "<mode>_<unix>_<8 hex chars>".
func NewRunID(mode sched.Mode, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", mode, now.Unix(), uuid.NewString()[:8])
}

func (s *Store) Save(info RunInfo, result *rollout.Result) (string, error) {
	now := time.Now()
	runID := NewRunID(result.Mode, now)
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	sc := info.Scheduler
	meta := RunMetadata{
		ID:        runID,
		Mode:      string(result.Mode),
		Timestamp: now,
		Policy:    info.Policy,
		Source:    info.Source,
		Seed:      info.Seed,
		Steps:     result.Steps,
		Calls:     result.Calls,
		Fallbacks: result.Fallbacks,
		Scheduler: SchedulerMetadata{
			ReplanInterval: sc.ReplanInterval,
			MaxChunkLen:    sc.MaxChunkLen,
			EnsembleMax:    sc.EnsembleMax,
			Decay:          sc.Decay,
			Prompt:         sc.Prompt,
			Layout:         sc.Layout.Name,
			Fields:         sc.Layout.FieldNames(),
			Dim:            sc.Layout.Dim,
		},
		Metrics: result.Metrics,
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeActions(filepath.Join(runDir, actionsFile), result); err != nil {
		return "", err
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeActions(path string, result *rollout.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(result.Actions) > 0 {
		header := []string{"step", "status", "replanned"}
		for i := range result.Actions[0] {
			header = append(header, fmt.Sprintf("a%d", i))
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}

	for i, a := range result.Actions {
		row := []string{
			strconv.Itoa(i),
			result.Statuses[i].String(),
			strconv.FormatBool(result.Replans[i]),
		}
		for _, val := range a {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadActions(runID string) (*ActionLog, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, actionsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	log := &ActionLog{}
	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) < 3 {
			continue
		}
		step, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		replanned, _ := strconv.ParseBool(record[2])

		vals := make([]float64, 0, len(record)-3)
		for _, field := range record[3:] {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("run %s step %d: %w", runID, step, err)
			}
			vals = append(vals, val)
		}

		log.Steps = append(log.Steps, step)
		log.Statuses = append(log.Statuses, record[1])
		log.Replanned = append(log.Replanned, replanned)
		log.Actions = append(log.Actions, vals)
	}
	return log, nil
}

// Column returns dimension d of every logged action.
func (l *ActionLog) Column(d int) []float64 {
	col := make([]float64, 0, len(l.Actions))
	for _, a := range l.Actions {
		if d < len(a) {
			col = append(col, a[d])
		}
	}
	return col
}
