package storage

import (
	"encoding/json"
	"io"
)

type ExportData struct {
	Run       RunMetadata `json:"run"`
	Steps     []int       `json:"steps"`
	Statuses  []string    `json:"statuses"`
	Replanned []bool      `json:"replanned"`
	Actions   [][]float64 `json:"actions"`
}

// ExportJSON writes a stored run and its action log as one JSON document.
func ExportJSON(w io.Writer, meta *RunMetadata, log *ActionLog) error {
	data := ExportData{
		Run:       *meta,
		Steps:     log.Steps,
		Statuses:  log.Statuses,
		Replanned: log.Replanned,
		Actions:   log.Actions,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
