package errlog

import (
	"encoding/json"
	"time"

	"github.com/medquiz/keeper/internal/core/domain"
)

// ExportSummary counts errors by category.
type ExportSummary struct {
	TotalErrors      int                      `json:"totalErrors"`
	ErrorsByCategory map[domain.ErrorKind]int `json:"errorsByCategory"`
}

// ExportEnvelope is the full export shape.
type ExportEnvelope struct {
	SessionID  string               `json:"sessionId"`
	ExportTime string               `json:"exportTime"`
	TotalLogs  int                  `json:"totalLogs"`
	Summary    ExportSummary        `json:"summary"`
	Logs       []domain.ErrorRecord `json:"logs"`
}

// Export serializes the buffer with a category summary.
func (l *Log) Export(now time.Time) ([]byte, error) {
	entries := l.Recent(0)
	summary := ExportSummary{
		TotalErrors:      len(entries),
		ErrorsByCategory: make(map[domain.ErrorKind]int),
	}
	for _, r := range entries {
		summary.ErrorsByCategory[r.Kind]++
	}
	return json.MarshalIndent(ExportEnvelope{
		SessionID:  l.sessionID,
		ExportTime: now.UTC().Format(time.RFC3339),
		TotalLogs:  len(entries),
		Summary:    summary,
		Logs:       entries,
	}, "", "  ")
}
