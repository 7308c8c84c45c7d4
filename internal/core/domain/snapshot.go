package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkType discriminates what kind of interrupted work a recovery
// snapshot describes. The set is closed; decoding anything else fails.
type WorkType string

const (
	WorkQuizCreation     WorkType = "quiz_creation"
	WorkAnswerSubmission WorkType = "answer_submission"
	WorkQuizCompletion   WorkType = "quiz_completion"
	WorkAutosave         WorkType = "autosave"
)

// Valid reports whether wt is one of the known work types.
func (wt WorkType) Valid() bool {
	switch wt {
	case WorkQuizCreation, WorkAnswerSubmission, WorkQuizCompletion, WorkAutosave:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown discriminators at decode time so
// recovery dispatch never hits a runtime "unknown type" branch.
func (wt *WorkType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v := WorkType(s)
	if !v.Valid() {
		return fmt.Errorf("unknown work type %q", s)
	}
	*wt = v
	return nil
}

// RecoverySnapshot describes an interrupted unit of work well enough to
// re-attempt or discard it after a restart.
type RecoverySnapshot struct {
	Type      WorkType        `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch ms
}

// NewSnapshot builds a snapshot for the given work, stamping it now.
func NewSnapshot(wt WorkType, data any, now time.Time) (RecoverySnapshot, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return RecoverySnapshot{}, fmt.Errorf("failed to marshal snapshot data: %w", err)
	}
	return RecoverySnapshot{
		Type:      wt,
		Data:      raw,
		Timestamp: now.UnixMilli(),
	}, nil
}
