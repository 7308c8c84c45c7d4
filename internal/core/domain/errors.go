package domain

import (
	"fmt"
	"time"
)

// ErrorKind is the closed set of error categories used for retry
// eligibility, severity and user messaging.
type ErrorKind string

const (
	ErrorNetwork        ErrorKind = "network"
	ErrorAuthentication ErrorKind = "authentication"
	ErrorAuthorization  ErrorKind = "authorization"
	ErrorDatabase       ErrorKind = "database"
	ErrorValidation     ErrorKind = "validation"
	ErrorRateLimit      ErrorKind = "rate_limit"
	ErrorQuizEngine     ErrorKind = "quiz_engine"
	ErrorMaintenance    ErrorKind = "maintenance"
	ErrorUnknown        ErrorKind = "unknown"
)

// Severity of a classified error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison (higher = worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// ClassifiedError is the result of running a raw error through the
// classifier: a kind, a severity, the internal message and the fixed
// user-facing message for that kind.
type ClassifiedError struct {
	Kind        ErrorKind
	Severity    Severity
	Message     string
	UserMessage string
}

// ErrorRecord is the durable form of a classified error. Context has
// already been sanitized when a record is constructed; no raw
// credential, token or contact value ever appears here.
type ErrorRecord struct {
	ID           string         `json:"id" db:"id"`
	Timestamp    time.Time      `json:"timestamp" db:"occurred_at"`
	Kind         ErrorKind      `json:"kind" db:"kind"`
	Severity     Severity       `json:"severity" db:"severity"`
	Message      string         `json:"message" db:"message"`
	Context      map[string]any `json:"context,omitempty" db:"-"`
	HashedUserID string         `json:"hashedUserId,omitempty" db:"hashed_user_id"`
	SessionID    string         `json:"sessionId" db:"session_id"`
}

// StatusError is an error carrying a transport status code from the
// backend. The retry predicate and the classifier both branch on it.
type StatusError struct {
	Op   string
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Code)
}

func (e *StatusError) Unwrap() error { return e.Err }

// ValidationError marks a caller input problem. These are surfaced as
// inline feedback and never retried or escalated.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Constraint)
}

// QuizEngineError marks a failure inside quiz assembly or scoring.
type QuizEngineError struct {
	Stage string
	Err   error
}

func (e *QuizEngineError) Error() string {
	return fmt.Sprintf("quiz engine: %s: %v", e.Stage, e.Err)
}

func (e *QuizEngineError) Unwrap() error { return e.Err }

// MaintenanceError signals that the backend is in a maintenance window.
type MaintenanceError struct {
	Until time.Time
}

func (e *MaintenanceError) Error() string {
	if e.Until.IsZero() {
		return "backend in maintenance"
	}
	return fmt.Sprintf("backend in maintenance until %s", e.Until.Format(time.RFC3339))
}
