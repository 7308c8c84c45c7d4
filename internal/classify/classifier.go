package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/errlog"
	"github.com/medquiz/keeper/internal/metrics"
)

// userMessages maps each kind to its fixed, non-technical user-facing
// message. Raw error text never reaches the user.
var userMessages = map[domain.ErrorKind]string{
	domain.ErrorNetwork:        "Connection problem. Please check your internet and try again.",
	domain.ErrorAuthentication: "Your session has expired. Please sign in again.",
	domain.ErrorAuthorization:  "You don't have access to this. Please sign in with the right account.",
	domain.ErrorDatabase:       "We couldn't load your data right now. Please try again in a moment.",
	domain.ErrorValidation:     "Please check the highlighted fields and try again.",
	domain.ErrorRateLimit:      "You're going a bit fast. Please wait a moment and try again.",
	domain.ErrorQuizEngine:     "Something went wrong preparing your quiz. Please try again.",
	domain.ErrorMaintenance:    "We're doing some maintenance. Please come back shortly.",
	domain.ErrorUnknown:        "Something unexpected happened. Please try again.",
}

// UserMessage returns the fixed message for a kind.
func UserMessage(kind domain.ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[domain.ErrorUnknown]
}

// Classifier normalizes arbitrary errors into the closed taxonomy and
// routes the resulting records to the error log. One instance per
// process, constructed in the wiring hub and injected.
type Classifier struct {
	sessionID string
	sink      *errlog.Log
	log       *slog.Logger
	now       func() time.Time
}

// New creates a classifier bound to a session and an error log.
func New(sessionID string, sink *errlog.Log, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{
		sessionID: sessionID,
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (c *Classifier) SetClock(now func() time.Time) { c.now = now }

// SessionID returns the session this classifier stamps on records.
func (c *Classifier) SessionID() string { return c.sessionID }

// Classify maps a raw error to a kind, severity and message pair.
// Dispatch order: status-carrying backend errors, transport failures,
// validation, maintenance, quiz engine, then the unknown fallback.
func (c *Classifier) Classify(err error) domain.ClassifiedError {
	kind, severity := dispatch(err)
	return domain.ClassifiedError{
		Kind:        kind,
		Severity:    severity,
		Message:     err.Error(),
		UserMessage: UserMessage(kind),
	}
}

func dispatch(err error) (domain.ErrorKind, domain.Severity) {
	var se *domain.StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}
	if isTransportError(err) {
		return domain.ErrorNetwork, domain.SeverityHigh
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return domain.ErrorValidation, domain.SeverityLow
	}
	var me *domain.MaintenanceError
	if errors.As(err, &me) {
		return domain.ErrorMaintenance, domain.SeverityHigh
	}
	var qe *domain.QuizEngineError
	if errors.As(err, &qe) {
		return domain.ErrorQuizEngine, domain.SeverityMedium
	}
	return domain.ErrorUnknown, domain.SeverityMedium
}

// classifyStatus is the fixed status table.
func classifyStatus(code int) (domain.ErrorKind, domain.Severity) {
	switch {
	case code == 401:
		return domain.ErrorAuthentication, domain.SeverityHigh
	case code == 403:
		return domain.ErrorAuthorization, domain.SeverityHigh
	case code == 404:
		return domain.ErrorDatabase, domain.SeverityMedium
	case code == 429:
		return domain.ErrorRateLimit, domain.SeverityHigh
	case code >= 500:
		return domain.ErrorDatabase, domain.SeverityCritical
	}
	return domain.ErrorDatabase, domain.SeverityMedium
}

// isTransportError recognizes pure network failures: typed net errors
// and the usual connection-level messages.
func isTransportError(err error) bool {
	var ne *net.OpError
	if errors.As(err, &ne) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"failed to fetch",
		"broken pipe",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Report classifies err, builds a sanitized record and appends it to
// the error log. It returns the classification so callers can surface
// the user message.
func (c *Classifier) Report(ctx context.Context, err error, ec ErrorContext) domain.ClassifiedError {
	ce := c.Classify(err)
	rec := c.record(ce, err, ec)
	c.append(ctx, ce, rec)
	return ce
}

// ReportPanic handles a recovered non-error value: Unknown/MEDIUM with
// the stringified value preserved in context.
func (c *Classifier) ReportPanic(ctx context.Context, v any, ec ErrorContext) domain.ClassifiedError {
	ce := domain.ClassifiedError{
		Kind:        domain.ErrorUnknown,
		Severity:    domain.SeverityMedium,
		Message:     "non-error value raised",
		UserMessage: UserMessage(domain.ErrorUnknown),
	}
	rec := c.record(ce, nil, ec)
	if rec.Context == nil {
		rec.Context = map[string]any{}
	}
	rec.Context["value"] = fmt.Sprint(v)
	c.append(ctx, ce, rec)
	return ce
}

func (c *Classifier) record(ce domain.ClassifiedError, err error, ec ErrorContext) domain.ErrorRecord {
	rec := domain.ErrorRecord{
		ID:        uuid.New().String(),
		Timestamp: c.now(),
		Kind:      ce.Kind,
		Severity:  ce.Severity,
		Message:   ce.Message,
		SessionID: c.sessionID,
	}
	if ec != nil {
		rec.Context = ec.Fields()
		if ac, ok := ec.(AuthContext); ok {
			rec.HashedUserID = ac.HashedUserID()
			delete(rec.Context, "userId")
		}
	}
	if ce.Kind == domain.ErrorUnknown && err != nil {
		if rec.Context == nil {
			rec.Context = map[string]any{}
		}
		rec.Context["errorType"] = fmt.Sprintf("%T", err)
	}
	return rec
}

func (c *Classifier) append(ctx context.Context, ce domain.ClassifiedError, rec domain.ErrorRecord) {
	metrics.ErrorsClassified.WithLabelValues(string(ce.Kind), string(ce.Severity)).Inc()
	c.log.Error("classified error",
		"kind", ce.Kind,
		"severity", ce.Severity,
		"message", ce.Message,
		"context", rec.Context,
		"session", c.sessionID)
	if c.sink != nil {
		c.sink.Append(ctx, rec)
	}
}
