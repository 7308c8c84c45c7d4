package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/medquiz/keeper/internal/core/domain"
	"github.com/medquiz/keeper/internal/errlog"
)

func newTestClassifier() (*Classifier, *errlog.Log) {
	sink := errlog.NewLog(100, "session-1", nil, nil)
	return New("session-1", sink, nil), sink
}

func TestClassifyStatusTable(t *testing.T) {
	c, _ := newTestClassifier()

	tests := []struct {
		code     int
		kind     domain.ErrorKind
		severity domain.Severity
	}{
		{401, domain.ErrorAuthentication, domain.SeverityHigh},
		{403, domain.ErrorAuthorization, domain.SeverityHigh},
		{404, domain.ErrorDatabase, domain.SeverityMedium},
		{429, domain.ErrorRateLimit, domain.SeverityHigh},
		{500, domain.ErrorDatabase, domain.SeverityCritical},
		{503, domain.ErrorDatabase, domain.SeverityCritical},
		{418, domain.ErrorDatabase, domain.SeverityMedium},
	}
	for _, tt := range tests {
		ce := c.Classify(&domain.StatusError{Op: "call", Code: tt.code})
		if ce.Kind != tt.kind || ce.Severity != tt.severity {
			t.Errorf("status %d: got (%s, %s), want (%s, %s)",
				tt.code, ce.Kind, ce.Severity, tt.kind, tt.severity)
		}
	}
}

func TestClassifyDispatchOrder(t *testing.T) {
	c, _ := newTestClassifier()

	tests := []struct {
		name     string
		err      error
		kind     domain.ErrorKind
		severity domain.Severity
	}{
		{"transport", errors.New("dial tcp: connection refused"), domain.ErrorNetwork, domain.SeverityHigh},
		{"fetch-shaped", errors.New("TypeError: Failed to fetch"), domain.ErrorNetwork, domain.SeverityHigh},
		{"validation", &domain.ValidationError{Field: "email", Constraint: "required"}, domain.ErrorValidation, domain.SeverityLow},
		{"maintenance", &domain.MaintenanceError{}, domain.ErrorMaintenance, domain.SeverityHigh},
		{"quiz engine", &domain.QuizEngineError{Stage: "scoring", Err: errors.New("bad weights")}, domain.ErrorQuizEngine, domain.SeverityMedium},
		{"fallback", errors.New("something odd"), domain.ErrorUnknown, domain.SeverityMedium},
		// Status wins over a network-looking message.
		{"status first", &domain.StatusError{Op: "call", Code: 401, Err: errors.New("connection reset")}, domain.ErrorAuthentication, domain.SeverityHigh},
	}
	for _, tt := range tests {
		ce := c.Classify(tt.err)
		if ce.Kind != tt.kind || ce.Severity != tt.severity {
			t.Errorf("%s: got (%s, %s), want (%s, %s)",
				tt.name, ce.Kind, ce.Severity, tt.kind, tt.severity)
		}
	}
}

func TestUserMessagesAreFixed(t *testing.T) {
	c, _ := newTestClassifier()

	rawMsg := "pq: SSLSTATE 08006 password authentication failed for user admin"
	ce := c.Classify(&domain.StatusError{Op: "query", Code: 500, Err: errors.New(rawMsg)})
	if ce.UserMessage == "" {
		t.Fatal("user message must never be empty")
	}
	if strings.Contains(ce.UserMessage, "SSLSTATE") || strings.Contains(ce.UserMessage, "admin") {
		t.Errorf("raw error text leaked into user message: %q", ce.UserMessage)
	}
	if ce.UserMessage != UserMessage(domain.ErrorDatabase) {
		t.Errorf("user message not the fixed template for its kind")
	}

	for _, kind := range []domain.ErrorKind{
		domain.ErrorNetwork, domain.ErrorAuthentication, domain.ErrorAuthorization,
		domain.ErrorDatabase, domain.ErrorValidation, domain.ErrorRateLimit,
		domain.ErrorQuizEngine, domain.ErrorMaintenance, domain.ErrorUnknown,
	} {
		if UserMessage(kind) == "" {
			t.Errorf("kind %s has no user message", kind)
		}
	}
}

func TestSanitizeMap(t *testing.T) {
	out := SanitizeMap(map[string]any{
		"password":     "x",
		"access_token": "tok-123",
		"userId":       "u1",
		"email":        "a@b.com",
		"note":         "kept",
	})

	blob, _ := json.Marshal(out)
	for _, leaked := range []string{`"x"`, "tok-123", "u1", "a@b.com"} {
		if strings.Contains(string(blob), leaked) {
			t.Errorf("sanitized context leaked %q: %s", leaked, blob)
		}
	}
	if out["password"] != Redacted || out["access_token"] != Redacted || out["email"] != Redacted {
		t.Errorf("denylisted fields not redacted: %v", out)
	}
	if out["note"] != "kept" {
		t.Errorf("benign field altered: %v", out["note"])
	}
	hashed, _ := out["userId"].(string)
	if !strings.HasPrefix(hashed, "sha256:") || strings.Contains(hashed, "u1") {
		t.Errorf("user id not hashed: %q", hashed)
	}
}

func TestReportAppendsSanitizedRecord(t *testing.T) {
	c, sink := newTestClassifier()

	c.Report(context.Background(), &domain.StatusError{Op: "signin", Code: 503},
		Fields{"password": "hunter2", "userId": "u1"})

	if sink.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", sink.Len())
	}
	rec := sink.Recent(1)[0]
	if rec.Kind != domain.ErrorDatabase || rec.Severity != domain.SeverityCritical {
		t.Errorf("record = (%s, %s)", rec.Kind, rec.Severity)
	}
	if rec.SessionID != "session-1" || rec.ID == "" {
		t.Errorf("record identity incomplete: %+v", rec)
	}
	blob, _ := json.Marshal(rec)
	if strings.Contains(string(blob), "hunter2") || strings.Contains(string(blob), `"u1"`) {
		t.Errorf("unsanitized value reached the record: %s", blob)
	}
}

func TestReportUnknownPreservesTypeName(t *testing.T) {
	c, sink := newTestClassifier()

	type weirdError struct{ error }
	c.Report(context.Background(), weirdError{errors.New("odd")}, nil)

	rec := sink.Recent(1)[0]
	if rec.Kind != domain.ErrorUnknown {
		t.Fatalf("kind = %s, want unknown", rec.Kind)
	}
	name, _ := rec.Context["errorType"].(string)
	if !strings.Contains(name, "weirdError") {
		t.Errorf("original error type not preserved: %q", name)
	}
}

func TestReportPanicValue(t *testing.T) {
	c, sink := newTestClassifier()

	ce := c.ReportPanic(context.Background(), 42, nil)
	if ce.Kind != domain.ErrorUnknown || ce.Severity != domain.SeverityMedium {
		t.Errorf("panic classified as (%s, %s)", ce.Kind, ce.Severity)
	}
	rec := sink.Recent(1)[0]
	if fmt.Sprint(rec.Context["value"]) != "42" {
		t.Errorf("stringified value missing: %v", rec.Context)
	}
}

func TestAuthContextHashesUserID(t *testing.T) {
	c, sink := newTestClassifier()

	c.Report(context.Background(), &domain.StatusError{Op: "signin", Code: 401},
		AuthContext{UserID: "user-123"})

	rec := sink.Recent(1)[0]
	if rec.HashedUserID == "" || !strings.HasPrefix(rec.HashedUserID, "sha256:") {
		t.Fatalf("hashed user id missing: %+v", rec)
	}
	blob, _ := json.Marshal(rec)
	if strings.Contains(string(blob), "user-123") {
		t.Errorf("raw user id leaked: %s", blob)
	}
}
