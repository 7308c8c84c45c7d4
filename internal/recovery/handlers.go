package recovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medquiz/keeper/internal/core/domain"
)

// QuizCreationPayload is the snapshot data for an interrupted quiz
// creation.
type QuizCreationPayload struct {
	Filters domain.QuizFilters `json:"filters"`
}

// AnswerSubmissionPayload is the snapshot data for an interrupted
// answer submission.
type AnswerSubmissionPayload struct {
	QuizID     string `json:"quizId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// QuizCompletionPayload is the snapshot data for an interrupted quiz
// completion.
type QuizCompletionPayload struct {
	QuizID string `json:"quizId"`
	Score  int    `json:"score"`
}

// QuizReplayer re-attempts the three quiz operations a snapshot can
// shadow. The embedding application supplies the implementation; the
// manager only cares that a call succeeds or fails.
type QuizReplayer interface {
	CreateQuiz(ctx context.Context, filters domain.QuizFilters) error
	SubmitAnswer(ctx context.Context, sub AnswerSubmissionPayload) error
	CompleteQuiz(ctx context.Context, comp QuizCompletionPayload) error
}

// RegisterReplayer installs handlers for every quiz work type, leaving
// only the autosave handler to the caller.
func RegisterReplayer(m *Manager, r QuizReplayer) {
	m.Register(domain.WorkQuizCreation, func(ctx context.Context, data json.RawMessage) error {
		var p QuizCreationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("bad quiz creation payload: %w", err)
		}
		return r.CreateQuiz(ctx, p.Filters)
	})
	m.Register(domain.WorkAnswerSubmission, func(ctx context.Context, data json.RawMessage) error {
		var p AnswerSubmissionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("bad answer submission payload: %w", err)
		}
		return r.SubmitAnswer(ctx, p)
	})
	m.Register(domain.WorkQuizCompletion, func(ctx context.Context, data json.RawMessage) error {
		var p QuizCompletionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("bad quiz completion payload: %w", err)
		}
		return r.CompleteQuiz(ctx, p)
	})
}
