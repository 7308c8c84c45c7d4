package domain

import "context"

// Question is the minimal view of a question-bank entry this subsystem
// passes around. Content management lives elsewhere.
type Question struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
}

// QuizFilters narrows a question-bank query.
type QuizFilters struct {
	Categories []string `json:"categories,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Count      int      `json:"count"`
}

// User is the authenticated identity, as far as this subsystem cares.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// QuestionProvider is the question content store. Opaque beyond
// "a call that succeeds or fails".
type QuestionProvider interface {
	GetRandomQuestions(ctx context.Context, n int) ([]Question, error)
	GetByFilters(ctx context.Context, filters QuizFilters) ([]Question, error)
}

// AuthProvider is the authentication backend. The resilience layer only
// observes success or failure of these calls.
type AuthProvider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	CurrentSessionUser(ctx context.Context) (*User, error)
}
