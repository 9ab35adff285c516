package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("session not found")

// ClarificationSession holds one clarification exchange: the query as the
// user typed it, the questions triage produced, and the latest answers.
type ClarificationSession struct {
	ID            string    `json:"session_id"`
	OriginalQuery string    `json:"original_query"`
	Questions     []string  `json:"questions"`
	CreatedAt     time.Time `json:"created_at"`

	mu      sync.RWMutex
	answers []string
}

// QAPair is a question with its answer, "" when unanswered.
type QAPair struct {
	Question string
	Answer   string
}

// Status summarises how far a session has progressed.
type Status struct {
	SessionID         string `json:"session_id"`
	Status            string `json:"status"`
	TotalQuestions    int    `json:"total_questions"`
	AnsweredQuestions int    `json:"answered_questions"`
	IsComplete        bool   `json:"is_complete"`
}

// SetAnswers replaces the answer list wholesale. Concurrent callers race
// and the last write wins.
func (s *ClarificationSession) SetAnswers(answers []string) {
	cp := make([]string, len(answers))
	copy(cp, answers)

	s.mu.Lock()
	s.answers = cp
	s.mu.Unlock()
}

// Answers returns a copy of the recorded answers.
func (s *ClarificationSession) Answers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]string, len(s.answers))
	copy(cp, s.answers)
	return cp
}

// IsComplete reports whether at least one answer exists per question.
func (s *ClarificationSession) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers) >= len(s.Questions)
}

// Status returns the answer summary for this session.
func (s *ClarificationSession) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		SessionID:         s.ID,
		Status:            "answers_recorded",
		TotalQuestions:    len(s.Questions),
		AnsweredQuestions: len(s.answers),
		IsComplete:        len(s.answers) >= len(s.Questions),
	}
}

// QAPairs pairs every question with its answer. Surplus answers are
// ignored and missing ones are "".
func (s *ClarificationSession) QAPairs() []QAPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := make([]QAPair, len(s.Questions))
	for i, q := range s.Questions {
		pairs[i] = QAPair{Question: q}
		if i < len(s.answers) {
			pairs[i].Answer = s.answers[i]
		}
	}
	return pairs
}
