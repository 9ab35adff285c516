package clarification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pminervini/deep-research-mcp/internal/metrics"
	"github.com/pminervini/deep-research-mcp/internal/session"
)

// AnswersResult is the outcome of AddAnswers. Error is set for unknown
// sessions and the other fields are then zero.
type AnswersResult struct {
	session.Status
	Error string `json:"error,omitempty"`
}

// Manager runs the triage, answer and enrichment exchange over a session
// table.
type Manager struct {
	enabled   bool
	triage    *TriageAgent
	clarifier *ClarifierAgent
	sessions  *session.Manager
	logger    *zap.Logger
}

// NewManager wires the agents to a session table.
func NewManager(enabled bool, triage *TriageAgent, clarifier *ClarifierAgent, sessions *session.Manager, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{enabled: enabled, triage: triage, clarifier: clarifier, sessions: sessions, logger: logger}
}

// Enabled reports whether clarification is switched on.
func (m *Manager) Enabled() bool { return m.enabled }

// StartClarification triages the query and opens a session when questions
// should be asked.
func (m *Manager) StartClarification(ctx context.Context, query string) Assessment {
	if !m.enabled {
		metrics.ClarificationsStarted.WithLabelValues("disabled").Inc()
		return Assessment{
			NeedsClarification: false,
			Reasoning:          "Clarification is disabled in configuration",
		}
	}

	result := m.triage.AnalyzeQuery(ctx, query)
	if !result.NeedsClarification {
		metrics.ClarificationsStarted.WithLabelValues("not_needed").Inc()
		return result
	}

	questions := result.PotentialClarifications
	if questions == nil {
		questions = []string{}
	}
	s := m.sessions.CreateSession(query, questions)

	result.SessionID = s.ID
	result.Questions = questions
	result.TotalQuestions = len(questions)
	metrics.ClarificationsStarted.WithLabelValues("session").Inc()
	return result
}

// AddAnswers replaces the answers of a session.
func (m *Manager) AddAnswers(sessionID string, answers []string) AnswersResult {
	s, err := m.sessions.GetSession(sessionID)
	if err != nil {
		return AnswersResult{Error: fmt.Sprintf("Session %s not found", sessionID)}
	}
	s.SetAnswers(answers)
	m.logger.Info("Recorded clarification answers",
		zap.String("session_id", sessionID),
		zap.Int("answers", len(answers)),
	)
	return AnswersResult{Status: s.Status()}
}

// GetEnrichedQuery runs enrichment over the session's current answers. It
// reports false for unknown sessions. Each call is a fresh model call and
// the session is kept.
func (m *Manager) GetEnrichedQuery(ctx context.Context, sessionID string) (string, bool) {
	s, err := m.sessions.GetSession(sessionID)
	if err != nil {
		return "", false
	}
	return m.clarifier.EnrichQuery(ctx, s.OriginalQuery, s.QAPairs()), true
}

// GetSession returns the session, or nil when unknown.
func (m *Manager) GetSession(sessionID string) *session.ClarificationSession {
	s, err := m.sessions.GetSession(sessionID)
	if err != nil {
		return nil
	}
	return s
}
