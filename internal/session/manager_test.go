package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSessionLifecycle(t *testing.T) {
	m := NewManager(time.Hour, 10, zaptest.NewLogger(t))
	s := m.CreateSession("best laptop", []string{"Budget?", "OS?", "Use case?"})
	require.NotEmpty(t, s.ID)

	got, err := m.GetSession(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	s.SetAnswers([]string{"$1500", "Linux"})
	st := s.Status()
	assert.Equal(t, 3, st.TotalQuestions)
	assert.Equal(t, 2, st.AnsweredQuestions)
	assert.False(t, st.IsComplete)
	assert.Equal(t, "answers_recorded", st.Status)

	s.SetAnswers([]string{"$1500", "Linux", "Programming"})
	assert.True(t, s.IsComplete())

	_, err = m.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQAPairsPadAndTruncate(t *testing.T) {
	m := NewManager(time.Hour, 10, zaptest.NewLogger(t))
	s := m.CreateSession("q", []string{"A?", "B?"})

	s.SetAnswers([]string{"one"})
	assert.Equal(t, []QAPair{{"A?", "one"}, {"B?", ""}}, s.QAPairs())

	s.SetAnswers([]string{"one", "two", "three"})
	assert.Equal(t, []QAPair{{"A?", "one"}, {"B?", "two"}}, s.QAPairs())
	assert.True(t, s.IsComplete())
}

func TestSetAnswersCopiesInput(t *testing.T) {
	s := &ClarificationSession{Questions: []string{"A?"}}
	in := []string{"x"}
	s.SetAnswers(in)
	in[0] = "mutated"
	assert.Equal(t, []string{"x"}, s.Answers())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(time.Hour, 2, zaptest.NewLogger(t))

	first := m.CreateSession("first", nil)
	time.Sleep(2 * time.Millisecond)
	second := m.CreateSession("second", nil)
	time.Sleep(2 * time.Millisecond)

	_, err := m.GetSession(first.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	third := m.CreateSession("third", nil)

	assert.Equal(t, 2, m.Len())
	_, err = m.GetSession(second.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.GetSession(first.ID)
	assert.NoError(t, err)
	_, err = m.GetSession(third.ID)
	assert.NoError(t, err)
}

func TestSessionsExpire(t *testing.T) {
	m := NewManager(30*time.Millisecond, 10, zaptest.NewLogger(t))
	s := m.CreateSession("q", []string{"A?"})

	time.Sleep(60 * time.Millisecond)
	_, err := m.GetSession(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	m := NewManager(time.Hour, 10, zaptest.NewLogger(t))
	s := m.CreateSession("q", nil)
	m.DeleteSession(s.ID)
	m.DeleteSession("never-existed")
	assert.Equal(t, 0, m.Len())
}

func TestConcurrentCreateRespectsBound(t *testing.T) {
	m := NewManager(time.Hour, 5, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := m.CreateSession(fmt.Sprintf("q%d", i), []string{"A?"})
			s.SetAnswers([]string{"a"})
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Len(), 5)
}

func TestDeletedSessionStaysDeletedUnderConcurrentReads(t *testing.T) {
	m := NewManager(time.Hour, 10, zaptest.NewLogger(t))
	s := m.CreateSession("q", []string{"A?"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _ = m.GetSession(s.ID)
			}
		}()
	}
	m.DeleteSession(s.ID)
	wg.Wait()

	_, err := m.GetSession(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, m.Len())
}
