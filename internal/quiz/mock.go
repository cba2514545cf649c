package quiz

import (
	"context"
	"sync"

	"github.com/p-n-ai/pai-player/internal/course"
)

// MockService is a test double for Service.
type MockService struct {
	Quizzes   []Summary
	ListErr   error
	Load      LoadResult
	LoadErr   error
	Submitted SubmitResult
	SubmitErr error

	// Hook, when set, runs inside every call before it returns. Tests use it
	// to observe in-flight state.
	Hook func()

	mu         sync.Mutex
	LastUserID string
	LastSubmit *SubmitRequest
	Calls      int
}

func (m *MockService) ListQuizzes(_ context.Context, _ course.ID) ([]Summary, error) {
	m.record("", nil)
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Quizzes, nil
}

func (m *MockService) GetQuiz(_ context.Context, _, _ course.ID, userID string) (LoadResult, error) {
	m.record(userID, nil)
	if m.LoadErr != nil {
		return LoadResult{}, m.LoadErr
	}
	return m.Load, nil
}

func (m *MockService) SubmitQuiz(_ context.Context, _, _ course.ID, req SubmitRequest) (SubmitResult, error) {
	m.record(req.UserID, &req)
	if m.SubmitErr != nil {
		return SubmitResult{}, m.SubmitErr
	}
	return m.Submitted, nil
}

func (m *MockService) record(userID string, req *SubmitRequest) {
	m.mu.Lock()
	m.Calls++
	m.LastUserID = userID
	if req != nil {
		m.LastSubmit = req
	}
	hook := m.Hook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
}
