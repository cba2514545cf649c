// Package quiz manages the attempt lifecycle of course quizzes: loading,
// submitting and interpreting server-side pass/cooldown policy.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-player/internal/course"
)

// Summary is the list form of a quiz.
type Summary struct {
	ID            course.ID `json:"id"`
	CourseID      course.ID `json:"course_id,omitempty"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"question_count,omitempty"`
}

// Quiz is a read-only quiz snapshot with its questions in display order.
type Quiz struct {
	ID           course.ID  `json:"id"`
	CourseID     course.ID  `json:"course_id,omitempty"`
	Title        string     `json:"title"`
	PassingScore float64    `json:"passing_score,omitempty"`
	Questions    []Question `json:"questions"`
}

// Question is a single multiple-choice question. Answers are option indexes.
type Question struct {
	ID      course.ID `json:"id"`
	Text    string    `json:"text"`
	Options []string  `json:"options"`
}

// Submission is the server record of a graded attempt.
type Submission struct {
	ID          course.ID `json:"id"`
	QuizID      course.ID `json:"quiz_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Score       float64   `json:"score"`
	Passed      bool      `json:"passed"`
	Answers     []int     `json:"answers,omitempty"`
	SubmittedAt string    `json:"submitted_at,omitempty"`
}

// Cooldown is a server-imposed wait before the next attempt. Either field may be
// set on its own. ObservedAt is when the player received it.
type Cooldown struct {
	RetryAfterMs     *int64    `json:"retryAfterMs,omitempty"`
	RetryAvailableAt *string   `json:"retryAvailableAt,omitempty"`
	ObservedAt       time.Time `json:"-"`
}

// IsSet reports whether either cooldown field is present.
func (c Cooldown) IsSet() bool {
	return c.RetryAfterMs != nil || c.RetryAvailableAt != nil
}

// AvailableAt resolves when the next attempt is allowed. An RFC 3339
// RetryAvailableAt wins over RetryAfterMs counted from ObservedAt.
func (c Cooldown) AvailableAt() (time.Time, bool) {
	if c.RetryAvailableAt != nil {
		if t, err := time.Parse(time.RFC3339, *c.RetryAvailableAt); err == nil {
			return t, true
		}
	}
	if c.RetryAfterMs != nil && !c.ObservedAt.IsZero() {
		return c.ObservedAt.Add(time.Duration(*c.RetryAfterMs) * time.Millisecond), true
	}
	return time.Time{}, false
}

// Active reports whether the cooldown still blocks an attempt at now.
// A cooldown whose end cannot be resolved is treated as active.
func (c Cooldown) Active(now time.Time) bool {
	if !c.IsSet() {
		return false
	}
	at, ok := c.AvailableAt()
	if !ok {
		return true
	}
	return now.Before(at)
}

// LoadResult is the decoded response of a single-quiz fetch.
type LoadResult struct {
	Quiz     *Quiz
	Message  string
	Passed   bool
	Score    float64
	Cooldown Cooldown
}

// SubmitRequest is the body of a quiz submission.
type SubmitRequest struct {
	UserID  string `json:"userId"`
	Answers []int  `json:"answers"`
}

// SubmitResult is the decoded response of a successful submission.
type SubmitResult struct {
	Score      float64
	Passed     bool
	Submission *Submission
	Cooldown   Cooldown
}

// StatusError is a non-2xx response from the quiz service. Message, Score and
// Cooldown echo the fields of the error payload.
type StatusError struct {
	Status   int
	Message  string
	Score    float64
	Cooldown Cooldown
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("quiz service returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("quiz service returned %d", e.Status)
}

// IsRateLimited reports whether err is a 429-class StatusError.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusTooManyRequests
}

// IsConflict reports whether err is a 409-class StatusError (already approved).
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusConflict
}

// ErrNoService is reported by a Machine created without a Service.
var ErrNoService = errors.New("no quiz service configured")

// Service is the remote quiz API consumed by the Machine.
type Service interface {
	ListQuizzes(ctx context.Context, courseID course.ID) ([]Summary, error)
	GetQuiz(ctx context.Context, courseID, quizID course.ID, userID string) (LoadResult, error)
	SubmitQuiz(ctx context.Context, courseID, quizID course.ID, req SubmitRequest) (SubmitResult, error)
}

type noService struct{}

func (noService) ListQuizzes(context.Context, course.ID) ([]Summary, error) {
	return nil, ErrNoService
}

func (noService) GetQuiz(context.Context, course.ID, course.ID, string) (LoadResult, error) {
	return LoadResult{}, ErrNoService
}

func (noService) SubmitQuiz(context.Context, course.ID, course.ID, SubmitRequest) (SubmitResult, error) {
	return SubmitResult{}, ErrNoService
}
