package quiz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/events"
)

// Messages used when the server does not provide one.
const (
	MsgAlreadyApproved     = "Quiz already approved."
	MsgRetryNotAllowed     = "Retry not allowed yet."
	MsgCannotRetryYet      = "cannot retry yet"
	MsgQuizAlreadyApproved = "quiz already approved"
	MsgLoadQuizzesFailed   = "failed to load quizzes"
	MsgLoadQuizFailed      = "failed to load quiz"
	MsgSubmitFailed        = "failed to submit quiz"
)

// MachineConfig holds dependencies for a quiz attempt Machine.
type MachineConfig struct {
	Service   Service
	Events    events.Logger
	SessionID string
	Now       func() time.Time
}

// Machine owns the attempt state of the quizzes of one course. Operations
// block on exactly one Service call; state is only locked around reads and
// writes, never across the call. Overlapping calls of the same kind are not
// cancelled and the last one to finish wins.
type Machine struct {
	service   Service
	events    events.Logger
	sessionID string
	now       func() time.Time

	mu         sync.Mutex
	state      State
	loading    int
	submitting int
}

// NewMachine creates a Machine in the idle state. Without a Service every
// operation fails with ErrNoService.
func NewMachine(cfg MachineConfig) *Machine {
	ev := cfg.Events
	if ev == nil {
		ev = events.NopLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	svc := cfg.Service
	if svc == nil {
		svc = noService{}
	}
	return &Machine{
		service:   svc,
		events:    ev,
		sessionID: cfg.SessionID,
		now:       now,
		state:     State{Quizzes: []Summary{}},
	}
}

// State returns a deep copy of the current attempt state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	s.Quizzes = slices.Clone(m.state.Quizzes)
	s.Current = m.state.Current.clone()
	s.LastResult = m.state.LastResult.clone()
	s.Cooldown = m.state.Cooldown.clone()
	if s.Quizzes == nil {
		s.Quizzes = []Summary{}
	}
	s.Loading = m.loading > 0
	s.Submitting = m.submitting > 0
	return s
}

// LoadByCourse replaces the quiz list with the quizzes of courseID. On failure
// the list is kept and the error message is set.
func (m *Machine) LoadByCourse(ctx context.Context, courseID course.ID) {
	m.beginLoading()
	defer m.endLoading()

	m.mu.Lock()
	m.state.Error = ""
	m.mu.Unlock()

	quizzes, err := m.service.ListQuizzes(ctx, courseID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.lastOp = opLoadList
	if err != nil {
		slog.Warn("quiz list load failed", "course_id", courseID, "error", err)
		m.state.Error = errorText(err, MsgLoadQuizzesFailed)
		return
	}
	if quizzes == nil {
		quizzes = []Summary{}
	}
	m.state.Quizzes = quizzes
}

// LoadByID fetches one quiz. userID may be empty; when set the server reports
// whether the learner already passed or is cooling down.
func (m *Machine) LoadByID(ctx context.Context, courseID, quizID course.ID, userID string) {
	m.beginLoading()
	defer m.endLoading()

	m.mu.Lock()
	m.state.Error = ""
	m.state.ApprovedAlready = false
	m.state.Cooldown = Cooldown{}
	m.mu.Unlock()

	res, err := m.service.GetQuiz(ctx, courseID, quizID, userID)

	var pending []events.Event
	defer m.emit(&pending)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.lastOp = opLoadQuiz
	if err != nil {
		slog.Warn("quiz load failed", "course_id", courseID, "quiz_id", quizID, "error", err)
		m.state.Current = nil
		m.state.Error = errorText(err, MsgLoadQuizFailed)
		return
	}

	m.state.Current = res.Quiz

	switch {
	case res.Passed:
		m.state.ApprovedAlready = true
		m.state.LastResult = &Result{Score: res.Score, Passed: true}
		m.state.Error = withDefault(res.Message, MsgAlreadyApproved)
	case res.Cooldown.IsSet():
		cd := res.Cooldown
		cd.ObservedAt = m.now()
		m.state.Cooldown = cd
		m.state.Error = withDefault(res.Message, MsgRetryNotAllowed)
		m.state.LastResult = nil
	}

	pending = append(pending, m.event(events.TypeQuizLoaded, courseID, userID, map[string]any{
		"quiz_id":  quizID.String(),
		"approved": res.Passed,
		"blocked":  !res.Passed && res.Cooldown.IsSet(),
	}))
}

// Submit sends answers for grading. Cooldown and approval are cleared before
// the request; the response alone decides the new outcome.
func (m *Machine) Submit(ctx context.Context, courseID, quizID course.ID, userID string, answers []int) {
	m.beginSubmitting()
	defer m.endSubmitting()

	m.mu.Lock()
	m.state.Error = ""
	m.state.Cooldown = Cooldown{}
	m.state.ApprovedAlready = false
	m.mu.Unlock()

	res, err := m.service.SubmitQuiz(ctx, courseID, quizID, SubmitRequest{
		UserID:  userID,
		Answers: answers,
	})

	var pending []events.Event
	defer m.emit(&pending)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.lastOp = opSubmit

	if err == nil {
		slog.Info("quiz submitted",
			"course_id", courseID,
			"quiz_id", quizID,
			"score", res.Score,
			"passed", res.Passed,
		)
		m.state.LastResult = &Result{
			Score:      res.Score,
			Passed:     res.Passed,
			Submission: res.Submission,
		}
		var cd Cooldown
		if v := res.Cooldown.RetryAfterMs; v != nil && *v != 0 {
			cd.RetryAfterMs = v
		}
		if v := res.Cooldown.RetryAvailableAt; v != nil && *v != "" {
			cd.RetryAvailableAt = v
		}
		if cd.IsSet() {
			cd.ObservedAt = m.now()
		}
		m.state.Cooldown = cd
		pending = append(pending, m.event(events.TypeQuizSubmitted, courseID, userID, map[string]any{
			"quiz_id": quizID.String(),
			"score":   res.Score,
			"passed":  res.Passed,
		}))
		return
	}

	var se *StatusError
	status := 0
	if errors.As(err, &se) {
		status = se.Status
	}
	slog.Warn("quiz submit failed",
		"course_id", courseID,
		"quiz_id", quizID,
		"status", status,
		"error", err,
	)

	switch status {
	case http.StatusTooManyRequests:
		cd := se.Cooldown
		cd.ObservedAt = m.now()
		m.state.Error = withDefault(se.Message, MsgCannotRetryYet)
		m.state.Cooldown = cd
		m.state.LastResult = nil
		pending = append(pending, m.event(events.TypeQuizRateLimited, courseID, userID, map[string]any{
			"quiz_id": quizID.String(),
		}))
	case http.StatusConflict:
		m.state.Error = withDefault(se.Message, MsgQuizAlreadyApproved)
		m.state.ApprovedAlready = true
		m.state.LastResult = &Result{Score: se.Score, Passed: true}
		pending = append(pending, m.event(events.TypeQuizAlreadyApproved, courseID, userID, map[string]any{
			"quiz_id": quizID.String(),
			"score":   se.Score,
		}))
	default:
		m.state.Error = errorText(err, MsgSubmitFailed)
		m.state.LastResult = nil
	}
}

// Clear resets the attempt state to its initial values.
func (m *Machine) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Quizzes: []Summary{}}
	m.loading = 0
	m.submitting = 0
}

func (m *Machine) beginLoading() {
	m.mu.Lock()
	m.loading++
	m.mu.Unlock()
}

func (m *Machine) endLoading() {
	m.mu.Lock()
	if m.loading > 0 {
		m.loading--
	}
	m.mu.Unlock()
}

func (m *Machine) beginSubmitting() {
	m.mu.Lock()
	m.submitting++
	m.mu.Unlock()
}

func (m *Machine) endSubmitting() {
	m.mu.Lock()
	if m.submitting > 0 {
		m.submitting--
	}
	m.mu.Unlock()
}

func (m *Machine) event(eventType string, courseID course.ID, userID string, data map[string]any) events.Event {
	return events.Event{
		SessionID: m.sessionID,
		UserID:    userID,
		CourseID:  courseID.String(),
		EventType: eventType,
		Data:      data,
	}
}

// emit runs after the state lock is released.
func (m *Machine) emit(pending *[]events.Event) {
	for _, ev := range *pending {
		if err := m.events.LogEvent(ev); err != nil {
			slog.Warn("failed to log quiz event", "type", ev.EventType, "error", err)
		}
	}
}

func errorText(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

func withDefault(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
