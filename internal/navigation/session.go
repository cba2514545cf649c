package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/events"
)

// CourseLoader fetches a full course snapshot.
type CourseLoader interface {
	LoadCourse(ctx context.Context, id course.ID) (*course.Course, error)
}

// Navigator performs the view transition to a destination.
type Navigator interface {
	Navigate(ctx context.Context, dest Destination) error
}

// SessionConfig holds dependencies for a navigation Session.
type SessionConfig struct {
	Loader    CourseLoader
	Navigator Navigator
	Events    events.Logger
	SessionID string
}

// Session holds one learner's course snapshot and current lecture.
// It is meant for a single logical owner; the mutex only keeps individual
// reads and writes consistent.
type Session struct {
	loader    CourseLoader
	navigator Navigator
	events    events.Logger
	sessionID string

	mu      sync.Mutex
	course  *course.Course
	current *course.Lecture
}

// NewSession creates an empty navigation session.
func NewSession(cfg SessionConfig) *Session {
	ev := cfg.Events
	if ev == nil {
		ev = events.NopLogger{}
	}
	return &Session{
		loader:    cfg.Loader,
		navigator: cfg.Navigator,
		events:    ev,
		sessionID: cfg.SessionID,
	}
}

// Course returns the loaded snapshot, or nil.
func (s *Session) Course() *course.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.course
}

// SetCourse replaces the course snapshot.
func (s *Session) SetCourse(c *course.Course) {
	s.mu.Lock()
	s.course = c
	s.mu.Unlock()
}

// LoadCourse fetches the course through the configured loader and adopts it.
// The previous snapshot is kept when the load fails.
func (s *Session) LoadCourse(ctx context.Context, id course.ID) error {
	if s.loader == nil {
		return errors.New("no course loader configured")
	}
	c, err := s.loader.LoadCourse(ctx, id)
	if err != nil {
		return fmt.Errorf("load course %s: %w", id, err)
	}
	if c == nil {
		return fmt.Errorf("load course %s: empty snapshot", id)
	}
	s.SetCourse(c)
	return nil
}

// CurrentLecture returns the lecture being viewed.
func (s *Session) CurrentLecture() (course.Lecture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return course.Lecture{}, false
	}
	return *s.current, true
}

// SetCurrentLecture looks the lecture up in the loaded course and adopts it.
// When it is not found the current lecture is left unchanged.
func (s *Session) SetCurrentLecture(id course.ID) (course.Lecture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := course.FindLecture(s.course, id)
	if !ok {
		return course.Lecture{}, false
	}
	s.current = &l
	return l, true
}

// AdoptLecture sets the current lecture directly, e.g. from a lecture fetch.
func (s *Session) AdoptLecture(l course.Lecture) {
	s.mu.Lock()
	s.current = &l
	s.mu.Unlock()
}

// Reset drops the course snapshot and the current lecture.
func (s *Session) Reset() {
	s.mu.Lock()
	s.course = nil
	s.current = nil
	s.mu.Unlock()
}

// Next resolves the lecture after the current one without moving.
func (s *Session) Next(scope Scope) (course.ID, bool) {
	s.mu.Lock()
	c, cur := s.course, s.current
	s.mu.Unlock()
	return ResolveNext(c, cur, scope)
}

// Advance moves the learner to the next lecture and reports whether a
// transition happened. It never panics; every failure is logged and
// reported as false.
//
// A missing snapshot is loaded first (errors are swallowed). When no lecture
// is current, currentLectureID is looked up and adopted.
func (s *Session) Advance(ctx context.Context, courseID, currentLectureID course.ID, scope Scope) (advanced bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("advance panicked", "course_id", courseID, "panic", r)
			advanced = false
		}
	}()

	slog.Debug("advancing to next lecture",
		"course_id", courseID,
		"scope", scope,
		"current_lecture_id", currentLectureID,
	)

	if s.Course() == nil {
		if err := s.LoadCourse(ctx, courseID); err != nil {
			slog.Warn("course load failed, continuing without snapshot", "course_id", courseID, "error", err)
		}
	}

	if _, ok := s.CurrentLecture(); !ok && !currentLectureID.IsZero() {
		if _, found := s.SetCurrentLecture(currentLectureID); !found {
			slog.Debug("current lecture not in course", "lecture_id", currentLectureID)
		}
	}

	nextID, ok := s.Next(scope)
	if courseID.IsZero() || !ok {
		slog.Info("no next lecture, navigation aborted", "course_id", courseID, "scope", scope)
		return false
	}

	s.SetCurrentLecture(nextID)

	dest := Destination{CourseID: courseID, LectureID: nextID}
	if s.navigator == nil {
		slog.Warn("no navigator configured", "path", dest.Path())
		return false
	}
	if err := s.navigator.Navigate(ctx, dest); err != nil {
		slog.Warn("navigation failed", "path", dest.Path(), "error", err)
		return false
	}

	if err := s.events.LogEvent(events.Event{
		SessionID: s.sessionID,
		CourseID:  courseID.String(),
		EventType: events.TypeLectureAdvanced,
		Data: map[string]any{
			"lecture_id": nextID.String(),
			"scope":      string(scope),
		},
	}); err != nil {
		slog.Warn("failed to log navigation event", "error", err)
	}

	slog.Info("advanced to next lecture", "path", dest.Path())
	return true
}
