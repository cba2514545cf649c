// Package player owns one learner session: the navigation position inside a
// course and the quiz attempt state of every course visited.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/events"
	"github.com/p-n-ai/pai-player/internal/navigation"
	"github.com/p-n-ai/pai-player/internal/quiz"
)

// ErrLectureNotFound is returned when a lecture is neither in the loaded course
// nor available from the lecture fetcher.
var ErrLectureNotFound = errors.New("lecture not found")

// ErrNoQuizService is reported in quiz state when no quiz backend is configured.
var ErrNoQuizService = quiz.ErrNoService

// LectureFetcher loads a single lecture without the whole course.
type LectureFetcher interface {
	GetLecture(ctx context.Context, courseID, lectureID course.ID) (course.Lecture, error)
}

// Config holds the collaborators of a Player.
type Config struct {
	Courses   navigation.CourseLoader
	Lectures  LectureFetcher
	Quizzes   quiz.Service
	Navigator navigation.Navigator
	Events    events.Logger

	UserID       string
	DefaultScope navigation.Scope

	// SessionID tags events. A random UUID is used when empty.
	SessionID string
}

// Player is a single learner session.
type Player struct {
	courses      navigation.CourseLoader
	lectures     LectureFetcher
	quizzes      quiz.Service
	events       events.Logger
	userID       string
	defaultScope navigation.Scope
	sessionID    string

	session *navigation.Session

	// advance serializes moves so concurrent requests cannot skip lectures.
	advance sync.Mutex
	// active is the course of the last move; guarded by advance.
	active course.ID

	mu       sync.Mutex
	machines map[course.ID]*quiz.Machine
}

// New creates a Player with an empty session.
func New(cfg Config) *Player {
	ev := cfg.Events
	if ev == nil {
		ev = events.NopLogger{}
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	scope := cfg.DefaultScope
	if scope == "" {
		scope = navigation.ScopeGlobal
	}

	return &Player{
		courses:      cfg.Courses,
		lectures:     cfg.Lectures,
		quizzes:      cfg.Quizzes,
		events:       ev,
		userID:       cfg.UserID,
		defaultScope: scope,
		sessionID:    sessionID,
		session: navigation.NewSession(navigation.SessionConfig{
			Loader:    cfg.Courses,
			Navigator: cfg.Navigator,
			Events:    ev,
			SessionID: sessionID,
		}),
		machines: make(map[course.ID]*quiz.Machine),
	}
}

// SessionID returns the identifier carried in emitted events.
func (p *Player) SessionID() string { return p.sessionID }

// UserID returns the configured learner, used when a request names none.
func (p *Player) UserID() string { return p.userID }

// DefaultScope returns the scope used when a request names none.
func (p *Player) DefaultScope() navigation.Scope { return p.defaultScope }

// Session exposes the navigation session.
func (p *Player) Session() *navigation.Session { return p.session }

// Advance moves to the lecture after the current one and returns the lecture
// that is current afterwards. Switching to another course drops the previous
// snapshot and position first.
func (p *Player) Advance(ctx context.Context, courseID, lectureID course.ID, scope navigation.Scope) (course.ID, bool) {
	p.advance.Lock()
	defer p.advance.Unlock()

	p.switchCourse(courseID)
	ok := p.session.Advance(ctx, courseID, lectureID, scope)

	cur, _ := p.session.CurrentLecture()
	return cur.ID, ok
}

// NextLecture resolves the lecture after lectureID without moving.
func (p *Player) NextLecture(ctx context.Context, courseID, lectureID course.ID, scope navigation.Scope) (course.ID, bool, error) {
	c, err := p.snapshot(ctx, courseID)
	if err != nil {
		return "", false, err
	}
	l, found := course.FindLecture(c, lectureID)
	if !found {
		return "", false, nil
	}
	next, ok := navigation.ResolveNext(c, &l, scope)
	return next, ok, nil
}

// OpenLecture makes lectureID the current lecture. It is looked up in the
// course snapshot first and fetched on its own when the snapshot is missing
// or does not list it.
func (p *Player) OpenLecture(ctx context.Context, courseID, lectureID course.ID) (course.Lecture, error) {
	p.advance.Lock()
	defer p.advance.Unlock()

	p.switchCourse(courseID)
	if p.session.Course() == nil {
		if err := p.session.LoadCourse(ctx, courseID); err != nil {
			slog.Warn("course load failed, fetching lecture directly", "course_id", courseID, "error", err)
		}
	}

	if l, ok := p.session.SetCurrentLecture(lectureID); ok {
		return l, nil
	}
	if p.lectures == nil {
		return course.Lecture{}, fmt.Errorf("open lecture %s: %w", lectureID, ErrLectureNotFound)
	}

	l, err := p.lectures.GetLecture(ctx, courseID, lectureID)
	if err != nil {
		return course.Lecture{}, fmt.Errorf("open lecture %s: %w", lectureID, err)
	}
	p.session.AdoptLecture(l)
	return l, nil
}

// Quiz returns the attempt state machine of a course, creating it on first use.
func (p *Player) Quiz(courseID course.ID) *quiz.Machine {
	key := course.NormalizeID(courseID)

	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.machines[key]
	if !ok {
		m = quiz.NewMachine(quiz.MachineConfig{
			Service:   p.quizzes,
			Events:    p.events,
			SessionID: p.sessionID,
		})
		p.machines[key] = m
	}
	return m
}

// WriteOutline writes the xlsx outline of a course.
func (p *Player) WriteOutline(ctx context.Context, courseID course.ID, w io.Writer) error {
	c, err := p.snapshot(ctx, courseID)
	if err != nil {
		return err
	}
	return course.WriteOutlineXLSX(w, c)
}

// snapshot returns the session snapshot when it matches courseID and loads a
// fresh one otherwise. The session is not changed.
func (p *Player) snapshot(ctx context.Context, courseID course.ID) (*course.Course, error) {
	if c := p.session.Course(); c != nil && c.ID.Equal(courseID) {
		return c, nil
	}
	if p.courses == nil {
		return nil, errors.New("no course loader configured")
	}
	c, err := p.courses.LoadCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load course %s: %w", courseID, err)
	}
	if c == nil {
		return nil, fmt.Errorf("load course %s: empty snapshot", courseID)
	}
	return c, nil
}

// switchCourse resets the session when courseID differs from the loaded
// snapshot or, without one, from the course of the last move.
func (p *Player) switchCourse(courseID course.ID) {
	from := p.active
	if c := p.session.Course(); c != nil {
		from = c.ID
	}
	if !from.IsZero() && !from.Equal(courseID) {
		slog.Info("switching course", "from", from, "to", courseID)
		p.session.Reset()
	}
	p.active = course.NormalizeID(courseID)
}
