package player

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/navigation"
	"github.com/p-n-ai/pai-player/internal/quiz"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Register adds the player routes to mux.
func Register(mux *http.ServeMux, p *Player) {
	h := &handler{p: p}
	mux.HandleFunc("GET /session", h.handleSession)
	mux.HandleFunc("POST /courses/{courseId}/next", h.handleAdvance)
	mux.HandleFunc("PUT /courses/{courseId}/lectures/{lectureId}", h.handleOpenLecture)
	mux.HandleFunc("GET /courses/{courseId}/lectures/{lectureId}/next", h.handleNext)
	mux.HandleFunc("GET /courses/{courseId}/outline.xlsx", h.handleOutline)
	mux.HandleFunc("GET /courses/{courseId}/quizzes", h.handleListQuizzes)
	mux.HandleFunc("GET /courses/{courseId}/quizzes/{quizId}", h.handleGetQuiz)
	mux.HandleFunc("POST /courses/{courseId}/quizzes/{quizId}/submit", h.handleSubmitQuiz)
	mux.HandleFunc("GET /courses/{courseId}/quiz-state", h.handleQuizState)
	mux.HandleFunc("DELETE /courses/{courseId}/quiz-state", h.handleClearQuiz)
}

type handler struct {
	p *Player
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	CourseID  course.ID `json:"course_id"`
	LectureID course.ID `json:"lecture_id"`
}

type advanceResponse struct {
	Advanced  bool      `json:"advanced"`
	LectureID course.ID `json:"lecture_id"`
}

type nextResponse struct {
	NextLectureID *course.ID `json:"next_lecture_id"`
}

type quizStateResponse struct {
	quiz.State
	Outcome quiz.Outcome `json:"outcome"`
}

func (h *handler) handleSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{SessionID: h.p.SessionID()}
	if c := h.p.Session().Course(); c != nil {
		resp.CourseID = c.ID
	}
	if l, ok := h.p.Session().CurrentLecture(); ok {
		resp.LectureID = l.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	courseID := course.NormalizeID(r.PathValue("courseId"))
	lectureID := course.NormalizeID(r.URL.Query().Get("lecture"))

	cur, advanced := h.p.Advance(r.Context(), courseID, lectureID, scope)
	writeJSON(w, http.StatusOK, advanceResponse{Advanced: advanced, LectureID: cur})
}

func (h *handler) handleOpenLecture(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))
	lectureID := course.NormalizeID(r.PathValue("lectureId"))

	l, err := h.p.OpenLecture(r.Context(), courseID, lectureID)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *handler) handleNext(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	courseID := course.NormalizeID(r.PathValue("courseId"))
	lectureID := course.NormalizeID(r.PathValue("lectureId"))

	next, found, err := h.p.NextLecture(r.Context(), courseID, lectureID, scope)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	var resp nextResponse
	if found {
		resp.NextLectureID = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleOutline(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))

	var buf bytes.Buffer
	if err := h.p.WriteOutline(r.Context(), courseID, &buf); err != nil {
		writeUpstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="course-%s-outline.xlsx"`, courseID))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("outline write failed", "error", err)
	}
}

func (h *handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))
	m := h.p.Quiz(courseID)
	m.LoadByCourse(r.Context(), courseID)
	writeQuizState(w, m.State())
}

func (h *handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))
	quizID := course.NormalizeID(r.PathValue("quizId"))
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = h.p.UserID()
	}

	m := h.p.Quiz(courseID)
	m.LoadByID(r.Context(), courseID, quizID, userID)
	writeQuizState(w, m.State())
}

func (h *handler) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))
	quizID := course.NormalizeID(r.PathValue("quizId"))

	var req quiz.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid submission body")
		return
	}
	if req.UserID == "" {
		req.UserID = h.p.UserID()
	}

	m := h.p.Quiz(courseID)
	m.Submit(r.Context(), courseID, quizID, req.UserID, req.Answers)
	writeQuizState(w, m.State())
}

func (h *handler) handleQuizState(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))
	writeQuizState(w, h.p.Quiz(courseID).State())
}

func (h *handler) handleClearQuiz(w http.ResponseWriter, r *http.Request) {
	courseID := course.NormalizeID(r.PathValue("courseId"))
	m := h.p.Quiz(courseID)
	m.Clear()
	writeQuizState(w, m.State())
}

// scope reads the scope query parameter, writing a 400 when it is unknown.
func (h *handler) scope(w http.ResponseWriter, r *http.Request) (navigation.Scope, bool) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return h.p.DefaultScope(), true
	}
	scope, err := navigation.ParseScope(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return scope, true
}

func writeQuizState(w http.ResponseWriter, s quiz.State) {
	writeJSON(w, http.StatusOK, quizStateResponse{State: s, Outcome: s.Outcome()})
}

// writeUpstreamError maps loader and LMS failures to a status code.
func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var se *quiz.StatusError
	switch {
	case errors.Is(err, course.ErrNotFound), errors.Is(err, ErrLectureNotFound):
		status = http.StatusNotFound
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		status = http.StatusNotFound
	}
	slog.Warn("request failed", "status", status, "error", err)
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
