package lms_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/lms"
	"github.com/p-n-ai/pai-player/internal/quiz"
)

const courseBody = `{
	"id": 10,
	"title": "Go Basics",
	"lecture_sections": [
		{"id": 2, "position": 2, "lectures": [{"id": 21, "position": 1}]},
		{"id": 1, "position": "1", "lectures": [{"id": 11, "position": 1, "lecture_section_id": 1}]}
	]
}`

func serve(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var got http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = *r.Clone(r.Context())
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			got.Header.Set("X-Test-Body", string(data))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestLoadCourse_Unwrapping(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"root", courseBody},
		{"nested once", `{"course": ` + courseBody + `}`},
		{"nested twice", `{"course": {"course": ` + courseBody + `}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, req := serve(t, http.StatusOK, tt.body)
			c := lms.NewClient(srv.URL)

			got, err := c.LoadCourse(t.Context(), "10")
			if err != nil {
				t.Fatalf("LoadCourse() error = %v", err)
			}
			if req.URL.Path != "/courses/10" {
				t.Errorf("path = %q, want /courses/10", req.URL.Path)
			}
			if got.ID != "10" || got.Title != "Go Basics" {
				t.Errorf("course = %s %q", got.ID, got.Title)
			}
			if len(got.Sections) != 2 {
				t.Fatalf("sections = %d, want 2", len(got.Sections))
			}
			// Missing section references are filled from the owning section.
			if sid := got.Sections[0].Lectures[0].SectionID; sid != "2" {
				t.Errorf("SectionID = %q, want 2", sid)
			}
			if pos := got.Sections[1].Position; pos != 1 {
				t.Errorf("Position = %d, want 1", pos)
			}
		})
	}
}

func TestLoadCourse_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not an object", `[1, 2, 3]`},
		{"sections not an array", `{"id": 1, "lecture_sections": "nope"}`},
		{"lecture without id", `{"id": 1, "lecture_sections": [{"id": 1, "lectures": [{"title": "x"}]}]}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, http.StatusOK, tt.body)
			if _, err := lms.NewClient(srv.URL).LoadCourse(t.Context(), "1"); err == nil {
				t.Error("LoadCourse() expected error")
			}
		})
	}
}

func TestLoadCourse_StatusError(t *testing.T) {
	srv, _ := serve(t, http.StatusNotFound, `{"message": "no such course"}`)
	_, err := lms.NewClient(srv.URL).LoadCourse(t.Context(), "99")

	var se *quiz.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *quiz.StatusError", err)
	}
	if se.Status != http.StatusNotFound || se.Message != "no such course" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestGetLecture_Unwrapping(t *testing.T) {
	body := `{"lecture": {"lecture": {"id": 7, "title": "Intro", "lecture_section_id": "3"}}}`
	srv, req := serve(t, http.StatusOK, body)

	l, err := lms.NewClient(srv.URL).GetLecture(t.Context(), "10", "7")
	if err != nil {
		t.Fatalf("GetLecture() error = %v", err)
	}
	if req.URL.Path != "/courses/10/lectures/7" {
		t.Errorf("path = %q", req.URL.Path)
	}
	if l.ID != "7" || l.SectionID != "3" || l.Title != "Intro" {
		t.Errorf("lecture = %+v", l)
	}
}

func TestListQuizzes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"list", `{"quizzes": [{"id": 1, "title": "A"}, {"id": "2", "title": "B"}]}`, 2},
		{"missing field", `{}`, 0},
		{"not an array", `{"quizzes": {"id": 1}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, req := serve(t, http.StatusOK, tt.body)
			got, err := lms.NewClient(srv.URL).ListQuizzes(t.Context(), "10")
			if err != nil {
				t.Fatalf("ListQuizzes() error = %v", err)
			}
			if got == nil || len(got) != tt.want {
				t.Errorf("ListQuizzes() = %v, want %d items", got, tt.want)
			}
			if req.URL.Path != "/courses/10/quizzes" {
				t.Errorf("path = %q", req.URL.Path)
			}
		})
	}
}

func TestGetQuiz(t *testing.T) {
	body := `{
		"quiz": {"id": 5, "title": "Q", "questions": [{"id": 1, "text": "?", "options": ["a", "b"]}]},
		"message": "",
		"passed": false,
		"score": "40",
		"retryAfterMs": 60000,
		"retryAvailableAt": "2026-01-01T00:00:00Z"
	}`
	srv, req := serve(t, http.StatusOK, body)

	res, err := lms.NewClient(srv.URL, lms.WithToken("secret")).GetQuiz(t.Context(), "10", "5", "u-1")
	if err != nil {
		t.Fatalf("GetQuiz() error = %v", err)
	}
	if req.URL.Path != "/courses/10/quizzes/5" || req.URL.Query().Get("userId") != "u-1" {
		t.Errorf("request = %s", req.URL)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
	if res.Quiz == nil || res.Quiz.ID != "5" || len(res.Quiz.Questions) != 1 {
		t.Fatalf("Quiz = %+v", res.Quiz)
	}
	if res.Score != 40 || res.Passed {
		t.Errorf("score/passed = %v/%v", res.Score, res.Passed)
	}
	if res.Cooldown.RetryAfterMs == nil || *res.Cooldown.RetryAfterMs != 60000 {
		t.Errorf("RetryAfterMs = %v", res.Cooldown.RetryAfterMs)
	}
	if res.Cooldown.RetryAvailableAt == nil {
		t.Error("RetryAvailableAt not set")
	}
}

func TestGetQuiz_NoUserID(t *testing.T) {
	srv, req := serve(t, http.StatusOK, `{"quiz": null, "passed": true, "score": 90}`)

	res, err := lms.NewClient(srv.URL).GetQuiz(t.Context(), "10", "5", "")
	if err != nil {
		t.Fatalf("GetQuiz() error = %v", err)
	}
	if req.URL.RawQuery != "" {
		t.Errorf("query = %q, want none", req.URL.RawQuery)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("Authorization sent without token")
	}
	if res.Quiz != nil || !res.Passed || res.Score != 90 {
		t.Errorf("LoadResult = %+v", res)
	}
	if res.Cooldown.IsSet() {
		t.Error("cooldown should be unset")
	}
}

func TestGetQuiz_StringRetryAfterIgnored(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"quiz": {"id": 5}, "retryAfterMs": "1000"}`)

	res, err := lms.NewClient(srv.URL).GetQuiz(t.Context(), "10", "5", "u")
	if err != nil {
		t.Fatalf("GetQuiz() error = %v", err)
	}
	if res.Cooldown.IsSet() {
		t.Errorf("cooldown = %+v, want unset for non-numeric retryAfterMs", res.Cooldown)
	}
}

func TestSubmitQuiz(t *testing.T) {
	body := `{"score": 80, "passed": true, "submission": {"id": 9, "score": 80, "passed": true}, "retryAfterMs": 0}`
	srv, req := serve(t, http.StatusOK, body)

	res, err := lms.NewClient(srv.URL).SubmitQuiz(t.Context(), "10", "5", quiz.SubmitRequest{
		UserID:  "u-1",
		Answers: []int{0, 2},
	})
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if req.Method != http.MethodPost || req.URL.Path != "/courses/10/quizzes/5/submit" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(req.Header.Get("X-Test-Body")), &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent["userId"] != "u-1" {
		t.Errorf("userId = %v", sent["userId"])
	}
	if answers, _ := sent["answers"].([]any); len(answers) != 2 {
		t.Errorf("answers = %v", sent["answers"])
	}

	if res.Score != 80 || !res.Passed || res.Submission == nil || res.Submission.ID != "9" {
		t.Errorf("SubmitResult = %+v", res)
	}
	if res.Cooldown.IsSet() {
		t.Errorf("zero retryAfterMs should not set a cooldown: %+v", res.Cooldown)
	}
}

func TestGetQuiz_MistypedFields(t *testing.T) {
	body := `{"quiz": {
		"id": 5,
		"title": 7,
		"passing_score": "70",
		"questions": [
			{"id": "1", "text": "?", "options": ["a", 2, null]},
			"not a question"
		]
	}}`
	srv, _ := serve(t, http.StatusOK, body)

	res, err := lms.NewClient(srv.URL).GetQuiz(t.Context(), "10", "5", "u")
	if err != nil {
		t.Fatalf("GetQuiz() error = %v", err)
	}
	if res.Quiz == nil {
		t.Fatal("Quiz = nil, want decoded quiz")
	}
	if res.Quiz.PassingScore != 70 || res.Quiz.Title != "7" {
		t.Errorf("PassingScore/Title = %v/%q, want 70/7", res.Quiz.PassingScore, res.Quiz.Title)
	}
	if len(res.Quiz.Questions) != 1 {
		t.Fatalf("Questions = %+v, want 1", res.Quiz.Questions)
	}
	if got := res.Quiz.Questions[0].Options; len(got) != 3 || got[0] != "a" || got[1] != "2" || got[2] != "" {
		t.Errorf("Options = %q", got)
	}
}

func TestSubmitQuiz_MistypedSubmission(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantScore float64
		wantSub   bool
	}{
		{
			name:      "string score in submission",
			body:      `{"score": 80, "passed": true, "submission": {"id": 9, "score": "80", "passed": "yes", "answers": [1, "2", {}]}}`,
			wantScore: 80,
			wantSub:   true,
		},
		{
			name:      "submission not an object",
			body:      `{"score": "65", "passed": 1, "submission": "n/a"}`,
			wantScore: 65,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, http.StatusOK, tt.body)
			res, err := lms.NewClient(srv.URL).SubmitQuiz(t.Context(), "10", "5", quiz.SubmitRequest{UserID: "u"})
			if err != nil {
				t.Fatalf("SubmitQuiz() error = %v", err)
			}
			if res.Score != tt.wantScore || !res.Passed {
				t.Errorf("score/passed = %v/%v, want %v/true", res.Score, res.Passed, tt.wantScore)
			}
			if (res.Submission != nil) != tt.wantSub {
				t.Fatalf("Submission = %+v, want present %v", res.Submission, tt.wantSub)
			}
			if tt.wantSub {
				sub := res.Submission
				if sub.ID != "9" || sub.Score != 80 || !sub.Passed || len(sub.Answers) != 2 {
					t.Errorf("Submission = %+v", sub)
				}
			}
		})
	}
}

func TestClient_MistypedSubmissionStillRecordsResult(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `{"score": 80, "passed": true, "submission": {"id": 9, "score": "80"}}`)
	m := quiz.NewMachine(quiz.MachineConfig{Service: lms.NewClient(srv.URL)})

	m.Submit(t.Context(), "10", "5", "u", []int{1})

	st := m.State()
	if st.Outcome() != quiz.OutcomeResult {
		t.Errorf("Outcome() = %v, want result (error %q)", st.Outcome(), st.Error)
	}
	if st.LastResult == nil || st.LastResult.Score != 80 || st.LastResult.Submission == nil {
		t.Errorf("LastResult = %+v", st.LastResult)
	}
}

func TestSubmitQuiz_StatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantMessage   string
		wantScore     float64
		wantRateLimit bool
		wantConflict  bool
		wantCooldown  bool
	}{
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{"message": "wait", "retryAfterMs": 30000}`,
			wantMessage:   "wait",
			wantRateLimit: true,
			wantCooldown:  true,
		},
		{
			name:         "already approved",
			status:       http.StatusConflict,
			body:         `{"score": 95}`,
			wantScore:    95,
			wantConflict: true,
		},
		{
			name:   "server error with html body",
			status: http.StatusInternalServerError,
			body:   `<html>oops</html>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			_, err := lms.NewClient(srv.URL).SubmitQuiz(t.Context(), "10", "5", quiz.SubmitRequest{UserID: "u"})

			var se *quiz.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *quiz.StatusError", err)
			}
			if se.Status != tt.status || se.Message != tt.wantMessage || se.Score != tt.wantScore {
				t.Errorf("StatusError = %+v", se)
			}
			if quiz.IsRateLimited(err) != tt.wantRateLimit || quiz.IsConflict(err) != tt.wantConflict {
				t.Errorf("IsRateLimited/IsConflict = %v/%v", quiz.IsRateLimited(err), quiz.IsConflict(err))
			}
			if se.Cooldown.IsSet() != tt.wantCooldown {
				t.Errorf("Cooldown.IsSet() = %v, want %v", se.Cooldown.IsSet(), tt.wantCooldown)
			}
		})
	}
}

func TestClient_DrivesMachine(t *testing.T) {
	srv, _ := serve(t, http.StatusTooManyRequests, `{"retryAvailableAt": "2030-01-01T00:00:00Z"}`)
	m := quiz.NewMachine(quiz.MachineConfig{Service: lms.NewClient(srv.URL)})

	m.Submit(t.Context(), "10", "5", "u", []int{1})

	st := m.State()
	if st.Outcome() != quiz.OutcomeSubmitBlocked {
		t.Errorf("Outcome() = %v, want SubmitBlocked", st.Outcome())
	}
	if st.Error != quiz.MsgCannotRetryYet {
		t.Errorf("Error = %q", st.Error)
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := lms.NewClient(srv.URL, lms.WithTimeout(20*time.Millisecond))
	if _, err := c.ListQuizzes(t.Context(), "1"); err == nil {
		t.Error("ListQuizzes() expected timeout error")
	}
}

func TestClient_ImplementsInterfaces(t *testing.T) {
	var _ quiz.Service = (*lms.Client)(nil)
	var _ course.Loader = (*lms.Client)(nil)
}
