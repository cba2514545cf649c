package player_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-player/internal/navigation"
	"github.com/p-n-ai/pai-player/internal/player"
	"github.com/p-n-ai/pai-player/internal/quiz"
)

func newTestMux(svc *quiz.MockService) (*http.ServeMux, *navigation.MockNavigator) {
	nav := &navigation.MockNavigator{}
	p := player.New(player.Config{
		Courses:   newLoader(),
		Quizzes:   svc,
		Navigator: nav,
		UserID:    "default-user",
	})
	mux := http.NewServeMux()
	player.Register(mux, p)
	return mux, nav
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHTTP_Advance(t *testing.T) {
	mux, nav := newTestMux(&quiz.MockService{})

	tests := []struct {
		name         string
		target       string
		wantStatus   int
		wantAdvanced bool
		wantLecture  string
	}{
		{"first move", "/courses/10/next?lecture=l1", http.StatusOK, true, "l2"},
		{"section end", "/courses/10/next?scope=section", http.StatusOK, false, "l2"},
		{"across sections", "/courses/10/next?scope=global", http.StatusOK, true, "l3"},
		{"bad scope", "/courses/10/next?scope=chapter", http.StatusBadRequest, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			body := decode(t, rec)
			if body["advanced"] != tt.wantAdvanced || body["lecture_id"] != tt.wantLecture {
				t.Errorf("body = %v", body)
			}
		})
	}
	if len(nav.Destinations) != 2 {
		t.Errorf("navigations = %d, want 2", len(nav.Destinations))
	}
}

func TestHTTP_NextLecture(t *testing.T) {
	mux, _ := newTestMux(&quiz.MockService{})

	rec := do(t, mux, http.MethodGet, "/courses/10/lectures/l1/next", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["next_lecture_id"] != "l2" {
		t.Errorf("body = %v", body)
	}

	rec = do(t, mux, http.MethodGet, "/courses/10/lectures/l3/next", "")
	if body := decode(t, rec); body["next_lecture_id"] != nil {
		t.Errorf("body = %v, want null next_lecture_id", body)
	}

	rec = do(t, mux, http.MethodGet, "/courses/99/lectures/l1/next", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown course status = %d, want 404", rec.Code)
	}
}

func TestHTTP_OpenLectureAndSession(t *testing.T) {
	mux, _ := newTestMux(&quiz.MockService{})

	rec := do(t, mux, http.MethodPut, "/courses/10/lectures/l2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := decode(t, do(t, mux, http.MethodGet, "/session", ""))
	if body["course_id"] != "10" || body["lecture_id"] != "l2" {
		t.Errorf("session = %v", body)
	}

	if rec := do(t, mux, http.MethodPut, "/courses/10/lectures/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing lecture status = %d, want 404", rec.Code)
	}
}

func TestHTTP_Outline(t *testing.T) {
	mux, _ := newTestMux(&quiz.MockService{})

	rec := do(t, mux, http.MethodGet, "/courses/10/outline.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Outline")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("rows = %d, want header plus 3 lectures", len(rows))
	}
}

func TestHTTP_QuizFlow(t *testing.T) {
	retry := int64(60000)
	svc := &quiz.MockService{
		Quizzes: []quiz.Summary{{ID: "5", Title: "Basics"}},
		Load:    quiz.LoadResult{Quiz: &quiz.Quiz{ID: "5"}},
		SubmitErr: &quiz.StatusError{
			Status:   http.StatusTooManyRequests,
			Cooldown: quiz.Cooldown{RetryAfterMs: &retry},
		},
	}
	mux, _ := newTestMux(svc)

	body := decode(t, do(t, mux, http.MethodGet, "/courses/10/quizzes", ""))
	if list, _ := body["quizzes"].([]any); len(list) != 1 {
		t.Errorf("quizzes = %v", body["quizzes"])
	}

	body = decode(t, do(t, mux, http.MethodGet, "/courses/10/quizzes/5", ""))
	if body["outcome"] != "loaded" {
		t.Errorf("outcome after load = %v, want loaded", body["outcome"])
	}
	if svc.LastUserID != "default-user" {
		t.Errorf("userId = %q, want default-user", svc.LastUserID)
	}

	body = decode(t, do(t, mux, http.MethodPost, "/courses/10/quizzes/5/submit", `{"userId":"u-9","answers":[1,0]}`))
	if body["outcome"] != "submit_blocked" || body["error"] != quiz.MsgCannotRetryYet {
		t.Errorf("after submit = %v", body)
	}
	if svc.LastSubmit == nil || svc.LastSubmit.UserID != "u-9" || len(svc.LastSubmit.Answers) != 2 {
		t.Errorf("submitted = %+v", svc.LastSubmit)
	}

	body = decode(t, do(t, mux, http.MethodGet, "/courses/10/quiz-state", ""))
	if body["outcome"] != "submit_blocked" {
		t.Errorf("quiz-state outcome = %v", body["outcome"])
	}

	body = decode(t, do(t, mux, http.MethodDelete, "/courses/10/quiz-state", ""))
	if body["outcome"] != "idle" {
		t.Errorf("outcome after clear = %v, want idle", body["outcome"])
	}
}

func TestHTTP_SubmitInvalidBody(t *testing.T) {
	mux, _ := newTestMux(&quiz.MockService{})
	rec := do(t, mux, http.MethodPost, "/courses/10/quizzes/5/submit", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
