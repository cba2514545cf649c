package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/navigation"
	"github.com/p-n-ai/pai-player/internal/platform/config"
	"github.com/p-n-ai/pai-player/internal/player"
	"github.com/p-n-ai/pai-player/internal/realtime"
)

func TestHealthEndpoints(t *testing.T) {
	mux := newMux(nil, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	mux := newMux(nil, nil,
		readinessCheck{"lms", func(context.Context) error { return nil }},
		readinessCheck{"database", func(context.Context) error { return errors.New("down") }},
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if want := `{"status":"unavailable","check":"database"}`; rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

func TestNewMux_PlayerRoutes(t *testing.T) {
	loader := &navigation.MockLoader{Course: &course.Course{
		ID: "10",
		Sections: []course.Section{{ID: "s1", Lectures: []course.Lecture{
			{ID: "a", Position: 1, SectionID: "s1"},
			{ID: "b", Position: 2, SectionID: "s1"},
		}}},
	}}
	hub := realtime.NewHub()
	p := player.New(player.Config{Courses: loader, Navigator: hub})
	mux := newMux(p, hub)

	req := httptest.NewRequest(http.MethodGet, "/courses/10/lectures/a/next", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["next_lecture_id"] != "b" {
		t.Errorf("body = %v", body)
	}

	// Without a connected UI the move is refused.
	req = httptest.NewRequest(http.MethodPost, "/courses/10/next?lecture=a", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"advanced":false`) {
		t.Errorf("body = %s, want advanced false", rec.Body.String())
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantJSON  bool
		wantDebug bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, true, false},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, false, true},
		{"bad level", config.LogConfig{Level: "loud", Format: "json"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.cfg)

			logger.Debug("debug line")
			logger.Info("info line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{"); got != tt.wantJSON {
				t.Errorf("json output = %v, want %v (%q)", got, tt.wantJSON, out)
			}
		})
	}
}
