// Package lms is the HTTP client for the learning-management backend that
// serves course snapshots, lectures and quizzes.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/p-n-ai/pai-player/internal/course"
	"github.com/p-n-ai/pai-player/internal/quiz"
)

const defaultTimeout = 15 * time.Second

// Client talks to the LMS REST API. It implements navigation.CourseLoader,
// course.Loader and quiz.Service.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout bounds every request made by the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a client for the LMS at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadCourse fetches the full course snapshot. The course may arrive at the
// root of the payload or nested under "course" once or twice.
func (c *Client) LoadCourse(ctx context.Context, id course.ID) (*course.Course, error) {
	body, err := c.do(ctx, http.MethodGet, coursePath(id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get course %s: %w", id, err)
	}

	raw := unwrap(body, "course")
	if err := validate(courseSchema, raw); err != nil {
		return nil, fmt.Errorf("get course %s: %w", id, err)
	}

	var out course.Course
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode course %s: %w", id, err)
	}
	course.LinkSections(&out)
	if out.ID.IsZero() {
		out.ID = course.NormalizeID(id)
	}
	return &out, nil
}

// GetLecture fetches a single lecture, unwrapped the same way as courses.
func (c *Client) GetLecture(ctx context.Context, courseID, lectureID course.ID) (course.Lecture, error) {
	path := coursePath(courseID) + "/lectures/" + url.PathEscape(lectureID.String())
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return course.Lecture{}, fmt.Errorf("get lecture %s: %w", lectureID, err)
	}

	raw := unwrap(body, "lecture")
	if err := validate(lectureSchema, raw); err != nil {
		return course.Lecture{}, fmt.Errorf("get lecture %s: %w", lectureID, err)
	}

	var out course.Lecture
	if err := json.Unmarshal(raw, &out); err != nil {
		return course.Lecture{}, fmt.Errorf("decode lecture %s: %w", lectureID, err)
	}
	return out, nil
}

// ListQuizzes returns the quizzes of a course. A missing or malformed list is
// read as empty and entries that are not objects are skipped.
func (c *Client) ListQuizzes(ctx context.Context, courseID course.ID) ([]quiz.Summary, error) {
	body, err := c.do(ctx, http.MethodGet, coursePath(courseID)+"/quizzes", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	p, err := decodePayload(body)
	if err != nil {
		return nil, fmt.Errorf("decode quizzes: %w", err)
	}

	out := []quiz.Summary{}
	for _, item := range p.items("quizzes") {
		out = append(out, decodeSummary(item))
	}
	return out, nil
}

// GetQuiz fetches one quiz together with the learner's pass and cooldown
// status. userID is sent as a query parameter when set.
func (c *Client) GetQuiz(ctx context.Context, courseID, quizID course.ID, userID string) (quiz.LoadResult, error) {
	var query url.Values
	if userID != "" {
		query = url.Values{"userId": {userID}}
	}
	body, err := c.do(ctx, http.MethodGet, quizPath(courseID, quizID), query, nil)
	if err != nil {
		return quiz.LoadResult{}, fmt.Errorf("get quiz %s: %w", quizID, err)
	}

	p, err := decodePayload(body)
	if err != nil {
		return quiz.LoadResult{}, fmt.Errorf("decode quiz %s: %w", quizID, err)
	}

	res := quiz.LoadResult{
		Message:  p.str("message"),
		Passed:   p.truthy("passed"),
		Score:    p.number("score"),
		Cooldown: p.cooldown(false),
	}
	if raw := p.object("quiz"); raw != nil {
		if err := validate(quizSchema, raw); err != nil {
			return quiz.LoadResult{}, fmt.Errorf("get quiz %s: %w", quizID, err)
		}
		qp, err := decodePayload(raw)
		if err != nil {
			return quiz.LoadResult{}, fmt.Errorf("decode quiz %s: %w", quizID, err)
		}
		res.Quiz = decodeQuiz(qp)
	}
	return res, nil
}

// SubmitQuiz posts answers for grading. Non-2xx responses are returned as
// *quiz.StatusError carrying the decoded error payload.
func (c *Client) SubmitQuiz(ctx context.Context, courseID, quizID course.ID, req quiz.SubmitRequest) (quiz.SubmitResult, error) {
	if req.Answers == nil {
		req.Answers = []int{}
	}
	body, err := c.do(ctx, http.MethodPost, quizPath(courseID, quizID)+"/submit", nil, req)
	if err != nil {
		return quiz.SubmitResult{}, fmt.Errorf("submit quiz %s: %w", quizID, err)
	}

	p, err := decodePayload(body)
	if err != nil {
		return quiz.SubmitResult{}, fmt.Errorf("decode submission %s: %w", quizID, err)
	}

	res := quiz.SubmitResult{
		Score:    p.number("score"),
		Passed:   p.truthy("passed"),
		Cooldown: p.cooldown(true),
	}
	if raw := p.object("submission"); raw != nil {
		if sp, err := decodePayload(raw); err == nil {
			res.Submission = decodeSubmission(sp)
		}
	}
	return res, nil
}

// HealthCheck reports whether the LMS answers at its base URL.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("lms unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("lms unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func statusError(status int, body []byte) *quiz.StatusError {
	se := &quiz.StatusError{Status: status}
	p, err := decodePayload(body)
	if err != nil {
		return se
	}
	se.Message = p.str("message")
	se.Score = p.number("score")
	se.Cooldown = p.cooldown(false)
	return se
}

func coursePath(id course.ID) string {
	return "/courses/" + url.PathEscape(id.String())
}

func quizPath(courseID, quizID course.ID) string {
	return coursePath(courseID) + "/quizzes/" + url.PathEscape(quizID.String())
}
