package quiz

import "slices"

// Outcome is the single attempt state visible after an operation.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeLoading
	OutcomeLoaded
	OutcomeRetryBlocked
	OutcomeApproved
	OutcomeSubmitting
	OutcomeResult
	OutcomeSubmitBlocked
	OutcomeSubmitApproved
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeLoading:
		return "loading"
	case OutcomeLoaded:
		return "loaded"
	case OutcomeRetryBlocked:
		return "retry_blocked"
	case OutcomeApproved:
		return "approved"
	case OutcomeSubmitting:
		return "submitting"
	case OutcomeResult:
		return "result"
	case OutcomeSubmitBlocked:
		return "submit_blocked"
	case OutcomeSubmitApproved:
		return "submit_approved"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the last graded outcome. Submission is nil when the result was
// reported without a new attempt (already approved).
type Result struct {
	Score      float64     `json:"score"`
	Passed     bool        `json:"passed"`
	Submission *Submission `json:"submission"`
}

func (q *Quiz) clone() *Quiz {
	if q == nil {
		return nil
	}
	out := *q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = slices.Clone(question.Options)
		out.Questions[i] = question
	}
	return &out
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Submission != nil {
		sub := *r.Submission
		sub.Answers = slices.Clone(r.Submission.Answers)
		out.Submission = &sub
	}
	return &out
}

func (c Cooldown) clone() Cooldown {
	if c.RetryAfterMs != nil {
		ms := *c.RetryAfterMs
		c.RetryAfterMs = &ms
	}
	if c.RetryAvailableAt != nil {
		at := *c.RetryAvailableAt
		c.RetryAvailableAt = &at
	}
	return c
}

type operation int

const (
	opNone operation = iota
	opLoadList
	opLoadQuiz
	opSubmit
)

// State is a snapshot of the quiz attempt state of one course.
type State struct {
	Quizzes         []Summary `json:"quizzes"`
	Current         *Quiz     `json:"current_quiz"`
	LastResult      *Result   `json:"last_result"`
	Cooldown        Cooldown  `json:"cooldown"`
	ApprovedAlready bool      `json:"approved_already"`
	Error           string    `json:"error"`
	Loading         bool      `json:"loading"`
	Submitting      bool      `json:"submitting"`

	lastOp operation
}

// Outcome derives the one visible attempt state. In-flight work wins; after
// that the last completed operation decides which flags are meaningful.
func (s State) Outcome() Outcome {
	switch {
	case s.Submitting:
		return OutcomeSubmitting
	case s.Loading:
		return OutcomeLoading
	}

	switch s.lastOp {
	case opSubmit:
		switch {
		case s.ApprovedAlready:
			return OutcomeSubmitApproved
		case s.LastResult != nil:
			return OutcomeResult
		case s.Cooldown.IsSet():
			return OutcomeSubmitBlocked
		case s.Error != "":
			return OutcomeError
		}
	case opLoadQuiz:
		switch {
		case s.ApprovedAlready:
			return OutcomeApproved
		case s.Cooldown.IsSet():
			return OutcomeRetryBlocked
		case s.Error != "":
			return OutcomeError
		case s.Current != nil:
			return OutcomeLoaded
		}
	}

	switch {
	case s.Error != "":
		return OutcomeError
	case s.ApprovedAlready:
		return OutcomeApproved
	case s.Cooldown.IsSet():
		return OutcomeRetryBlocked
	case s.LastResult != nil:
		return OutcomeResult
	case s.Current != nil:
		return OutcomeLoaded
	}
	return OutcomeIdle
}
