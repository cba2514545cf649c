package lms

import "github.com/p-n-ai/pai-player/internal/quiz"

// Quiz records are read field by field so that a mistyped field falls back
// to its zero value instead of failing the whole response.

func decodeSummary(p payload) quiz.Summary {
	return quiz.Summary{
		ID:            p.id("id"),
		CourseID:      p.id("course_id"),
		Title:         p.str("title"),
		QuestionCount: int(p.number("question_count")),
	}
}

func decodeQuiz(p payload) *quiz.Quiz {
	q := &quiz.Quiz{
		ID:           p.id("id"),
		CourseID:     p.id("course_id"),
		Title:        p.str("title"),
		PassingScore: p.number("passing_score"),
		Questions:    []quiz.Question{},
	}
	for _, item := range p.items("questions") {
		q.Questions = append(q.Questions, quiz.Question{
			ID:      item.id("id"),
			Text:    item.str("text"),
			Options: item.strs("options"),
		})
	}
	return q
}

func decodeSubmission(p payload) *quiz.Submission {
	return &quiz.Submission{
		ID:          p.id("id"),
		QuizID:      p.id("quiz_id"),
		UserID:      p.str("user_id"),
		Score:       p.number("score"),
		Passed:      p.truthy("passed"),
		Answers:     p.ints("answers"),
		SubmittedAt: p.str("submitted_at"),
	}
}
