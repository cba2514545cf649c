// Package navigation decides which lecture follows the current one and
// drives the move to it.
package navigation

import (
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/p-n-ai/pai-player/internal/course"
)

// Scope selects the ordering used to find the next lecture.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeSection Scope = "section"
)

// ParseScope maps a query value to a Scope. Empty means global.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeSection:
		return ScopeSection, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// ResolveNext returns the identifier of the lecture after current. It reports
// false when there is no course, no current lecture, the current lecture is not
// in the ordering, or it is the last one. A following lecture without an
// identifier counts as none. Any scope other than ScopeSection
// walks the whole course.
func ResolveNext(c *course.Course, current *course.Lecture, scope Scope) (course.ID, bool) {
	if c == nil || current == nil {
		return "", false
	}

	var order iter.Seq[course.Lecture]
	if scope == ScopeSection {
		order = course.SectionOrder(c, current.SectionID)
	} else {
		order = course.GlobalOrder(c)
	}

	found := false
	for l := range order {
		if found {
			if l.ID.IsZero() {
				return "", false
			}
			return l.ID, true
		}
		if l.ID.Equal(current.ID) {
			found = true
		}
	}
	return "", false
}

// Destination is where the player should move to.
type Destination struct {
	CourseID  course.ID `json:"course_id"`
	LectureID course.ID `json:"lecture_id"`
}

// Path renders the player route of the destination.
func (d Destination) Path() string {
	return "/courses/" + url.PathEscape(d.CourseID.String()) + "/lectures/" + url.PathEscape(d.LectureID.String())
}
