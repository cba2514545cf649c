package course

import (
	"cmp"
	"iter"
	"slices"
)

// GlobalOrder yields every lecture of the course: sections by ascending
// position, then lectures by ascending position within each section. Both
// sorts are stable, so equal positions keep their encounter order.
//
// The sequence is lazy and may be ranged over any number of times.
func GlobalOrder(c *Course) iter.Seq[Lecture] {
	return func(yield func(Lecture) bool) {
		if c == nil {
			return
		}
		for _, s := range sortedSections(c.Sections) {
			for _, l := range sortedLectures(s.Lectures) {
				if !yield(l) {
					return
				}
			}
		}
	}
}

// SectionOrder yields the lectures of a single section by ascending position.
// An unknown section yields nothing.
func SectionOrder(c *Course, sectionID ID) iter.Seq[Lecture] {
	return func(yield func(Lecture) bool) {
		s, ok := FindSection(c, sectionID)
		if !ok {
			return
		}
		for _, l := range sortedLectures(s.Lectures) {
			if !yield(l) {
				return
			}
		}
	}
}

// FindSection returns the first section with the given identifier.
func FindSection(c *Course, sectionID ID) (Section, bool) {
	if c == nil {
		return Section{}, false
	}
	for _, s := range c.Sections {
		if s.ID.Equal(sectionID) {
			return s, true
		}
	}
	return Section{}, false
}

// FindLecture searches all sections in encounter order; the first match wins.
func FindLecture(c *Course, lectureID ID) (Lecture, bool) {
	if c == nil {
		return Lecture{}, false
	}
	for _, s := range c.Sections {
		for _, l := range s.Lectures {
			if l.ID.Equal(lectureID) {
				return l, true
			}
		}
	}
	return Lecture{}, false
}

// LinkSections fills in the section back-reference of lectures that lack one.
func LinkSections(c *Course) {
	if c == nil {
		return
	}
	for i := range c.Sections {
		s := &c.Sections[i]
		for j := range s.Lectures {
			if s.Lectures[j].SectionID.IsZero() {
				s.Lectures[j].SectionID = s.ID
			}
		}
	}
}

func sortedSections(sections []Section) []Section {
	out := slices.Clone(sections)
	slices.SortStableFunc(out, func(a, b Section) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

func sortedLectures(lectures []Lecture) []Lecture {
	out := slices.Clone(lectures)
	slices.SortStableFunc(out, func(a, b Lecture) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}
