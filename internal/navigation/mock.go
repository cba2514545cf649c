package navigation

import (
	"context"

	"github.com/p-n-ai/pai-player/internal/course"
)

// MockNavigator is a test double for Navigator.
type MockNavigator struct {
	Err          error
	Destinations []Destination
}

func (m *MockNavigator) Navigate(_ context.Context, dest Destination) error {
	if m.Err != nil {
		return m.Err
	}
	m.Destinations = append(m.Destinations, dest)
	return nil
}

// MockLoader is a test double for CourseLoader.
type MockLoader struct {
	Course *course.Course
	Err    error
	Calls  int
}

func (m *MockLoader) LoadCourse(_ context.Context, _ course.ID) (*course.Course, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Course, nil
}
