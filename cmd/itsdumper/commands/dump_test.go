package commands

import (
	"testing"

	"itsdumper/lib/scrapers/itslearning/core"

	"github.com/stretchr/testify/require"
)

func TestSelectCourse(t *testing.T) {
	courses := []core.Course{
		{Id: "101", Title: "Algebra II"},
		{Id: "102", Title: "World History"},
		{Id: "103", Title: "Chemistry Honors"},
	}

	exact, err := selectCourse(courses, "  world  history ")
	require.NoError(t, err)
	require.Equal(t, "102", exact.Id)

	fuzzy, err := selectCourse(courses, "chem")
	require.NoError(t, err)
	require.Equal(t, "103", fuzzy.Id)
}

func TestSelectCourseNoCourses(t *testing.T) {
	_, err := selectCourse(nil, "anything")
	require.Error(t, err)
}
