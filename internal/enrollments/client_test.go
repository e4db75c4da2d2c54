package enrollments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteProgramEnrollments(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"alice": "enrolled"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	outcomes, code, err := client.WriteProgramEnrollments(context.Background(), http.MethodPost, "mit-physics", []WriteRequest{
		{StudentKey: "alice", Status: "enrolled"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"alice": "enrolled"}, outcomes)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/program_enrollments/v1/programs/mit-physics/enrollments/", gotPath)
	assert.Equal(t, []WriteRequest{{StudentKey: "alice", Status: "enrolled"}}, gotBody)
}

func TestWriteCourseEnrollmentsErrorStatusReturnsCodeWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	outcomes, code, err := client.WriteCourseEnrollments(context.Background(), http.MethodPatch, "p", "course-v1:X+Y+Z", nil)
	require.NoError(t, err)
	assert.Nil(t, outcomes)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestWriteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, _, err := client.WriteProgramEnrollments(context.Background(), http.MethodPost, "p", nil)
	assert.Error(t, err)
}

func TestListProgramEnrollments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/program_enrollments/v1/programs/p/enrollments/", r.URL.Path)
		json.NewEncoder(w).Encode([]Enrollment{
			{StudentKey: "alice", Status: "enrolled", AccountExists: true},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	enrollments, err := client.ListProgramEnrollments(context.Background(), "p")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "alice", enrollments[0].StudentKey)
	assert.True(t, enrollments[0].AccountExists)
}

func TestCourseGradesPartialResults(t *testing.T) {
	letter := "A"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		json.NewEncoder(w).Encode([]Grade{
			{StudentKey: "alice", LetterGrade: &letter},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	grades, code, err := client.CourseGrades(context.Background(), "p", "course-v1:X+Y+Z")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMultiStatus, code)
	require.Len(t, grades, 1)
	require.NotNil(t, grades[0].LetterGrade)
	assert.Equal(t, "A", *grades[0].LetterGrade)
}

func TestCourseGradesNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	grades, code, err := client.CourseGrades(context.Background(), "p", "c")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, code)
	assert.Empty(t, grades)
}

func TestListErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.ListCourseEnrollments(context.Background(), "p", "c")
	assert.Error(t, err)
}
