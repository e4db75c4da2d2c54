package enrollments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Enrollment is one student's enrollment as reported by the LMS.
type Enrollment struct {
	StudentKey    string `json:"student_key"`
	Status        string `json:"status"`
	AccountExists bool   `json:"account_exists"`
}

// Grade is one student's grade in a course run as reported by the LMS.
type Grade struct {
	StudentKey  string   `json:"student_key"`
	LetterGrade *string  `json:"letter_grade"`
	Percent     *float64 `json:"percent"`
	Passed      *bool    `json:"passed"`
	Error       *string  `json:"error,omitempty"`
}

// Client talks to the LMS enrollment APIs with a bounded request timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an LMS client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) programEnrollmentURL(programKey string) string {
	return fmt.Sprintf("%s/api/program_enrollments/v1/programs/%s/enrollments/", c.baseURL, url.PathEscape(programKey))
}

func (c *Client) courseEnrollmentURL(programKey, courseID string) string {
	return fmt.Sprintf("%s/api/program_enrollments/v1/programs/%s/courses/%s/enrollments/",
		c.baseURL, url.PathEscape(programKey), url.PathEscape(courseID))
}

func (c *Client) courseGradesURL(programKey, courseID string) string {
	return fmt.Sprintf("%s/api/program_enrollments/v1/programs/%s/courses/%s/grades/",
		c.baseURL, url.PathEscape(programKey), url.PathEscape(courseID))
}

// WriteProgramEnrollments forwards a batched program enrollment write.
// Method is POST for new enrollments, PATCH for modifications.
func (c *Client) WriteProgramEnrollments(ctx context.Context, method, programKey string, requests []WriteRequest) (map[string]string, int, error) {
	return c.write(ctx, method, c.programEnrollmentURL(programKey), requests)
}

// WriteCourseEnrollments forwards a batched course enrollment write.
func (c *Client) WriteCourseEnrollments(ctx context.Context, method, programKey, courseID string, requests []WriteRequest) (map[string]string, int, error) {
	return c.write(ctx, method, c.courseEnrollmentURL(programKey, courseID), requests)
}

func (c *Client) write(ctx context.Context, method, endpoint string, requests []WriteRequest) (map[string]string, int, error) {
	body, err := json.Marshal(requests)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal write batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("build write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("forward write batch: %w", err)
	}
	defer resp.Body.Close()

	if !writeCodeOK(resp.StatusCode) {
		return nil, resp.StatusCode, nil
	}
	var outcomes map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&outcomes); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode write outcomes: %w", err)
	}
	return outcomes, resp.StatusCode, nil
}

// ListProgramEnrollments reads all enrollments for a program.
func (c *Client) ListProgramEnrollments(ctx context.Context, programKey string) ([]Enrollment, error) {
	var out []Enrollment
	if _, err := c.get(ctx, c.programEnrollmentURL(programKey), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCourseEnrollments reads all enrollments for a course run.
func (c *Client) ListCourseEnrollments(ctx context.Context, programKey, courseID string) ([]Enrollment, error) {
	var out []Enrollment
	if _, err := c.get(ctx, c.courseEnrollmentURL(programKey, courseID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CourseGrades reads per-student grades for a course run. The returned code
// is the backend's coarse read status: 200 all rows, 207 partial, 422 none,
// 204 no enrollments.
func (c *Client) CourseGrades(ctx context.Context, programKey, courseID string) ([]Grade, int, error) {
	var out []Grade
	code, err := c.get(ctx, c.courseGradesURL(programKey, courseID), &out)
	if err != nil {
		return nil, 0, err
	}
	return out, code, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, fmt.Errorf("get %s: status %d", endpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
