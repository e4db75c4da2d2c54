// Package catalog resolves program structure from the catalog/discovery
// service, with a short-lived redis cache in front of it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"learner-records-api/internal/models"
)

// Program is the slice of discovery's program payload this service needs.
type Program struct {
	UUID      string       `json:"uuid"`
	Title     string       `json:"title"`
	Type      string       `json:"type"`
	Curricula []Curriculum `json:"curricula"`
}

// Curriculum groups the courses of a program.
type Curriculum struct {
	UUID    string   `json:"uuid"`
	Courses []Course `json:"courses"`
}

// Course holds the course runs of one course.
type Course struct {
	Key        string             `json:"key"`
	Title      string             `json:"title"`
	CourseRuns []models.CourseRun `json:"course_runs"`
}

// CourseRuns flattens a program's curricula into its course runs. Discovery
// may attach multiple curricula; only the first is live, matching how the
// downstream service builds programs today.
func (p *Program) CourseRuns() []models.CourseRun {
	if len(p.Curricula) == 0 {
		return nil
	}
	var runs []models.CourseRun
	for _, course := range p.Curricula[0].Courses {
		runs = append(runs, course.CourseRuns...)
	}
	return runs
}

// HasCourseRun reports whether the program contains the given course run.
func (p *Program) HasCourseRun(courseID string) bool {
	for _, run := range p.CourseRuns() {
		if run.CourseID == courseID {
			return true
		}
	}
	return false
}

// Client fetches programs from discovery, caching responses in redis.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

// NewClient builds a discovery client. Cache may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

func cacheKey(uuid string) string {
	return "discovery:program:" + uuid
}

// Program returns the discovery program for a UUID, from cache when fresh.
func (c *Client) Program(ctx context.Context, uuid string) (*Program, error) {
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey(uuid)).Bytes(); err == nil {
			var p Program
			if err := json.Unmarshal(cached, &p); err == nil {
				return &p, nil
			}
			// A corrupt cache entry falls through to a live fetch.
		}
	}

	endpoint := fmt.Sprintf("%s/api/v1/programs/%s/", c.baseURL, url.PathEscape(uuid))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch program %s from discovery: %w", uuid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch program %s from discovery: status %d", uuid, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read discovery response: %w", err)
	}
	var p Program
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode discovery program: %w", err)
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey(uuid), body, c.cacheTTL).Err()
	}
	return &p, nil
}
