package models

// Organization is an institution whose staff use the API. Access is granted
// per organization through role assignments.
type Organization struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Program is a degree program managed by an organization. DiscoveryUUID links
// it to the catalog/discovery service, which owns curriculum structure.
type Program struct {
	Key           string `json:"program_key"`
	OrgKey        string `json:"org_key"`
	DiscoveryUUID string `json:"-"`
	Title         string `json:"program_title"`
	Type          string `json:"program_type"`
}

// CourseRun is one run of a course inside a program's curriculum, resolved
// from the discovery service and never stored locally.
type CourseRun struct {
	CourseID    string `json:"course_id"`
	ExternalKey string `json:"external_course_key,omitempty"`
	Title       string `json:"course_title"`
	Marketing   string `json:"marketing_url,omitempty"`
}

// RoleAssignment grants a named role to a user within one organization.
type RoleAssignment struct {
	UserID string
	OrgKey string
	Role   string
}
