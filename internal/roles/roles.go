// Package roles resolves (user, organization) pairs to capability sets from
// stored role assignments. There is no ambient permission lookup: every
// authorization decision goes through a Resolver.
package roles

import (
	"context"
	"fmt"

	"learner-records-api/internal/models"
)

// Capability is an atomic permission scoped to an organization, except
// JobGlobalRead which applies globally.
type Capability string

const (
	// ReadMetadata allows reading an organization's programs and courses.
	ReadMetadata Capability = "organization_read_metadata"
	// ReadEnrollments allows reading enrollment data within an organization.
	ReadEnrollments Capability = "organization_read_enrollments"
	// WriteEnrollments allows writing enrollment data within an organization.
	WriteEnrollments Capability = "organization_write_enrollments"
	// JobGlobalRead allows reading any user's job status.
	JobGlobalRead Capability = "job_global_read"
)

// Role names assignable to users within an organization.
const (
	RoleReadMetadata         = "organization_read_metadata"
	RoleReadEnrollments      = "organization_read_enrollments"
	RoleReadWriteEnrollments = "organization_read_write_enrollments"
)

// roleCapabilities maps each role to the capabilities it grants. Each role is
// a superset of the previous one.
var roleCapabilities = map[string][]Capability{
	RoleReadMetadata:         {ReadMetadata},
	RoleReadEnrollments:      {ReadMetadata, ReadEnrollments},
	RoleReadWriteEnrollments: {ReadMetadata, ReadEnrollments, WriteEnrollments},
}

// Set is a capability set.
type Set map[Capability]bool

// Has reports whether the set contains a capability.
func (s Set) Has(c Capability) bool {
	return s[c]
}

// AssignmentSource supplies stored role data.
type AssignmentSource interface {
	RoleAssignments(ctx context.Context, userID string) ([]models.RoleAssignment, error)
	GlobalGrants(ctx context.Context, userID string) ([]string, error)
}

// Resolver computes capability sets from role assignments.
type Resolver struct {
	source AssignmentSource
}

// NewResolver builds a resolver over an assignment source.
func NewResolver(source AssignmentSource) *Resolver {
	return &Resolver{source: source}
}

// Capabilities returns the capabilities a user holds within an organization,
// including any global grants.
func (r *Resolver) Capabilities(ctx context.Context, userID, orgKey string) (Set, error) {
	assignments, err := r.source.RoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles for %s: %w", userID, err)
	}
	set := Set{}
	for _, a := range assignments {
		if a.OrgKey != orgKey {
			continue
		}
		for _, c := range roleCapabilities[a.Role] {
			set[c] = true
		}
	}
	grants, err := r.source.GlobalGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve global grants for %s: %w", userID, err)
	}
	for _, g := range grants {
		set[Capability(g)] = true
	}
	return set, nil
}

// HasGlobal reports whether a user holds a capability outside any org scope.
func (r *Resolver) HasGlobal(ctx context.Context, userID string, c Capability) (bool, error) {
	grants, err := r.source.GlobalGrants(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("resolve global grants for %s: %w", userID, err)
	}
	for _, g := range grants {
		if Capability(g) == c {
			return true, nil
		}
	}
	return false, nil
}

// OrgsWithCapability lists organization keys where the user holds the given
// capability, for filterless program listing.
func (r *Resolver) OrgsWithCapability(ctx context.Context, userID string, c Capability) ([]string, error) {
	assignments, err := r.source.RoleAssignments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles for %s: %w", userID, err)
	}
	var orgs []string
	seen := map[string]bool{}
	for _, a := range assignments {
		if seen[a.OrgKey] {
			continue
		}
		for _, cap := range roleCapabilities[a.Role] {
			if cap == c {
				seen[a.OrgKey] = true
				orgs = append(orgs, a.OrgKey)
				break
			}
		}
	}
	return orgs, nil
}
