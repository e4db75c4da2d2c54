package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"learner-records-api/internal/models"
)

// GetOrganization fetches an organization by key.
func (s *Store) GetOrganization(ctx context.Context, key string) (models.Organization, error) {
	var org models.Organization
	err := s.pool.QueryRow(ctx, `
		SELECT key, name FROM organizations WHERE key = $1
	`, key).Scan(&org.Key, &org.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Organization{}, fmt.Errorf("organization %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return models.Organization{}, fmt.Errorf("query organization: %w", err)
	}
	return org, nil
}

// GetProgram fetches a program by key.
func (s *Store) GetProgram(ctx context.Context, key string) (models.Program, error) {
	var p models.Program
	err := s.pool.QueryRow(ctx, `
		SELECT key, org_key, discovery_uuid, title, program_type FROM programs WHERE key = $1
	`, key).Scan(&p.Key, &p.OrgKey, &p.DiscoveryUUID, &p.Title, &p.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Program{}, fmt.Errorf("program %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return models.Program{}, fmt.Errorf("query program: %w", err)
	}
	return p, nil
}

// ListPrograms returns programs, optionally filtered by managing organization.
func (s *Store) ListPrograms(ctx context.Context, orgKey string) ([]models.Program, error) {
	query := `SELECT key, org_key, discovery_uuid, title, program_type FROM programs ORDER BY key`
	args := []any{}
	if orgKey != "" {
		query = `SELECT key, org_key, discovery_uuid, title, program_type FROM programs WHERE org_key = $1 ORDER BY key`
		args = append(args, orgKey)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	defer rows.Close()

	var programs []models.Program
	for rows.Next() {
		var p models.Program
		if err := rows.Scan(&p.Key, &p.OrgKey, &p.DiscoveryUUID, &p.Title, &p.Type); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// RoleAssignments returns all org-scoped roles granted to a user.
func (s *Store) RoleAssignments(ctx context.Context, userID string) ([]models.RoleAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, org_key, role FROM role_assignments WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.RoleAssignment
	for rows.Next() {
		var a models.RoleAssignment
		if err := rows.Scan(&a.UserID, &a.OrgKey, &a.Role); err != nil {
			return nil, fmt.Errorf("scan role assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// GlobalGrants returns capability names granted to a user outside any
// organization scope (e.g. the job-global-read grant for support staff).
func (s *Store) GlobalGrants(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT capability FROM global_grants WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query global grants: %w", err)
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan global grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
