package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learner-records-api/internal/models"
)

type fakeSource struct {
	assignments []models.RoleAssignment
	grants      map[string][]string
}

func (f *fakeSource) RoleAssignments(_ context.Context, userID string) ([]models.RoleAssignment, error) {
	var out []models.RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSource) GlobalGrants(_ context.Context, userID string) ([]string, error) {
	return f.grants[userID], nil
}

func testResolver() *Resolver {
	return NewResolver(&fakeSource{
		assignments: []models.RoleAssignment{
			{UserID: "metadata-user", OrgKey: "mit", Role: RoleReadMetadata},
			{UserID: "reader", OrgKey: "mit", Role: RoleReadEnrollments},
			{UserID: "writer", OrgKey: "mit", Role: RoleReadWriteEnrollments},
			{UserID: "writer", OrgKey: "harvard", Role: RoleReadMetadata},
		},
		grants: map[string][]string{
			"auditor": {string(JobGlobalRead)},
		},
	})
}

func TestCapabilitiesFollowRoleHierarchy(t *testing.T) {
	ctx := context.Background()
	r := testResolver()

	set, err := r.Capabilities(ctx, "metadata-user", "mit")
	require.NoError(t, err)
	assert.True(t, set.Has(ReadMetadata))
	assert.False(t, set.Has(ReadEnrollments))
	assert.False(t, set.Has(WriteEnrollments))

	set, err = r.Capabilities(ctx, "reader", "mit")
	require.NoError(t, err)
	assert.True(t, set.Has(ReadMetadata))
	assert.True(t, set.Has(ReadEnrollments))
	assert.False(t, set.Has(WriteEnrollments))

	set, err = r.Capabilities(ctx, "writer", "mit")
	require.NoError(t, err)
	assert.True(t, set.Has(ReadMetadata))
	assert.True(t, set.Has(ReadEnrollments))
	assert.True(t, set.Has(WriteEnrollments))
}

func TestCapabilitiesAreOrgScoped(t *testing.T) {
	ctx := context.Background()
	r := testResolver()

	set, err := r.Capabilities(ctx, "writer", "harvard")
	require.NoError(t, err)
	assert.True(t, set.Has(ReadMetadata))
	assert.False(t, set.Has(WriteEnrollments))

	set, err = r.Capabilities(ctx, "reader", "harvard")
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestHasGlobal(t *testing.T) {
	ctx := context.Background()
	r := testResolver()

	ok, err := r.HasGlobal(ctx, "auditor", JobGlobalRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasGlobal(ctx, "writer", JobGlobalRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrgsWithCapability(t *testing.T) {
	ctx := context.Background()
	r := testResolver()

	orgs, err := r.OrgsWithCapability(ctx, "writer", ReadMetadata)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mit", "harvard"}, orgs)

	orgs, err = r.OrgsWithCapability(ctx, "writer", WriteEnrollments)
	require.NoError(t, err)
	assert.Equal(t, []string{"mit"}, orgs)

	orgs, err = r.OrgsWithCapability(ctx, "stranger", ReadMetadata)
	require.NoError(t, err)
	assert.Empty(t, orgs)
}
