package permissions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsTable(t *testing.T) {
	visitor := []Permission{ViewDashboard, JoinFolders, ManageProfile}
	member := append(append([]Permission{}, visitor...),
		CreateFolders, EditOwnFolders, DeleteOwnFolders, CreateReports, EditOwnReports, DeleteOwnReports)
	admin := append(append([]Permission{}, member...),
		EditAllFolders, DeleteAllFolders, EditAllReports, DeleteAllReports)

	cases := map[string][]Permission{
		RoleVisitor: visitor,
		RoleMember:  member,
		RoleAdmin:   admin,
	}

	for role, granted := range cases {
		t.Run(role, func(t *testing.T) {
			resolved := Resolve(role, nil)
			want := NewSet(granted...)
			for _, p := range All {
				assert.Equalf(t, want[p], resolved[p], "role %s permission %s", role, p)
			}
		})
	}

	t.Run("admin holds everything", func(t *testing.T) {
		assert.Len(t, Resolve(RoleAdmin, nil).Granted(), len(All))
	})
}

func TestResolveUnknownRoleGrantsNothing(t *testing.T) {
	resolved := Resolve("Moderator", nil)
	assert.Empty(t, resolved.Granted())
	assert.Len(t, resolved, len(All))
}

func TestResolveCustomOverridesAreAuthoritative(t *testing.T) {
	custom := Set{CreateReports: true, EditAllReports: false}

	resolved := Resolve(RoleAdmin, custom)

	assert.True(t, resolved.Has(CreateReports))
	assert.False(t, resolved.Has(EditAllReports))
	// absent from the custom map: denied, not inherited from admin
	assert.False(t, resolved.Has(DeleteAllFolders))
	assert.False(t, resolved.Has(ViewDashboard))
	assert.Equal(t, []Permission{CreateReports}, resolved.Granted())
}

func TestResolveOnlyReturnsKnownKeys(t *testing.T) {
	inputs := []struct {
		role   string
		custom Set
	}{
		{RoleVisitor, nil},
		{RoleMember, Set{}},
		{RoleAdmin, Set{JoinFolders: true}},
		{"unknown", Set{ViewDashboard: false}},
	}

	for _, in := range inputs {
		resolved := Resolve(in.role, in.custom)
		require.Len(t, resolved, len(All))
		for p := range resolved {
			assert.True(t, p.Valid(), "unexpected key %q", p)
		}
	}
}

func TestSetJSON(t *testing.T) {
	t.Run("marshals sorted keys", func(t *testing.T) {
		data, err := json.Marshal(Set{ViewDashboard: true, CreateFolders: false})
		require.NoError(t, err)
		assert.JSONEq(t, `{"createFolders":false,"viewDashboard":true}`, string(data))
	})

	t.Run("nil marshals to null", func(t *testing.T) {
		var s Set
		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		var s Set
		err := json.Unmarshal([]byte(`{"createFolder":true}`), &s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "createFolder")
	})

	t.Run("decodes known keys", func(t *testing.T) {
		var s Set
		require.NoError(t, json.Unmarshal([]byte(`{"editAllReports":true,"joinFolders":false}`), &s))
		assert.True(t, s.Has(EditAllReports))
		assert.False(t, s.Has(JoinFolders))
		assert.Len(t, s, 2)
	})
}

func TestParse(t *testing.T) {
	p, err := Parse("deleteAllReports")
	require.NoError(t, err)
	assert.Equal(t, DeleteAllReports, p)

	_, err = Parse("launchMissiles")
	assert.Error(t, err)
}

func TestIsBuiltinRole(t *testing.T) {
	assert.True(t, IsBuiltinRole(RoleVisitor))
	assert.True(t, IsBuiltinRole(RoleMember))
	assert.True(t, IsBuiltinRole(RoleAdmin))
	assert.False(t, IsBuiltinRole("Moderator"))
}
