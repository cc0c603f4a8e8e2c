package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/reportdesk/api/internal/models"
)

func TestDeleteRoleStillAssigned(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/roles", map[string]any{
		"name":        "Moderator",
		"color":       "#ff9900",
		"permissions": map[string]bool{"viewDashboard": true, "editAllReports": true},
	}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusCreated)
	roleID, _ := dataMap(t, decodeJSONMap(t, resp))["id"].(string)

	var moderators []*models.User
	for _, name := range []string{"mod-1", "mod-2", "mod-3"} {
		user, _ := createApprovedUser(t, env.db, name, models.RoleMember)
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/admin/users/"+user.ID.String()+"/role", map[string]any{"role": "Moderator"}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		moderators = append(moderators, user)
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/roles/"+roleID, nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusConflict)
	body := decodeJSONMap(t, resp)
	assertEnvelopeError(t, body, "role is still assigned to users")
	details, _ := body["details"].(map[string]any)
	if details["userCount"] != float64(3) {
		t.Fatalf("expected userCount=3, got %+v", details)
	}

	for _, user := range moderators {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/admin/users/"+user.ID.String()+"/role", map[string]any{"role": models.RoleMember}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/roles/"+roleID, nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/roles/"+roleID, nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestRoleCreateRejectsUnknownPermission(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/roles", map[string]any{
		"name":        "Scout",
		"permissions": map[string]bool{"launchMissiles": true},
	}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusBadRequest)
	body := decodeJSONMap(t, resp)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "launchMissiles") {
		t.Fatalf("expected error to name the unknown key, got %q", msg)
	}
}

func TestRoleRoutesRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)
	_, memberToken := createApprovedUser(t, env.db, "member", models.RoleMember)

	resp := performRequest(t, env.app, http.MethodGet, "/api/roles", nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusOK)
	roles := dataList(t, decodeJSONMap(t, resp))
	if len(roles) < 3 {
		t.Fatalf("expected the built-in roles to be listed, got %d", len(roles))
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/roles", map[string]any{"name": "Sneaky"}, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "admin access required")
}

func TestBuiltinRoleCannotBeDeleted(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	var visitor models.Role
	if err := env.db.First(&visitor, "name = ?", models.RoleVisitor).Error; err != nil {
		t.Fatalf("expected seeded visitor role: %v", err)
	}

	resp := performRequest(t, env.app, http.MethodDelete, "/api/roles/"+visitor.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusUnprocessableEntity)
}

func TestSetDefaultRole(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/roles", map[string]any{"name": "Recruit"}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusCreated)
	roleID, _ := dataMap(t, decodeJSONMap(t, resp))["id"].(string)

	resp = performRequest(t, env.app, http.MethodPut, "/api/roles/"+roleID+"/default", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	var defaults []models.Role
	env.db.Where("is_default = ?", true).Find(&defaults)
	if len(defaults) != 1 || defaults[0].Name != "Recruit" {
		t.Fatalf("expected Recruit to be the only default role, got %+v", defaults)
	}
}
