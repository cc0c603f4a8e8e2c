package handlers

import (
	"net/http"
	"testing"

	"github.com/reportdesk/api/internal/models"
)

func TestJoinFolderTwiceConflicts(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	_, joinerToken := createApprovedUser(t, env.db, "joiner", models.RoleMember)

	folderID, key := createFolderViaAPI(t, env, ownerToken, "Operation North")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/join", map[string]any{"accessKey": key}, authHeaders(joinerToken))
	assertStatus(t, resp, http.StatusOK)
	joined := dataMap(t, decodeJSONMap(t, resp))
	if joined["id"] != folderID {
		t.Fatalf("expected to join %s, got %v", folderID, joined["id"])
	}
	if members, _ := joined["members"].([]any); len(members) != 2 {
		t.Fatalf("expected 2 members after join, got %d", len(members))
	}
	if _, ok := joined["accessKey"]; ok {
		t.Fatal("expected access key to be hidden from a plain member")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/folders/join", map[string]any{"accessKey": key}, authHeaders(joinerToken))
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "you are already a member of this folder")
}

func TestJoinFolderWithUnknownKey(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createApprovedUser(t, env.db, "joiner", models.RoleMember)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/join", map[string]any{"accessKey": "doesnotexist"}, authHeaders(token))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestFolderAdminMode(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleAdmin)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)
	_, strangerToken := createApprovedUser(t, env.db, "stranger", models.RoleMember)

	folderID, _ := createFolderViaAPI(t, env, ownerToken, "Owned by an admin")

	t.Run("admin without adminMode is forbidden", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("admin with adminMode gets admin access", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID+"?adminMode=true", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		if data["adminAccess"] != true {
			t.Fatalf("expected adminAccess=true, got %v", data["adminAccess"])
		}
	})

	t.Run("owner never gets admin access", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID+"?adminMode=true", nil, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, decodeJSONMap(t, resp))
		if data["adminAccess"] != false {
			t.Fatalf("expected adminAccess=false for the owner, got %v", data["adminAccess"])
		}
	})

	t.Run("non-admin cannot use adminMode", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID+"?adminMode=true", nil, authHeaders(strangerToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("admin reads reports in admin mode", func(t *testing.T) {
		createReportViaAPI(t, env, ownerToken, folderID, "Sighting")

		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID+"/reports?adminMode=true", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		items := dataList(t, decodeJSONMap(t, resp))
		if len(items) != 1 {
			t.Fatalf("expected 1 report, got %d", len(items))
		}
		if item, _ := items[0].(map[string]any); item["adminAccess"] != true {
			t.Fatalf("expected report adminAccess=true, got %v", item["adminAccess"])
		}
	})

	env.flushAudit()
	var count int64
	env.db.Model(&models.AuditLog{}).Where("action = ?", "folder.admin_access").Count(&count)
	if count == 0 {
		t.Fatal("expected admin-mode read to be audited")
	}
}

func TestRemoveOwnerIsRejected(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	folderID, _ := createFolderViaAPI(t, env, ownerToken, "Keep the owner")

	resp := performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/members/"+owner.ID.String(), nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusUnprocessableEntity)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "the folder owner cannot be removed")

	resp = performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/members/not-a-uuid", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestRemoveMemberNotifiesTarget(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	member, memberToken := createApprovedUser(t, env.db, "member", models.RoleMember)

	folderID, key := createFolderViaAPI(t, env, ownerToken, "Shortlist")
	joinFolderViaAPI(t, env, memberToken, key)

	resp := performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/members/"+member.ID.String(), nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/members/"+member.ID.String(), nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID, nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)

	env.flushAudit()
	var notifications []models.Notification
	env.db.Where("user_id = ?", member.ID).Find(&notifications)
	if len(notifications) != 1 || notifications[0].Title != "Removed from folder" {
		t.Fatalf("expected one removal notification, got %+v", notifications)
	}
}

func TestChangeOwnerKeepsPreviousOwnerAsMember(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	heir, heirToken := createApprovedUser(t, env.db, "heir", models.RoleMember)

	folderID, key := createFolderViaAPI(t, env, ownerToken, "Handover")
	joinFolderViaAPI(t, env, heirToken, key)

	resp := performJSONRequest(t, env.app, http.MethodPatch, "/api/folders/"+folderID+"/owner", map[string]any{"newOwnerId": heir.ID.String()}, authHeaders(heirToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, env.app, http.MethodPatch, "/api/folders/"+folderID+"/owner", map[string]any{"newOwnerId": heir.ID.String()}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	var folder models.Folder
	if err := env.db.Preload("Members").First(&folder, "id = ?", folderID).Error; err != nil {
		t.Fatalf("failed loading folder: %v", err)
	}
	if folder.OwnerID != heir.ID {
		t.Fatalf("expected owner %s, got %s", heir.ID, folder.OwnerID)
	}
	if !folder.HasMember(owner.ID) || !folder.HasMember(heir.ID) {
		t.Fatalf("expected both users to stay members, got %+v", folder.Members)
	}

	resp = performRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/leave", nil, authHeaders(heirToken))
	assertStatus(t, resp, http.StatusUnprocessableEntity)

	resp = performRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/leave", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	env.flushAudit()
	var notified int64
	env.db.Model(&models.Notification{}).Where("user_id = ?", heir.ID).Count(&notified)
	if notified == 0 {
		t.Fatal("expected the new owner to be notified")
	}
}

func TestAccessKeyRotation(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	_, joinerToken := createApprovedUser(t, env.db, "joiner", models.RoleMember)

	folderID, oldKey := createFolderViaAPI(t, env, ownerToken, "Rotating")

	resp := performRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/access-key", nil, authHeaders(joinerToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/access-key", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	newKey, _ := dataMap(t, decodeJSONMap(t, resp))["accessKey"].(string)
	if newKey == "" || newKey == oldKey {
		t.Fatalf("expected a fresh access key, got %q", newKey)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/folders/join", map[string]any{"accessKey": oldKey}, authHeaders(joinerToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/access-key", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/folders/join", map[string]any{"accessKey": newKey}, authHeaders(joinerToken))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestFolderUpdateAndDeletePermissions(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	_, memberToken := createApprovedUser(t, env.db, "member", models.RoleMember)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	folderID, key := createFolderViaAPI(t, env, ownerToken, "Draft")
	joinFolderViaAPI(t, env, memberToken, key)

	resp := performJSONRequest(t, env.app, http.MethodPatch, "/api/folders/"+folderID, map[string]any{"title": "Hijacked"}, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, env.app, http.MethodPatch, "/api/folders/"+folderID, map[string]any{"title": "Final"}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	if title := dataMap(t, decodeJSONMap(t, resp))["title"]; title != "Final" {
		t.Fatalf("expected updated title, got %v", title)
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID, nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID, nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID, nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusNotFound)
}

func TestListMyFolders(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createApprovedUser(t, env.db, "owner", models.RoleMember)
	_, memberToken := createApprovedUser(t, env.db, "member", models.RoleMember)
	_, adminToken := createApprovedUser(t, env.db, "admin", models.RoleAdmin)

	_, key := createFolderViaAPI(t, env, ownerToken, "Shared")
	createFolderViaAPI(t, env, ownerToken, "Private")
	joinFolderViaAPI(t, env, memberToken, key)

	resp := performRequest(t, env.app, http.MethodGet, "/api/folders", nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)
	if items := dataList(t, body); len(items) != 1 {
		t.Fatalf("expected member to see 1 folder, got %d", len(items))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/folders?limit=1", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	body = decodeJSONMap(t, resp)
	pagination, _ := body["pagination"].(map[string]any)
	if pagination["total"] != float64(2) || pagination["totalPages"] != float64(2) {
		t.Fatalf("unexpected pagination %+v", pagination)
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/admin/folders", nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.app, http.MethodGet, "/api/admin/folders", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)
	if items := dataList(t, decodeJSONMap(t, resp)); len(items) != 2 {
		t.Fatalf("expected admin to see 2 folders, got %d", len(items))
	}
}
