package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/reportdesk/api/internal/config"
	"github.com/reportdesk/api/internal/database"
	"github.com/reportdesk/api/internal/middleware"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/services"
	"github.com/reportdesk/api/pkg/logger"
	"github.com/reportdesk/api/pkg/statetoken"
	"github.com/reportdesk/api/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	audit *services.AuditService
	store *memoryStore
}

// flushAudit waits for queued audit entries and the notifications derived from them.
func (e *testEnv) flushAudit() {
	e.audit.Close()
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating: %v", err)
	}

	permissionService := services.NewPermissionService(db, nil)
	accessService := services.NewAccessService(db, permissionService)
	roleService := services.NewRoleService(db, permissionService)
	userService := services.NewUserService(db, roleService, permissionService)
	folderService := services.NewFolderService(db, accessService, permissionService)
	membershipService := services.NewMembershipService(db, accessService, permissionService)
	missionService := services.NewMissionService(db)
	notificationService := services.NewNotificationService(db)
	auditService := services.NewAuditService(db, nil)
	discordService := services.NewDiscordService(config.DiscordConfig{}, db, roleService, statetoken.NewIssuer("test-secret"))
	store := newMemoryStore()

	t.Cleanup(func() {
		auditService.Close()
		_ = sqlDB.Close()
	})

	h := &Handlers{
		Auth:          NewAuthHandler(discordService, userService, permissionService, auditService, "http://localhost:3000"),
		Users:         NewUsersHandler(db, userService, permissionService, auditService),
		Roles:         NewRolesHandler(roleService, auditService),
		Folders:       NewFoldersHandler(folderService, accessService, membershipService, auditService),
		Reports:       NewReportsHandler(db, accessService, permissionService, auditService),
		Missions:      NewMissionsHandler(missionService, auditService),
		Notifications: NewNotificationsHandler(notificationService),
		Uploads:       NewUploadsHandler(db, store),
		Dashboard:     NewDashboardHandler(db, folderService, missionService, notificationService),
	}

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())
	RegisterRoutes(app, h, middleware.NewAuthMiddleware(db, permissionService))

	return &testEnv{app: app, db: db, audit: auditService, store: store}
}

func createTestUser(t *testing.T, db *gorm.DB, name, role string, status models.UserStatus) (*models.User, string) {
	t.Helper()

	user := &models.User{
		DiscordID:   uuid.NewString(),
		Username:    name,
		DisplayName: name,
		Role:        role,
		Status:      status,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createApprovedUser(t *testing.T, db *gorm.DB, name, role string) (*models.User, string) {
	t.Helper()
	return createTestUser(t, db, name, role, models.UserStatusApproved)
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d body=%s", expected, resp.StatusCode, string(raw))
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T (%+v)", body["data"], body)
	}
	return data
}

func dataList(t *testing.T, body map[string]any) []any {
	t.Helper()
	data, ok := body["data"].([]any)
	if !ok {
		t.Fatalf("expected list data, got %T (%+v)", body["data"], body)
	}
	return data
}

// createFolderViaAPI creates a folder with an access key and returns its id and key.
func createFolderViaAPI(t *testing.T, env *testEnv, token, title string) (string, string) {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders", map[string]any{
		"title":             title,
		"generateAccessKey": true,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)

	data := dataMap(t, decodeJSONMap(t, resp))
	id, _ := data["id"].(string)
	key, _ := data["accessKey"].(string)
	if id == "" || key == "" {
		t.Fatalf("expected folder id and access key, got %+v", data)
	}
	return id, key
}

func joinFolderViaAPI(t *testing.T, env *testEnv, token, key string) {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/join", map[string]any{"accessKey": key}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
}

func createReportViaAPI(t *testing.T, env *testEnv, token, folderID, title string) string {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/reports", map[string]any{
		"title":      title,
		"content":    "## " + title,
		"importance": "high",
		"tags":       []string{"Recon", "north"},
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)

	data := dataMap(t, decodeJSONMap(t, resp))
	id, _ := data["id"].(string)
	return id
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = data
	return nil
}

func (m *memoryStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectName)
	return nil
}

func (m *memoryStore) PresignedGetURL(_ context.Context, objectName string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("http://objects.test/%s?expires=%d", objectName, int(expiry.Seconds())), nil
}

func (m *memoryStore) object(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	return data, ok
}
