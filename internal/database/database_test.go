package database

import (
	"bytes"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestMigrateSeedsBuiltinRoles(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	// second run must be a no-op
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var roles []models.Role
	if err := db.Order("name").Find(&roles).Error; err != nil {
		t.Fatalf("failed loading roles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("expected 3 built-in roles, got %d", len(roles))
	}

	defaults := 0
	for _, role := range roles {
		if role.IsDefault {
			defaults++
			if role.Name != permissions.RoleVisitor {
				t.Fatalf("expected visitor to be the default role, got %s", role.Name)
			}
		}
		want := permissions.Defaults(role.Name)
		for _, p := range permissions.All {
			if role.Permissions.Has(p) != want.Has(p) {
				t.Fatalf("role %s permission %s: expected %v", role.Name, p, want.Has(p))
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default role, got %d", defaults)
	}
}

func TestSingleDefaultIndex(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	second := models.Role{Name: "Moderator", IsDefault: true}
	if err := db.Create(&second).Error; err == nil {
		t.Fatal("expected unique index to reject a second default role")
	}
}

func TestMigrateLogsNoMissingRecords(t *testing.T) {
	var buf bytes.Buffer
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: newGormLogger(&buf)})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	var missing models.Role
	if err := db.First(&missing, "name = ?", "nobody").Error; err == nil {
		t.Fatal("expected a missing role")
	}

	if strings.Contains(buf.String(), "record not found") {
		t.Fatalf("expected silent misses, got %q", buf.String())
	}
}
