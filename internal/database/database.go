package database

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/reportdesk/api/internal/config"
	"github.com/reportdesk/api/internal/models"
	"github.com/reportdesk/api/internal/permissions"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   newGormLogger(os.Stdout),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// newGormLogger reports slow queries and errors. Lookups that miss are expected control
// flow here and stay silent.
func newGormLogger(w io.Writer) gormlogger.Interface {
	return gormlogger.New(log.New(w, "\r\n", log.LstdFlags), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  w == os.Stdout,
	})
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate creates the schema, the single-default role index and the built-in roles.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return err
	}

	// Partial unique index: at most one row may carry is_default = true.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_single_default ON roles (is_default) WHERE is_default`).Error; err != nil {
		return err
	}

	return seedBuiltinRoles(db)
}

func seedBuiltinRoles(db *gorm.DB) error {
	var defaults int64
	if err := db.Model(&models.Role{}).Where("is_default = ?", true).Count(&defaults).Error; err != nil {
		return err
	}

	builtins := []struct {
		name  string
		color string
		icon  string
		desc  string
	}{
		{permissions.RoleVisitor, "#99aab5", "eye", "Read-only access until approved for more"},
		{permissions.RoleMember, "#5865f2", "user", "Can create folders and write reports"},
		{permissions.RoleAdmin, "#ed4245", "shield", "Full moderation rights"},
	}

	for _, b := range builtins {
		var existing []models.Role
		found := db.Where("name = ?", b.name).Limit(1).Find(&existing)
		if found.Error != nil {
			return found.Error
		}
		if found.RowsAffected > 0 {
			continue
		}

		desc := b.desc
		role := models.Role{
			Name:        b.name,
			Description: &desc,
			Color:       b.color,
			Icon:        b.icon,
			IsDefault:   b.name == permissions.RoleVisitor && defaults == 0,
			Permissions: permissions.Defaults(b.name),
		}
		if err := db.Create(&role).Error; err != nil {
			return err
		}
	}

	return nil
}
