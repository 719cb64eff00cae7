package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"napolihr/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// DB exposes the session the store is bound to.
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}

// Probe runs a trivial query, which proves the credentials and database name
// as well as reachability.
func (s *SQLStore) Probe(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sql store is not initialized")
	}
	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("probe query failed: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("probe query returned %d", one)
	}
	return nil
}

// DropSchema drops every application table that exists, children first, and
// stops at the first failure. SQLite and Postgres drop inside one transaction,
// so a failure leaves every table in place and nothing is reported dropped.
// MySQL commits each DROP TABLE on its own; there the tables dropped before
// the failure are returned along with the error.
func (s *SQLStore) DropSchema(ctx context.Context) ([]string, error) {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "mysql" {
		return dropTables(db)
	}

	var dropped []string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		dropped, err = dropTables(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dropped, nil
}

func dropTables(db *gorm.DB) ([]string, error) {
	migrator := db.Migrator()
	names := model.TableNames()

	var dropped []string
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		if !migrator.HasTable(name) {
			continue
		}
		if err := migrator.DropTable(name); err != nil {
			return dropped, fmt.Errorf("drop %s: %w", name, err)
		}
		dropped = append(dropped, name)
	}
	return dropped, nil
}

// CreateSchema creates missing tables, columns and indexes for every model.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}

func (s *SQLStore) VerifySchema(ctx context.Context) error {
	migrator := s.db.WithContext(ctx).Migrator()
	var missing []string
	for _, name := range model.TableNames() {
		if !migrator.HasTable(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *SQLStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SQLStore{db: tx})
	})
}

func (s *SQLStore) CreateOrganization(ctx context.Context, org *model.Organization) error {
	if !org.Status.IsValid() {
		return fmt.Errorf("invalid organization status %q", org.Status)
	}
	return s.db.WithContext(ctx).Create(org).Error
}

func (s *SQLStore) FindOrganizationByCode(ctx context.Context, code string) (*model.Organization, error) {
	var org model.Organization
	err := s.db.WithContext(ctx).Where("code = ?", code).Order("id").First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *SQLStore) CreateRole(ctx context.Context, role *model.Role) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(role).Error
}

func (s *SQLStore) FindRoleByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateUserWithRole inserts user and links it to exactly one role.
func (s *SQLStore) CreateUserWithRole(ctx context.Context, user *model.User, roleID uint) error {
	if roleID == 0 {
		return fmt.Errorf("user %s: role id is required", user.Email)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return fmt.Errorf("create user %s: %w", user.Email, err)
		}
		if err := (&SQLStore{db: tx}).AssignRole(ctx, user.ID, roleID); err != nil {
			return fmt.Errorf("%s: %w", user.Email, err)
		}
		return nil
	})
}

// AssignRole links an existing user to a role.
func (s *SQLStore) AssignRole(ctx context.Context, userID, roleID uint) error {
	if userID == 0 || roleID == 0 {
		return fmt.Errorf("assign role %d to user %d: both ids are required", roleID, userID)
	}
	if err := s.db.WithContext(ctx).Create(&model.UserRole{UserID: userID, RoleID: roleID}).Error; err != nil {
		return fmt.Errorf("assign role %d to user %d: %w", roleID, userID, err)
	}
	return nil
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Preload("Roles").Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Organization{}).Count(&c.Organizations).Error; err != nil {
		return c, fmt.Errorf("count organizations: %w", err)
	}
	if err := db.Model(&model.Role{}).Count(&c.Roles).Error; err != nil {
		return c, fmt.Errorf("count roles: %w", err)
	}
	if err := db.Model(&model.User{}).Count(&c.Users).Error; err != nil {
		return c, fmt.Errorf("count users: %w", err)
	}
	return c, nil
}

func (s *SQLStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := s.db.WithContext(ctx).Order("tier, name").Find(&roles).Error
	return roles, err
}

// ListUsers returns all users with their roles loaded, ordered by id.
func (s *SQLStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).Preload("Roles").Order("id").Find(&users).Error
	return users, err
}

func (s *SQLStore) LogAuditEvent(ctx context.Context, logger *zap.Logger, event model.AuditLog) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Details == "" {
		event.Details = event.Action
	}

	err := s.db.WithContext(ctx).Create(&event).Error
	if err != nil {
		logger.Error("failed to write audit log",
			zap.String("action", event.Action),
			zap.String("employee_id", event.EmployeeID),
			zap.Error(err))
	}
}
