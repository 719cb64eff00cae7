package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"napolihr/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an empty in-memory SQLite database private to t.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// seedTestData creates a role and a user holding it.
func seedTestData(t *testing.T, store *SQLStore) (role model.Role, user model.User) {
	t.Helper()
	ctx := context.Background()

	role = model.Role{Name: "admin", Tier: 1, Description: "Administrator"}
	require.NoError(t, store.CreateRole(ctx, &role))

	user = model.User{Email: "alice@example.com", Name: "Alice", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.CreateUserWithRole(ctx, &user, role.ID))
	return role, user
}

func TestProbe(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()

	require.NoError(t, store.Probe(ctx))

	t.Run("closed pool fails", func(t *testing.T) {
		sqlDB, err := db.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())
		assert.Error(t, store.Probe(ctx))
	})

	t.Run("nil store fails", func(t *testing.T) {
		var s *SQLStore
		assert.Error(t, s.Probe(ctx))
	})
}

func TestSchemaLifecycle(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()

	err := store.VerifySchema(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "companies")

	dropped, err := store.DropSchema(ctx)
	require.NoError(t, err)
	assert.Empty(t, dropped, "nothing to drop on an empty database")

	require.NoError(t, store.CreateSchema(ctx))
	require.NoError(t, store.VerifySchema(ctx))
	assert.False(t, store.DB().Migrator().HasColumn(&model.User{}, "deleted_at"), "rows are hard-deleted")

	seedTestData(t, store)

	dropped, err = store.DropSchema(ctx)
	require.NoError(t, err)
	assert.Len(t, dropped, len(model.TableNames()))
	assert.Equal(t, "audit_logs", dropped[0], "children are dropped first")
	assert.Equal(t, "companies", dropped[len(dropped)-1])

	require.NoError(t, store.CreateSchema(ctx))
	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts, "recreated schema is empty")
}

// rejectDrop makes every DROP TABLE statement for table fail.
func rejectDrop(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	quoted := "`" + table + "`"
	err := db.Callback().Raw().Before("gorm:raw").Register("test:reject_drop_"+table, func(tx *gorm.DB) {
		sql := tx.Statement.SQL.String()
		if strings.HasPrefix(sql, "DROP TABLE") && strings.Contains(sql, quoted) {
			_ = tx.AddError(fmt.Errorf("cannot drop %s", table))
		}
	})
	require.NoError(t, err)
}

func TestDropSchemaFailureRollsBack(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()
	require.NoError(t, store.CreateSchema(ctx))
	_, user := seedTestData(t, store)

	rejectDrop(t, db, "users")

	dropped, err := store.DropSchema(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop users")
	assert.Empty(t, dropped, "nothing is dropped when the transaction rolls back")

	require.NoError(t, store.VerifySchema(ctx), "every table survives the failed drop")
	got, err := store.FindUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.RoleNames(), "role links survive the failed drop")
}

func TestAssignRole(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()
	require.NoError(t, store.CreateSchema(ctx))
	role, user := seedTestData(t, store)

	require.NoError(t, db.Exec("DELETE FROM user_roles").Error)
	got, err := store.FindUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	require.Empty(t, got.Roles)

	require.NoError(t, store.AssignRole(ctx, user.ID, role.ID))
	got, err = store.FindUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, got.RoleNames())

	t.Run("linking the same role twice fails", func(t *testing.T) {
		assert.Error(t, store.AssignRole(ctx, user.ID, role.ID))
	})

	t.Run("zero ids are rejected", func(t *testing.T) {
		assert.Error(t, store.AssignRole(ctx, 0, role.ID))
		assert.Error(t, store.AssignRole(ctx, user.ID, 0))
	})
}

func TestCreateSchemaKeepsData(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.CreateSchema(ctx))
	seedTestData(t, store)

	require.NoError(t, store.CreateSchema(ctx))
	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Roles)
	assert.Equal(t, int64(1), counts.Users)
}

func TestLookups(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.CreateSchema(ctx))
	role, user := seedTestData(t, store)

	t.Run("role by name", func(t *testing.T) {
		got, err := store.FindRoleByName(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, role.ID, got.ID)
		assert.Equal(t, 1, got.Tier)

		_, err = store.FindRoleByName(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("user by email has its role", func(t *testing.T) {
		got, err := store.FindUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.True(t, got.IsActive)
		assert.Equal(t, []string{"admin"}, got.RoleNames())

		_, err = store.FindUserByEmail(ctx, "bob@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("organization by code returns the oldest", func(t *testing.T) {
		_, err := store.FindOrganizationByCode(ctx, "NAP")
		assert.ErrorIs(t, err, ErrNotFound)

		first := model.Organization{Name: "Napoli", Code: "NAP", RegistrationNumber: "R1", Status: model.ActiveOrganization}
		second := model.Organization{Name: "Napoli", Code: "NAP", RegistrationNumber: "R1", Status: model.ActiveOrganization}
		require.NoError(t, store.CreateOrganization(ctx, &first))
		require.NoError(t, store.CreateOrganization(ctx, &second))

		got, err := store.FindOrganizationByCode(ctx, "NAP")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("invalid organization status is rejected", func(t *testing.T) {
		org := model.Organization{Name: "Bad", Code: "BAD", RegistrationNumber: "R2", Status: "Closed"}
		assert.Error(t, store.CreateOrganization(ctx, &org))
	})

	t.Run("duplicate role name is rejected", func(t *testing.T) {
		dup := model.Role{Name: "admin", Tier: 2}
		assert.Error(t, store.CreateRole(ctx, &dup))
	})

	t.Run("user without role is rejected", func(t *testing.T) {
		u := model.User{Email: "norole@example.com", Name: "No Role", PasswordHash: "x"}
		assert.Error(t, store.CreateUserWithRole(ctx, &u, 0))
	})

	t.Run("list users preloads roles", func(t *testing.T) {
		users, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, []string{"admin"}, users[0].RoleNames())

		roles, err := store.ListRoles(ctx)
		require.NoError(t, err)
		require.Len(t, roles, 1)
	})
}

func TestTransactionSavepoints(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.CreateSchema(ctx))

	err := store.Transaction(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateRole(ctx, &model.Role{Name: "admin", Tier: 1}))

		nestedErr := tx.Transaction(ctx, func(inner Store) error {
			require.NoError(t, inner.CreateRole(ctx, &model.Role{Name: "hr", Tier: 2}))
			return fmt.Errorf("rejected")
		})
		assert.Error(t, nestedErr)

		_, err := tx.FindRoleByName(ctx, "hr")
		assert.ErrorIs(t, err, ErrNotFound, "savepoint rolled back")
		return nil
	})
	require.NoError(t, err)

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "admin", roles[0].Name)

	t.Run("outer failure rolls back everything", func(t *testing.T) {
		err := store.Transaction(ctx, func(tx Store) error {
			require.NoError(t, tx.CreateRole(ctx, &model.Role{Name: "payroll", Tier: 3}))
			return fmt.Errorf("abort")
		})
		require.Error(t, err)
		_, err = store.FindRoleByName(ctx, "payroll")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLogAuditEvent(t *testing.T) {
	store := NewSQLStore(setupTestDB(t))
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	t.Run("missing table logs an error", func(t *testing.T) {
		store.LogAuditEvent(ctx, log, model.AuditLog{EmployeeID: "1", Action: "CREATE", PerformedBy: "bootstrap"})
		assert.Equal(t, 1, logs.FilterMessage("failed to write audit log").Len())
	})

	require.NoError(t, store.CreateSchema(ctx))
	store.LogAuditEvent(ctx, log, model.AuditLog{EmployeeID: "1", Action: "CREATE", PerformedBy: "bootstrap"})

	var entry model.AuditLog
	require.NoError(t, store.DB().First(&entry).Error)
	assert.Equal(t, "CREATE", entry.Details)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "napoli.db")
	log := zap.NewNop()

	path, err := Backup(src, "", 2, log)
	require.NoError(t, err)
	assert.Empty(t, path, "no source, no backup")

	require.NoError(t, os.WriteFile(src, []byte("sqlite"), 0o600))

	backupDir := filepath.Join(dir, "backups")
	for i := 0; i < 4; i++ {
		// stale backups sort before any freshly stamped one
		stale := filepath.Join(backupDir, fmt.Sprintf("napoli.db.2000010%d-000000.000.bak", i))
		require.NoError(t, os.MkdirAll(backupDir, 0o750))
		require.NoError(t, os.WriteFile(stale, nil, 0o600))
	}

	path, err = Backup(src, backupDir, 2, log)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", string(content))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.FileExists(t, path)
}
