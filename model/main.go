package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type OrganizationStatus string

const (
	ActiveOrganization    OrganizationStatus = "Active"
	InactiveOrganization  OrganizationStatus = "Inactive"
	SuspendedOrganization OrganizationStatus = "Suspended"
)

// IsValid returns true if OrganizationStatus is known
func (s OrganizationStatus) IsValid() bool {
	switch s {
	case ActiveOrganization, InactiveOrganization, SuspendedOrganization:
		return true
	}
	return false
}

// Scan accepts both string and []byte, the MySQL driver hands back the latter.
func (s *OrganizationStatus) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*s = OrganizationStatus(v)
	case []byte:
		*s = OrganizationStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into OrganizationStatus", value)
	}
	return nil
}

func (s OrganizationStatus) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid OrganizationStatus %q", s)
	}
	return string(s), nil
}

// Base carries the columns every application table shares. It has no
// DeletedAt: rows are hard-deleted, so counts and unique emails see every row.
type Base struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// An Organization is a company whose employees are managed by the HR application.
//
// Code and RegistrationNumber are indexed but not unique: seeding with the
// insert policy may legitimately leave duplicates behind when the schema
// reset is skipped.
type Organization struct {
	Base
	Name               string             `gorm:"size:255;not null"`
	Code               string             `gorm:"size:50;not null;index"`
	EmployeeIDPrefix   *string            `gorm:"size:10"`
	RegistrationNumber string             `gorm:"size:100;not null;index"`
	EmployeeCount      int                `gorm:"default:0"`
	Status             OrganizationStatus `gorm:"size:50;default:Active"`
}

func (Organization) TableName() string { return "companies" }

// A Role grants a tier of access. Lower tiers are more privileged.
type Role struct {
	Base
	Name        string       `gorm:"size:50;uniqueIndex;not null"`
	Tier        int          `gorm:"not null;default:1"`
	Description string       `gorm:"type:text"`
	Users       []User       `gorm:"many2many:user_roles;joinForeignKey:RoleID;joinReferences:UserID"`
	Permissions []Permission `gorm:"many2many:role_permissions;joinForeignKey:RoleID;joinReferences:PermissionID"`
}

type Permission struct {
	Base
	Name        string `gorm:"size:100;uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	Roles       []Role `gorm:"many2many:role_permissions;joinForeignKey:PermissionID;joinReferences:RoleID"`
}

// A User is an account that can sign in to the HR application.
type User struct {
	Base
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Name         string `gorm:"size:255;not null"`
	IsActive     bool   `gorm:"default:true"`
	Roles        []Role `gorm:"many2many:user_roles;joinForeignKey:UserID;joinReferences:RoleID"`
}

// RoleNames returns the names of the roles loaded on u.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

type UserRole struct {
	UserID uint `gorm:"primaryKey"`
	RoleID uint `gorm:"primaryKey"`
}

type RolePermission struct {
	RoleID       uint `gorm:"primaryKey"`
	PermissionID uint `gorm:"primaryKey"`
}

type TokenBlacklist struct {
	Base
	Token         string `gorm:"size:500;uniqueIndex;not null"`
	BlacklistedOn time.Time
}

func (TokenBlacklist) TableName() string { return "token_blacklist" }

type PasswordResetToken struct {
	Base
	UserID    uint   `gorm:"not null;index"`
	User      User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Token     string `gorm:"size:100;uniqueIndex;not null"`
	ExpiresAt time.Time
	IsUsed    bool
}

type AuditLog struct {
	Base
	EmployeeID  string `gorm:"size:50;not null;index"`
	Action      string `gorm:"size:50;not null;index"` // e.g. "CREATE", "TERMINATE", "PROMOTE"
	PerformedBy string `gorm:"size:50;not null"`
	Details     string `gorm:"type:text"`
	Timestamp   time.Time
}

// All returns every model the application owns, parents before the tables
// that reference them. Dropping walks this list backwards.
func All() []any {
	return []any{
		&Organization{},
		&Role{},
		&Permission{},
		&User{},
		&UserRole{},
		&RolePermission{},
		&TokenBlacklist{},
		&PasswordResetToken{},
		&AuditLog{},
	}
}

// TableNames lists the tables created for All, in the same order.
func TableNames() []string {
	return []string{
		"companies",
		"roles",
		"permissions",
		"users",
		"user_roles",
		"role_permissions",
		"token_blacklist",
		"password_reset_tokens",
		"audit_logs",
	}
}
