package db

import (
	"context"
	"errors"

	"napolihr/model"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("record not found")

// Counts is the number of seedable records currently stored.
type Counts struct {
	Organizations int64
	Roles         int64
	Users         int64
}

type Store interface {
	Probe(ctx context.Context) error

	DropSchema(ctx context.Context) ([]string, error)
	CreateSchema(ctx context.Context) error
	VerifySchema(ctx context.Context) error

	// Transaction runs fn against a store bound to a new transaction. Calling
	// Transaction on that store opens a savepoint instead.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateOrganization(ctx context.Context, org *model.Organization) error
	FindOrganizationByCode(ctx context.Context, code string) (*model.Organization, error)
	CreateRole(ctx context.Context, role *model.Role) error
	FindRoleByName(ctx context.Context, name string) (*model.Role, error)
	CreateUserWithRole(ctx context.Context, user *model.User, roleID uint) error
	AssignRole(ctx context.Context, userID, roleID uint) error
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)

	Counts(ctx context.Context) (Counts, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	LogAuditEvent(ctx context.Context, logger *zap.Logger, event model.AuditLog)
}
