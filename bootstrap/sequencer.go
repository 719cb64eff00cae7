package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"napolihr/config"
	"napolihr/db"
	"napolihr/metrics"
	"napolihr/model"
	"napolihr/password"

	"go.uber.org/zap"
)

type Options struct {
	RunID string
	// ResetSchema drops every application table before recreating them.
	ResetSchema        bool
	OrganizationPolicy string
	ProbeTimeout       time.Duration
	Password           string
	BcryptCost         int
}

// OptionsFromConfig maps the loaded configuration onto sequencer options.
func OptionsFromConfig(cfg *config.Config, runID string) Options {
	return Options{
		RunID:              runID,
		ResetSchema:        cfg.Bootstrap.ResetSchema,
		OrganizationPolicy: cfg.Bootstrap.OrganizationPolicy,
		ProbeTimeout:       cfg.Bootstrap.ProbeTimeout,
		Password:           cfg.Seed.Password,
		BcryptCost:         cfg.Seed.BcryptCost,
	}
}

// Sequencer prepares a database for the HR application: it waits for the
// server, probes it, resets and recreates the schema, then seeds the default
// organization, roles and accounts.
type Sequencer struct {
	Store   db.Store
	Waiter  Waiter
	Options Options
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Organization model.Organization
	Roles        []RoleSeed
	Accounts     []AccountSeed
}

func New(store db.Store, waiter Waiter, opts Options, log *zap.Logger, m *metrics.Metrics) *Sequencer {
	if waiter == nil {
		waiter = NoopWaiter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sequencer{
		Store:        store,
		Waiter:       waiter,
		Options:      opts,
		Logger:       log,
		Metrics:      m,
		Organization: DefaultOrganization(),
		Roles:        DefaultRoles(),
		Accounts:     DefaultAccounts(),
	}
}

// Report describes a finished run.
type Report struct {
	RunID            string
	State            State
	Warnings         []StepWarning
	Dropped          []string
	Organization     *model.Organization
	CreatedRoles     []string
	CreatedAccounts  []string
	// RepairedAccounts already existed without a role and had theirs restored.
	RepairedAccounts []string
	SkippedAccounts  []string
	Counts           db.Counts
	Duration         time.Duration
}

// Summary logs the final state of the database.
func (r *Report) Summary(log *zap.Logger) {
	fields := []zap.Field{
		zap.String("state", string(r.State)),
		zap.Int64("organizations", r.Counts.Organizations),
		zap.Int64("roles", r.Counts.Roles),
		zap.Int64("users", r.Counts.Users),
		zap.Int("warnings", len(r.Warnings)),
		zap.Duration("duration", r.Duration),
	}
	if r.Organization != nil {
		fields = append(fields,
			zap.Uint("company_id", r.Organization.ID),
			zap.String("company", r.Organization.Name),
			zap.String("company_code", r.Organization.Code),
		)
	}
	log.Info("final database state", fields...)
	for _, w := range r.Warnings {
		log.Warn("completed with warning", zap.String("step", string(w.Step)), zap.Error(w.Err))
	}
}

// Run executes the sequence once. A fatal step returns an *AbortError; the
// report is returned either way.
func (s *Sequencer) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{RunID: s.Options.RunID}
	finish := func(state State, err error) (*Report, error) {
		report.State = state
		report.Duration = time.Since(started)
		s.Metrics.Finish(string(state), time.Now())
		return report, err
	}

	if err := s.timed(StepReadiness, func() error { return s.Waiter.Wait(ctx) }); err != nil {
		return finish(AbortedReadiness, s.abort(AbortedReadiness, StepReadiness, err))
	}

	if err := s.timed(StepConnectivity, func() error { return s.probe(ctx) }); err != nil {
		return finish(AbortedConnectivity, s.abort(AbortedConnectivity, StepConnectivity, err))
	}
	s.Logger.Info("database connection successful")

	if s.Options.ResetSchema {
		s.Logger.Info("dropping existing tables")
		var dropped []string
		err := s.timed(StepSchemaReset, func() error {
			var err error
			dropped, err = s.Store.DropSchema(ctx)
			return err
		})
		report.Dropped = dropped
		if err != nil {
			s.warn(report, StepSchemaReset, err)
		} else {
			s.Logger.Info("tables dropped", zap.Strings("tables", dropped))
		}
	} else {
		s.Logger.Info("schema reset disabled, keeping existing tables")
	}

	s.Logger.Info("creating tables")
	if err := s.timed(StepSchemaCreate, func() error {
		if err := s.Store.CreateSchema(ctx); err != nil {
			return err
		}
		return s.Store.VerifySchema(ctx)
	}); err != nil {
		return finish(AbortedSchemaCreate, s.abort(AbortedSchemaCreate, StepSchemaCreate, err))
	}
	s.Logger.Info("tables created")

	if err := s.seed(ctx, report); err != nil {
		return finish(AbortedOrganizationSeed, err)
	}

	counts, err := s.Store.Counts(ctx)
	if err != nil {
		s.Logger.Warn("could not count seeded records", zap.Error(err))
	}
	report.Counts = counts
	s.Metrics.SetSeeded("organizations", counts.Organizations)
	s.Metrics.SetSeeded("roles", counts.Roles)
	s.Metrics.SetSeeded("users", counts.Users)

	return finish(HandedOff, nil)
}

func (s *Sequencer) probe(ctx context.Context) error {
	if s.Options.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Options.ProbeTimeout)
		defer cancel()
	}
	return s.Store.Probe(ctx)
}

// seed runs the organization, role and account steps in one transaction.
// Roles and accounts each get a savepoint, so their failures only undo their
// own writes. Only an organization failure is returned.
func (s *Sequencer) seed(ctx context.Context, report *Report) error {
	var orgErr error
	entered := false

	err := s.Store.Transaction(ctx, func(tx db.Store) error {
		entered = true

		var org *model.Organization
		orgErr = s.timed(StepOrganizationSeed, func() error {
			var err error
			org, err = s.seedOrganization(ctx, tx)
			return err
		})
		if orgErr != nil {
			return orgErr
		}
		report.Organization = org

		var roles []string
		if err := s.timed(StepRoleSeed, func() error {
			roles = nil
			return tx.Transaction(ctx, func(rtx db.Store) error {
				var err error
				roles, err = s.seedRoles(ctx, rtx)
				return err
			})
		}); err != nil {
			s.warn(report, StepRoleSeed, fmt.Errorf("role seed rolled back: %w", err))
		} else {
			report.CreatedRoles = roles
		}

		var accounts accountResult
		if err := s.timed(StepAccountSeed, func() error {
			accounts = accountResult{}
			return tx.Transaction(ctx, func(atx db.Store) error {
				var err error
				accounts, err = s.seedAccounts(ctx, atx)
				return err
			})
		}); err != nil {
			s.warn(report, StepAccountSeed, fmt.Errorf("account seed rolled back: %w", err))
		} else {
			report.CreatedAccounts = accounts.created
			report.RepairedAccounts = accounts.repaired
			report.SkippedAccounts = accounts.skipped
			for _, email := range accounts.skipped {
				s.warn(report, StepAccountSeed, fmt.Errorf("account %s skipped: role not found", email))
			}
		}
		return nil
	})

	switch {
	case orgErr != nil:
		return s.abort(AbortedOrganizationSeed, StepOrganizationSeed, orgErr)
	case err != nil && !entered:
		return s.abort(AbortedOrganizationSeed, StepOrganizationSeed, fmt.Errorf("begin transaction: %w", err))
	case err != nil:
		report.Organization = nil
		report.CreatedRoles, report.CreatedAccounts = nil, nil
		report.RepairedAccounts, report.SkippedAccounts = nil, nil
		s.Metrics.ObserveStep(string(StepCommit), "warning", 0)
		s.warn(report, StepCommit, fmt.Errorf("seed data rolled back: %w", err))
	default:
		s.Metrics.ObserveStep(string(StepCommit), "ok", 0)
		s.Logger.Info("seed data committed")
	}
	return nil
}

func (s *Sequencer) seedOrganization(ctx context.Context, tx db.Store) (*model.Organization, error) {
	if s.Options.OrganizationPolicy == config.OrganizationEnsure {
		existing, err := tx.FindOrganizationByCode(ctx, s.Organization.Code)
		switch {
		case err == nil:
			s.Logger.Info("company already exists", zap.String("code", existing.Code), zap.Uint("id", existing.ID))
			return existing, nil
		case !errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("lookup company %s: %w", s.Organization.Code, err)
		}
	}

	org := s.Organization
	if err := tx.CreateOrganization(ctx, &org); err != nil {
		return nil, fmt.Errorf("create company %s: %w", org.Code, err)
	}
	s.Logger.Info("company created", zap.String("name", org.Name), zap.String("code", org.Code), zap.Uint("id", org.ID))
	return &org, nil
}

func (s *Sequencer) seedRoles(ctx context.Context, tx db.Store) ([]string, error) {
	var created []string
	for _, seed := range s.Roles {
		_, err := tx.FindRoleByName(ctx, seed.Name)
		if err == nil {
			s.Logger.Info("role already exists", zap.String("role", seed.Name))
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("lookup role %s: %w", seed.Name, err)
		}

		role := model.Role{Name: seed.Name, Tier: seed.Tier, Description: seed.Description}
		if err := tx.CreateRole(ctx, &role); err != nil {
			return nil, fmt.Errorf("create role %s: %w", seed.Name, err)
		}
		s.Logger.Info("role created", zap.String("role", role.Name), zap.Int("tier", role.Tier))
		created = append(created, role.Name)
	}
	return created, nil
}

type accountResult struct {
	created  []string
	repaired []string
	skipped  []string
}

// seedAccounts creates missing accounts and gives existing accounts that hold
// no role their seed role back. Each account's role is looked up right before
// it is linked; an account whose role is missing is skipped.
func (s *Sequencer) seedAccounts(ctx context.Context, tx db.Store) (accountResult, error) {
	var res accountResult
	for _, seed := range s.Accounts {
		existing, err := tx.FindUserByEmail(ctx, seed.Email)
		if err == nil && len(existing.Roles) > 0 {
			s.Logger.Info("user already exists", zap.String("email", seed.Email), zap.Strings("roles", existing.RoleNames()))
			continue
		}
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return accountResult{}, fmt.Errorf("lookup user %s: %w", seed.Email, err)
		}

		role, err := tx.FindRoleByName(ctx, seed.Role)
		if errors.Is(err, db.ErrNotFound) {
			s.Logger.Warn("skipping user, role does not exist", zap.String("email", seed.Email), zap.String("role", seed.Role))
			res.skipped = append(res.skipped, seed.Email)
			continue
		}
		if err != nil {
			return accountResult{}, fmt.Errorf("lookup role %s for %s: %w", seed.Role, seed.Email, err)
		}

		if existing != nil {
			if err := tx.AssignRole(ctx, existing.ID, role.ID); err != nil {
				return accountResult{}, fmt.Errorf("%s: %w", seed.Email, err)
			}
			tx.LogAuditEvent(ctx, s.Logger, model.AuditLog{
				EmployeeID:  strconv.FormatUint(uint64(existing.ID), 10),
				Action:      "ASSIGN_ROLE",
				PerformedBy: "bootstrap",
				Details:     fmt.Sprintf("restored role %s for user %s", role.Name, existing.Email),
			})
			s.Logger.Warn("user existed without a role, role restored", zap.String("email", existing.Email), zap.String("role", role.Name))
			res.repaired = append(res.repaired, existing.Email)
			continue
		}

		hash, err := password.Hash(s.Options.Password, s.Options.BcryptCost)
		if err != nil {
			return accountResult{}, fmt.Errorf("hash password for %s: %w", seed.Email, err)
		}

		user := model.User{Email: seed.Email, Name: seed.Name, PasswordHash: hash, IsActive: true}
		if err := tx.CreateUserWithRole(ctx, &user, role.ID); err != nil {
			return accountResult{}, err
		}
		tx.LogAuditEvent(ctx, s.Logger, model.AuditLog{
			EmployeeID:  strconv.FormatUint(uint64(user.ID), 10),
			Action:      "CREATE",
			PerformedBy: "bootstrap",
			Details:     fmt.Sprintf("seeded user %s with role %s", user.Email, role.Name),
		})
		s.Logger.Info("user created", zap.String("email", user.Email), zap.String("role", role.Name))
		res.created = append(res.created, user.Email)
	}
	return res, nil
}

func (s *Sequencer) timed(step Step, fn func() error) error {
	start := time.Now()
	err := fn()
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	s.Metrics.ObserveStep(string(step), outcome, time.Since(start))
	return err
}

func (s *Sequencer) warn(report *Report, step Step, err error) {
	report.Warnings = append(report.Warnings, StepWarning{Step: step, Err: err})
	s.Logger.Warn("step failed, continuing", zap.String("step", string(step)), zap.Error(err))
}

func (s *Sequencer) abort(state State, step Step, err error) error {
	s.Logger.Error("step failed, aborting", zap.String("step", string(step)), zap.String("state", string(state)), zap.Error(err))
	return &AbortError{State: state, Step: step, Err: err}
}
