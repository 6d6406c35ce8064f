// Package credentials resolves signin attempts against the two credential
// sources: the in-process fixture repository first, then the persistent
// admin store.
package credentials

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/courierops/console/internal/console/admins"
	"github.com/courierops/console/internal/console/auth"
	"github.com/courierops/console/internal/console/testusers"
)

// AdminAuthenticator is the slice of the persistent store the resolver needs.
type AdminAuthenticator interface {
	Authenticate(username, password string) (*admins.Admin, error)
}

// Resolver implements auth.CredentialAuthenticator and auth.FixtureResolver.
type Resolver struct {
	fixtures *testusers.Store
	admins   AdminAuthenticator
	logger   *zap.Logger
}

// NewResolver creates a resolver. The admin store may be nil, in which case
// only fixture accounts can sign in.
func NewResolver(fixtures *testusers.Store, adminStore AdminAuthenticator, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fixtures: fixtures,
		admins:   adminStore,
		logger:   logger,
	}
}

// Authenticate verifies credentials, fixture store first (by username or
// email), then the persistent store (by username). Unknown users and wrong
// passwords are indistinguishable to the caller; only an inactive fixture
// account gets its own error.
func (r *Resolver) Authenticate(identifier, password string) (*auth.Principal, error) {
	if r.fixtures != nil {
		u, err := r.fixtures.FindByIdentifier(identifier)
		if err == nil {
			return r.authenticateFixture(u, password)
		}
		if !errors.Is(err, testusers.ErrUserNotFound) {
			return nil, fmt.Errorf("fixture lookup: %w", err)
		}
	}

	if r.admins == nil {
		return nil, auth.ErrInvalidCredentials
	}

	a, err := r.admins.Authenticate(identifier, password)
	if err != nil {
		switch {
		case errors.Is(err, admins.ErrInvalidCredentials), errors.Is(err, admins.ErrAdminDisabled):
			// Disabled persistent accounts are folded into the generic
			// failure; the deactivation message is a fixture-only contract.
			return nil, auth.ErrInvalidCredentials
		default:
			return nil, fmt.Errorf("admin store: %w", err)
		}
	}

	return persistentPrincipal(a), nil
}

// ResolveFixture re-validates a fixture principal by ID against the live
// repository. Deactivated or deleted accounts fail; this is the one
// live-revocation path in the system.
func (r *Resolver) ResolveFixture(id string) (*auth.Principal, error) {
	if r.fixtures == nil {
		return nil, testusers.ErrUserNotFound
	}
	u, err := r.fixtures.FindByID(id)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, auth.ErrAccountDeactivated
	}
	return fixturePrincipal(u), nil
}

func (r *Resolver) authenticateFixture(u *testusers.User, password string) (*auth.Principal, error) {
	if !u.Active {
		return nil, auth.ErrAccountDeactivated
	}
	if !testusers.VerifyPassword(password, u.PasswordHash) {
		return nil, auth.ErrInvalidCredentials
	}

	if last, err := r.fixtures.MarkLogin(u.ID); err == nil {
		u.LastLogin = &last
	} else {
		r.logger.Warn("mark fixture login failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	return fixturePrincipal(u), nil
}

func fixturePrincipal(u *testusers.User) *auth.Principal {
	return &auth.Principal{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		Provenance: auth.ProvenanceFixture,
		IsTestUser: true,
		LastLogin:  u.LastLogin,
	}
}

func persistentPrincipal(a *admins.Admin) *auth.Principal {
	return &auth.Principal{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		Role:       a.Role,
		Provenance: auth.ProvenancePersistent,
		IsTestUser: false,
		LastLogin:  a.LastLogin,
	}
}
