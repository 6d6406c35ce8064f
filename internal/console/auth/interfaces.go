package auth

import (
	"errors"
	"time"
)

// SessionCookieName is the browser cookie that carries the session token.
const SessionCookieName = "auth_token"

// Credential verification outcomes. ErrInvalidCredentials covers unknown
// users and wrong passwords alike, so callers cannot enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDeactivated = errors.New("account is deactivated")
)

// Provenance identifies which credential store produced a principal.
type Provenance string

const (
	ProvenanceFixture    Provenance = "fixture"
	ProvenancePersistent Provenance = "persistent"
)

// Principal is the normalized authenticated identity attached to a request.
type Principal struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	Email       string       `json:"email,omitempty"`
	Role        string       `json:"role"`
	Provenance  Provenance   `json:"provenance"`
	IsTestUser  bool         `json:"isTestUser"`
	LastLogin   *time.Time   `json:"lastLogin,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// CredentialAuthenticator verifies signin credentials against the credential stores.
// The identifier is a username, or an email for fixture accounts.
type CredentialAuthenticator interface {
	Authenticate(identifier, password string) (*Principal, error)
}

// TokenIssuer mints a signed session token for a principal.
type TokenIssuer interface {
	Issue(p *Principal) (token string, err error)
}

// TokenVerifier validates a session token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// FixtureResolver re-validates a fixture principal against the live repository.
// It fails when the account no longer exists or has been deactivated.
type FixtureResolver interface {
	ResolveFixture(id string) (*Principal, error)
}

// PermissionResolver resolves role-based permissions for authenticated principals.
type PermissionResolver interface {
	PermissionsForRole(role string) []Permission
}
