package configprotocol

import (
	"github.com/google/uuid"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// User is the authenticated principal a session acts as, grounded on the
// original's User(name, password, roles) triple
// (test_config_protocol_access_control.cpp).
type User struct {
	Name  string
	Roles []string
}

// HasRole reports whether u carries role, or the implicit "everyone" role
// every authenticated (or anonymous) user carries.
func (u User) HasRole(role string) bool {
	if role == "everyone" {
		return true
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole returns u's first declared role, or "everyone" if it has none
// (an unprivileged regular user, per the original's UserRegular fixture).
// Permission tables are role-keyed, not roles-set-keyed, so the access-control
// walk needs one role to check per session.
func (u User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return "everyone"
	}
	return u.Roles[0]
}

// Authenticator validates hello-time credentials, failing the connection on
// rejection (§4.10 "the server's configured authenticator validates username/
// password or an anonymous token; failure closes the connection").
type Authenticator interface {
	Authenticate(hello HelloPayload) (User, error)
}

// StaticAuthenticator looks credentials up in a fixed table, the minimal
// authenticator a demo server needs; AnonymousRole, if non-empty, is granted
// to hello.Anonymous connections instead of failing them.
type StaticAuthenticator struct {
	Users         map[string]staticCredential
	AnonymousRole string
}

type staticCredential struct {
	Password string
	Roles    []string
}

// NewStaticAuthenticator builds an authenticator with no users yet; add with
// AddUser.
func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{Users: map[string]staticCredential{}}
}

func (a *StaticAuthenticator) AddUser(name, password string, roles ...string) {
	a.Users[name] = staticCredential{Password: password, Roles: roles}
}

func (a *StaticAuthenticator) Authenticate(hello HelloPayload) (User, error) {
	if hello.Anonymous {
		if a.AnonymousRole == "" {
			return User{}, daqerr.New(daqerr.AccessDenied, "anonymous connections are not accepted")
		}
		return User{Name: "anonymous", Roles: []string{a.AnonymousRole}}, nil
	}
	cred, ok := a.Users[hello.Username]
	if !ok || cred.Password != hello.Password {
		return User{}, daqerr.New(daqerr.AccessDenied, "invalid credentials")
	}
	return User{Name: hello.Username, Roles: cred.Roles}, nil
}

// Session is the server-side per-connection state created at hello time
// (§4.10 "A session is created and any per-session state ... initialised").
type Session struct {
	ID              string
	User            User
	ConnectionType  ConnectionType
	ProtocolVersion uint16

	subscriptions map[string]bool
}

func newSession(user User, connType ConnectionType, version uint16) *Session {
	return &Session{
		ID:              uuid.NewString(),
		User:            user,
		ConnectionType:  connType,
		ProtocolVersion: version,
		subscriptions:   map[string]bool{},
	}
}

func (s *Session) subscribe(signalID string)   { s.subscriptions[signalID] = true }
func (s *Session) unsubscribe(signalID string) { delete(s.subscriptions, signalID) }
func (s *Session) isSubscribed(signalID string) bool {
	return s.subscriptions[signalID]
}
