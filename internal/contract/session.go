package contract

import (
	"encoding/json"
	"maps"
	"strconv"
)

// Role is a user class as named by the service's userType field.
type Role string

const (
	RoleRider   Role = "OKU User"
	RoleDriver  Role = "Driver"
	RoleAdmin   Role = "Company Admin"
	RoleOfficer Role = "JKM Officer"
)

// RegistrationRoles lists every role registered by a run, in order.
var RegistrationRoles = []Role{RoleRider, RoleDriver, RoleAdmin, RoleOfficer}

// trackedRoles are the roles whose login credentials later checks use.
var trackedRoles = map[Role]bool{
	RoleRider:  true,
	RoleDriver: true,
	RoleAdmin:  true,
}

// Account is a user registered during the run.
type Account struct {
	Role     Role
	Name     string
	Email    string
	Phone    string
	Password string
	UserID   string
}

// Credentials are what a successful login returned.
type Credentials struct {
	Token    string
	UserID   string
	UserName string
	User     json.RawMessage
}

// Session carries state produced by earlier checks to later ones.
// It is a value: the With* methods return a modified copy and never
// mutate maps shared with the receiver.
type Session struct {
	accounts  map[Role]Account
	creds     map[Role]Credentials
	bookingID string
}

// NewSession returns an empty session.
func NewSession() Session {
	return Session{
		accounts: map[Role]Account{},
		creds:    map[Role]Credentials{},
	}
}

// Account returns the registered account for role.
func (s Session) Account(role Role) (Account, bool) {
	a, ok := s.accounts[role]
	return a, ok
}

// Credentials returns the login credentials for role.
func (s Session) Credentials(role Role) (Credentials, bool) {
	c, ok := s.creds[role]
	return c, ok
}

// Token returns role's bearer token or "".
func (s Session) Token(role Role) string {
	return s.creds[role].Token
}

// UserID resolves role's user id, preferring the login's user record and
// falling back to the id returned at registration.
func (s Session) UserID(role Role) string {
	if c, ok := s.creds[role]; ok && c.UserID != "" {
		return c.UserID
	}
	return s.accounts[role].UserID
}

// BookingID returns the id of the booking created earlier in the run.
func (s Session) BookingID() string {
	return s.bookingID
}

// WithAccount records a registered account.
func (s Session) WithAccount(a Account) Session {
	next := s.clone()
	next.accounts[a.Role] = a
	return next
}

// WithCredentials records login credentials. Only rider, driver and admin
// credentials are kept; other roles leave the session unchanged.
func (s Session) WithCredentials(role Role, c Credentials) Session {
	if !trackedRoles[role] {
		return s
	}
	next := s.clone()
	next.creds[role] = c
	return next
}

// WithBooking records the created booking's id.
func (s Session) WithBooking(id string) Session {
	next := s.clone()
	next.bookingID = id
	return next
}

func (s Session) clone() Session {
	next := Session{
		accounts:  maps.Clone(s.accounts),
		creds:     maps.Clone(s.creds),
		bookingID: s.bookingID,
	}
	if next.accounts == nil {
		next.accounts = map[Role]Account{}
	}
	if next.creds == nil {
		next.creds = map[Role]Credentials{}
	}
	return next
}

// idValue encodes numeric ids as JSON numbers and everything else as strings.
func idValue(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}
