package auth

import "time"

// Role is the fixed enumeration used for authorization decisions.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDoctor        Role = "doctor"
	RoleNurse         Role = "nurse"
	RoleLabTechnician Role = "lab_technician"
	RoleReceptionist  Role = "receptionist"
)

var knownRoles = map[Role]bool{
	RoleAdmin:         true,
	RoleDoctor:        true,
	RoleNurse:         true,
	RoleLabTechnician: true,
	RoleReceptionist:  true,
}

func (r Role) Valid() bool {
	return knownRoles[r]
}

// Account carries the authentication-relevant fields of an account row.
// CredentialHash is empty for accounts that have not been provisioned with
// a password yet.
type Account struct {
	ID                  string
	Email               string
	FullName            string
	CredentialHash      string
	Role                Role
	Active              bool
	FailedAttempts      int
	LockedUntil         *time.Time
	CurrentRefreshToken string
	LastAuthenticatedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Summary is the non-sensitive projection of an account that is safe to
// return to clients and attach to request contexts. It never carries the
// credential hash or the stored refresh token.
type Summary struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"fullName"`
	Role                Role       `json:"role"`
	Active              bool       `json:"active"`
	LastAuthenticatedAt *time.Time `json:"lastAuthenticatedAt,omitempty"`
}

func (a Account) Summary() Summary {
	return Summary{
		ID:                  a.ID,
		Email:               a.Email,
		FullName:            a.FullName,
		Role:                a.Role,
		Active:              a.Active,
		LastAuthenticatedAt: a.LastAuthenticatedAt,
	}
}

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// LoginResult bundles the account summary with the issued pair.
type LoginResult struct {
	User   Summary `json:"user"`
	TokenPair
}
