package domain

// Role enumerates support roles carried in access tokens.
type Role string

const (
	RoleAgent     Role = "AGENT"
	RoleAdmin     Role = "ADMIN"
	RoleScheduler Role = "SCHEDULER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleAdmin, RoleScheduler:
		return true
	}
	return false
}

// SupportUser is an agent that can own cases.
type SupportUser struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Active    bool
	OpenCases int
}
