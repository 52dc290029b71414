package domain

// MemberRole enumerates operator roles inside a regional team.
type MemberRole string

const (
	MemberRoleOperator   MemberRole = "OPERATOR"
	MemberRoleDispatcher MemberRole = "DISPATCHER"
	MemberRoleAdmin      MemberRole = "ADMIN"
)

// Member is the caller acting on behalf of a team.
type Member struct {
	Name string
	Team string
	Role MemberRole
}

// Valid reports whether r is a known role.
func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleOperator, MemberRoleDispatcher, MemberRoleAdmin:
		return true
	}
	return false
}
