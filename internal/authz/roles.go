package authz

const (
	RoleAdmin                   = "admin"
	RolePresident               = "President"
	RolePresidentsRep           = "President's Rep"
	RoleSecretary               = "Secretary"
	RoleAssistantSecretary      = "Assistant Secretary"
	RoleFinancialSecretary      = "Financial Secretary"
	RoleTreasurer               = "Treasurer"
	RoleBibleStudiesCoordinator = "Bible Studies Coordinator"
	RoleOrganizer               = "Organizer"
	RoleMeetingUser             = "meeting_user"
)

// executiveRoles may act on records they do not own. Destructive actions additionally
// require the security pin.
var executiveRoles = map[string]struct{}{
	RoleAdmin:                   {},
	RolePresident:               {},
	RolePresidentsRep:           {},
	RoleSecretary:               {},
	RoleAssistantSecretary:      {},
	RoleFinancialSecretary:      {},
	RoleTreasurer:               {},
	RoleBibleStudiesCoordinator: {},
	RoleOrganizer:               {},
}

func IsExecutive(role string) bool {
	_, ok := executiveRoles[role]
	return ok
}

// IsKnown reports whether role can be assigned to an account.
func IsKnown(role string) bool {
	return IsExecutive(role) || role == RoleMeetingUser
}

// ExecutiveRoles returns the executive role names in display order.
func ExecutiveRoles() []string {
	return []string{
		RoleAdmin, RolePresident, RolePresidentsRep, RoleSecretary, RoleAssistantSecretary,
		RoleFinancialSecretary, RoleTreasurer, RoleBibleStudiesCoordinator, RoleOrganizer,
	}
}
