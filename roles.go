package auth

import "errors"

// Role is the account's role
type Role string

const (
	// RoleAdministrator manages accounts and reviews every request
	RoleAdministrator Role = "administrator"
	// RoleMethodEngineer reviews requests and issues codes within its unit
	RoleMethodEngineer Role = "method_engineer"
	// RoleQualityControl records and reviews quality checks
	RoleQualityControl Role = "quality_control"
	// RoleProductionOperator is the unattended shop floor role
	RoleProductionOperator Role = "production_operator"
)

// Scope limits where a role may act
type Scope int

const (
	// ScopeNone grants nothing
	ScopeNone Scope = iota
	// ScopeUnit grants actions within the actor's own unit
	ScopeUnit
	// ScopeAll grants actions on every unit
	ScopeAll
)

// Capability is a named feature of the dashboard gated by role
type Capability string

const (
	CapabilityViewDashboard     Capability = "dashboard.view"
	CapabilityRecordInspection  Capability = "inspection.record"
	CapabilityReviewInspection  Capability = "inspection.review"
	CapabilityManageMethods     Capability = "methods.manage"
	CapabilityReviewRegistrants Capability = "registrations.review"
	CapabilityIssueCodes        Capability = "codes.issue"
	CapabilityManageAccounts    Capability = "accounts.manage"
)

// RolePolicy is the data driven rule set of a role
type RolePolicy struct {
	Password      PasswordPolicy
	RememberMe    bool
	ReviewScope   Scope
	IssueScope    Scope
	IssuableRoles []Role
	Capabilities  []Capability
}

// Allows reports whether the policy grants the capability
func (p RolePolicy) Allows(c Capability) bool {
	for _, granted := range p.Capabilities {
		if granted == c {
			return true
		}
	}
	return false
}

// CanIssueRole reports whether codes for role may be issued under this policy
func (p RolePolicy) CanIssueRole(role Role) bool {
	for _, r := range p.IssuableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RolePolicies maps each role to its policy. New roles are added here,
// not in control flow.
type RolePolicies map[Role]RolePolicy

// DefaultRolePolicies returns the policy table for the QC dashboard roles
func DefaultRolePolicies() RolePolicies {
	return RolePolicies{
		RoleAdministrator: {
			Password:    StrongPasswordPolicy(),
			ReviewScope: ScopeAll,
			IssueScope:  ScopeAll,
			IssuableRoles: []Role{
				RoleAdministrator,
				RoleMethodEngineer,
				RoleQualityControl,
				RoleProductionOperator,
			},
			Capabilities: []Capability{
				CapabilityViewDashboard,
				CapabilityRecordInspection,
				CapabilityReviewInspection,
				CapabilityManageMethods,
				CapabilityReviewRegistrants,
				CapabilityIssueCodes,
				CapabilityManageAccounts,
			},
		},
		RoleMethodEngineer: {
			Password:      StrongPasswordPolicy(),
			ReviewScope:   ScopeUnit,
			IssueScope:    ScopeUnit,
			IssuableRoles: []Role{RoleQualityControl, RoleProductionOperator},
			Capabilities: []Capability{
				CapabilityViewDashboard,
				CapabilityReviewInspection,
				CapabilityManageMethods,
				CapabilityReviewRegistrants,
				CapabilityIssueCodes,
			},
		},
		RoleQualityControl: {
			Password: StrongPasswordPolicy(),
			Capabilities: []Capability{
				CapabilityViewDashboard,
				CapabilityRecordInspection,
				CapabilityReviewInspection,
			},
		},
		RoleProductionOperator: {
			Password:   PasswordlessPolicy(),
			RememberMe: true,
			Capabilities: []Capability{
				CapabilityViewDashboard,
				CapabilityRecordInspection,
			},
		},
	}
}

// Lookup returns the policy for role
func (rp RolePolicies) Lookup(role Role) (RolePolicy, bool) {
	p, ok := rp[role]
	return p, ok
}

// Has reports whether role has a policy in the table
func (rp RolePolicies) Has(role Role) bool {
	_, ok := rp.Lookup(role)
	return ok
}

// knownRole is a validation rule accepting only roles present in rp
func (rp RolePolicies) knownRole(value any) error {
	role, _ := value.(Role)
	if !rp.Has(role) {
		return errors.New("unknown role")
	}
	return nil
}

// IsValid checks if the role is one of the predefined roles. Roles added
// through a custom RolePolicies are checked with RolePolicies.Has.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdministrator, RoleMethodEngineer, RoleQualityControl, RoleProductionOperator:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all predefined roles, most privileged first
func GetAllRoles() []Role {
	return []Role{
		RoleAdministrator,
		RoleMethodEngineer,
		RoleQualityControl,
		RoleProductionOperator,
	}
}

// ParseRole safely parses a string into a Role
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
