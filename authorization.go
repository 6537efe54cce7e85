package auth

// CanReview reports whether reviewer may approve or reject req under the
// default role policies. It has no side effects.
func CanReview(reviewer *Account, req *RegistrationRequest) bool {
	return defaultPolicies.CanReview(reviewer, req)
}

// CanIssueCode reports whether issuer may create a code for role in unitID
// under the default role policies.
func CanIssueCode(issuer *Account, role Role, unitID *int64) bool {
	return defaultPolicies.CanIssueCode(issuer, role, unitID)
}

// CanAccess reports whether account holds capability under the default role policies
func CanAccess(account *Account, capability Capability) bool {
	return defaultPolicies.CanAccess(account, capability)
}

// CanReview reports whether reviewer may act on req
func (rp RolePolicies) CanReview(reviewer *Account, req *RegistrationRequest) bool {
	if req == nil {
		return false
	}
	return rp.canReviewUnit(reviewer, req.UnitID)
}

func (rp RolePolicies) canReviewUnit(reviewer *Account, unitID *int64) bool {
	if reviewer == nil || !reviewer.IsActive() {
		return false
	}

	policy, ok := rp.Lookup(reviewer.Role)
	if !ok {
		return false
	}

	return inScope(policy.ReviewScope, reviewer.UnitID, unitID)
}

// CanIssueCode reports whether issuer may create a code for role in unitID
func (rp RolePolicies) CanIssueCode(issuer *Account, role Role, unitID *int64) bool {
	if issuer == nil || !issuer.IsActive() {
		return false
	}

	policy, ok := rp.Lookup(issuer.Role)
	if !ok || !policy.CanIssueRole(role) {
		return false
	}

	return inScope(policy.IssueScope, issuer.UnitID, unitID)
}

// CanAccess reports whether account holds capability
func (rp RolePolicies) CanAccess(account *Account, capability Capability) bool {
	if account == nil || !account.IsActive() {
		return false
	}

	policy, ok := rp.Lookup(account.Role)
	if !ok {
		return false
	}
	return policy.Allows(capability)
}

// RemembersSessions reports whether role may hold a remember token
func (rp RolePolicies) RemembersSessions(role Role) bool {
	policy, ok := rp.Lookup(role)
	return ok && policy.RememberMe
}

// reviewUnitFilter returns the unit a reviewer is restricted to, and false
// when the reviewer may see nothing at all.
func (rp RolePolicies) reviewUnitFilter(reviewer *Account) (*int64, bool) {
	if reviewer == nil || !reviewer.IsActive() {
		return nil, false
	}

	policy, ok := rp.Lookup(reviewer.Role)
	if !ok {
		return nil, false
	}

	switch policy.ReviewScope {
	case ScopeAll:
		return nil, true
	case ScopeUnit:
		if reviewer.UnitID == nil {
			return nil, false
		}
		return reviewer.UnitID, true
	default:
		return nil, false
	}
}

// a unit scoped actor without a unit is granted nothing
func inScope(scope Scope, actorUnit, targetUnit *int64) bool {
	switch scope {
	case ScopeAll:
		return true
	case ScopeUnit:
		return actorUnit != nil && targetUnit != nil && *actorUnit == *targetUnit
	default:
		return false
	}
}
