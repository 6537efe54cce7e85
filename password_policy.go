package auth

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	upperCaseRx = regexp.MustCompile(`[A-Z]`)
	lowerCaseRx = regexp.MustCompile(`[a-z]`)
	digitRx     = regexp.MustCompile(`[0-9]`)
)

// PasswordPolicy describes what a role requires from a password
type PasswordPolicy struct {
	// Required rejects an empty password
	Required     bool
	MinLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

// StrongPasswordPolicy requires 8 characters with upper, lower and digit
func StrongPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		Required:     true,
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

// PasswordlessPolicy accepts an absent or short password
func PasswordlessPolicy() PasswordPolicy {
	return PasswordPolicy{}
}

// AllowsPasswordless reports whether an account may exist without a digest
func (p PasswordPolicy) AllowsPasswordless() bool {
	return !p.Required
}

func (p PasswordPolicy) rules() []validation.Rule {
	rules := []validation.Rule{}
	if p.Required {
		rules = append(rules, validation.Required.Error("password is required"))
	}
	if p.MinLength > 0 {
		rules = append(rules, validation.RuneLength(p.MinLength, 0).
			Error(fmt.Sprintf("password must be at least %d characters long", p.MinLength)))
	}
	if p.RequireUpper {
		rules = append(rules, validation.Match(upperCaseRx).
			Error("password must contain an uppercase letter"))
	}
	if p.RequireLower {
		rules = append(rules, validation.Match(lowerCaseRx).
			Error("password must contain a lowercase letter"))
	}
	if p.RequireDigit {
		rules = append(rules, validation.Match(digitRx).
			Error("password must contain a digit"))
	}
	return rules
}

// Validate checks password against the policy
func (p PasswordPolicy) Validate(password string) error {
	if err := validation.Validate(password, p.rules()...); err != nil {
		return newInputError("password does not satisfy the role policy", err)
	}
	return nil
}

// ValidatePassword checks password against the default policy of role
func ValidatePassword(role Role, password string) error {
	return defaultPolicies.ValidatePassword(role, password)
}

// ValidatePassword checks password against the policy of role
func (rp RolePolicies) ValidatePassword(role Role, password string) error {
	policy, ok := rp.Lookup(role)
	if !ok {
		return newInputError("unknown role", nil).
			WithMetadata(map[string]any{"role": string(role)})
	}
	return policy.Password.Validate(password)
}

var defaultPolicies = DefaultRolePolicies()
