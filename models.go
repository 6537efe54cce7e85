package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	// AccountStatusActive can log in
	AccountStatusActive AccountStatus = "active"
	// AccountStatusDisabled is kept for history but can not log in
	AccountStatusDisabled AccountStatus = "disabled"
)

// Account is the identity record. Accounts are never deleted, only disabled.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string        `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash   *string       `bun:"password_hash" json:"-"`
	Role           Role          `bun:"role,notnull" json:"role,omitempty"`
	UnitID         *int64        `bun:"unit_id" json:"unit_id,omitempty"`
	SubUnitID      *int64        `bun:"sub_unit_id" json:"sub_unit_id,omitempty"`
	GroupID        *int64        `bun:"group_id" json:"group_id,omitempty"`
	Status         AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	LoginAttempts  int           `bun:"login_attempts,notnull,default:0" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time    `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastLoginAt    *time.Time    `bun:"last_login_at" json:"last_login_at,omitempty"`
	DisabledAt     *time.Time    `bun:"disabled_at" json:"disabled_at,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus defaults an empty status to active
func (a *Account) EnsureStatus() {
	if a != nil && a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// IsActive reports whether the account may authenticate
func (a *Account) IsActive() bool {
	return a != nil && (a.Status == AccountStatusActive || a.Status == "")
}

// HasPassword reports whether a digest is stored for the account
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != nil && *a.PasswordHash != ""
}

// EnrollmentCode is a single use token that pre-authorizes a role and
// an organizational assignment. Only consumption writes to it.
type EnrollmentCode struct {
	bun.BaseModel `bun:"table:enrollment_codes,alias:ec"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Code          string     `bun:"code,notnull,unique" json:"code,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	UnitID        *int64     `bun:"unit_id" json:"unit_id,omitempty"`
	SubUnitID     *int64     `bun:"sub_unit_id" json:"sub_unit_id,omitempty"`
	GroupID       *int64     `bun:"group_id" json:"group_id,omitempty"`
	CreatedBy     *uuid.UUID `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at" json:"consumed_at,omitempty"`
	ConsumedBy    *uuid.UUID `bun:"consumed_by,type:uuid" json:"consumed_by,omitempty"`
}

// IsConsumed reports whether the code was used
func (c *EnrollmentCode) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// IsExpired reports whether the code is past its expiry at the given time
func (c *EnrollmentCode) IsExpired(at time.Time) bool {
	return c.ExpiresAt != nil && !at.Before(*c.ExpiresAt)
}

// RegistrationStatus is the state of a registration request
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
	RegistrationRejected RegistrationStatus = "rejected"
)

// RegistrationRequest is an application for an account awaiting review.
// Status moves once from pending to approved or rejected.
type RegistrationRequest struct {
	bun.BaseModel   `bun:"table:registration_requests,alias:rr"`
	ID              uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Code            string             `bun:"code,notnull" json:"code,omitempty"`
	Username        string             `bun:"username,notnull" json:"username,omitempty"`
	PasswordHash    *string            `bun:"password_hash" json:"-"`
	Role            Role               `bun:"role,notnull" json:"role,omitempty"`
	UnitID          *int64             `bun:"unit_id" json:"unit_id,omitempty"`
	SubUnitID       *int64             `bun:"sub_unit_id" json:"sub_unit_id,omitempty"`
	GroupID         *int64             `bun:"group_id" json:"group_id,omitempty"`
	Status          RegistrationStatus `bun:"status,notnull" json:"status,omitempty"`
	SubmittedAt     time.Time          `bun:"submitted_at,notnull" json:"submitted_at"`
	ReviewerID      *uuid.UUID         `bun:"reviewer_id,type:uuid" json:"reviewer_id,omitempty"`
	ProcessedAt     *time.Time         `bun:"processed_at" json:"processed_at,omitempty"`
	RejectionReason string             `bun:"rejection_reason" json:"rejection_reason,omitempty"`
	AccountID       *uuid.UUID         `bun:"account_id,type:uuid" json:"account_id,omitempty"`
}

// IsPending reports whether the request still awaits review
func (r *RegistrationRequest) IsPending() bool {
	return r != nil && r.Status == RegistrationPending
}

// RememberToken lets an eligible account re-authenticate without a password.
// Only the SHA-256 of the secret is stored. Secret is set once, on creation.
type RememberToken struct {
	bun.BaseModel `bun:"table:remember_tokens,alias:rt"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	TokenHash     string    `bun:"token_hash,notnull,unique" json:"-"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Secret        string    `bun:"-" json:"secret,omitempty"`
}

// IsExpired reports whether the token is inert at the given time
func (t *RememberToken) IsExpired(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// ActivityRecord is the persisted form of an ActivityEvent
type ActivityRecord struct {
	bun.BaseModel `bun:"table:activity_log,alias:al"`
	ID            string         `bun:"id,pk" json:"id"`
	EventType     string         `bun:"event_type,notnull" json:"event_type"`
	ActorID       string         `bun:"actor_id" json:"actor_id,omitempty"`
	ActorType     string         `bun:"actor_type" json:"actor_type,omitempty"`
	SubjectID     string         `bun:"subject_id" json:"subject_id,omitempty"`
	Metadata      map[string]any `bun:"metadata,type:json" json:"metadata,omitempty"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull" json:"occurred_at"`
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
