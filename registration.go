package auth

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var usernameRx = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// SubmitRegistrationMessage is the enrollment form. Assignments preset on
// the code take precedence over the requested ones.
type SubmitRegistrationMessage struct {
	Code      string
	Username  string
	Password  string
	UnitID    *int64
	SubUnitID *int64
	GroupID   *int64
}

func (m SubmitRegistrationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Code, validation.Required),
		validation.Field(&m.Username,
			validation.Required,
			validation.RuneLength(3, 64),
			validation.Match(usernameRx),
		),
	)
}

// ApprovalOverrides replace the requested values when set
type ApprovalOverrides struct {
	UnitID    *int64
	SubUnitID *int64
	GroupID   *int64
	Password  *string
}

// RegistrationWorkflow turns enrollment submissions into accounts once a
// reviewer approves them
type RegistrationWorkflow struct {
	repo     RepositoryManager
	codes    *CodeRegistry
	hasher   PasswordHasher
	policies RolePolicies
	now      func() time.Time
	logger   Logger
	activity ActivitySink
	metrics  *Metrics
}

// NewRegistrationWorkflow creates a workflow that validates and consumes
// codes through codes
func NewRegistrationWorkflow(repo RepositoryManager, codes *CodeRegistry) *RegistrationWorkflow {
	return &RegistrationWorkflow{
		repo:     repo,
		codes:    codes,
		hasher:   defaultHasher,
		policies: DefaultRolePolicies(),
		now:      time.Now,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (w *RegistrationWorkflow) WithHasher(h PasswordHasher) *RegistrationWorkflow {
	if h != nil {
		w.hasher = h
	}
	return w
}

func (w *RegistrationWorkflow) WithPolicies(p RolePolicies) *RegistrationWorkflow {
	if p != nil {
		w.policies = p
	}
	return w
}

func (w *RegistrationWorkflow) WithClock(now func() time.Time) *RegistrationWorkflow {
	if now != nil {
		w.now = now
	}
	return w
}

func (w *RegistrationWorkflow) WithLogger(l Logger) *RegistrationWorkflow {
	if l != nil {
		w.logger = l
	}
	return w
}

func (w *RegistrationWorkflow) WithActivitySink(s ActivitySink) *RegistrationWorkflow {
	w.activity = normalizeActivitySink(s)
	return w
}

func (w *RegistrationWorkflow) WithMetrics(m *Metrics) *RegistrationWorkflow {
	w.metrics = m
	return w
}

// Submit stores a pending request for a valid code. The code is not consumed.
func (w *RegistrationWorkflow) Submit(ctx context.Context, msg SubmitRegistrationMessage) (*RegistrationRequest, error) {
	msg.Code = NormalizeCode(msg.Code)
	msg.Username = strings.TrimSpace(msg.Username)

	if err := msg.Validate(); err != nil {
		return nil, newInputError("invalid registration", err)
	}

	var created *RegistrationRequest
	err := w.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		check, err := w.codes.ValidateTx(ctx, tx, msg.Code)
		if err != nil {
			return err
		}
		if !check.Valid {
			return newInvalidCodeError(check.Reason)
		}

		if err := w.policies.ValidatePassword(check.Role, msg.Password); err != nil {
			return err
		}

		pending, err := w.repo.Registrations().PendingForCodeExistsTx(ctx, tx, check.Code)
		if err != nil {
			return err
		}
		if pending {
			return ErrCodePending
		}

		if err := w.ensureUsernameFree(ctx, tx, msg.Username); err != nil {
			return err
		}

		record := &RegistrationRequest{
			Code:        check.Code,
			Username:    msg.Username,
			Role:        check.Role,
			UnitID:      preferred(check.UnitID, msg.UnitID),
			SubUnitID:   preferred(check.SubUnitID, msg.SubUnitID),
			GroupID:     preferred(check.GroupID, msg.GroupID),
			Status:      RegistrationPending,
			SubmittedAt: w.now(),
		}

		if msg.Password != "" {
			digest, err := w.hasher.HashPassword(msg.Password)
			if err != nil {
				return err
			}
			record.PasswordHash = &digest
		}

		created, err = w.repo.Registrations().InsertTx(ctx, tx, record)
		return err
	})
	if err != nil {
		w.logger.Debug("registration rejected at submission", "username", msg.Username, "error", err)
		return nil, err
	}

	w.metrics.registration("submitted")
	w.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventRegistrationSubmitted,
		SubjectID: created.ID.String(),
		Metadata: map[string]any{
			"username": created.Username,
			"role":     string(created.Role),
			"code":     created.Code,
		},
	})

	return created, nil
}

// Approve consumes the code and creates the account in one transaction.
// If any step fails the request stays pending and the code unused.
func (w *RegistrationWorkflow) Approve(ctx context.Context, requestID, reviewerID uuid.UUID, overrides ApprovalOverrides) (*Account, error) {
	reviewer, req, err := w.authorize(ctx, requestID, reviewerID)
	if err != nil {
		return nil, err
	}

	if overrides.UnitID != nil && !w.policies.canReviewUnit(reviewer, overrides.UnitID) {
		return nil, ErrForbidden
	}

	if overrides.Password != nil {
		if err := w.policies.ValidatePassword(req.Role, *overrides.Password); err != nil {
			return nil, err
		}
	}

	var account *Account
	err = w.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := w.repo.Registrations().FindByIDTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !current.IsPending() {
			return ErrRequestNotPending
		}

		accountID := uuid.New()
		if err := w.codes.ConsumeTx(ctx, tx, current.Code, accountID); err != nil {
			return err
		}

		digest, err := w.resolvePassword(current, overrides)
		if err != nil {
			return err
		}

		taken, err := w.repo.Accounts().UsernameExistsTx(ctx, tx, current.Username)
		if err != nil {
			return err
		}
		if taken {
			return newConflictError("username was taken before the request was approved", map[string]any{
				"username":   current.Username,
				"request_id": current.ID.String(),
			})
		}

		now := w.now()
		account, err = w.repo.Accounts().InsertTx(ctx, tx, &Account{
			ID:           accountID,
			Username:     current.Username,
			PasswordHash: digest,
			Role:         current.Role,
			UnitID:       preferred(overrides.UnitID, current.UnitID),
			SubUnitID:    preferred(overrides.SubUnitID, current.SubUnitID),
			GroupID:      preferred(overrides.GroupID, current.GroupID),
			Status:       AccountStatusActive,
			CreatedAt:    timePtr(now),
			UpdatedAt:    timePtr(now),
		})
		if err != nil {
			return err
		}

		current.Status = RegistrationApproved
		current.ReviewerID = uuidPtr(reviewer.ID)
		current.ProcessedAt = timePtr(now)
		current.AccountID = uuidPtr(account.ID)
		current.UnitID = account.UnitID
		current.SubUnitID = account.SubUnitID
		current.GroupID = account.GroupID

		ok, err := w.repo.Registrations().UpdateDecisionTx(ctx, tx, current)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestNotPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("registration approved", "request", requestID, "account", account.ID, "reviewer", reviewer.ID)
	w.metrics.registration("approved")
	w.metrics.codeEvent("consumed")
	w.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventRegistrationApproved,
		Actor:     AccountActor(reviewer),
		SubjectID: requestID.String(),
		Metadata: map[string]any{
			"account_id": account.ID.String(),
			"username":   account.Username,
			"role":       string(account.Role),
		},
	})

	return account, nil
}

// Reject closes the request with a reason. The code stays usable.
func (w *RegistrationWorkflow) Reject(ctx context.Context, requestID, reviewerID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return newInputError("a rejection reason is required", nil)
	}

	reviewer, req, err := w.authorize(ctx, requestID, reviewerID)
	if err != nil {
		return err
	}

	err = w.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		req.Status = RegistrationRejected
		req.ReviewerID = uuidPtr(reviewer.ID)
		req.ProcessedAt = timePtr(w.now())
		req.RejectionReason = reason

		ok, err := w.repo.Registrations().UpdateDecisionTx(ctx, tx, req)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestNotPending
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("registration rejected", "request", requestID, "reviewer", reviewer.ID)
	w.metrics.registration("rejected")
	w.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventRegistrationRejected,
		Actor:     AccountActor(reviewer),
		SubjectID: requestID.String(),
		Metadata:  map[string]any{"reason": reason},
	})

	return nil
}

// ListPending returns a snapshot of the pending requests reviewerID may act
// on, oldest submission first.
func (w *RegistrationWorkflow) ListPending(ctx context.Context, reviewerID uuid.UUID) ([]*RegistrationRequest, error) {
	reviewer, err := w.repo.Accounts().FindByID(ctx, reviewerID)
	if err != nil {
		return nil, err
	}

	unitID, ok := w.policies.reviewUnitFilter(reviewer)
	if !ok {
		return []*RegistrationRequest{}, nil
	}

	records, err := w.repo.Registrations().ListPending(ctx, unitID)
	if err != nil {
		return nil, err
	}

	out := make([]*RegistrationRequest, 0, len(records))
	for _, r := range records {
		if w.policies.CanReview(reviewer, r) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})

	return out, nil
}

// authorize loads both parties and runs the policy before the state check,
// so a denied reviewer always gets Forbidden.
func (w *RegistrationWorkflow) authorize(ctx context.Context, requestID, reviewerID uuid.UUID) (*Account, *RegistrationRequest, error) {
	reviewer, err := w.repo.Accounts().FindByID(ctx, reviewerID)
	if err != nil {
		return nil, nil, err
	}

	req, err := w.repo.Registrations().FindByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	if !w.policies.CanReview(reviewer, req) {
		w.logger.Warn("registration review denied", "request", requestID, "reviewer", reviewerID)
		return nil, nil, ErrForbidden
	}

	if !req.IsPending() {
		return nil, nil, ErrRequestNotPending
	}

	return reviewer, req, nil
}

func (w *RegistrationWorkflow) ensureUsernameFree(ctx context.Context, tx bun.IDB, username string) error {
	taken, err := w.repo.Accounts().UsernameExistsTx(ctx, tx, username)
	if err != nil {
		return err
	}
	if !taken {
		taken, err = w.repo.Registrations().PendingUsernameExistsTx(ctx, tx, username)
		if err != nil {
			return err
		}
	}
	if taken {
		return ErrUsernameTaken
	}
	return nil
}

// resolvePassword picks the override, then the submitted digest, then the
// role default. Only passwordless roles may end up without a digest.
func (w *RegistrationWorkflow) resolvePassword(req *RegistrationRequest, overrides ApprovalOverrides) (*string, error) {
	if overrides.Password != nil && *overrides.Password != "" {
		digest, err := w.hasher.HashPassword(*overrides.Password)
		if err != nil {
			return nil, err
		}
		return &digest, nil
	}

	if req.PasswordHash != nil && *req.PasswordHash != "" {
		return req.PasswordHash, nil
	}

	policy, ok := w.policies.Lookup(req.Role)
	if !ok || !policy.Password.AllowsPasswordless() {
		return nil, newInputError("a password is required for this role", nil).
			WithMetadata(map[string]any{"role": string(req.Role)})
	}
	return nil, nil
}

func (w *RegistrationWorkflow) recorder() activityRecorder {
	return activityRecorder{sink: w.activity, logger: w.logger, now: w.now}
}

func preferred(primary, fallback *int64) *int64 {
	if primary != nil {
		return primary
	}
	return fallback
}
