package auth

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	codeLetters      = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeDigits       = "0123456789"
	codeLetterLength = 2
	codeDigitLength  = 6
)

// CodeInvalidReason tells why a code failed validation
type CodeInvalidReason string

const (
	CodeReasonNotFound    CodeInvalidReason = "not_found"
	CodeReasonAlreadyUsed CodeInvalidReason = "already_used"
	CodeReasonExpired     CodeInvalidReason = "expired"
)

// CodeValidation is the result of checking a code. When Valid is false
// only Code and Reason are set.
type CodeValidation struct {
	Valid     bool
	Reason    CodeInvalidReason
	Code      string
	Role      Role
	UnitID    *int64
	SubUnitID *int64
	GroupID   *int64
	ExpiresAt *time.Time
}

// IssueCodeMessage describes the code to issue. A zero TTL falls back to
// the registry default.
type IssueCodeMessage struct {
	Role      Role
	UnitID    *int64
	SubUnitID *int64
	GroupID   *int64
	TTL       time.Duration
}

func (m IssueCodeMessage) Validate() error {
	return m.ValidateWith(DefaultRolePolicies())
}

// ValidateWith checks the message against the roles known to rp
func (m IssueCodeMessage) ValidateWith(rp RolePolicies) error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Role, validation.Required, validation.By(rp.knownRole)),
		validation.Field(&m.TTL, validation.Min(time.Duration(0))),
	)
}

// CodeRegistry issues, validates and consumes enrollment codes
type CodeRegistry struct {
	repo       RepositoryManager
	policies   RolePolicies
	now        func() time.Time
	random     io.Reader
	defaultTTL time.Duration
	attempts   int
	logger     Logger
	activity   ActivitySink
	metrics    *Metrics
}

// NewCodeRegistry creates a registry backed by repo
func NewCodeRegistry(repo RepositoryManager) *CodeRegistry {
	return &CodeRegistry{
		repo:     repo,
		policies: DefaultRolePolicies(),
		now:      time.Now,
		random:   rand.Reader,
		attempts: DefaultOptions().Codes.GenerateAttempts,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (r *CodeRegistry) WithLogger(l Logger) *CodeRegistry {
	if l != nil {
		r.logger = l
	}
	return r
}

func (r *CodeRegistry) WithClock(now func() time.Time) *CodeRegistry {
	if now != nil {
		r.now = now
	}
	return r
}

func (r *CodeRegistry) WithPolicies(p RolePolicies) *CodeRegistry {
	if p != nil {
		r.policies = p
	}
	return r
}

func (r *CodeRegistry) WithConfig(cfg Config) *CodeRegistry {
	if cfg != nil {
		r.defaultTTL = cfg.GetCodeDefaultTTL()
	}
	return r
}

func (r *CodeRegistry) WithGenerateAttempts(n int) *CodeRegistry {
	if n > 0 {
		r.attempts = n
	}
	return r
}

// WithRandom overrides the entropy source used to generate codes
func (r *CodeRegistry) WithRandom(src io.Reader) *CodeRegistry {
	if src != nil {
		r.random = src
	}
	return r
}

func (r *CodeRegistry) WithActivitySink(s ActivitySink) *CodeRegistry {
	r.activity = normalizeActivitySink(s)
	return r
}

func (r *CodeRegistry) WithMetrics(m *Metrics) *CodeRegistry {
	r.metrics = m
	return r
}

// Issue creates a new code on behalf of issuerID
func (r *CodeRegistry) Issue(ctx context.Context, issuerID uuid.UUID, msg IssueCodeMessage) (*EnrollmentCode, error) {
	if err := msg.ValidateWith(r.policies); err != nil {
		return nil, newInputError("invalid enrollment code request", err)
	}

	issuer, err := r.repo.Accounts().FindByID(ctx, issuerID)
	if err != nil {
		return nil, err
	}

	if !r.policies.CanIssueCode(issuer, msg.Role, msg.UnitID) {
		return nil, ErrForbidden
	}

	now := r.now()
	record := &EnrollmentCode{
		Role:      msg.Role,
		UnitID:    msg.UnitID,
		SubUnitID: msg.SubUnitID,
		GroupID:   msg.GroupID,
		CreatedBy: uuidPtr(issuer.ID),
		CreatedAt: timePtr(now),
	}

	ttl := msg.TTL
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	if ttl > 0 {
		record.ExpiresAt = timePtr(now.Add(ttl))
	}

	var created *EnrollmentCode
	err = r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i := 0; i < r.attempts; i++ {
			code, err := r.generate()
			if err != nil {
				return err
			}

			exists, err := r.repo.Codes().ExistsTx(ctx, tx, code)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			record.Code = code
			created, err = r.repo.Codes().InsertTx(ctx, tx, record)
			return err
		}
		return goerrors.New("failed to generate a unique enrollment code", goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{"attempts": r.attempts})
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("enrollment code issued", "code", created.Code, "role", created.Role, "issuer", issuer.ID)
	r.metrics.codeEvent("issued")
	r.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventCodeIssued,
		Actor:     AccountActor(issuer),
		SubjectID: created.Code,
		Metadata:  map[string]any{"role": string(created.Role)},
	})

	return created, nil
}

// Validate checks code without changing it. Invalid codes are reported in
// the result, not as an error; errors are storage failures.
func (r *CodeRegistry) Validate(ctx context.Context, code string) (CodeValidation, error) {
	record, err := r.repo.Codes().FindByCode(ctx, code)
	return r.evaluate(code, record, err)
}

// ValidateTx is Validate inside an open transaction
func (r *CodeRegistry) ValidateTx(ctx context.Context, tx bun.IDB, code string) (CodeValidation, error) {
	record, err := r.repo.Codes().FindByCodeTx(ctx, tx, code)
	return r.evaluate(code, record, err)
}

func (r *CodeRegistry) evaluate(code string, record *EnrollmentCode, err error) (CodeValidation, error) {
	result := CodeValidation{Code: NormalizeCode(code)}
	if err != nil {
		if IsNotFound(err) {
			result.Reason = CodeReasonNotFound
			return result, nil
		}
		return result, err
	}

	switch {
	case record.IsConsumed():
		result.Reason = CodeReasonAlreadyUsed
	case record.IsExpired(r.now()):
		result.Reason = CodeReasonExpired
	default:
		result.Valid = true
		result.Role = record.Role
		result.UnitID = record.UnitID
		result.SubUnitID = record.SubUnitID
		result.GroupID = record.GroupID
		result.ExpiresAt = record.ExpiresAt
	}
	return result, nil
}

// Consume marks code as used by consumerID
func (r *CodeRegistry) Consume(ctx context.Context, code string, consumerID uuid.UUID) error {
	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return r.ConsumeTx(ctx, tx, code, consumerID)
	})
	if err != nil {
		return err
	}

	r.metrics.codeEvent("consumed")
	r.recorder().record(ctx, ActivityEvent{
		EventType: ActivityEventCodeConsumed,
		SubjectID: NormalizeCode(code),
		Metadata:  map[string]any{"consumer_id": consumerID.String()},
	})
	return nil
}

// ConsumeTx marks code as used inside an open transaction. It fails with
// ErrCodeNotFound, ErrCodeAlreadyUsed or ErrCodeExpired.
func (r *CodeRegistry) ConsumeTx(ctx context.Context, tx bun.IDB, code string, consumerID uuid.UUID) error {
	record, err := r.repo.Codes().FindByCodeTx(ctx, tx, code)
	if err != nil {
		return err
	}

	now := r.now()
	if record.IsConsumed() {
		return ErrCodeAlreadyUsed
	}
	if record.IsExpired(now) {
		return ErrCodeExpired
	}

	ok, err := r.repo.Codes().MarkConsumedTx(ctx, tx, record.Code, consumerID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeAlreadyUsed
	}
	return nil
}

func (r *CodeRegistry) generate() (string, error) {
	buf := make([]byte, 0, codeLetterLength+codeDigitLength)
	for i := 0; i < codeLetterLength; i++ {
		c, err := r.pick(codeLetters)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for i := 0; i < codeDigitLength; i++ {
		c, err := r.pick(codeDigits)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	return string(buf), nil
}

func (r *CodeRegistry) pick(alphabet string) (byte, error) {
	n, err := rand.Int(r.random, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

func (r *CodeRegistry) recorder() activityRecorder {
	return activityRecorder{sink: r.activity, logger: r.logger, now: r.now}
}

