package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AccountStateMachine moves accounts between active and disabled
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	CurrentStatus(account *Account) AccountStatus
}

// TransitionOption annotates a single transition in the activity log
type TransitionOption func(*transitionNote)

type transitionNote struct {
	reason   string
	metadata map[string]any
}

// WithTransitionReason records why the status changed
func WithTransitionReason(reason string) TransitionOption {
	return func(n *transitionNote) {
		n.reason = reason
	}
}

// WithTransitionMetadata adds metadata to the recorded event
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(n *transitionNote) {
		for k, v := range metadata {
			if n.metadata == nil {
				n.metadata = make(map[string]any, len(metadata))
			}
			n.metadata[k] = v
		}
	}
}

// StateMachineOption customizes state machine construction
type StateMachineOption func(*accountStateMachine)

func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activity = normalizeActivitySink(sink)
	}
}

func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// accountTransitions lists the allowed moves, keyed by the current status
var accountTransitions = map[AccountStatus]AccountStatus{
	AccountStatusActive:   AccountStatusDisabled,
	AccountStatusDisabled: AccountStatusActive,
}

type accountStateMachine struct {
	store    AccountStatusUpdater
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

// NewAccountStateMachine returns a state machine persisting through store
func NewAccountStateMachine(store AccountStatusUpdater, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		store:    store,
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Transition persists target for account. Moving to the current status is
// a no-op; disabling stamps DisabledAt and enabling clears it.
func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, invalidTransition(map[string]any{"to": string(target), "reason": "account is nil"})
	}

	from := sm.CurrentStatus(account)
	if from == target {
		return account, nil
	}

	if next, ok := accountTransitions[from]; !ok || next != target {
		return nil, invalidTransition(map[string]any{"from": string(from), "to": string(target)})
	}

	note := &transitionNote{}
	for _, opt := range opts {
		if opt != nil {
			opt(note)
		}
	}

	var disabledAt *time.Time
	if target == AccountStatusDisabled {
		disabledAt = timePtr(sm.now())
	}

	updated, err := sm.store.UpdateStatus(ctx, account.ID, target, WithDisabledAt(disabledAt))
	if err != nil {
		return nil, err
	}

	if updated != nil {
		*account = *updated
	} else {
		account.Status = target
		account.DisabledAt = disabledAt
	}

	recorder := activityRecorder{sink: sm.activity, logger: sm.logger, now: sm.now}
	recorder.record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		SubjectID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   note.eventMetadata(),
	})

	return account, nil
}

func (sm *accountStateMachine) CurrentStatus(account *Account) AccountStatus {
	if account == nil {
		return ""
	}
	account.EnsureStatus()
	return account.Status
}

func (n *transitionNote) eventMetadata() map[string]any {
	if n.reason == "" && len(n.metadata) == 0 {
		return nil
	}

	result := make(map[string]any, len(n.metadata)+1)
	for k, v := range n.metadata {
		result[k] = v
	}
	if n.reason != "" {
		result["reason"] = n.reason
	}
	return result
}

func invalidTransition(metadata map[string]any) error {
	return goerrors.New("invalid account state transition", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(metadata)
}
