package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountStatusChanged  ActivityEventType = "account.status.changed"
	ActivityEventAccountProvisioned    ActivityEventType = "account.provisioned"
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventRememberLogin         ActivityEventType = "auth.remember.login"
	ActivityEventRememberEnabled       ActivityEventType = "auth.remember.enabled"
	ActivityEventSessionEnded          ActivityEventType = "auth.session.ended"
	ActivityEventCodeIssued            ActivityEventType = "code.issued"
	ActivityEventCodeConsumed          ActivityEventType = "code.consumed"
	ActivityEventRegistrationSubmitted ActivityEventType = "registration.submitted"
	ActivityEventRegistrationApproved  ActivityEventType = "registration.approved"
	ActivityEventRegistrationRejected  ActivityEventType = "registration.rejected"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	SubjectID  string
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// AccountActor returns the actor reference of an account
func AccountActor(a *Account) ActorRef {
	if a == nil {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: a.ID.String(), Type: string(a.Role)}
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// activityRecorder stamps events and logs sink failures; recording never
// fails the operation that produced the event.
type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func (r activityRecorder) record(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}
	if event.OccurredAt.IsZero() {
		now := r.now
		if now == nil {
			now = time.Now
		}
		event.OccurredAt = now()
	}
	if err := normalizeActivitySink(r.sink).Record(ctx, event); err != nil && r.logger != nil {
		r.logger.Warn("activity sink error", "event", event.EventType, "error", err)
	}
}
