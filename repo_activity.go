package auth

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// ActivityLog persists activity events and lists them back in order
type ActivityLog interface {
	ActivitySink
	List(ctx context.Context, subjectID string, limit int) ([]*ActivityRecord, error)
}

type activityLog struct {
	db      bun.IDB
	mu      sync.Mutex
	entropy io.Reader
}

var _ ActivityLog = (*activityLog)(nil)

// NewActivityLogRepository creates an ActivityLog keyed by monotonic ULIDs
func NewActivityLogRepository(db *bun.DB) ActivityLog {
	return &activityLog{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (l *activityLog) newID(at time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), l.entropy).String()
}

// Record implements ActivitySink
func (l *activityLog) Record(ctx context.Context, event ActivityEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	metadata := map[string]any{}
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	if event.FromStatus != "" {
		metadata["from_status"] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		metadata["to_status"] = string(event.ToStatus)
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	record := &ActivityRecord{
		ID:         l.newID(at),
		EventType:  string(event.EventType),
		ActorID:    event.Actor.ID,
		ActorType:  event.Actor.Type,
		SubjectID:  event.SubjectID,
		Metadata:   metadata,
		OccurredAt: at,
	}

	_, err := l.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// List returns the most recent records first, optionally for one subject
func (l *activityLog) List(ctx context.Context, subjectID string, limit int) ([]*ActivityRecord, error) {
	records := []*ActivityRecord{}
	q := l.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.id DESC")

	if subjectID != "" {
		q = q.Where("?TableAlias.subject_id = ?", subjectID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
