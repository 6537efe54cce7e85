package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegistrationRequests is the registration request store
type RegistrationRequests interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RegistrationRequest, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*RegistrationRequest, error)
	InsertTx(ctx context.Context, tx bun.IDB, record *RegistrationRequest) (*RegistrationRequest, error)
	PendingUsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	PendingForCodeExistsTx(ctx context.Context, tx bun.IDB, code string) (bool, error)
	// ListPending returns pending requests, restricted to unitID when it is set.
	ListPending(ctx context.Context, unitID *int64) ([]*RegistrationRequest, error)
	// UpdateDecisionTx writes the review outcome only while the request is
	// still pending. It reports false when the request already moved on.
	UpdateDecisionTx(ctx context.Context, tx bun.IDB, record *RegistrationRequest) (bool, error)
}

type registrationRequests struct {
	base repository.Repository[*RegistrationRequest]
	db   bun.IDB
}

var _ RegistrationRequests = (*registrationRequests)(nil)

// NewRegistrationRequestsRepository creates the registration request store
func NewRegistrationRequestsRepository(db *bun.DB) RegistrationRequests {
	return &registrationRequests{
		base: repository.NewRepository[*RegistrationRequest](db, repository.ModelHandlers[*RegistrationRequest]{
			NewRecord: func() *RegistrationRequest { return &RegistrationRequest{} },
			GetID: func(r *RegistrationRequest) uuid.UUID {
				if r == nil {
					return uuid.Nil
				}
				return r.ID
			},
			SetID: func(r *RegistrationRequest, id uuid.UUID) {
				if r != nil {
					r.ID = id
				}
			},
		}),
		db: db,
	}
}

func (r *registrationRequests) FindByID(ctx context.Context, id uuid.UUID) (*RegistrationRequest, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

func (r *registrationRequests) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*RegistrationRequest, error) {
	record := &RegistrationRequest{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *registrationRequests) InsertTx(ctx context.Context, tx bun.IDB, record *RegistrationRequest) (*RegistrationRequest, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Status == "" {
		record.Status = RegistrationPending
	}
	return r.base.CreateTx(ctx, tx, record)
}

func (r *registrationRequests) PendingUsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*RegistrationRequest)(nil)).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Where("?TableAlias.status = ?", RegistrationPending).
		Exists(ctx)
}

func (r *registrationRequests) PendingForCodeExistsTx(ctx context.Context, tx bun.IDB, code string) (bool, error) {
	return tx.NewSelect().
		Model((*RegistrationRequest)(nil)).
		Where("?TableAlias.code = ?", NormalizeCode(code)).
		Where("?TableAlias.status = ?", RegistrationPending).
		Exists(ctx)
}

func (r *registrationRequests) ListPending(ctx context.Context, unitID *int64) ([]*RegistrationRequest, error) {
	records := []*RegistrationRequest{}
	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", RegistrationPending)

	if unitID != nil {
		q = q.Where("?TableAlias.unit_id = ?", *unitID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *registrationRequests) UpdateDecisionTx(ctx context.Context, tx bun.IDB, record *RegistrationRequest) (bool, error) {
	processedAt := record.ProcessedAt
	if processedAt == nil {
		processedAt = timePtr(time.Now())
	}

	res, err := tx.NewUpdate().
		Model((*RegistrationRequest)(nil)).
		Set("status = ?", record.Status).
		Set("reviewer_id = ?", record.ReviewerID).
		Set("processed_at = ?", processedAt).
		Set("rejection_reason = ?", record.RejectionReason).
		Set("account_id = ?", record.AccountID).
		Set("unit_id = ?", record.UnitID).
		Set("sub_unit_id = ?", record.SubUnitID).
		Set("group_id = ?", record.GroupID).
		Where("id = ?", record.ID).
		Where("status = ?", RegistrationPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
