package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EnrollmentCodes is the enrollment code store
type EnrollmentCodes interface {
	FindByCode(ctx context.Context, code string) (*EnrollmentCode, error)
	FindByCodeTx(ctx context.Context, tx bun.IDB, code string) (*EnrollmentCode, error)
	ExistsTx(ctx context.Context, tx bun.IDB, code string) (bool, error)
	InsertTx(ctx context.Context, tx bun.IDB, record *EnrollmentCode) (*EnrollmentCode, error)
	// MarkConsumedTx sets the consumption fields only if the code is still
	// unused. It reports false when another caller consumed it first.
	MarkConsumedTx(ctx context.Context, tx bun.IDB, code string, consumer uuid.UUID, at time.Time) (bool, error)
}

type enrollmentCodes struct {
	base repository.Repository[*EnrollmentCode]
	db   bun.IDB
}

var _ EnrollmentCodes = (*enrollmentCodes)(nil)

// NewEnrollmentCodesRepository creates the enrollment code store
func NewEnrollmentCodesRepository(db *bun.DB) EnrollmentCodes {
	return &enrollmentCodes{
		base: repository.NewRepository[*EnrollmentCode](db, repository.ModelHandlers[*EnrollmentCode]{
			NewRecord: func() *EnrollmentCode { return &EnrollmentCode{} },
			GetID: func(c *EnrollmentCode) uuid.UUID {
				if c == nil {
					return uuid.Nil
				}
				return c.ID
			},
			SetID: func(c *EnrollmentCode, id uuid.UUID) {
				if c != nil {
					c.ID = id
				}
			},
			GetIdentifier: func() string {
				return "code"
			},
		}),
		db: db,
	}
}

func (r *enrollmentCodes) FindByCode(ctx context.Context, code string) (*EnrollmentCode, error) {
	return r.FindByCodeTx(ctx, r.db, code)
}

func (r *enrollmentCodes) FindByCodeTx(ctx context.Context, tx bun.IDB, code string) (*EnrollmentCode, error) {
	record := &EnrollmentCode{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.code = ?", NormalizeCode(code)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *enrollmentCodes) ExistsTx(ctx context.Context, tx bun.IDB, code string) (bool, error) {
	return tx.NewSelect().
		Model((*EnrollmentCode)(nil)).
		Where("?TableAlias.code = ?", NormalizeCode(code)).
		Exists(ctx)
}

func (r *enrollmentCodes) InsertTx(ctx context.Context, tx bun.IDB, record *EnrollmentCode) (*EnrollmentCode, error) {
	record.Code = NormalizeCode(record.Code)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.base.CreateTx(ctx, tx, record)
}

func (r *enrollmentCodes) MarkConsumedTx(ctx context.Context, tx bun.IDB, code string, consumer uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*EnrollmentCode)(nil)).
		Set("consumed_at = ?", at).
		Set("consumed_by = ?", consumer).
		Where("code = ?", NormalizeCode(code)).
		Where("consumed_at IS NULL").
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

// NormalizeCode trims and upper-cases a user entered code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
