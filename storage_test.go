package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/qcdash/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func newMockRepository(t *testing.T) (auth.RepositoryManager, sqlmock.Sqlmock) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	return auth.NewRepositoryManager(db), mock
}

func TestAccountsFindByUsernameNoRows(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .* FROM "accounts" AS "acc" WHERE \("acc"\.username = 'ghost'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}))

	account, err := repo.Accounts().FindByUsername(context.Background(), "  ghost ")
	assert.Nil(t, account)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsFindByIDStorageError(t *testing.T) {
	repo, mock := newMockRepository(t)
	storageErr := errors.New("disk I/O error")

	mock.ExpectQuery(`SELECT .* FROM "accounts"`).WillReturnError(storageErr)

	account, err := repo.Accounts().FindByID(context.Background(), uuid.New())
	assert.Nil(t, account)
	assert.ErrorIs(t, err, storageErr)
	assert.False(t, auth.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsCountActiveByRole(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "accounts" AS "acc" WHERE .*'administrator'.*'active'`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.Accounts().CountActiveByRole(context.Background(), auth.RoleAdministrator)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCodesFindStorageErrorIsNotInvalidCode(t *testing.T) {
	repo, mock := newMockRepository(t)
	storageErr := errors.New("database is locked")

	mock.ExpectQuery(`SELECT .* FROM "enrollment_codes"`).WillReturnError(storageErr)

	registry := auth.NewCodeRegistry(repo)
	_, err := registry.Validate(context.Background(), "QC000001")
	assert.ErrorIs(t, err, storageErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsUpdateStatusWritesColumns(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "accounts" AS "acc" SET status = 'disabled', disabled_at = '[^']+', updated_at = current_timestamp WHERE \(id = '.+'\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM "accounts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "status"}).AddRow(id.String(), "inspector", "disabled"))

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	account, err := repo.Accounts().UpdateStatus(context.Background(), id, auth.AccountStatusDisabled, auth.WithDisabledAt(&at))
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusDisabled, account.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsUpdateStatusPersists(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestService(t, nil)
	inspector := seedAccount(t, svc, "inspector", auth.RoleQualityControl, strongPassword, unit(1))
	accounts := svc.Repo.Accounts()

	at := clock.Now()
	_, err := accounts.UpdateStatus(ctx, inspector.ID, auth.AccountStatusDisabled, auth.WithDisabledAt(&at))
	require.NoError(t, err)

	stored, err := accounts.FindByID(ctx, inspector.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusDisabled, stored.Status)
	require.NotNil(t, stored.DisabledAt)
	assert.True(t, at.Equal(*stored.DisabledAt))

	_, err = accounts.UpdateStatus(ctx, inspector.ID, auth.AccountStatusActive, auth.WithDisabledAt(nil))
	require.NoError(t, err)

	stored, err = accounts.FindByID(ctx, inspector.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.AccountStatusActive, stored.Status)
	assert.Nil(t, stored.DisabledAt)

	_, err = accounts.UpdateStatus(ctx, uuid.New(), auth.AccountStatusDisabled)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := auth.OpenDatabase(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, auth.CreateSchema(ctx, db))
	require.NoError(t, auth.CreateSchema(ctx, db))

	repo := auth.NewRepositoryManager(db)
	assert.NoError(t, repo.Validate())

	for _, table := range []string{"accounts", "enrollment_codes", "registration_requests", "remember_tokens", "activity_log"} {
		var name string
		err := db.NewRaw("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}
