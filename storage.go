package auth

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenDatabase opens the local SQLite store. A single connection is kept
// open so in-memory databases survive and writers never contend.
func OpenDatabase(ctx context.Context, dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = DefaultOptions().Storage.DSN
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// CreateSchema creates the tables used by the repositories when missing
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*Account)(nil),
		(*EnrollmentCode)(nil),
		(*RegistrationRequest)(nil),
		(*RememberToken)(nil),
		(*ActivityRecord)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []*bun.CreateIndexQuery{
		db.NewCreateIndex().
			Model((*RegistrationRequest)(nil)).
			Index("idx_registration_requests_status").
			Column("status", "submitted_at").
			IfNotExists(),
		db.NewCreateIndex().
			Model((*RememberToken)(nil)).
			Index("idx_remember_tokens_account").
			Column("account_id").
			IfNotExists(),
		db.NewCreateIndex().
			Model((*ActivityRecord)(nil)).
			Index("idx_activity_log_subject").
			Column("subject_id").
			IfNotExists(),
	}

	for _, q := range indexes {
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
