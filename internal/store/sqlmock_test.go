package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newPostgresMock(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	st, err := NewGormStore(db)
	require.NoError(t, err)
	return st, mock
}

func TestMarkUsedZeroRowsIsConflictOnPostgres(t *testing.T) {
	st, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "permission_tokens" SET .*"used"=.* WHERE .*id = \$\d+ AND used = \$\d+ AND expires_at >= \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := st.Transaction(context.Background(), func(tx Store) error {
		return tx.Tokens().MarkUsed(context.Background(), "token-id", time.Now())
	})
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsedOneRowCommitsOnPostgres(t *testing.T) {
	st, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "permission_tokens" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.Transaction(context.Background(), func(tx Store) error {
		return tx.Tokens().MarkUsed(context.Background(), "token-id", time.Now())
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByHashMissingOnPostgres(t *testing.T) {
	st, mock := newPostgresMock(t)

	mock.ExpectQuery(`SELECT \* FROM "permission_tokens" WHERE token_hash = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_hash"}))

	_, err := st.Tokens().FindByHash(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
