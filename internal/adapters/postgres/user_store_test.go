package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var userColumns = []string{
	"user_id", "email", "full_name", "password_hash", "is_active",
	"login_attempts", "locked_until", "token_version", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestInTxReadsUserWithRowLock(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewUserStore(db)
	id := uuid.New()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "ann@example.com", "Ann", "hash", true, 2, nil, int64(3), now, now))
	mock.ExpectCommit()

	var got domain.User
	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.UserTx) error {
		var err error
		got, err = tx.GetByEmail(ctx, "ann@example.com")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, id, got.UserID)
	assert.Equal(t, 2, got.LoginAttempts)
	assert.Equal(t, int64(3), got.TokenVersion)
	assert.Nil(t, got.LockedUntil)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewUserStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.UserTx) error {
		_, err := tx.GetByEmail(ctx, "ghost@example.com")
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByEmailOutsideScopeDoesNotLock(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewUserStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`^SELECT \* FROM "users" WHERE email = \$1 [^F]*$`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(uuid.NewString(), "ann@example.com", "Ann", "hash", true, 0, nil, int64(0), now, now))

	got, err := store.GetByEmail(context.Background(), "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewUserStore(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "users"`).WillReturnError(gorm.ErrDuplicatedKey)
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.UserTx) error {
		_, err := tx.Create(ctx, domain.User{
			Email: "ann@example.com", FullName: "Ann", PasswordHash: "hash",
			IsActive: true, CreatedAt: now, UpdatedAt: now,
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndEnqueueCommitTogether(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewUserStore(db)
	now := time.Now().UTC()
	user := domain.User{UserID: uuid.New(), Email: "ann@example.com", TokenVersion: 1, UpdatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "users" SET .* WHERE user_id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "auth_outbox"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.UserTx) error {
		if err := tx.Save(ctx, user); err != nil {
			return err
		}
		return tx.Enqueue(ctx, ports.OutboxEvent{
			EventID: uuid.New(), EventType: "user.password_changed",
			PartitionKey: user.UserID.String(), Payload: []byte(`{}`), OccurredAt: now,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewUserStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users" WHERE user_id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(ctx context.Context, tx ports.UserTx) error {
		return tx.Delete(ctx, uuid.New())
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedReleasesClaim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectExec(`UPDATE "auth_outbox" SET .*claim_token.* WHERE outbox_id = \$\d+ AND claim_token = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), uuid.New(), "claim-1", "broker down", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimUnpublishedRequiresToken(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewOutboxRepository(db)

	_, err := repo.ClaimUnpublished(context.Background(), 10, "", time.Now())
	require.Error(t, err)

	records, err := repo.ClaimUnpublished(context.Background(), 0, "claim", time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunMigrationsUsesEmbeddedDir(t *testing.T) {
	db, _ := newMockDB(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err := RunMigrations(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "00001_users.sql", entries[0].Name())
}
