package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stamp-next/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockLedger(t *testing.T, retry RetryPolicy) (*StampLedgerService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	ledger := NewStampLedgerService(
		repository.NewMembershipRepository(db),
		repository.NewStampEventRepository(db),
		repository.NewProgramRepository(db),
		NewRewardCycleEngine(RewardOptions{}),
		nil,
		retry,
		newFakeClock(),
		nil,
	)
	return ledger, mock
}

func TestRecordStampStorageUnavailable(t *testing.T) {
	ledger, mock := newMockLedger(t, RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond})
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := ledger.RecordStamp(context.Background(), RecordStampInput{MembershipID: 1, TxID: "tx-1"})
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, "storage_unavailable", ReasonOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStampLockTimeoutIsRetriedThenReported(t *testing.T) {
	ledger, mock := newMockLedger(t, RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond})
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "memberships"`).
			WillReturnError(&pgconn.PgError{Code: "55P03", Message: "lock not available"})
		mock.ExpectRollback()
	}

	_, err := ledger.RecordStamp(context.Background(), RecordStampInput{MembershipID: 1, TxID: "tx-1"})
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, "concurrency_conflict", ReasonOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
