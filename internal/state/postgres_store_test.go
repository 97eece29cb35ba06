package state

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	return s, mock
}

func expectSave(mock sqlmock.Sqlmock, key, value string) {
	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs(key, value).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestPostgresStoreRetriesSerializationFailures(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	expectSave(mock, "k", `{"name":"","count":1}`)
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: serializationFailure})
	mock.ExpectBegin()
	expectSave(mock, "k", `{"name":"","count":1}`)
	mock.ExpectCommit()

	ctx := context.Background()
	attempts := 0
	err := s.Atomic(ctx, func(tx Tx) error {
		attempts++
		return Save(ctx, tx, "k", record{Count: 1})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGivesUpAfterMaxAttempts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pq.Error{Code: serializationFailure})
	}

	attempts := 0
	err := s.Atomic(context.Background(), func(tx Tx) error {
		attempts++
		return nil
	})
	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, serializationFailure, string(pqErr.Code))
	assert.Equal(t, maxTxAttempts, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	expectSave(mock, "k", `{"name":"","count":2}`)
	mock.ExpectRollback()

	ctx := context.Background()
	boom := errors.New("boom")
	attempts := 0
	err := s.Atomic(ctx, func(tx Tx) error {
		attempts++
		require.NoError(t, Save(ctx, tx, "k", record{Count: 2}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts, "only serialization failures are retried")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRangeReadsInKeyOrder(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rows := sqlmock.NewRows([]string{"key", "value"}).
		AddRow("token:a", []byte(`{"name":"a"}`)).
		AddRow("token:b", []byte(`{"name":"b"}`))
	mock.ExpectQuery(`SELECT key, value FROM kv_store WHERE starts_with\(key, \$1\) ORDER BY key`).
		WithArgs("token:").
		WillReturnRows(rows)

	entries, err := RangeAll[record](context.Background(), s, "token:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "token:a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Value.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
