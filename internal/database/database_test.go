package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListClients(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"kind", "name", "hostname", "port", "tls", "tls_insecure", "request_timeout_ms", "health_hostname", "health_port"}).
		AddRow("chat", "chat_generation", "vllm.internal", 8000, false, false, 0, nil, nil).
		AddRow("nlp", "nlp", "caikit.internal", 0, true, true, 30000, "caikit-health.internal", 8086)
	mock.ExpectQuery(regexp.QuoteMeta("FROM client_catalog")).WillReturnRows(rows)

	out, err := ListClients(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "chat_generation", out[0].Name)
	assert.Equal(t, uint16(8000), out[0].Port)
	assert.Nil(t, out[0].HealthHostname)
	assert.Nil(t, out[0].HealthPort)

	assert.True(t, out[1].TLS)
	assert.True(t, out[1].TLSInsecure)
	assert.Equal(t, int64(30000), out[1].RequestTimeoutMs)
	require.NotNil(t, out[1].HealthHostname)
	assert.Equal(t, "caikit-health.internal", *out[1].HealthHostname)
	require.NotNil(t, out[1].HealthPort)
	assert.Equal(t, uint16(8086), *out[1].HealthPort)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClientsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("gone"))
	_, err = ListClients(context.Background(), db)
	assert.ErrorContains(t, err, "gone")
}

func TestSaveDailyStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO client_daily_stats")).
		WithArgs(
			"2026-01-02", "chat", "chat_generation", "chat-completions", uint64(1), uint64(0), uint64(0), uint64(12), int64(900),
			"2026-01-02", "nlp", "nlp", "tokenization", uint64(3), uint64(1), uint64(0), uint64(0), int64(120),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	stats := []DailyStats{
		{Date: "2026-01-02", Kind: "nlp", Client: "nlp", Task: "tokenization", RequestCount: 3, ErrorCount: 1, TotalTime: 120},
		{Date: "2026-01-02", Kind: "chat", Client: "chat_generation", Task: "chat-completions", RequestCount: 1, StreamFrames: 12, TotalTime: 900},
	}
	err = ExecuteTransaction(context.Background(), db, []func(*sql.Tx) error{
		func(tx *sql.Tx) error { return SaveDailyStats(context.Background(), tx, stats) },
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteTransactionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = ExecuteTransaction(context.Background(), db, []func(*sql.Tx) error{
		func(*sql.Tx) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDailyStatsEmpty(t *testing.T) {
	assert.NoError(t, SaveDailyStats(context.Background(), nil, nil))
}
