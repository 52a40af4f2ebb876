package main

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestRunOnce_Sqlite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "escalator.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_CONNECTION_URI", dsn)
	t.Setenv("LOG_LEVEL", "error")

	execute(t, "migrate")

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UTC().UnixNano()
	future := time.Now().Add(time.Hour).UTC().UnixNano()
	_, err = db.Exec(`INSERT INTO issues (id, deadline_at, status) VALUES ('late', ?, 'Open'), ('done', ?, 'Resolved'), ('later', ?, 'Open')`, past, past, future)
	require.NoError(t, err)

	out := execute(t, "run-once")
	assert.Contains(t, out, "scanned=2 escalated=1 skipped=1")

	var (
		overdue bool
		level   int
	)
	require.NoError(t, db.QueryRow(`SELECT is_overdue, escalation_level FROM issues WHERE id = 'late'`).Scan(&overdue, &level))
	assert.True(t, overdue)
	assert.Equal(t, 1, level)
	require.NoError(t, db.Close())

	out = execute(t, "run-once")
	assert.Contains(t, out, "escalated=0")
}

func TestRootCmd_RejectsBadConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DB_CONNECTION_URI", "x")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run-once"})
	assert.Error(t, root.Execute())
}
