package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentperms/internal/common/config"
)

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agents.db")

	conn, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "sqlite3", conn.DriverName())
	assert.FileExists(t, path)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`CREATE TABLE t (id INTEGER)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO t (id) VALUES (1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM t`))
	assert.Equal(t, 1, n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
