package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanwade90/rawseek/internal/dbtest"
)

func writeUsers(t *testing.T) string {
	t.Helper()

	b := dbtest.New(1024)
	var rows []dbtest.Row
	var byEmail [][]any
	for i := int64(1); i <= 200; i++ {
		email := fmt.Sprintf("user_%03d@example.com", i)
		rows = append(rows, dbtest.Row{Rowid: i, Values: []any{nil, fmt.Sprintf("user_%d", i), email}})
		byEmail = append(byEmail, []any{email, i})
	}
	b.Table("users", "CREATE TABLE users(id INTEGER PRIMARY KEY, username TEXT, email TEXT UNIQUE)", rows)
	b.Index("sqlite_autoindex_users_1", "users", nil, byEmail)

	path := filepath.Join(t.TempDir(), "users.db")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRowid(t *testing.T) {
	t.Parallel()

	path := writeUsers(t)
	out, err := runCLI(t, "rowid", "--table", "users", "--jobs", "3", path, "7", "150", "2")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		`{"rowid":7,"id":7,"username":"user_7","email":"user_007@example.com"}`,
		`{"rowid":150,"id":150,"username":"user_150","email":"user_150@example.com"}`,
		`{"rowid":2,"id":2,"username":"user_2","email":"user_002@example.com"}`,
		"",
	}, "\n"), out)

	out, err = runCLI(t, "rowid", "-t", "users", path, "1", "999")
	assert.ErrorContains(t, err, "999")
	assert.Equal(t, `{"rowid":1,"id":1,"username":"user_1","email":"user_001@example.com"}`+"\n", out)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	path := writeUsers(t)
	out, err := runCLI(t, "lookup", "-t", "users", "-c", "email", path, "user_042@example.com")
	require.NoError(t, err)
	assert.Equal(t, `{"rowid":42,"id":42,"username":"user_42","email":"user_042@example.com"}`+"\n", out)

	out, err = runCLI(t, "lookup", "-t", "users", "-c", "email", "--null", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = runCLI(t, "lookup", "-t", "users", "-c", "username", path, "user_42")
	assert.ErrorContains(t, err, "no suitable index")
}

func TestSchemaAndScan(t *testing.T) {
	t.Parallel()

	path := writeUsers(t)
	out, err := runCLI(t, "schema", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"table","name":"users","tbl_name":"users"`)
	assert.Contains(t, lines[1], `"name":"sqlite_autoindex_users_1"`)
	assert.NotContains(t, lines[1], `"sql"`)

	out, err = runCLI(t, "--log-level", "debug", "scan", "--table", "users", path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 200)

	_, err = runCLI(t, "scan", "--table", "nope", path)
	assert.ErrorContains(t, err, "not found")

	_, err = runCLI(t, "--log-level", "shouty", "schema", path)
	assert.Error(t, err)
}
