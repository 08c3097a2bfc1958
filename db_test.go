package rawseek

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

// createDB runs statements against a new database file and returns its path.
// Statements with arguments are given as a func run inside the same connection.
func createDB(t *testing.T, setup func(db *sql.DB)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	setup(db)
	require.NoError(t, db.Close())
	return path
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()

	_, err := db.Exec(query, args...)
	require.NoError(t, err, query)
}

func open(t *testing.T, path string) *DB {
	t.Helper()

	db, err := Open(path, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })
	return db
}

const usersSchema = `CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

func createUsers(t *testing.T) string {
	t.Helper()

	return createDB(t, func(db *sql.DB) {
		mustExec(t, db, usersSchema)
		tx, err := db.Begin()
		require.NoError(t, err)
		for i := 1; i <= 1000; i++ {
			_, err := tx.Exec("INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
				fmt.Sprintf("user_%d", i), fmt.Sprintf("user_%d@example.com", i), fmt.Sprintf("password_%d", i))
			require.NoError(t, err)
		}
		require.NoError(t, tx.Commit())
	})
}

func TestUsers(t *testing.T) {
	t.Parallel()

	db := open(t, createUsers(t))

	row, ok, err := db.FindByRowid("users", 450)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 450, row.Rowid)
	assert.Equal(t, []string{"id", "username", "email", "password_hash", "created_at"}, row.Columns)
	id, _ := row.Get("id")
	assert.Equal(t, int64(450), id)
	assert.Equal(t, "user_450", row.Values[1])
	assert.Equal(t, "user_450@example.com", row.Values[2])
	assert.Equal(t, "password_450", row.Values[3])
	assert.IsType(t, "", row.Values[4])

	rows, err := db.FindByIndexedColumn("users", "email", "user_450@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[0])

	_, ok, err = db.FindByRowid("users", 999999)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.FindByIndexedColumn("users", "password_hash", "password_450")
	assert.ErrorIs(t, err, ErrNoSuitableIndex)

	rows, err = db.FindByIndexedColumn("users", "username", "nobody")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestUsers_IndexAgreesWithTable(t *testing.T) {
	t.Parallel()

	db := open(t, createUsers(t))

	var n int64
	for row, err := range db.Scan("users") {
		require.NoError(t, err)
		n++
		require.Equal(t, n, row.Rowid)

		for _, column := range []string{"username", "email"} {
			v, _ := row.Get(column)
			found, err := db.FindByIndexedColumn("users", column, v)
			require.NoError(t, err)
			require.Len(t, found, 1, "%s = %v", column, v)
			assert.Equal(t, row.Rowid, found[0].Rowid)
		}
	}
	assert.EqualValues(t, 1000, n)

	var seq []Row
	for row, err := range db.Scan("sqlite_sequence") {
		require.NoError(t, err)
		seq = append(seq, row)
	}
	require.Len(t, seq, 1)
	assert.Equal(t, []any{"users", int64(1000)}, seq[0].Values)
}

func TestUsers_RowidColumn(t *testing.T) {
	t.Parallel()

	db := open(t, createUsers(t))

	for _, column := range []string{"id", "ID", "rowid", "_rowid_"} {
		for _, v := range []any{450, "450", 450.0} {
			rows, err := db.FindByIndexedColumn("users", column, v)
			require.NoError(t, err)
			require.Len(t, rows, 1, "%s = %#v", column, v)
			assert.Equal(t, "user_450", rows[0].Values[1])
		}
	}

	rows, err := db.FindByIndexedColumn("users", "id", "abc")
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = db.FindByIndexedColumn("users", "id", 4000)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUsers_Concurrent(t *testing.T) {
	t.Parallel()

	db := open(t, createUsers(t))

	var g errgroup.Group
	for w := range 8 {
		g.Go(func() error {
			for i := w + 1; i <= 1000; i += 8 {
				row, ok, err := db.FindByRowid("users", int64(i))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("rowid %d not found", i)
				}
				rows, err := db.FindByIndexedColumn("users", "email", row.Values[2])
				if err != nil {
					return err
				}
				if len(rows) != 1 || rows[0].Rowid != row.Rowid {
					return fmt.Errorf("email of rowid %d found %v", i, rows)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestFindByIndexedColumn_IndexChoice(t *testing.T) {
	t.Parallel()

	type item struct {
		qty   int
		name  string
		tag   any
		score float64
	}
	items := make([]item, 300)
	for i := range items {
		items[i] = item{qty: i % 10, name: gofakeit.Name(), tag: fmt.Sprintf("tag_%d", i%7), score: float64(i) / 4}
		if i%50 == 0 {
			items[i].tag = nil
		}
	}

	path := createDB(t, func(db *sql.DB) {
		mustExec(t, db, "PRAGMA page_size = 1024")
		mustExec(t, db, `CREATE TABLE items (
			id INTEGER PRIMARY KEY,
			qty INTEGER,
			name TEXT COLLATE NOCASE,
			tag TEXT,
			score REAL
		)`)
		mustExec(t, db, "CREATE INDEX idx_tag_qty ON items(tag, qty)")
		mustExec(t, db, "CREATE INDEX idx_qty ON items(qty DESC)")
		mustExec(t, db, "CREATE INDEX idx_tag ON items(tag)")
		mustExec(t, db, "CREATE INDEX idx_name ON items(name)")
		mustExec(t, db, "CREATE INDEX idx_score ON items(score) WHERE score > 10")
		for i, it := range items {
			mustExec(t, db, "INSERT INTO items VALUES (?, ?, ?, ?, ?)", i+1, it.qty, it.name, it.tag, it.score)
		}
	})
	db := open(t, path)

	rowids := func(rows []Row) []int64 {
		ids := make([]int64, len(rows))
		for i, r := range rows {
			ids[i] = r.Rowid
		}
		return ids
	}
	want := func(match func(item) bool) []int64 {
		var ids []int64
		for i, it := range items {
			if match(it) {
				ids = append(ids, int64(i+1))
			}
		}
		return ids
	}

	for _, v := range []any{3, "3", 3.0, " 3 "} {
		rows, err := db.FindByIndexedColumn("items", "qty", v)
		require.NoError(t, err)
		assert.Equal(t, want(func(it item) bool { return it.qty == 3 }), rowids(rows), "qty = %#v", v)
	}

	rows, err := db.FindByIndexedColumn("items", "tag", "tag_4")
	require.NoError(t, err)
	assert.Equal(t, want(func(it item) bool { return it.tag == "tag_4" }), rowids(rows))
	for _, r := range rows {
		assert.Equal(t, "tag_4", r.Values[3])
	}

	rows, err = db.FindByIndexedColumn("items", "tag", nil)
	require.NoError(t, err)
	assert.Equal(t, want(func(it item) bool { return it.tag == nil }), rowids(rows))

	rows, err = db.FindByIndexedColumn("items", "qty", math.NaN())
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = db.FindByIndexedColumn("items", "name", items[0].name)
	assert.ErrorIs(t, err, ErrNoSuitableIndex, "NOCASE column")
	_, err = db.FindByIndexedColumn("items", "score", 20.0)
	assert.ErrorIs(t, err, ErrNoSuitableIndex, "partial index")
	_, err = db.FindByIndexedColumn("items", "nope", 1)
	assert.ErrorIs(t, err, ErrSchemaNotFound)
	_, err = db.FindByIndexedColumn("items", "qty", struct{}{})
	assert.Error(t, err)

	tagIndex, err := db.Schema().Lookup("idx_tag")
	require.NoError(t, err)
	assert.Same(t, tagIndex, db.chooseIndex(mustTable(t, db, "items"), 3))
}

func mustTable(t *testing.T, db *DB, name string) *SchemaEntry {
	t.Helper()

	e, err := db.Schema().Table(name)
	require.NoError(t, err)
	return e
}

func TestPageSizes(t *testing.T) {
	t.Parallel()

	for _, pageSize := range []int{512, 4096, 65536} {
		t.Run(fmt.Sprint(pageSize), func(t *testing.T) {
			t.Parallel()

			type blob struct {
				key  string
				body []byte
			}
			var blobs []blob
			for i := range 40 {
				blobs = append(blobs, blob{
					key:  fmt.Sprintf("%05d-%s", i, strings.Repeat("k", i*97)),
					body: []byte(gofakeit.LetterN(uint((i + 1) * (i + 1) * 150))),
				})
			}

			path := createDB(t, func(db *sql.DB) {
				mustExec(t, db, fmt.Sprintf("PRAGMA page_size = %d", pageSize))
				mustExec(t, db, "CREATE TABLE blobs (id INTEGER PRIMARY KEY, k TEXT UNIQUE, v BLOB)")
				for i, b := range blobs {
					mustExec(t, db, "INSERT INTO blobs VALUES (?, ?, ?)", i+1, b.key, b.body)
				}
			})
			db := open(t, path)
			assert.Equal(t, pageSize, db.Header().PageSize)

			for i, b := range blobs {
				row, ok, err := db.FindByRowid("blobs", int64(i+1))
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, b.key, row.Values[1])
				assert.Equal(t, b.body, row.Values[2])

				rows, err := db.FindByIndexedColumn("blobs", "k", b.key)
				require.NoError(t, err)
				require.Len(t, rows, 1)
				assert.EqualValues(t, i+1, rows[0].Rowid)
			}
		})
	}
}

func TestTextEncodings(t *testing.T) {
	t.Parallel()

	words := []string{"a", "b", "z", "é", "ÿ", "Ā", "ā", "日本語", "ﬀ", "😀", "a😀", "Z"}
	for _, encoding := range []string{"UTF-8", "UTF-16le", "UTF-16be"} {
		t.Run(encoding, func(t *testing.T) {
			t.Parallel()

			path := createDB(t, func(db *sql.DB) {
				mustExec(t, db, fmt.Sprintf("PRAGMA encoding = '%s'", encoding))
				mustExec(t, db, "CREATE TABLE words (id INTEGER PRIMARY KEY, w TEXT UNIQUE, n INTEGER)")
				for i, w := range words {
					mustExec(t, db, "INSERT INTO words (w, n) VALUES (?, ?)", w, i)
				}
			})
			db := open(t, path)
			assert.Equal(t, encoding, db.Header().TextEncoding.String())

			var scanned []string
			for row, err := range db.Scan("words") {
				require.NoError(t, err)
				scanned = append(scanned, row.Values[1].(string))
			}
			assert.Equal(t, words, scanned)

			for i, w := range words {
				rows, err := db.FindByIndexedColumn("words", "w", w)
				require.NoError(t, err)
				require.Len(t, rows, 1, w)
				assert.Equal(t, int64(i), rows[0].Values[2])
			}
		})
	}
}

func TestSchemaSpansPages(t *testing.T) {
	t.Parallel()

	path := createDB(t, func(db *sql.DB) {
		mustExec(t, db, "PRAGMA page_size = 512")
		for i := range 60 {
			mustExec(t, db, fmt.Sprintf("CREATE TABLE t_%d (id INTEGER PRIMARY KEY, v TEXT, w TEXT)", i))
			mustExec(t, db, fmt.Sprintf("CREATE INDEX t_%d_v ON t_%d (v)", i, i))
			mustExec(t, db, fmt.Sprintf("INSERT INTO t_%d (v) VALUES ('table %d')", i, i))
		}
	})
	db := open(t, path)

	assert.Len(t, db.Schema().Entries, 120)
	for i := range 60 {
		name := fmt.Sprintf("t_%d", i)
		rows, err := db.FindByIndexedColumn(name, "v", fmt.Sprintf("table %d", i))
		require.NoError(t, err)
		require.Len(t, rows, 1, name)
		assert.Equal(t, []any{int64(1), fmt.Sprintf("table %d", i), nil}, rows[0].Values)
	}
}

func TestAddedColumn(t *testing.T) {
	t.Parallel()

	path := createDB(t, func(db *sql.DB) {
		mustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, a TEXT)")
		mustExec(t, db, "INSERT INTO t (a) VALUES ('old')")
		mustExec(t, db, "ALTER TABLE t ADD COLUMN b INTEGER")
		mustExec(t, db, "INSERT INTO t (a, b) VALUES ('new', 7)")
	})
	db := open(t, path)

	old, ok, err := db.FindByRowid("t", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), "old", nil}, old.Values)

	added, ok, err := db.FindByRowid("t", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{int64(2), "new", int64(7)}, added.Values)
}

func TestUnsupportedTables(t *testing.T) {
	t.Parallel()

	path := createDB(t, func(db *sql.DB) {
		mustExec(t, db, "CREATE TABLE kv (k TEXT PRIMARY KEY, v) WITHOUT ROWID")
		mustExec(t, db, "CREATE VIEW kv_view AS SELECT * FROM kv")
		mustExec(t, db, "INSERT INTO kv VALUES ('a', 1)")
	})
	db := open(t, path)

	_, _, err := db.FindByRowid("kv", 1)
	assert.ErrorIs(t, err, ErrUnsupportedTable)
	_, err = db.FindByIndexedColumn("kv", "k", "a")
	assert.ErrorIs(t, err, ErrUnsupportedTable)
	_, _, err = db.FindByRowid("kv_view", 1)
	assert.ErrorIs(t, err, ErrSchemaNotFound)
	_, _, err = db.FindByRowid("missing", 1)
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	for _, err := range db.Scan("kv") {
		assert.ErrorIs(t, err, ErrUnsupportedTable)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "missing.db"))
	assert.ErrorIs(t, err, ErrIO)

	garbage := filepath.Join(dir, "garbage.db")
	require.NoError(t, os.WriteFile(garbage, slices.Repeat([]byte("not a database "), 100), 0o600))
	_, err = Open(garbage)
	assert.ErrorIs(t, err, ErrInvalidHeader)

	image, err := os.ReadFile(createUsers(t))
	require.NoError(t, err)
	truncated := filepath.Join(dir, "truncated.db")
	require.NoError(t, os.WriteFile(truncated, image[:len(image)-100], 0o600))
	_, err = Open(truncated)
	assert.Error(t, err)
}
