// Command rawseek looks up rows in a SQLite database file without SQLite.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-json"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordanwade90/rawseek"
	"github.com/jordanwade90/rawseek/internal/logging"
)

type cli struct {
	LogLevel string `name:"log-level" env:"RAWSEEK_LOG_LEVEL" default:"warn" help:"Log level (debug, info, warn, error)."`

	Rowid  rowidCmd  `cmd:"" help:"Look up rows by rowid."`
	Lookup lookupCmd `cmd:"" help:"Look up rows through an index on a column."`
	Schema schemaCmd `cmd:"" help:"Print the schema entries."`
	Scan   scanCmd   `cmd:"" help:"Print every row of a table."`
}

// env holds what every command needs.
type env struct {
	out    *json.Encoder
	logger *zap.Logger
}

func (e *env) open(path string) (*rawseek.DB, error) {
	return rawseek.Open(path, rawseek.WithLogger(e.logger))
}

type rowidCmd struct {
	Table  string  `required:"" short:"t" help:"Table name."`
	Jobs   int     `env:"RAWSEEK_JOBS" default:"4" help:"Number of lookups to run at once."`
	DB     string  `arg:"" type:"existingfile" help:"Database file."`
	Rowids []int64 `arg:"" help:"Rowids to find."`
}

func (c *rowidCmd) Run(e *env) (err error) {
	db, err := e.open(c.DB)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	rows := make([]*rawseek.Row, len(c.Rowids))
	var g errgroup.Group
	g.SetLimit(max(c.Jobs, 1))
	for i, rowid := range c.Rowids {
		g.Go(func() error {
			row, ok, err := db.FindByRowid(c.Table, rowid)
			if err != nil {
				return fmt.Errorf("rowid %d: %w", rowid, err)
			}
			if ok {
				rows[i] = &row
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var missing []int64
	for i, row := range rows {
		if row == nil {
			missing = append(missing, c.Rowids[i])
			continue
		}
		if err := e.out.Encode(row); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: rowids not found: %v", c.Table, missing)
	}
	return nil
}

type lookupCmd struct {
	Table  string `required:"" short:"t" help:"Table name."`
	Column string `required:"" short:"c" help:"Indexed column name."`
	DB     string `arg:"" type:"existingfile" help:"Database file."`
	Value  string `arg:"" optional:"" help:"Value to look for, converted with the column's type affinity."`
	Null   bool   `help:"Look for NULL instead of the value."`
}

func (c *lookupCmd) Run(e *env) (err error) {
	db, err := e.open(c.DB)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	var value any = c.Value
	if c.Null {
		value = nil
	}
	rows, err := db.FindByIndexedColumn(c.Table, c.Column, value)
	if err != nil {
		return err
	}
	e.logger.Info("lookup", zap.String("table", c.Table), zap.String("column", c.Column), zap.Int("rows", len(rows)))
	for _, row := range rows {
		if err := e.out.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

type schemaCmd struct {
	DB string `arg:"" type:"existingfile" help:"Database file."`
}

type schemaEntry struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	TableName string `json:"tbl_name"`
	RootPage  uint32 `json:"rootpage"`
	SQL       string `json:"sql,omitempty"`
}

func (c *schemaCmd) Run(e *env) (err error) {
	db, err := e.open(c.DB)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	for _, entry := range db.Schema().Entries {
		err := e.out.Encode(schemaEntry{
			Type:      entry.Type,
			Name:      entry.Name,
			TableName: entry.TableName,
			RootPage:  uint32(entry.RootPage),
			SQL:       entry.SQL,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type scanCmd struct {
	Table string `required:"" short:"t" help:"Table name."`
	DB    string `arg:"" type:"existingfile" help:"Database file."`
}

func (c *scanCmd) Run(e *env) (err error) {
	db, err := e.open(c.DB)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	for row, err := range db.Scan(c.Table) {
		if err != nil {
			return err
		}
		if err := e.out.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func run(args []string, stdout, stderr io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("rawseek"),
		kong.Description("Read rows out of a SQLite database file by rowid or through an index."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, err := logging.New(c.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() // flushes buffer, if any

	return ctx.Run(&env{out: json.NewEncoder(stdout), logger: logger})
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "rawseek:", err)
		os.Exit(1)
	}
}
