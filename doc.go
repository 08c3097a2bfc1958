// Package rawseek reads rows out of a SQLite database file without SQLite.
//
// First, read the description of the SQLite file format at https://sqlite.org/fileformat2.html.
//
// In terms of SQLite's architecture (https://sqlite.org/arch.html),
// this package replaces the OS interface, the pager and the read side of the B-tree layer.
// There is no SQL compiler and no virtual machine.
// Instead a DB offers exactly two access paths:
// a lookup of one row by rowid in the table B-tree,
// and a lookup of the rows whose column equals a value through an index B-tree
// followed by one rowid lookup per match.
// A column without a usable index is refused with ErrNoSuitableIndex
// rather than answered by a full scan;
// Scan is available when walking the whole table is what the caller wants.
//
// The schema table is read once when the DB is opened.
// Its SQL text is scanned just far enough to learn column names, declared types,
// the column that aliases the rowid, and the key columns of each index.
//
// A DB never writes to the file and holds no locks.
// It assumes the file does not change while it is open,
// so it is safe for concurrent use by multiple goroutines.
package rawseek
