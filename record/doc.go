// Package record encodes and decodes SQLite records.
//
// A record is a header of serial types followed by the values they describe.
// See "Record Format" in https://sqlite.org/fileformat2.html.
//
// Decoded values use the following Go types:
//
//	NULL    nil
//	INTEGER int64
//	REAL    float64
//	TEXT    string
//	BLOB    []byte
package record
