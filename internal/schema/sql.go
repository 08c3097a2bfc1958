package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// The schema SQL is only tokenized and scanned far enough to recover
// column and index definitions; it is not parsed as a grammar.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?s:.)*?\*/`},
	{Name: "Blob", Pattern: `[xX]'[0-9a-fA-F]*'`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Quoted", Pattern: `"(?:[^"]|"")*"|` + "`(?:[^`]|``)*`" + `|\[[^\]]*\]`},
	{Name: "Number", Pattern: `(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_\x{80}-\x{10FFFF}][A-Za-z0-9_$\x{80}-\x{10FFFF}]*`},
	{Name: "Punct", Pattern: `[(),.;]`},
	{Name: "Operator", Pattern: `[-+*/%<>=!|&~^?:@$#]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	symbols    = sqlLexer.Symbols()
	tokQuoted  = symbols["Quoted"]
	tokIdent   = symbols["Ident"]
	tokPunct   = symbols["Punct"]
	tokString  = symbols["String"]
	tokComment = symbols["Comment"]
	tokSpace   = symbols["Whitespace"]
)

var errMalformed = errors.New("malformed schema SQL")

type token struct {
	typ   lexer.TokenType
	value string
}

// name returns the identifier a token denotes, with quoting removed.
func (t token) name() (string, bool) {
	switch t.typ {
	case tokIdent:
		return t.value, true
	case tokQuoted:
		v := t.value[1 : len(t.value)-1]
		switch t.value[0] {
		case '"':
			v = strings.ReplaceAll(v, `""`, `"`)
		case '`':
			v = strings.ReplaceAll(v, "``", "`")
		}
		return v, true
	case tokString:
		// SQLite accepts single-quoted identifiers in some positions.
		return strings.ReplaceAll(t.value[1:len(t.value)-1], "''", "'"), true
	}
	return "", false
}

func (t token) is(keyword string) bool {
	return t.typ == tokIdent && strings.EqualFold(t.value, keyword)
}

func (t token) punct(p string) bool {
	return t.typ == tokPunct && t.value == p
}

func tokenize(sql string) ([]token, error) {
	lex, err := sqlLexer.LexString("", sql)
	if err != nil {
		return nil, err
	}
	all, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	tokens := make([]token, 0, len(all))
	for _, t := range all {
		if t.EOF() || t.Type == tokComment || t.Type == tokSpace {
			continue
		}
		tokens = append(tokens, token{typ: t.Type, value: t.Value})
	}
	return tokens, nil
}

// scanner walks a token slice.
type scanner struct {
	tokens []token
	pos    int
}

func (s *scanner) peek() token {
	if s.pos < len(s.tokens) {
		return s.tokens[s.pos]
	}
	return token{typ: lexer.EOF}
}

func (s *scanner) next() token {
	t := s.peek()
	if s.pos < len(s.tokens) {
		s.pos++
	}
	return t
}

func (s *scanner) done() bool { return s.pos >= len(s.tokens) }

// accept consumes the keywords in order if they are all next.
func (s *scanner) accept(keywords ...string) bool {
	for i, k := range keywords {
		if s.pos+i >= len(s.tokens) || !s.tokens[s.pos+i].is(k) {
			return false
		}
	}
	s.pos += len(keywords)
	return true
}

func (s *scanner) expect(keywords ...string) error {
	if !s.accept(keywords...) {
		return fmt.Errorf("%w: expected %s near %q", errMalformed, strings.Join(keywords, " "), s.peek().value)
	}
	return nil
}

// qualifiedName reads "name" or "schema.name" and returns name.
func (s *scanner) qualifiedName() (string, error) {
	name, ok := s.next().name()
	if !ok {
		return "", fmt.Errorf("%w: expected a name", errMalformed)
	}
	if s.peek().punct(".") {
		s.next()
		if name, ok = s.next().name(); !ok {
			return "", fmt.Errorf("%w: expected a name after '.'", errMalformed)
		}
	}
	return name, nil
}

// group consumes a parenthesized group and returns its top-level comma-separated items.
func (s *scanner) group() ([][]token, error) {
	if !s.next().punct("(") {
		return nil, fmt.Errorf("%w: expected '('", errMalformed)
	}
	var items [][]token
	start, depth := s.pos, 0
	for !s.done() {
		t := s.next()
		switch {
		case t.punct("("):
			depth++
		case t.punct(")") && depth > 0:
			depth--
		case t.punct(")"):
			return append(items, s.tokens[start:s.pos-1]), nil
		case t.punct(",") && depth == 0:
			items = append(items, s.tokens[start:s.pos-1])
			start = s.pos
		}
	}
	return nil, fmt.Errorf("%w: unbalanced parentheses", errMalformed)
}

// skipGroup skips a parenthesized group if one is next.
func (s *scanner) skipGroup() error {
	if !s.peek().punct("(") {
		return nil
	}
	_, err := s.group()
	return err
}

var columnConstraintStart = map[string]bool{
	"CONSTRAINT": true, "PRIMARY": true, "NOT": true, "NULL": true, "UNIQUE": true,
	"CHECK": true, "DEFAULT": true, "COLLATE": true, "REFERENCES": true,
	"GENERATED": true, "AS": true,
}

func isConstraintStart(t token) bool {
	return t.typ == tokIdent && columnConstraintStart[strings.ToUpper(t.value)]
}

// tableDef is what the scan recovers from CREATE TABLE.
type tableDef struct {
	name         string
	columns      []Column
	withoutRowid bool
	virtual      bool
	// primaryKey lists the PRIMARY KEY columns, in key order.
	primaryKey []Column
	// uniques lists the column sets of PRIMARY KEY and UNIQUE constraints in declaration order.
	uniques []constraint
}

type constraint struct {
	primaryKey bool
	columns    []Column
}

// parseCreateTable scans a CREATE TABLE statement.
func parseCreateTable(sql string) (*tableDef, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, err
	}
	s := &scanner{tokens: tokens}
	if err := s.expect("CREATE"); err != nil {
		return nil, err
	}
	if !s.accept("TEMP") {
		s.accept("TEMPORARY")
	}

	def := &tableDef{}
	if s.accept("VIRTUAL") {
		def.virtual = true
	}
	if err := s.expect("TABLE"); err != nil {
		return nil, err
	}
	s.accept("IF", "NOT", "EXISTS")
	if def.name, err = s.qualifiedName(); err != nil {
		return nil, err
	}
	if def.virtual {
		return def, nil
	}

	items, err := s.group()
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if len(item) == 0 {
			return nil, fmt.Errorf("%w: empty column definition", errMalformed)
		}
		is := &scanner{tokens: item}
		if t := item[0]; t.is("CONSTRAINT") || t.is("PRIMARY") || t.is("UNIQUE") || t.is("CHECK") || t.is("FOREIGN") {
			if err := def.tableConstraint(is); err != nil {
				return nil, err
			}
			continue
		}
		if err := def.column(is); err != nil {
			return nil, err
		}
	}

	for !s.done() {
		if s.accept("WITHOUT", "ROWID") {
			def.withoutRowid = true
			continue
		}
		s.next()
	}
	return def, nil
}

func (def *tableDef) column(s *scanner) error {
	name, ok := s.next().name()
	if !ok {
		return fmt.Errorf("%w: expected a column name", errMalformed)
	}
	col := Column{Name: name}

	var typeName []string
	for !s.done() && !isConstraintStart(s.peek()) {
		if s.peek().punct("(") {
			// VARCHAR(255), DECIMAL(10, 2)
			if err := s.skipGroup(); err != nil {
				return err
			}
			continue
		}
		typeName = append(typeName, s.next().value)
	}
	col.Type = strings.Join(typeName, " ")

	for !s.done() {
		switch {
		case s.accept("PRIMARY", "KEY"):
			col.PrimaryKey = true
			if s.accept("DESC") {
				col.Desc = true
			} else {
				s.accept("ASC")
			}
			def.addConstraint(true, []Column{{Name: col.Name, Desc: col.Desc}})
		case s.accept("UNIQUE"):
			def.addConstraint(false, []Column{{Name: col.Name}})
		case s.accept("COLLATE"):
			if col.Collation, ok = s.next().name(); !ok {
				return fmt.Errorf("%w: expected a collation name", errMalformed)
			}
		case s.peek().punct("("):
			if err := s.skipGroup(); err != nil {
				return err
			}
		default:
			s.next()
		}
	}
	def.columns = append(def.columns, col)
	return nil
}

func (def *tableDef) tableConstraint(s *scanner) error {
	if s.accept("CONSTRAINT") {
		s.next()
	}
	var primaryKey bool
	switch {
	case s.accept("PRIMARY", "KEY"):
		primaryKey = true
	case s.accept("UNIQUE"):
	default:
		// CHECK and FOREIGN KEY constraints do not create indexes.
		return nil
	}
	items, err := s.group()
	if err != nil {
		return err
	}
	cols, err := indexedColumns(items)
	if err != nil {
		return err
	}
	def.addConstraint(primaryKey, cols)
	return nil
}

func (def *tableDef) addConstraint(primaryKey bool, cols []Column) {
	if primaryKey {
		def.primaryKey = cols
	}
	def.uniques = append(def.uniques, constraint{primaryKey: primaryKey, columns: cols})
}

// indexedColumns reads "name [COLLATE c] [ASC|DESC]" items.
// Items that are expressions rather than column names are marked Expr.
func indexedColumns(items [][]token) ([]Column, error) {
	cols := make([]Column, 0, len(items))
	for _, item := range items {
		if len(item) == 0 {
			return nil, fmt.Errorf("%w: empty indexed column", errMalformed)
		}
		s := &scanner{tokens: item}
		var col Column
		name, ok := s.next().name()
		if ok && (s.done() || s.peek().is("COLLATE") || s.peek().is("ASC") || s.peek().is("DESC")) {
			col.Name = name
		} else {
			col.Expr = true
			for !s.done() && !s.peek().is("COLLATE") && !s.peek().is("ASC") && !s.peek().is("DESC") {
				s.next()
			}
		}
		for !s.done() {
			switch {
			case s.accept("COLLATE"):
				if col.Collation, ok = s.next().name(); !ok {
					return nil, fmt.Errorf("%w: expected a collation name", errMalformed)
				}
			case s.accept("DESC"):
				col.Desc = true
			default:
				s.next()
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// indexDef is what the scan recovers from CREATE INDEX.
type indexDef struct {
	name    string
	table   string
	unique  bool
	partial bool
	columns []Column
}

func parseCreateIndex(sql string) (*indexDef, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, err
	}
	s := &scanner{tokens: tokens}
	if err := s.expect("CREATE"); err != nil {
		return nil, err
	}
	def := &indexDef{unique: s.accept("UNIQUE")}
	var ok bool
	if err := s.expect("INDEX"); err != nil {
		return nil, err
	}
	s.accept("IF", "NOT", "EXISTS")
	if def.name, err = s.qualifiedName(); err != nil {
		return nil, err
	}
	if err := s.expect("ON"); err != nil {
		return nil, err
	}
	if def.table, ok = s.next().name(); !ok {
		return nil, fmt.Errorf("%w: expected a table name", errMalformed)
	}
	items, err := s.group()
	if err != nil {
		return nil, err
	}
	if def.columns, err = indexedColumns(items); err != nil {
		return nil, err
	}
	def.partial = s.accept("WHERE")
	return def, nil
}
