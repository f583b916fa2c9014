// Package statement describes a bound, read-only SQL statement: its category, the tables it
// references and the structural segments the router and the rewriter need, each anchored by
// inclusive offsets into the original SQL text.
package statement

import (
	"strings"

	"github.com/qjerry/dbroute/util/str"
)

// Category statement category
type Category int

const (
	CategoryUnknown Category = iota
	Select
	Insert
	Update
	Delete
	DDL
	TCL
	DAL
)

func (c Category) String() string {
	switch c {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case DDL:
		return "DDL"
	case TCL:
		return "TCL"
	case DAL:
		return "DAL"
	}
	return "UNKNOWN"
}

// Kind the concrete statement inside its category
type Kind int

const (
	KindNone Kind = iota
	CreateTable
	AlterTable
	DropTable
	TruncateTable
	RenameTable
	CreateIndex
	DropIndex
	DropSchema
	Begin
	Commit
	Rollback
	Savepoint
	Set
	Use
	Show
)

var kindNames = map[Kind]string{
	KindNone:      "NONE",
	CreateTable:   "CREATE TABLE",
	AlterTable:    "ALTER TABLE",
	DropTable:     "DROP TABLE",
	TruncateTable: "TRUNCATE TABLE",
	RenameTable:   "RENAME TABLE",
	CreateIndex:   "CREATE INDEX",
	DropIndex:     "DROP INDEX",
	DropSchema:    "DROP SCHEMA",
	Begin:         "BEGIN",
	Commit:        "COMMIT",
	Rollback:      "ROLLBACK",
	Savepoint:     "SAVEPOINT",
	Set:           "SET",
	Use:           "USE",
	Show:          "SHOW",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsSessionControl transaction control or session variable statements
func (k Kind) IsSessionControl() bool {
	switch k {
	case Begin, Commit, Rollback, Savepoint, Set, Use:
		return true
	}
	return false
}

// Context the bound statement.
//
// Predicates are the conjuncts of the WHERE clause. When the clause also combines conditions
// with OR, Disjunctive is set and the predicates no longer restrict routing: every sharding
// column is then routed as if it had no condition.
type Context struct {
	SQL      string
	Category Category
	Kind     Kind

	Tables               []TableSegment
	Projections          []ProjectionSegment
	InsertColumns        *InsertColumnsSegment
	InsertValues         []InsertValuesSegment
	OnDuplicateKeyUpdate []AssignmentSegment
	Assignments          []AssignmentSegment
	Predicates           []PredicateSegment
	Disjunctive          bool
	RenameTables         []RenameTableSegment

	IfExists    bool
	IfNotExists bool
	Cascade     bool
	// DROP SCHEMA target
	Schema string

	Hint HintValueContext
}

// TableNames distinct logic table names, in order of appearance
func (c *Context) TableNames() []string {
	seen := make(map[string]struct{}, len(c.Tables))
	names := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		key := str.Fold(t.Name.Value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, t.Name.Value)
	}
	return names
}

// InsertTable the target table of an INSERT
func (c *Context) InsertTable() string {
	if c.Category != Insert || len(c.Tables) == 0 {
		return ""
	}
	return c.Tables[0].Name.Value
}

// IsDDL data definition statement
func (c *Context) IsDDL() bool {
	return c.Category == DDL
}

// ParameterCount number of parameter markers in the SQL
func (c *Context) ParameterCount() int {
	return countMarkers(c.SQL, len(c.SQL))
}

// ColumnTable resolves the logic table a column belongs to, by owner or alias, falling back to
// the only table of the statement.
func (c *Context) ColumnTable(column ColumnSegment) string {
	if column.Owner != "" {
		for _, t := range c.Tables {
			if str.EqualFold(t.Alias, column.Owner) || str.EqualFold(t.Name.Value, column.Owner) {
				return t.Name.Value
			}
		}
		return ""
	}
	names := c.TableNames()
	if len(names) == 1 {
		return names[0]
	}
	if c.Category == Insert || c.Category == Update {
		return c.InsertTableOrFirst()
	}
	return ""
}

// InsertTableOrFirst the first table of the statement
func (c *Context) InsertTableOrFirst() string {
	if len(c.Tables) == 0 {
		return ""
	}
	return c.Tables[0].Name.Value
}

// Text original text covered by span
func (c *Context) Text(s Span) string {
	if s.Start < 0 || s.Stop >= len(c.SQL) || s.Stop < s.Start {
		return ""
	}
	return c.SQL[s.Start : s.Stop+1]
}

func countMarkers(sql string, until int) int {
	n := 0
	var quote byte
	for i := 0; i < until && i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '?':
			n++
		}
	}
	return n
}

// normalizeKeyword upper-cased, single-spaced keyword sequence
func normalizeKeyword(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// ColumnNameSpan the part of a column reference after its owner
func (c *Context) ColumnNameSpan(column ColumnSegment) Span {
	dot := lastDotOutsideQuotes(c.Text(column.Span))
	if column.Owner == "" || dot < 0 {
		return column.Span
	}
	return Span{Start: column.Start + dot + 1, Stop: column.Stop}
}

// ColumnOwnerSpan the owner of a qualified column reference
func (c *Context) ColumnOwnerSpan(column ColumnSegment) (Span, bool) {
	dot := lastDotOutsideQuotes(c.Text(column.Span))
	if column.Owner == "" || dot <= 0 {
		return Span{}, false
	}
	return Span{Start: column.Start, Stop: column.Start + dot - 1}, true
}
