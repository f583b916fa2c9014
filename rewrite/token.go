// Package rewrite turns a routed statement into executable SQL: feature generators emit tokens
// anchored at inclusive offsets of the logic SQL, the merger orders them and rejects overlaps,
// and every route unit gets the logic SQL with the token spans replaced.
package rewrite

import (
	"strings"

	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/route"
	"github.com/qjerry/dbroute/statement"
)

// Token SQLToken，tagged variant anchored at an inclusive span of the logic SQL
type Token interface {
	Bounds() statement.Span
	Render(unit route.Unit) string
	sqlToken()
}

// ParameterRewrite replaces the bound parameter at Index with derived values at bind time
type ParameterRewrite struct {
	Index  int
	Derive func(value any) ([]any, error)
}

type parameterized interface {
	ParameterRewrites() []ParameterRewrite
}

// Pair one rendered `column = value`
type Pair struct {
	Column string
	Value  string
}

func renderPairs(pairs []Pair) string {
	items := make([]string, 0, len(pairs))
	for _, p := range pairs {
		items = append(items, p.Column+" = "+p.Value)
	}
	return strings.Join(items, ", ")
}

// TableToken logic table name, replaced with the actual table of the unit
type TableToken struct {
	statement.Span
	Table    string
	Quote    byte
	Original string
	Database *metadata.Database
}

func (t *TableToken) Render(unit route.Unit) string {
	if !unit.Renamed(t.Table) {
		return t.Original
	}
	return t.Database.QuoteAs(unit.ActualTable(t.Table), t.Quote)
}

// ParameterAssignmentToken `col = ?` becoming one `cipher = ?` pair per derived column
type ParameterAssignmentToken struct {
	statement.Span
	Columns []string
	Rewrite ParameterRewrite
}

func (t *ParameterAssignmentToken) Pairs() []Pair {
	pairs := make([]Pair, 0, len(t.Columns))
	for _, c := range t.Columns {
		pairs = append(pairs, Pair{Column: c, Value: "?"})
	}
	return pairs
}

func (t *ParameterAssignmentToken) Render(route.Unit) string {
	return renderPairs(t.Pairs())
}

func (t *ParameterAssignmentToken) ParameterRewrites() []ParameterRewrite {
	return []ParameterRewrite{t.Rewrite}
}

// LiteralAssignmentToken `col = 'x'` becoming encrypted literal pairs
type LiteralAssignmentToken struct {
	statement.Span
	Pairs []Pair
}

func (t *LiteralAssignmentToken) Render(route.Unit) string {
	return renderPairs(t.Pairs)
}

// FunctionAssignmentToken `col = VALUES(col2)` becoming one VALUES() pair per facet
type FunctionAssignmentToken struct {
	statement.Span
	Pairs []Pair
}

func (t *FunctionAssignmentToken) Render(route.Unit) string {
	return renderPairs(t.Pairs)
}

// InsertColumnsToken one insert column expanded to its derived columns
type InsertColumnsToken struct {
	statement.Span
	Columns []string
}

func (t *InsertColumnsToken) Render(route.Unit) string {
	return strings.Join(t.Columns, ", ")
}

// InsertValueToken one insert value expanded to its derived values
type InsertValueToken struct {
	statement.Span
	Values  []string
	Rewrite *ParameterRewrite
}

func (t *InsertValueToken) Render(route.Unit) string {
	return strings.Join(t.Values, ", ")
}

func (t *InsertValueToken) ParameterRewrites() []ParameterRewrite {
	if t.Rewrite == nil {
		return nil
	}
	return []ParameterRewrite{*t.Rewrite}
}

// PredicateColumnToken predicate column replaced with its query column
type PredicateColumnToken struct {
	statement.Span
	Column string
}

func (t *PredicateColumnToken) Render(route.Unit) string {
	return t.Column
}

// PredicateValueToken predicate value replaced with its encrypted form
type PredicateValueToken struct {
	statement.Span
	Value   string
	Rewrite *ParameterRewrite
}

func (t *PredicateValueToken) Render(route.Unit) string {
	return t.Value
}

func (t *PredicateValueToken) ParameterRewrites() []ParameterRewrite {
	if t.Rewrite == nil {
		return nil
	}
	return []ParameterRewrite{*t.Rewrite}
}

// ProjectionToken select column replaced with its cipher column, aliased back to the logic name
type ProjectionToken struct {
	statement.Span
	Column string
	Alias  string
}

func (t *ProjectionToken) Render(route.Unit) string {
	if t.Alias == "" {
		return t.Column
	}
	return t.Column + " AS " + t.Alias
}

func (*TableToken) sqlToken()               {}
func (*ParameterAssignmentToken) sqlToken() {}
func (*LiteralAssignmentToken) sqlToken()   {}
func (*FunctionAssignmentToken) sqlToken()  {}
func (*InsertColumnsToken) sqlToken()       {}
func (*InsertValueToken) sqlToken()         {}
func (*PredicateColumnToken) sqlToken()     {}
func (*PredicateValueToken) sqlToken()      {}
func (*ProjectionToken) sqlToken()          {}
