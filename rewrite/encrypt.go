package rewrite

import (
	"fmt"
	"strings"

	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
)

// facet one physical representation of an encrypt column
type facet int

const (
	cipherFacet facet = iota
	assistedFacet
	likeFacet
)

var facets = []facet{cipherFacet, assistedFacet, likeFacet}

// encryptor shared by the encrypt generators
type encryptor struct {
	rule     *rule.EncryptRule
	database *metadata.Database
}

// EncryptGenerators projection, insert, assignment and predicate generators of an encrypt rule
func EncryptGenerators(r *rule.EncryptRule, database *metadata.Database) []Generator {
	e := encryptor{rule: r, database: database}
	return []Generator{
		&EncryptProjectionGenerator{e},
		&EncryptInsertColumnsGenerator{e},
		&EncryptInsertValuesGenerator{e},
		&EncryptInsertOnUpdateGenerator{e},
		&EncryptAssignmentGenerator{e},
		&EncryptPredicateGenerator{e},
	}
}

// column encrypt column of table, nil when plain
func (e encryptor) column(table, column string) *rule.EncryptColumn {
	t, ok := e.rule.EncryptTable(table)
	if !ok {
		return nil
	}
	c, _ := t.Column(column)
	return c
}

// resolve logic table and encrypt column of a column reference. An unqualified column of a
// statement over several tables fails when any of them encrypts a column of that name.
func (e encryptor) resolve(stmt *statement.Context, column statement.ColumnSegment, span statement.Span) (string, *rule.EncryptColumn, error) {
	names := stmt.TableNames()
	if column.Owner != "" || len(names) <= 1 || stmt.Category == statement.Insert {
		table := stmt.ColumnTable(column)
		return table, e.column(table, column.Name.Value), nil
	}
	for _, name := range names {
		if e.column(name, column.Name.Value) != nil {
			return "", nil, errs.NewUnsupportedRewrite(stmt.Text(span))
		}
	}
	return "", nil, nil
}

func (e encryptor) containsTable(table string) bool {
	_, ok := e.rule.EncryptTable(table)
	return ok
}

// facetColumn physical column of a facet
func facetColumn(c *rule.EncryptColumn, f facet) (string, bool) {
	switch f {
	case cipherFacet:
		return c.Cipher.Name, true
	case assistedFacet:
		if c.AssistedQuery != nil {
			return c.AssistedQuery.Name, true
		}
	case likeFacet:
		if c.LikeQuery != nil {
			return c.LikeQuery.Name, true
		}
	}
	return "", false
}

// writeFacets cipher column followed by the assisted and like query columns that exist
func writeFacets(c *rule.EncryptColumn) []facet {
	out := []facet{cipherFacet}
	if c.AssistedQuery != nil {
		out = append(out, assistedFacet)
	}
	if c.LikeQuery != nil {
		out = append(out, likeFacet)
	}
	return out
}

func (e encryptor) encrypt(f facet, table, column string, value any) (any, error) {
	switch f {
	case assistedFacet:
		return e.rule.EncryptAssistedQuery(e.database.Name, table, column, value)
	case likeFacet:
		return e.rule.EncryptLikeQuery(e.database.Name, table, column, value)
	}
	return e.rule.Encrypt(e.database.Name, table, column, value)
}

func (e encryptor) columnNames(c *rule.EncryptColumn, fs []facet, quote byte) []string {
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		name, _ := facetColumn(c, f)
		names = append(names, e.database.QuoteAs(name, quote))
	}
	return names
}

// literals encrypted literal per facet
func (e encryptor) literals(fs []facet, table, column string, value any) ([]string, error) {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		v, err := e.encrypt(f, table, column, value)
		if err != nil {
			return nil, err
		}
		out = append(out, renderLiteral(e.database.Type, v))
	}
	return out, nil
}

// derive a bound parameter becoming one value per facet
func (e encryptor) derive(index int, fs []facet, table, column string) ParameterRewrite {
	return ParameterRewrite{Index: index, Derive: func(value any) ([]any, error) {
		out := make([]any, 0, len(fs))
		for _, f := range fs {
			v, err := e.encrypt(f, table, column, value)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}}
}

func placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "?"
	}
	return out
}

// EncryptProjectionGenerator select columns read from the cipher column
type EncryptProjectionGenerator struct{ encryptor }

func (g *EncryptProjectionGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return stmt.Category == statement.Select && len(stmt.Projections) > 0
}

func (g *EncryptProjectionGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	var tokens []Token
	for _, p := range stmt.Projections {
		_, c, err := g.resolve(stmt, p.Column, p.Span)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		token := &ProjectionToken{
			Span:   stmt.ColumnNameSpan(p.Column),
			Column: g.database.QuoteAs(c.Cipher.Name, p.Column.Name.Quote),
		}
		if p.Alias == "" {
			token.Alias = stmt.Text(token.Span)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// EncryptInsertColumnsGenerator insert column expanded to cipher, assisted and like columns
type EncryptInsertColumnsGenerator struct{ encryptor }

func (g *EncryptInsertColumnsGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return stmt.Category == statement.Insert && stmt.InsertColumns != nil && g.containsTable(stmt.InsertTable())
}

func (g *EncryptInsertColumnsGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	table := stmt.InsertTable()
	var tokens []Token
	for _, column := range stmt.InsertColumns.Columns {
		c := g.column(table, column.Name.Value)
		if c == nil {
			continue
		}
		tokens = append(tokens, &InsertColumnsToken{
			Span:    stmt.ColumnNameSpan(column),
			Columns: g.columnNames(c, writeFacets(c), column.Name.Quote),
		})
	}
	return tokens, nil
}

// EncryptInsertValuesGenerator insert value expanded to one encrypted value per derived column
type EncryptInsertValuesGenerator struct{ encryptor }

func (g *EncryptInsertValuesGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return stmt.Category == statement.Insert && len(stmt.InsertValues) > 0 && g.containsTable(stmt.InsertTable())
}

func (g *EncryptInsertValuesGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	table := stmt.InsertTable()
	// 无列名时无法确定加密列
	if stmt.InsertColumns == nil {
		return nil, errs.NewUnsupportedRewrite(stmt.Text(stmt.InsertValues[0].Span))
	}
	var tokens []Token
	for i, column := range stmt.InsertColumns.Columns {
		c := g.column(table, column.Name.Value)
		if c == nil {
			continue
		}
		fs := writeFacets(c)
		for _, row := range stmt.InsertValues {
			if i >= len(row.Values) {
				return nil, errs.NewUnsupportedRewrite(stmt.Text(row.Span))
			}
			token, err := g.valueToken(stmt, row.Values[i], fs, table, c.Name)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (g *EncryptInsertValuesGenerator) valueToken(stmt *statement.Context, value statement.Expression, fs []facet, table, column string) (Token, error) {
	switch v := value.(type) {
	case *statement.ParameterMarker:
		rewrite := g.derive(v.Index, fs, table, column)
		return &InsertValueToken{Span: v.Span, Values: placeholders(len(fs)), Rewrite: &rewrite}, nil
	case *statement.LiteralExpression:
		values, err := g.literals(fs, table, column, v.Value)
		if err != nil {
			return nil, err
		}
		return &InsertValueToken{Span: v.Span, Values: values}, nil
	}
	return nil, errs.NewUnsupportedRewrite(stmt.Text(value.Bounds()))
}

// EncryptInsertOnUpdateGenerator ON DUPLICATE KEY UPDATE assignments of encrypt columns
type EncryptInsertOnUpdateGenerator struct{ encryptor }

func (g *EncryptInsertOnUpdateGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return stmt.Category == statement.Insert && len(stmt.OnDuplicateKeyUpdate) > 0
}

func (g *EncryptInsertOnUpdateGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	table := stmt.InsertTable()
	var tokens []Token
	for _, a := range stmt.OnDuplicateKeyUpdate {
		token, err := g.assignmentToken(stmt, table, a)
		if err != nil {
			return nil, err
		}
		if token != nil {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (g *EncryptInsertOnUpdateGenerator) assignmentToken(stmt *statement.Context, table string, a statement.AssignmentSegment) (Token, error) {
	name := a.Column.Name.Value
	left := g.column(table, name)
	source, isValues := valuesColumn(a.Value)
	var right *rule.EncryptColumn
	if isValues {
		right = g.column(table, source.Name.Value)
	}
	if left == nil && (!isValues || right == nil) {
		return nil, nil
	}
	span := statement.Span{Start: stmt.ColumnNameSpan(a.Column).Start, Stop: a.Value.Bounds().Stop}
	switch v := a.Value.(type) {
	case *statement.ParameterMarker:
		return assignmentParameterToken(g.encryptor, span, left, a.Column.Name.Quote, table, v.Index), nil
	case *statement.LiteralExpression:
		return assignmentLiteralToken(g.encryptor, span, left, a.Column.Name.Quote, table, v.Value)
	}
	if !isValues {
		return nil, errs.NewUnsupportedRewrite(stmt.Text(a.Span))
	}
	expression := fmt.Sprintf("%s=VALUES(%s)", name, source.Name.Value)
	var pairs []Pair
	for _, f := range facets {
		var l, r string
		var lok, rok bool
		if left != nil {
			l, lok = facetColumn(left, f)
		}
		if right != nil {
			r, rok = facetColumn(right, f)
		}
		// 两侧加密方式必须一致
		if lok != rok {
			return nil, errs.NewUnsupportedRewrite(expression)
		}
		if !lok {
			continue
		}
		pairs = append(pairs, Pair{
			Column: g.database.QuoteAs(l, a.Column.Name.Quote),
			Value:  "VALUES(" + g.database.QuoteAs(r, source.Name.Quote) + ")",
		})
	}
	if len(pairs) == 0 {
		return nil, errs.NewUnsupportedRewrite(expression)
	}
	return &FunctionAssignmentToken{Span: span, Pairs: pairs}, nil
}

// valuesColumn the column of a `VALUES(col)` expression
func valuesColumn(e statement.Expression) (*statement.ColumnSegment, bool) {
	fn, ok := e.(*statement.FunctionExpression)
	if !ok || !strings.EqualFold(fn.Name, "VALUES") || len(fn.Args) != 1 {
		return nil, false
	}
	column, ok := fn.Args[0].(*statement.ColumnSegment)
	return column, ok
}

func assignmentParameterToken(e encryptor, span statement.Span, c *rule.EncryptColumn, quote byte, table string, index int) Token {
	fs := writeFacets(c)
	return &ParameterAssignmentToken{
		Span:    span,
		Columns: e.columnNames(c, fs, quote),
		Rewrite: e.derive(index, fs, table, c.Name),
	}
}

func assignmentLiteralToken(e encryptor, span statement.Span, c *rule.EncryptColumn, quote byte, table string, value any) (Token, error) {
	fs := writeFacets(c)
	values, err := e.literals(fs, table, c.Name, value)
	if err != nil {
		return nil, err
	}
	columns := e.columnNames(c, fs, quote)
	pairs := make([]Pair, 0, len(fs))
	for i := range fs {
		pairs = append(pairs, Pair{Column: columns[i], Value: values[i]})
	}
	return &LiteralAssignmentToken{Span: span, Pairs: pairs}, nil
}

// EncryptAssignmentGenerator UPDATE SET assignments of encrypt columns
type EncryptAssignmentGenerator struct{ encryptor }

func (g *EncryptAssignmentGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return stmt.Category == statement.Update && len(stmt.Assignments) > 0
}

func (g *EncryptAssignmentGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	var tokens []Token
	for _, a := range stmt.Assignments {
		table, c, err := g.resolve(stmt, a.Column, a.Span)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		span := statement.Span{Start: stmt.ColumnNameSpan(a.Column).Start, Stop: a.Value.Bounds().Stop}
		switch v := a.Value.(type) {
		case *statement.ParameterMarker:
			tokens = append(tokens, assignmentParameterToken(g.encryptor, span, c, a.Column.Name.Quote, table, v.Index))
		case *statement.LiteralExpression:
			token, err := assignmentLiteralToken(g.encryptor, span, c, a.Column.Name.Quote, table, v.Value)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		default:
			return nil, errs.NewUnsupportedRewrite(stmt.Text(a.Span))
		}
	}
	return tokens, nil
}

// EncryptPredicateGenerator WHERE conditions on encrypt columns
type EncryptPredicateGenerator struct{ encryptor }

func (g *EncryptPredicateGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return len(stmt.Predicates) > 0
}

func (g *EncryptPredicateGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	var tokens []Token
	for _, p := range stmt.Predicates {
		table, c, err := g.resolve(stmt, p.Column, p.Span)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		f, err := predicateFacet(stmt, p, c)
		if err != nil {
			return nil, err
		}
		name, _ := facetColumn(c, f)
		tokens = append(tokens, &PredicateColumnToken{
			Span:   stmt.ColumnNameSpan(p.Column),
			Column: g.database.QuoteAs(name, p.Column.Name.Quote),
		})
		if p.Operator == "IS" {
			continue
		}
		for _, value := range p.Values {
			token, err := g.valueToken(stmt, value, f, table, c.Name)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

// predicateFacet 等值条件优先使用辅助查询列，LIKE 必须有模糊查询列
func predicateFacet(stmt *statement.Context, p statement.PredicateSegment, c *rule.EncryptColumn) (facet, error) {
	switch p.Operator {
	case statement.OperatorEqual, statement.OperatorIn, "NOT IN", "<>", "!=":
		if c.AssistedQuery != nil {
			return assistedFacet, nil
		}
		return cipherFacet, nil
	case statement.OperatorLike, "NOT LIKE":
		if c.LikeQuery != nil {
			return likeFacet, nil
		}
	case "IS":
		return cipherFacet, nil
	}
	return cipherFacet, errs.NewUnsupportedRewrite(stmt.Text(p.Span))
}

func (g *EncryptPredicateGenerator) valueToken(stmt *statement.Context, value statement.Expression, f facet, table, column string) (Token, error) {
	switch v := value.(type) {
	case *statement.ParameterMarker:
		rewrite := g.derive(v.Index, []facet{f}, table, column)
		return &PredicateValueToken{Span: v.Span, Value: "?", Rewrite: &rewrite}, nil
	case *statement.LiteralExpression:
		values, err := g.literals([]facet{f}, table, column, v.Value)
		if err != nil {
			return nil, err
		}
		return &PredicateValueToken{Span: v.Span, Value: values[0]}, nil
	}
	return nil, errs.NewUnsupportedRewrite(stmt.Text(value.Bounds()))
}
