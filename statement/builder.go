package statement

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/util/str"
)

// Builder binds segments to a SQL text by locating their fragments. It is not a parser:
// every fragment must appear verbatim (case-insensitive) in the SQL and is claimed at its
// first unclaimed occurrence outside string literals and comments.
//
//	stmt, err := statement.NewBuilder("SELECT name FROM t_user WHERE id = ?").
//		Table("t_user").Projection("name").Where("id = ?").Build()
type Builder struct {
	sql     string
	code    []bool
	claimed []Span
	ctx     *Context
	err     error
}

// NewBuilder classifies sql and extracts its hint
func NewBuilder(sql string) *Builder {
	category, kind := Classify(sql)
	return &Builder{
		sql:  sql,
		code: codeMask(sql),
		ctx: &Context{
			SQL:      sql,
			Category: category,
			Kind:     kind,
			Hint:     ExtractHint(sql),
		},
	}
}

// Kind overrides the classified category and kind
func (b *Builder) Kind(category Category, kind Kind) *Builder {
	b.ctx.Category = category
	b.ctx.Kind = kind
	return b
}

// Table `name`, `owner.name`, `name alias` or `name AS alias`
func (b *Builder) Table(fragment string) *Builder {
	fields := strings.Fields(fragment)
	if len(fields) == 0 {
		return b.fail(errors.New("empty table fragment"))
	}
	alias := ""
	switch {
	case len(fields) >= 3 && strings.EqualFold(fields[1], "AS"):
		alias = fields[2]
	case len(fields) == 2:
		alias = fields[1]
	}
	span, ok := b.locate(fields[0])
	if !ok {
		return b.missing(fields[0])
	}
	table := tableAt(fields[0], span.Start)
	table.Alias = alias
	b.ctx.Tables = append(b.ctx.Tables, table)
	return b
}

// Projection `column [AS alias]`
func (b *Builder) Projection(fragment string) *Builder {
	fragment = strings.TrimSpace(fragment)
	span, ok := b.locate(fragment)
	if !ok {
		return b.missing(fragment)
	}
	fields := strings.Fields(fragment)
	alias := ""
	switch {
	case len(fields) >= 3 && strings.EqualFold(fields[1], "AS"):
		alias = fields[2]
	case len(fields) == 2:
		alias = fields[1]
	}
	b.ctx.Projections = append(b.ctx.Projections, ProjectionSegment{
		Span:   span,
		Column: columnAt(fields[0], span.Start),
		Alias:  alias,
	})
	return b
}

// InsertColumns `(a, b)`
func (b *Builder) InsertColumns(fragment string) *Builder {
	fragment = strings.TrimSpace(fragment)
	span, ok := b.locate(fragment)
	if !ok {
		return b.missing(fragment)
	}
	inner, offset, err := parenthesized(fragment, span.Start)
	if err != nil {
		return b.fail(err)
	}
	segment := &InsertColumnsSegment{Span: span}
	for _, part := range splitTopLevel(inner, offset) {
		text, at := trimWithOffset(part.text, part.offset)
		segment.Columns = append(segment.Columns, columnAt(text, at))
	}
	b.ctx.InsertColumns = segment
	return b
}

// InsertRow one VALUES row `(?, 'a')`
func (b *Builder) InsertRow(fragment string) *Builder {
	fragment = strings.TrimSpace(fragment)
	span, ok := b.locate(fragment)
	if !ok {
		return b.missing(fragment)
	}
	inner, offset, err := parenthesized(fragment, span.Start)
	if err != nil {
		return b.fail(err)
	}
	row := InsertValuesSegment{Span: span}
	for _, part := range splitTopLevel(inner, offset) {
		row.Values = append(row.Values, b.expressionAt(part.text, part.offset))
	}
	b.ctx.InsertValues = append(b.ctx.InsertValues, row)
	return b
}

// OnDuplicate one ON DUPLICATE KEY UPDATE assignment `col = expr`
func (b *Builder) OnDuplicate(fragment string) *Builder {
	assignment, err := b.assignment(fragment)
	if err != nil {
		return b.fail(err)
	}
	b.ctx.OnDuplicateKeyUpdate = append(b.ctx.OnDuplicateKeyUpdate, assignment)
	return b
}

// Set one UPDATE SET assignment `col = expr`
func (b *Builder) Set(fragment string) *Builder {
	assignment, err := b.assignment(fragment)
	if err != nil {
		return b.fail(err)
	}
	b.ctx.Assignments = append(b.ctx.Assignments, assignment)
	return b
}

// Where one predicate `col = ?`, `col IN (?, ?)`, `col LIKE 'a%'`
func (b *Builder) Where(fragment string) *Builder {
	fragment = strings.TrimSpace(fragment)
	span, ok := b.locate(fragment)
	if !ok {
		return b.missing(fragment)
	}
	predicate, err := b.predicateAt(fragment, span)
	if err != nil {
		return b.fail(err)
	}
	b.ctx.Predicates = append(b.ctx.Predicates, predicate)
	return b
}

// Rename `t1 TO t2`
func (b *Builder) Rename(fragment string) *Builder {
	fragment = strings.TrimSpace(fragment)
	span, ok := b.locate(fragment)
	if !ok {
		return b.missing(fragment)
	}
	idx := indexFold(fragment, " TO ")
	if idx < 0 {
		return b.fail(errors.Errorf("rename fragment `%s` has no TO", fragment))
	}
	from, fromAt := trimWithOffset(fragment[:idx], span.Start)
	to, toAt := trimWithOffset(fragment[idx+4:], span.Start+idx+4)
	rename := RenameTableSegment{Table: tableAt(from, fromAt), RenameTable: tableAt(to, toAt)}
	b.ctx.RenameTables = append(b.ctx.RenameTables, rename)
	b.ctx.Tables = append(b.ctx.Tables, rename.Table, rename.RenameTable)
	return b
}

// IfExists DROP ... IF EXISTS
func (b *Builder) IfExists() *Builder {
	b.ctx.IfExists = true
	return b
}

// IfNotExists CREATE ... IF NOT EXISTS
func (b *Builder) IfNotExists() *Builder {
	b.ctx.IfNotExists = true
	return b
}

// Cascade DROP ... CASCADE
func (b *Builder) Cascade() *Builder {
	b.ctx.Cascade = true
	return b
}

// Schema DROP SCHEMA target
func (b *Builder) Schema(name string) *Builder {
	b.ctx.Schema = name
	return b
}

// Build returns the bound statement or the first locate failure
func (b *Builder) Build() (*Context, error) {
	if b.err != nil {
		return nil, b.err
	}
	sort.SliceStable(b.ctx.Tables, func(i, j int) bool {
		return b.ctx.Tables[i].Start < b.ctx.Tables[j].Start
	})
	b.ctx.Disjunctive = b.ctx.Disjunctive || b.containsKeyword("OR")
	return b.ctx, nil
}

// MustBuild Build, panics on failure
func (b *Builder) MustBuild() *Context {
	ctx, err := b.Build()
	if err != nil {
		panic(err)
	}
	return ctx
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) missing(fragment string) *Builder {
	return b.fail(errors.Errorf("fragment `%s` not found in `%s`", fragment, b.sql))
}

func (b *Builder) locate(fragment string) (Span, bool) {
	n := len(fragment)
	if n == 0 {
		return Span{}, false
	}
	for i := 0; i+n <= len(b.sql); i++ {
		if !b.code[i] || !strings.EqualFold(b.sql[i:i+n], fragment) {
			continue
		}
		if isWord(fragment[0]) && i > 0 && (isWord(b.sql[i-1]) || b.sql[i-1] == '.') {
			continue
		}
		if isWord(fragment[n-1]) && i+n < len(b.sql) && (isWord(b.sql[i+n]) || b.sql[i+n] == '.') {
			continue
		}
		span := Span{Start: i, Stop: i + n - 1}
		if b.isClaimed(span) {
			continue
		}
		b.claimed = append(b.claimed, span)
		return span, true
	}
	return Span{}, false
}

// containsKeyword word outside string literals and comments
func (b *Builder) containsKeyword(word string) bool {
	n := len(word)
	for i := 0; i+n <= len(b.sql); i++ {
		if !b.code[i] || !strings.EqualFold(b.sql[i:i+n], word) {
			continue
		}
		if i > 0 && (isWord(b.sql[i-1]) || b.sql[i-1] == '.') {
			continue
		}
		if i+n < len(b.sql) && (isWord(b.sql[i+n]) || b.sql[i+n] == '.') {
			continue
		}
		return true
	}
	return false
}

// Disjunctive marks a WHERE clause combining conditions with OR, set on its own when the SQL
// holds an OR keyword
func (b *Builder) Disjunctive() *Builder {
	b.ctx.Disjunctive = true
	return b
}

func (b *Builder) isClaimed(span Span) bool {
	for _, c := range b.claimed {
		if c.Overlaps(span) {
			return true
		}
	}
	return false
}

func (b *Builder) assignment(fragment string) (AssignmentSegment, error) {
	fragment = strings.TrimSpace(fragment)
	span, ok := b.locate(fragment)
	if !ok {
		return AssignmentSegment{}, errors.Errorf("fragment `%s` not found in `%s`", fragment, b.sql)
	}
	eq := indexTopLevel(fragment, '=')
	if eq < 0 {
		return AssignmentSegment{}, errors.Errorf("assignment `%s` has no `=`", fragment)
	}
	left, leftAt := trimWithOffset(fragment[:eq], span.Start)
	return AssignmentSegment{
		Span:   span,
		Column: columnAt(left, leftAt),
		Value:  b.expressionAt(fragment[eq+1:], span.Start+eq+1),
	}, nil
}

var predicateOperators = []string{"NOT IN", "NOT LIKE", "IN", "LIKE", "BETWEEN", "IS", "<=", ">=", "<>", "!=", "=", "<", ">"}

func (b *Builder) predicateAt(fragment string, span Span) (PredicateSegment, error) {
	end := 0
	for end < len(fragment) && !isSpace(fragment[end]) && !strings.ContainsRune("=<>!", rune(fragment[end])) {
		end++
	}
	predicate := PredicateSegment{Span: span, Column: columnAt(fragment[:end], span.Start)}
	rest, restAt := trimWithOffset(fragment[end:], span.Start+end)
	for _, op := range predicateOperators {
		if len(rest) < len(op) || !strings.EqualFold(rest[:len(op)], op) {
			continue
		}
		if isWord(op[0]) && len(rest) > len(op) && isWord(rest[len(op)]) {
			continue
		}
		predicate.Operator = op
		valueText, valueAt := trimWithOffset(rest[len(op):], restAt+len(op))
		switch op {
		case OperatorIn, "NOT IN":
			inner, offset, err := parenthesized(valueText, valueAt)
			if err != nil {
				return predicate, err
			}
			for _, part := range splitTopLevel(inner, offset) {
				predicate.Values = append(predicate.Values, b.expressionAt(part.text, part.offset))
			}
		case "BETWEEN":
			and := indexFold(valueText, " AND ")
			if and < 0 {
				return predicate, errors.Errorf("predicate `%s` has no AND", fragment)
			}
			predicate.Values = append(predicate.Values,
				b.expressionAt(valueText[:and], valueAt),
				b.expressionAt(valueText[and+5:], valueAt+and+5))
		default:
			predicate.Values = append(predicate.Values, b.expressionAt(valueText, valueAt))
		}
		return predicate, nil
	}
	return predicate, errors.Errorf("predicate `%s` has no supported operator", fragment)
}

// expressionAt classifies text found at offset
func (b *Builder) expressionAt(text string, offset int) Expression {
	text, offset = trimWithOffset(text, offset)
	span := Span{Start: offset, Stop: offset + len(text) - 1}
	switch {
	case text == "?":
		return &ParameterMarker{Span: span, Index: countMarkers(b.sql, offset)}
	case len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'':
		return &LiteralExpression{Span: span, Text: text, Value: unescapeLiteral(text[1 : len(text)-1])}
	case strings.EqualFold(text, "NULL"):
		return &LiteralExpression{Span: span, Text: text}
	}
	if looksNumeric(text) {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return &LiteralExpression{Span: span, Text: text, Value: n}
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return &LiteralExpression{Span: span, Text: text, Value: f}
		}
	}
	if open := strings.IndexByte(text, '('); open > 0 && text[len(text)-1] == ')' && isIdentifier(strings.TrimSpace(text[:open])) {
		fn := &FunctionExpression{Span: span, Name: strings.TrimSpace(text[:open]), Text: text}
		inner := text[open+1 : len(text)-1]
		if strings.TrimSpace(inner) != "" {
			for _, part := range splitTopLevel(inner, offset+open+1) {
				fn.Args = append(fn.Args, b.expressionAt(part.text, part.offset))
			}
		}
		return fn
	}
	if isColumnText(text) {
		column := columnAt(text, offset)
		return &column
	}
	return &CommonExpression{Span: span, Text: text}
}

func tableAt(text string, offset int) TableSegment {
	table := TableSegment{}
	name, nameAt := text, offset
	if dot := lastDotOutsideQuotes(text); dot >= 0 {
		owner, quote := str.Unquote(text[:dot])
		table.Owner = Identifier{Value: owner, Quote: quote}
		name, nameAt = text[dot+1:], offset+dot+1
	}
	value, quote := str.Unquote(name)
	table.Name = Identifier{Value: value, Quote: quote}
	table.Span = Span{Start: nameAt, Stop: nameAt + len(name) - 1}
	return table
}

func columnAt(text string, offset int) ColumnSegment {
	column := ColumnSegment{Span: Span{Start: offset, Stop: offset + len(text) - 1}}
	name := text
	if dot := lastDotOutsideQuotes(text); dot >= 0 {
		column.Owner, _ = str.Unquote(text[:dot])
		name = text[dot+1:]
	}
	value, quote := str.Unquote(name)
	column.Name = Identifier{Value: value, Quote: quote}
	return column
}

type part struct {
	text   string
	offset int
}

// splitTopLevel splits on commas outside parentheses and quotes
func splitTopLevel(s string, offset int) []part {
	var (
		parts []part
		depth int
		quote byte
		last  int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		case ch == ',' && depth == 0:
			parts = append(parts, part{text: s[last:i], offset: offset + last})
			last = i + 1
		}
	}
	return append(parts, part{text: s[last:], offset: offset + last})
}

func indexTopLevel(s string, target byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
		case ch == target && depth == 0:
			return i
		}
	}
	return -1
}

func parenthesized(text string, offset int) (string, int, error) {
	text, offset = trimWithOffset(text, offset)
	if len(text) < 2 || text[0] != '(' || text[len(text)-1] != ')' {
		return "", 0, errors.Errorf("`%s` is not parenthesized", text)
	}
	return text[1 : len(text)-1], offset + 1, nil
}

func trimWithOffset(s string, offset int) (string, int) {
	trimmedLeft := strings.TrimLeft(s, " \t\r\n")
	offset += len(s) - len(trimmedLeft)
	return strings.TrimRight(trimmedLeft, " \t\r\n"), offset
}

func indexFold(s, sub string) int {
	return strings.Index(strings.ToUpper(s), strings.ToUpper(sub))
}

func lastDotOutsideQuotes(s string) int {
	var quote byte
	dot := -1
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote || (quote == '[' && ch == ']') {
				quote = 0
			}
		case ch == '`' || ch == '"' || ch == '[':
			quote = ch
		case ch == '.':
			dot = i
		}
	}
	return dot
}

func unescapeLiteral(s string) string {
	s = strings.ReplaceAll(s, "''", "'")
	return strings.ReplaceAll(s, `\'`, "'")
}

// codeMask marks offsets outside string literals and comments
func codeMask(sql string) []bool {
	mask := make([]bool, len(sql))
	for i := 0; i < len(sql); {
		switch {
		case sql[i] == '\'':
			j := i + 1
			for j < len(sql) && sql[j] != '\'' {
				if sql[j] == '\\' {
					j++
				}
				j++
			}
			i = j + 1
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return mask
			}
			i += end + 4
		case strings.HasPrefix(sql[i:], "-- "):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				return mask
			}
			i += end + 1
		default:
			mask[i] = true
			i++
		}
	}
	return mask
}

func isWord(ch byte) bool {
	return ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	ch := s[0]
	if (ch == '-' || ch == '+') && len(s) > 1 {
		ch = s[1]
	}
	return ch >= '0' && ch <= '9' || ch == '.'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWord(s[i]) {
			return false
		}
	}
	return true
}

// isColumnText plain, quoted or owner-qualified identifier
func isColumnText(s string) bool {
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		return false
	}
	for _, piece := range strings.Split(s, ".") {
		value, quote := str.Unquote(piece)
		if quote != 0 {
			continue
		}
		if !isIdentifier(value) {
			return false
		}
	}
	return true
}
