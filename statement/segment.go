package statement

// Span inclusive offsets into the SQL text
type Span struct {
	Start int
	Stop  int
}

// Bounds the span itself, promoted to every segment embedding Span
func (s Span) Bounds() Span {
	return s
}

// Overlaps two inclusive spans share at least one offset
func (s Span) Overlaps(o Span) bool {
	return s.Start <= o.Stop && o.Start <= s.Stop
}

// Identifier a name with its original quote character, 0 when unquoted
type Identifier struct {
	Value string
	Quote byte
}

// Expression tagged variant: *LiteralExpression, *ParameterMarker, *ColumnSegment,
// *FunctionExpression, *CommonExpression
type Expression interface {
	Bounds() Span
	expression()
}

// LiteralExpression string, numeric or NULL literal
type LiteralExpression struct {
	Span
	Text string
	// string, int64, float64 or nil
	Value any
}

// ParameterMarker a `?` placeholder, Index is zero based
type ParameterMarker struct {
	Span
	Index int
}

// ColumnSegment column reference, the span covers owner and name
type ColumnSegment struct {
	Span
	Owner string
	Name  Identifier
}

// FunctionExpression NAME(args)
type FunctionExpression struct {
	Span
	Name string
	Args []Expression
	Text string
}

// CommonExpression anything else, kept as text
type CommonExpression struct {
	Span
	Text string
}

func (*LiteralExpression) expression()  {}
func (*ParameterMarker) expression()    {}
func (*ColumnSegment) expression()      {}
func (*FunctionExpression) expression() {}
func (*CommonExpression) expression()   {}

// TableSegment table reference, the span covers the table name only
type TableSegment struct {
	Span
	Owner Identifier
	Name  Identifier
	Alias string
}

// ProjectionSegment select item, the span covers `column [AS alias]`
type ProjectionSegment struct {
	Span
	Column ColumnSegment
	Alias  string
}

// InsertColumnsSegment `(a, b)`, the span covers the parentheses
type InsertColumnsSegment struct {
	Span
	Columns []ColumnSegment
}

// InsertValuesSegment one VALUES row `(?, 'a')`, the span covers the parentheses
type InsertValuesSegment struct {
	Span
	Values []Expression
}

// AssignmentSegment `col = expr`
type AssignmentSegment struct {
	Span
	Column ColumnSegment
	Value  Expression
}

// Predicate operators
const (
	OperatorEqual = "="
	OperatorIn    = "IN"
	OperatorLike  = "LIKE"
)

// PredicateSegment `col OP values`
type PredicateSegment struct {
	Span
	Column   ColumnSegment
	Operator string
	Values   []Expression
}

// RenameTableSegment `t1 TO t2`
type RenameTableSegment struct {
	Table       TableSegment
	RenameTable TableSegment
}
