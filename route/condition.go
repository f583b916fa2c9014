package route

import (
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/statement"
	"github.com/qjerry/dbroute/util/str"
)

// columnValues values of table.column carried by INSERT rows and WHERE `=` / `IN` predicates.
// Predicates are conjuncts, several of them on one column intersect. found is false when the
// statement has no usable condition on the column or its WHERE clause is disjunctive, the caller
// then routes to every target.
func columnValues(stmt *statement.Context, params []any, table, column string) (values []any, found bool, err error) {
	if stmt.Category == statement.Insert && stmt.InsertColumns != nil && str.EqualFold(stmt.InsertTable(), table) {
		index := -1
		for i, c := range stmt.InsertColumns.Columns {
			if str.EqualFold(c.Name.Value, column) {
				index = i
				break
			}
		}
		if index >= 0 {
			for _, row := range stmt.InsertValues {
				if index >= len(row.Values) {
					return nil, false, errs.NewRoute("insert row `%s` has no value for column `%s`", stmt.Text(row.Span), column)
				}
				v, ok, err := expressionValue(row.Values[index], params)
				if err != nil || !ok {
					return nil, false, err
				}
				values = append(values, v)
			}
			found = len(values) > 0
		}
	}
	if stmt.Disjunctive {
		return distinct(values), found, nil
	}
	var (
		conditions []any
		restricted bool
	)
	for _, p := range stmt.Predicates {
		if p.Operator != statement.OperatorEqual && p.Operator != statement.OperatorIn {
			continue
		}
		if !str.EqualFold(p.Column.Name.Value, column) || !str.EqualFold(stmt.ColumnTable(p.Column), table) {
			continue
		}
		var current []any
		for _, e := range p.Values {
			v, ok, err := expressionValue(e, params)
			if err != nil || !ok {
				return nil, false, err
			}
			current = append(current, v)
		}
		if restricted {
			conditions = intersect(conditions, current)
		} else {
			conditions = current
		}
		restricted = true
	}
	if restricted {
		values = append(values, conditions...)
		found = true
	}
	return distinct(values), found, nil
}

// intersect values of a present in b, in a's order
func intersect(a, b []any) []any {
	keys := make(map[string]struct{}, len(b))
	for _, v := range b {
		keys[str.ToString(v)] = struct{}{}
	}
	var out []any
	for _, v := range a {
		if _, ok := keys[str.ToString(v)]; ok {
			out = append(out, v)
		}
	}
	return out
}

// conditionColumns columns of table that carry values in the statement, in order of appearance
func conditionColumns(stmt *statement.Context, table string) []string {
	var columns []string
	seen := map[string]struct{}{}
	add := func(c string) {
		if _, ok := seen[str.Fold(c)]; ok {
			return
		}
		seen[str.Fold(c)] = struct{}{}
		columns = append(columns, c)
	}
	if stmt.Category == statement.Insert && stmt.InsertColumns != nil && str.EqualFold(stmt.InsertTable(), table) {
		for _, c := range stmt.InsertColumns.Columns {
			add(c.Name.Value)
		}
	}
	for _, p := range stmt.Predicates {
		if str.EqualFold(stmt.ColumnTable(p.Column), table) {
			add(p.Column.Name.Value)
		}
	}
	return columns
}

func expressionValue(e statement.Expression, params []any) (any, bool, error) {
	switch v := e.(type) {
	case *statement.LiteralExpression:
		return v.Value, v.Value != nil, nil
	case *statement.ParameterMarker:
		if v.Index < 0 || v.Index >= len(params) {
			return nil, false, errs.NewRoute("parameter #%d is not bound, %d parameters given", v.Index+1, len(params))
		}
		return params[v.Index], params[v.Index] != nil, nil
	}
	return nil, false, nil
}

func distinct(values []any) []any {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := values[:0:0]
	for _, v := range values {
		k := str.ToString(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, v)
	}
	return result
}
