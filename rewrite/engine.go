package rewrite

import (
	"github.com/qjerry/dbroute/route"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
)

// Unit rewritten SQL of one route unit
type Unit struct {
	RouteUnit route.Unit
	SQL       string
	Params    []any
}

// Result 改写结果，units follow the route context order
type Result struct {
	Tokens []Token
	Units  []Unit
}

// Rewrite generates, merges and applies tokens for every unit of rc
func Rewrite(stmt *statement.Context, params []any, rules *rule.MetaData, hint statement.HintValueContext, rc *route.Context) (*Result, error) {
	tokens, err := Generate(stmt, Generators(rules, hint))
	if err != nil {
		return nil, err
	}
	merged, err := Merge(stmt.SQL, tokens)
	if err != nil {
		return nil, err
	}
	rewritten, err := Parameters(params, merged)
	if err != nil {
		return nil, err
	}
	result := &Result{Tokens: merged}
	for _, u := range rc.Units() {
		result.Units = append(result.Units, Unit{
			RouteUnit: u,
			SQL:       Splice(stmt.SQL, merged, u),
			Params:    clone(rewritten),
		})
	}
	return result, nil
}

func clone(params []any) []any {
	if params == nil {
		return nil
	}
	out := make([]any, len(params))
	copy(out, params)
	return out
}
