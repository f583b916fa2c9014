package rewrite

import (
	"sort"
	"strings"

	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/route"
)

// Merge orders tokens by start offset, overlapping spans are an invariant violation
func Merge(sql string, tokens []Token) ([]Token, error) {
	merged := make([]Token, len(tokens))
	copy(merged, tokens)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Bounds().Start < merged[j].Bounds().Start
	})
	for i, t := range merged {
		b := t.Bounds()
		if b.Start < 0 || b.Stop < b.Start || b.Stop >= len(sql) {
			return nil, errs.NewInvariant("token [%d, %d] out of sql bounds %d", b.Start, b.Stop, len(sql))
		}
		if i > 0 {
			if prev := merged[i-1].Bounds(); prev.Overlaps(b) {
				return nil, errs.NewInvariant("token [%d, %d] overlaps [%d, %d]", b.Start, b.Stop, prev.Start, prev.Stop)
			}
		}
	}
	return merged, nil
}

// Splice replaces every token span of sql with its rendering for unit, text between tokens is kept verbatim
func Splice(sql string, merged []Token, unit route.Unit) string {
	if len(merged) == 0 {
		return sql
	}
	var sb strings.Builder
	last := 0
	for _, t := range merged {
		b := t.Bounds()
		sb.WriteString(sql[last:b.Start])
		sb.WriteString(t.Render(unit))
		last = b.Stop + 1
	}
	sb.WriteString(sql[last:])
	return sb.String()
}

// Parameters bound parameters with every rewritten one replaced in place by its derived values
func Parameters(params []any, tokens []Token) ([]any, error) {
	rewrites := make(map[int]ParameterRewrite)
	for _, t := range tokens {
		p, ok := t.(parameterized)
		if !ok {
			continue
		}
		for _, r := range p.ParameterRewrites() {
			if _, dup := rewrites[r.Index]; dup {
				return nil, errs.NewInvariant("parameter #%d rewritten twice", r.Index)
			}
			if r.Index < 0 || r.Index >= len(params) {
				return nil, errs.NewRoute("parameter #%d is not bound, got %d parameters", r.Index, len(params))
			}
			rewrites[r.Index] = r
		}
	}
	out := make([]any, 0, len(params)+len(rewrites))
	for i, v := range params {
		r, ok := rewrites[i]
		if !ok {
			out = append(out, v)
			continue
		}
		derived, err := r.Derive(v)
		if err != nil {
			return nil, err
		}
		out = append(out, derived...)
	}
	return out, nil
}
