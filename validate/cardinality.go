package validate

import (
	"strings"

	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
)

// CardinalityPolicy reference data node count a routed DDL must match
type CardinalityPolicy interface {
	Reference(r *rule.ShardingRule, table string) (int, error)
}

// RecordedCardinality data nodes recorded when the rule was built
type RecordedCardinality struct{}

func (RecordedCardinality) Reference(r *rule.ShardingRule, table string) (int, error) {
	t, ok := r.ShardingTable(table)
	if !ok {
		return 0, errs.NewConfiguration("`%s` is not a sharding table", table)
	}
	return len(t.DataNodes), nil
}

// RecomputedCardinality data nodes expanded again from the configured expression
type RecomputedCardinality struct{}

func (RecomputedCardinality) Reference(r *rule.ShardingRule, table string) (int, error) {
	return r.RecomputeNodeCount(table)
}

// CardinalityPolicyOf rename-cardinality-reference, recorded when empty
func CardinalityPolicyOf(props metadata.Props) (CardinalityPolicy, error) {
	switch strings.ToLower(props.RenameCardinalityReference) {
	case "", metadata.CardinalityRecorded:
		return RecordedCardinality{}, nil
	case metadata.CardinalityRecomputed:
		return RecomputedCardinality{}, nil
	}
	return nil, errs.NewConfiguration("unknown rename-cardinality-reference `%s`", props.RenameCardinalityReference)
}
