package metadata

import (
	"github.com/qjerry/dbroute/statement"
)

// Reference cardinality used when validating a table rename after routing
const (
	CardinalityRecorded   = "recorded"
	CardinalityRecomputed = "recomputed"
)

// Props configuration properties
type Props struct {
	// 打印逻辑SQL与真实SQL
	SQLShow   bool `mapstructure:"sqlShow" yaml:"sql-show"`
	SQLSimple bool `mapstructure:"sqlSimple" yaml:"sql-simple"`
	// recorded | recomputed
	RenameCardinalityReference string `mapstructure:"renameCardinalityReference" yaml:"rename-cardinality-reference"`
}

// DefaultProps defaults
func DefaultProps() Props {
	return Props{RenameCardinalityReference: CardinalityRecorded}
}

// ConnectionContext session state of the connection issuing the statement
type ConnectionContext struct {
	CurrentDatabase string
	InTransaction   bool
	// hint set by the session, merged with the statement hint
	Hint statement.HintValueContext
}

// MergedHint statement hint overriding the session hint
func (c ConnectionContext) MergedHint(stmt *statement.Context) statement.HintValueContext {
	hint := c.Hint
	if stmt == nil {
		return hint
	}
	h := stmt.Hint
	hint.Shadow = hint.Shadow || h.Shadow
	hint.SkipEncryptRewrite = hint.SkipEncryptRewrite || h.SkipEncryptRewrite
	if h.DataSourceName != "" {
		hint.DataSourceName = h.DataSourceName
	}
	hint.ShardingDatabaseValues = mergeValues(hint.ShardingDatabaseValues, h.ShardingDatabaseValues)
	hint.ShardingTableValues = mergeValues(hint.ShardingTableValues, h.ShardingTableValues)
	return hint
}

func mergeValues(base, override map[string][]any) map[string][]any {
	if len(override) == 0 {
		return base
	}
	merged := make(map[string][]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
