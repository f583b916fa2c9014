package rule

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/util/str"
)

// MaskRule 脱敏规则
type MaskRule struct {
	cfg *MaskRuleConfiguration
	// folded table -> folded column -> algorithm
	columns map[string]map[string]algorithm.MaskAlgorithm
}

// NewMaskRule 构建脱敏规则
func NewMaskRule(cfg *MaskRuleConfiguration) (*MaskRule, error) {
	algorithms := make(map[string]algorithm.MaskAlgorithm, len(cfg.MaskAlgorithms))
	for name, algoCfg := range cfg.MaskAlgorithms {
		a, err := algorithm.NewMask(algoCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "mask algorithm `%s`", name)
		}
		algorithms[str.Fold(name)] = a
	}
	r := &MaskRule{cfg: cfg.Clone().(*MaskRuleConfiguration), columns: make(map[string]map[string]algorithm.MaskAlgorithm, len(cfg.Tables))}
	for table, tableCfg := range cfg.Tables {
		columns := make(map[string]algorithm.MaskAlgorithm, len(tableCfg.Columns))
		for column, columnCfg := range tableCfg.Columns {
			a, ok := algorithms[str.Fold(columnCfg.MaskAlgorithm)]
			if !ok {
				return nil, errs.NewConfiguration("mask algorithm `%s` of `%s.%s` is not configured", columnCfg.MaskAlgorithm, table, column)
			}
			columns[str.Fold(column)] = a
		}
		r.columns[str.Fold(table)] = columns
	}
	return r, nil
}

func (*MaskRule) Kind() Kind { return KindMask }
func (*MaskRule) rule()      {}

func (r *MaskRule) Configuration() Configuration {
	return r.cfg.Clone()
}

// Mask masks value when table.column is configured
func (r *MaskRule) Mask(table, column string, value any) (any, bool) {
	a, ok := r.columns[str.Fold(table)][str.Fold(column)]
	if !ok {
		return value, false
	}
	return a.Mask(value), true
}

// ShadowTable 影子表
type ShadowTable struct {
	Table           string
	DataSourceNames []string
	Algorithms      []algorithm.ShadowAlgorithm
}

// ShadowRule 影子库规则
type ShadowRule struct {
	cfg *ShadowRuleConfiguration
	// production -> shadow
	dataSources      map[string]string
	tables           map[string]*ShadowTable
	defaultAlgorithm algorithm.ShadowAlgorithm
	mode             string
}

// NewShadowRule 构建影子库规则
func NewShadowRule(database *metadata.Database, cfg *ShadowRuleConfiguration) (*ShadowRule, error) {
	algorithms := make(map[string]algorithm.ShadowAlgorithm, len(cfg.ShadowAlgorithms))
	for name, algoCfg := range cfg.ShadowAlgorithms {
		a, err := algorithm.NewShadow(algoCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "shadow algorithm `%s`", name)
		}
		algorithms[str.Fold(name)] = a
	}
	mode := strings.ToUpper(cfg.Mode)
	switch mode {
	case "":
		mode = ShadowOnly
	case ShadowOnly, ShadowBoth:
	default:
		return nil, errs.NewConfiguration("unknown shadow mode `%s`", cfg.Mode)
	}
	r := &ShadowRule{
		cfg:         cfg.Clone().(*ShadowRuleConfiguration),
		dataSources: make(map[string]string, len(cfg.DataSources)),
		tables:      make(map[string]*ShadowTable, len(cfg.Tables)),
		mode:        mode,
	}
	shadowNames := map[string]struct{}{}
	for name, ds := range cfg.DataSources {
		if !database.HasDataSource(ds.ProductionDataSourceName) || !database.HasDataSource(ds.ShadowDataSourceName) {
			return nil, errs.NewConfiguration("shadow data source `%s` refers to unknown data sources", name)
		}
		r.dataSources[ds.ProductionDataSourceName] = ds.ShadowDataSourceName
		shadowNames[str.Fold(name)] = struct{}{}
	}
	if cfg.DefaultShadowAlgorithmName != "" {
		a, ok := algorithms[str.Fold(cfg.DefaultShadowAlgorithmName)]
		if !ok {
			return nil, errs.NewConfiguration("default shadow algorithm `%s` is not configured", cfg.DefaultShadowAlgorithmName)
		}
		r.defaultAlgorithm = a
	}
	for table, tableCfg := range cfg.Tables {
		t := &ShadowTable{Table: table, DataSourceNames: append([]string(nil), tableCfg.DataSourceNames...)}
		for _, ds := range tableCfg.DataSourceNames {
			if _, ok := shadowNames[str.Fold(ds)]; !ok {
				return nil, errs.NewConfiguration("shadow table `%s` refers to unknown shadow data source `%s`", table, ds)
			}
		}
		for _, name := range tableCfg.ShadowAlgorithmNames {
			a, ok := algorithms[str.Fold(name)]
			if !ok {
				return nil, errs.NewConfiguration("shadow algorithm `%s` of `%s` is not configured", name, table)
			}
			t.Algorithms = append(t.Algorithms, a)
		}
		r.tables[str.Fold(table)] = t
	}
	return r, nil
}

func (*ShadowRule) Kind() Kind { return KindShadow }
func (*ShadowRule) rule()      {}

func (r *ShadowRule) Configuration() Configuration {
	return r.cfg.Clone()
}

// Mode SHADOW_ONLY or BOTH
func (r *ShadowRule) Mode() string {
	return r.mode
}

// ShadowTable 影子表
func (r *ShadowRule) ShadowTable(name string) (*ShadowTable, bool) {
	t, ok := r.tables[str.Fold(name)]
	return t, ok
}

// ContainsShadowTable any of names is a shadow table
func (r *ShadowRule) ContainsShadowTable(names []string) bool {
	for _, n := range names {
		if _, ok := r.ShadowTable(n); ok {
			return true
		}
	}
	return false
}

// DefaultAlgorithm used for statements without shadow tables, may be nil
func (r *ShadowRule) DefaultAlgorithm() algorithm.ShadowAlgorithm {
	return r.defaultAlgorithm
}

// ShadowDataSource shadow data source of a production data source
func (r *ShadowRule) ShadowDataSource(production string) (string, bool) {
	s, ok := r.dataSources[production]
	return s, ok
}

// SingleRule 单表规则
type SingleRule struct {
	cfg               *SingleRuleConfiguration
	tables            map[string]DataNode
	defaultDataSource string
}

// NewSingleRule 构建单表规则
func NewSingleRule(database *metadata.Database, cfg *SingleRuleConfiguration) (*SingleRule, error) {
	if cfg.DefaultDataSource != "" && !database.HasDataSource(cfg.DefaultDataSource) {
		return nil, errs.NewConfiguration("default data source `%s` is not configured", cfg.DefaultDataSource)
	}
	r := &SingleRule{cfg: cfg.Clone().(*SingleRuleConfiguration), tables: make(map[string]DataNode, len(cfg.Tables)), defaultDataSource: cfg.DefaultDataSource}
	for _, t := range cfg.Tables {
		node, err := ParseDataNode(t)
		if err != nil {
			return nil, err
		}
		if !database.HasDataSource(node.DataSource) {
			return nil, errs.NewConfiguration("data source `%s` of single table `%s` is not configured", node.DataSource, node.Table)
		}
		key := str.Fold(node.Table)
		if existing, dup := r.tables[key]; dup && existing.DataSource != node.DataSource {
			return nil, errs.NewConfiguration("single table `%s` is declared on `%s` and `%s`", node.Table, existing.DataSource, node.DataSource)
		}
		r.tables[key] = node
	}
	return r, nil
}

func (*SingleRule) Kind() Kind { return KindSingle }
func (*SingleRule) rule()      {}

func (r *SingleRule) Configuration() Configuration {
	return r.cfg.Clone()
}

// IsSingleTable 是否单表
func (r *SingleRule) IsSingleTable(name string) bool {
	_, ok := r.tables[str.Fold(name)]
	return ok
}

// AllSingle every name is a single table
func (r *SingleRule) AllSingle(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if !r.IsSingleTable(n) {
			return false
		}
	}
	return true
}

// DataNode where the single table lives
func (r *SingleRule) DataNode(name string) (DataNode, bool) {
	n, ok := r.tables[str.Fold(name)]
	return n, ok
}

// DefaultDataSource may be empty
func (r *SingleRule) DefaultDataSource() string {
	return r.defaultDataSource
}

// TablesInSchema single tables declared under schema, sorted
func (r *SingleRule) TablesInSchema(schema string) []string {
	var tables []string
	for _, n := range r.tables {
		if n.Schema != "" && str.EqualFold(n.Schema, schema) {
			tables = append(tables, n.Table)
		}
	}
	sort.Strings(tables)
	return tables
}

// BroadcastRule 广播表规则
type BroadcastRule struct {
	cfg    *BroadcastRuleConfiguration
	tables map[string]string
}

// NewBroadcastRule 构建广播表规则
func NewBroadcastRule(cfg *BroadcastRuleConfiguration) (*BroadcastRule, error) {
	r := &BroadcastRule{cfg: cfg.Clone().(*BroadcastRuleConfiguration), tables: make(map[string]string, len(cfg.Tables))}
	for _, t := range cfg.Tables {
		if strings.TrimSpace(t) == "" {
			return nil, errs.NewConfiguration("empty broadcast table name")
		}
		r.tables[str.Fold(t)] = t
	}
	return r, nil
}

func (*BroadcastRule) Kind() Kind { return KindBroadcast }
func (*BroadcastRule) rule()      {}

func (r *BroadcastRule) Configuration() Configuration {
	return r.cfg.Clone()
}

// IsBroadcastTable 是否广播表
func (r *BroadcastRule) IsBroadcastTable(name string) bool {
	_, ok := r.tables[str.Fold(name)]
	return ok
}

// AllBroadcast every name is a broadcast table
func (r *BroadcastRule) AllBroadcast(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if !r.IsBroadcastTable(n) {
			return false
		}
	}
	return true
}
