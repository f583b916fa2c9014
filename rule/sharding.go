package rule

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/util/inline"
	"github.com/qjerry/dbroute/util/str"
)

// DataNode one physical table
type DataNode struct {
	DataSource string
	Schema     string
	Table      string
}

func (n DataNode) String() string {
	if n.Schema != "" {
		return n.DataSource + "." + n.Schema + "." + n.Table
	}
	return n.DataSource + "." + n.Table
}

// ParseDataNode ds.table or ds.schema.table
func ParseDataNode(s string) (DataNode, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	switch len(parts) {
	case 2:
		return DataNode{DataSource: parts[0], Table: parts[1]}, nil
	case 3:
		return DataNode{DataSource: parts[0], Schema: parts[1], Table: parts[2]}, nil
	}
	return DataNode{}, errs.NewConfiguration("invalid data node `%s`, expect ds.table", s)
}

// ShardingStrategy resolved strategy, an empty Column means values come from the hint
type ShardingStrategy struct {
	Column        string
	AlgorithmName string
	Algorithm     algorithm.ShardingAlgorithm
}

// IsHint 由hint提供分片值
func (s *ShardingStrategy) IsHint() bool {
	return s != nil && s.Column == ""
}

// ShardingTable 分片表
type ShardingTable struct {
	LogicTable       string
	DataNodes        []DataNode
	DatabaseStrategy *ShardingStrategy
	TableStrategy    *ShardingStrategy
}

// DataSourceNames distinct data sources in node order
func (t *ShardingTable) DataSourceNames() []string {
	var names []string
	seen := map[string]struct{}{}
	for _, n := range t.DataNodes {
		if _, ok := seen[n.DataSource]; ok {
			continue
		}
		seen[n.DataSource] = struct{}{}
		names = append(names, n.DataSource)
	}
	return names
}

// ActualTables actual tables on dataSource in node order
func (t *ShardingTable) ActualTables(dataSource string) []string {
	var tables []string
	for _, n := range t.DataNodes {
		if n.DataSource == dataSource {
			tables = append(tables, n.Table)
		}
	}
	return tables
}

// NodeIndex position of the node among the table's data nodes
func (t *ShardingTable) NodeIndex(dataSource, table string) int {
	for i, n := range t.DataNodes {
		if n.DataSource == dataSource && str.EqualFold(n.Table, table) {
			return i
		}
	}
	return -1
}

// IsShardingColumn column is a database or table sharding column
func (t *ShardingTable) IsShardingColumn(column string) bool {
	return t.DatabaseStrategy != nil && t.DatabaseStrategy.Column != "" && str.EqualFold(t.DatabaseStrategy.Column, column) ||
		t.TableStrategy != nil && t.TableStrategy.Column != "" && str.EqualFold(t.TableStrategy.Column, column)
}

// ShardingRule 分片规则
type ShardingRule struct {
	cfg        *ShardingRuleConfiguration
	database   *metadata.Database
	tables     map[string]*ShardingTable
	binding    map[string][]string
	algorithms map[string]algorithm.ShardingAlgorithm
}

// NewShardingRule 构建分片规则
func NewShardingRule(database *metadata.Database, cfg *ShardingRuleConfiguration) (*ShardingRule, error) {
	r := &ShardingRule{
		cfg:        cfg.Clone().(*ShardingRuleConfiguration),
		database:   database,
		tables:     make(map[string]*ShardingTable, len(cfg.Tables)),
		binding:    map[string][]string{},
		algorithms: make(map[string]algorithm.ShardingAlgorithm, len(cfg.ShardingAlgorithms)),
	}
	for name, algoCfg := range cfg.ShardingAlgorithms {
		a, err := algorithm.NewSharding(algoCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "sharding algorithm `%s`", name)
		}
		r.algorithms[str.Fold(name)] = a
	}
	for logic, tableCfg := range cfg.Tables {
		table, err := r.buildTable(logic, tableCfg)
		if err != nil {
			return nil, err
		}
		r.tables[str.Fold(logic)] = table
	}
	for _, group := range cfg.BindingTables {
		var tables []string
		for _, t := range strings.Split(group, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, ok := r.tables[str.Fold(t)]; !ok {
				return nil, errs.NewConfiguration("binding table `%s` is not a sharding table", t)
			}
			tables = append(tables, t)
		}
		for _, t := range tables {
			if len(r.ShardingTableMust(t).DataNodes) != len(r.ShardingTableMust(tables[0]).DataNodes) {
				return nil, errs.NewConfiguration("binding tables %v must have the same data node count", tables)
			}
			r.binding[str.Fold(t)] = tables
		}
	}
	return r, nil
}

func (r *ShardingRule) buildTable(logic string, cfg ShardingTableConfiguration) (*ShardingTable, error) {
	table := &ShardingTable{LogicTable: logic}
	nodes, err := r.dataNodes(logic, cfg.ActualDataNodes)
	if err != nil {
		return nil, err
	}
	table.DataNodes = nodes
	dbStrategy := cfg.DatabaseStrategy
	if dbStrategy == nil {
		dbStrategy = r.cfg.DefaultDatabaseStrategy
	}
	tbStrategy := cfg.TableStrategy
	if tbStrategy == nil {
		tbStrategy = r.cfg.DefaultTableStrategy
	}
	if table.DatabaseStrategy, err = r.strategy(logic, dbStrategy); err != nil {
		return nil, err
	}
	if table.TableStrategy, err = r.strategy(logic, tbStrategy); err != nil {
		return nil, err
	}
	return table, nil
}

func (r *ShardingRule) dataNodes(logic, expression string) ([]DataNode, error) {
	if strings.TrimSpace(expression) == "" {
		nodes := make([]DataNode, 0, len(r.database.DataSources()))
		for _, ds := range r.database.DataSources() {
			nodes = append(nodes, DataNode{DataSource: ds, Table: logic})
		}
		if len(nodes) == 0 {
			return nil, errs.NewConfiguration("sharding table `%s` has no data source", logic)
		}
		return nodes, nil
	}
	expanded, err := inline.Expand(expression)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrConfiguration, "actualDataNodes of `%s`: %v", logic, err)
	}
	nodes := make([]DataNode, 0, len(expanded))
	for _, e := range expanded {
		node, err := ParseDataNode(e)
		if err != nil {
			return nil, err
		}
		if !r.database.HasDataSource(node.DataSource) {
			return nil, errs.NewConfiguration("data source `%s` of `%s` is not configured", node.DataSource, logic)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (r *ShardingRule) strategy(logic string, cfg *ShardingStrategyConfiguration) (*ShardingStrategy, error) {
	if cfg == nil || cfg.ShardingAlgorithmName == "" {
		return nil, nil
	}
	a, ok := r.algorithms[str.Fold(cfg.ShardingAlgorithmName)]
	if !ok {
		return nil, errs.NewConfiguration("sharding algorithm `%s` of `%s` is not configured", cfg.ShardingAlgorithmName, logic)
	}
	return &ShardingStrategy{Column: cfg.ShardingColumn, AlgorithmName: cfg.ShardingAlgorithmName, Algorithm: a}, nil
}

func (*ShardingRule) Kind() Kind { return KindSharding }
func (*ShardingRule) rule()      {}

func (r *ShardingRule) Configuration() Configuration {
	return r.cfg.Clone()
}

// IsShardingTable 是否分片表
func (r *ShardingRule) IsShardingTable(name string) bool {
	_, ok := r.tables[str.Fold(name)]
	return ok
}

// ShardingTable 分片表
func (r *ShardingRule) ShardingTable(name string) (*ShardingTable, bool) {
	t, ok := r.tables[str.Fold(name)]
	return t, ok
}

// ShardingTableMust for names already known to be sharding tables
func (r *ShardingRule) ShardingTableMust(name string) *ShardingTable {
	return r.tables[str.Fold(name)]
}

// ShardingTableNames sorted logic table names
func (r *ShardingRule) ShardingTableNames() []string {
	names := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		names = append(names, t.LogicTable)
	}
	sort.Strings(names)
	return names
}

// ContainsShardingTable any of names is a sharding table
func (r *ShardingRule) ContainsShardingTable(names []string) bool {
	for _, n := range names {
		if r.IsShardingTable(n) {
			return true
		}
	}
	return false
}

// FirstShardingTable first of names that is a sharding table
func (r *ShardingRule) FirstShardingTable(names []string) (string, bool) {
	for _, n := range names {
		if r.IsShardingTable(n) {
			return n, true
		}
	}
	return "", false
}

// BindingGroup binding tables of name, nil when not bound
func (r *ShardingRule) BindingGroup(name string) []string {
	return r.binding[str.Fold(name)]
}

// IsAllBinding every name belongs to the same binding group
func (r *ShardingRule) IsAllBinding(names []string) bool {
	if len(names) < 2 {
		return false
	}
	group := r.BindingGroup(names[0])
	if group == nil {
		return false
	}
	for _, n := range names[1:] {
		found := false
		for _, g := range group {
			if str.EqualFold(g, n) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsShardingColumn column of table is a sharding column
func (r *ShardingRule) IsShardingColumn(table, column string) bool {
	t, ok := r.ShardingTable(table)
	return ok && t.IsShardingColumn(column)
}

// RecomputeNodeCount expands the configured data nodes of table again
func (r *ShardingRule) RecomputeNodeCount(table string) (int, error) {
	t, ok := r.ShardingTable(table)
	if !ok {
		return 0, errs.NewConfiguration("`%s` is not a sharding table", table)
	}
	cfg, ok := r.tableConfiguration(t.LogicTable)
	if !ok {
		return len(t.DataNodes), nil
	}
	nodes, err := r.dataNodes(t.LogicTable, cfg.ActualDataNodes)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (r *ShardingRule) tableConfiguration(logic string) (ShardingTableConfiguration, bool) {
	for name, cfg := range r.cfg.Tables {
		if str.EqualFold(name, logic) {
			return cfg, true
		}
	}
	return ShardingTableConfiguration{}, false
}
