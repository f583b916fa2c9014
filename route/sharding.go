package route

import (
	"context"

	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"gorm.io/gorm/logger"
)

// ShardingEngine 分库分表路由
type ShardingEngine struct {
	Stmt     *statement.Context
	Params   []any
	Hint     statement.HintValueContext
	Logger   logger.Interface
	DbPolicy DbPolicy
	TbPolicy TbPolicy
}

func (*ShardingEngine) Name() string { return "sharding" }

func (e *ShardingEngine) Route(ctx context.Context, rules *rule.MetaData, database *metadata.Database) (*Context, error) {
	sharding, ok := rules.Sharding()
	if !ok {
		return nil, errs.NewRoute("database `%s` has no sharding rule", database.Name)
	}
	if e.Logger == nil {
		e.Logger = logger.Discard
	}
	var tables []*rule.ShardingTable
	var names []string
	for _, name := range e.Stmt.TableNames() {
		if t, ok := sharding.ShardingTable(name); ok {
			tables = append(tables, t)
			names = append(names, name)
		}
	}
	if len(tables) == 0 {
		return nil, errs.NewRoute("statement references no sharding table")
	}
	var (
		rc  *Context
		err error
	)
	switch {
	case e.Stmt.IsDDL():
		rc, err = e.routeDDL(tables)
	case len(tables) > 1 && sharding.IsAllBinding(names):
		rc, err = e.routeBinding(ctx, tables)
	default:
		rc, err = e.routeCartesian(ctx, tables)
	}
	if err != nil {
		return nil, err
	}
	if rc.IsEmpty() {
		return nil, errs.NewRoute("no data node of %v matches the sharding conditions", names)
	}
	if e.Stmt.Category == statement.Insert && len(e.Stmt.InsertValues) > 1 && rc.Len() > 1 {
		return nil, errs.NewRoute("multi-row insert into `%s` spans %d data nodes", tables[0].LogicTable, rc.Len())
	}
	return rc, nil
}

// DDL 作用于全部数据节点，多张表按节点位置对齐
func (e *ShardingEngine) routeDDL(tables []*rule.ShardingTable) (*Context, error) {
	primary := tables[0]
	for _, t := range tables[1:] {
		if len(t.DataNodes) != len(primary.DataNodes) {
			return nil, errs.NewRoute("DDL over `%s` and `%s` with different data node counts", primary.LogicTable, t.LogicTable)
		}
	}
	rc := NewContext()
	for i, node := range primary.DataNodes {
		unit := Unit{DataSource: Mapper{LogicName: node.DataSource, ActualName: node.DataSource}}
		for _, t := range tables {
			unit.Tables = append(unit.Tables, Mapper{LogicName: t.LogicTable, ActualName: t.DataNodes[i].Table})
		}
		rc.Add(unit)
	}
	return rc, nil
}

// 绑定表以主表路由结果为准，其余表取相同位置的数据节点
func (e *ShardingEngine) routeBinding(ctx context.Context, tables []*rule.ShardingTable) (*Context, error) {
	primary := tables[0]
	nodes, err := e.routeTable(ctx, primary)
	if err != nil {
		return nil, err
	}
	rc := NewContext()
	for _, node := range nodes {
		index := primary.NodeIndex(node.DataSource, node.Table)
		if index < 0 {
			return nil, errs.NewRoute("`%s.%s` is not a data node of `%s`", node.DataSource, node.Table, primary.LogicTable)
		}
		unit := Unit{DataSource: Mapper{LogicName: node.DataSource, ActualName: node.DataSource}}
		for _, t := range tables {
			if index >= len(t.DataNodes) {
				return nil, errs.NewRoute("binding table `%s` has no data node #%d", t.LogicTable, index)
			}
			bound := t.DataNodes[index]
			if bound.DataSource != node.DataSource {
				return nil, errs.NewRoute("binding table `%s` is on `%s` where `%s` is on `%s`", t.LogicTable, bound.DataSource, primary.LogicTable, node.DataSource)
			}
			unit.Tables = append(unit.Tables, Mapper{LogicName: t.LogicTable, ActualName: bound.Table})
		}
		rc.Add(unit)
	}
	return rc, nil
}

// 笛卡尔积路由，仅保留所有表都命中的数据源
func (e *ShardingEngine) routeCartesian(ctx context.Context, tables []*rule.ShardingTable) (*Context, error) {
	var dataSources []string
	perTable := make([]map[string][]string, len(tables))
	for i, t := range tables {
		nodes, err := e.routeTable(ctx, t)
		if err != nil {
			return nil, err
		}
		byDataSource := map[string][]string{}
		var order []string
		for _, n := range nodes {
			if _, ok := byDataSource[n.DataSource]; !ok {
				order = append(order, n.DataSource)
			}
			byDataSource[n.DataSource] = append(byDataSource[n.DataSource], n.Table)
		}
		perTable[i] = byDataSource
		if i == 0 {
			dataSources = order
		}
	}
	rc := NewContext()
	for _, ds := range dataSources {
		combinations := [][]Mapper{nil}
		for i, t := range tables {
			actuals := perTable[i][ds]
			if len(actuals) == 0 {
				combinations = nil
				break
			}
			next := make([][]Mapper, 0, len(combinations)*len(actuals))
			for _, c := range combinations {
				for _, a := range actuals {
					next = append(next, append(append([]Mapper(nil), c...), Mapper{LogicName: t.LogicTable, ActualName: a}))
				}
			}
			combinations = next
		}
		for _, c := range combinations {
			rc.Add(Unit{DataSource: Mapper{LogicName: ds, ActualName: ds}, Tables: c})
		}
	}
	return rc, nil
}

// routeTable 先分库再分表
func (e *ShardingEngine) routeTable(ctx context.Context, table *rule.ShardingTable) ([]rule.DataNode, error) {
	dbValues, err := e.strategyValues(table, table.DatabaseStrategy, true)
	if err != nil {
		return nil, err
	}
	tbValues, err := e.strategyValues(table, table.TableStrategy, false)
	if err != nil {
		return nil, err
	}
	dataSources, err := e.DbPolicy.Resolve(ctx, table, dbValues, e.Logger)
	if err != nil {
		return nil, err
	}
	var nodes []rule.DataNode
	for _, ds := range dataSources {
		actualTables, err := e.TbPolicy.Resolve(ctx, table, ds, tbValues, e.Logger)
		if err != nil {
			return nil, err
		}
		for _, t := range actualTables {
			nodes = append(nodes, rule.DataNode{DataSource: ds, Table: t})
		}
	}
	return nodes, nil
}

// strategyValues hint values win over conditions, hint strategies read the hint only
func (e *ShardingEngine) strategyValues(table *rule.ShardingTable, strategy *rule.ShardingStrategy, database bool) ([]any, error) {
	if strategy == nil {
		return nil, nil
	}
	hinted := e.Hint.TableValues(table.LogicTable)
	if database {
		hinted = e.Hint.DatabaseValues(table.LogicTable)
	}
	if len(hinted) > 0 || strategy.IsHint() {
		return hinted, nil
	}
	values, found, err := columnValues(e.Stmt, e.Params, table.LogicTable, strategy.Column)
	if err != nil {
		return nil, err
	}
	if !found && e.Stmt.Category == statement.Insert {
		return nil, errs.NewRoute("insert into sharding table `%s` has no value for sharding column `%s`", table.LogicTable, strategy.Column)
	}
	return values, nil
}
