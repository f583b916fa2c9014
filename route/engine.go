package route

import (
	"context"

	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"gorm.io/gorm/logger"
)

// Engine computes the route context of one statement, never empty on success
type Engine interface {
	Route(ctx context.Context, rules *rule.MetaData, database *metadata.Database) (*Context, error)
	Name() string
}

// Selector picks exactly one engine per statement
type Selector struct {
	Logger   logger.Interface
	DbPolicy DbPolicy
	TbPolicy TbPolicy
}

// NewSelector 默认分库分表策略
func NewSelector(log logger.Interface) *Selector {
	if log == nil {
		log = logger.Discard
	}
	return &Selector{Logger: log, DbPolicy: DbShardingRoutePolicy{}, TbPolicy: TbShardingRoutePolicy{}}
}

// Select with a discarding logger
func Select(stmt *statement.Context, params []any, rules *rule.MetaData, props metadata.Props, conn metadata.ConnectionContext) Engine {
	return NewSelector(nil).Select(stmt, params, rules, props, conn)
}

// Select
//
//	@Description: 选择路由引擎，事务及会话语句广播，其次按 shadow > sharding > single > broadcast 判断，最后直连默认数据源
//	@param stmt
//	@param params
//	@param rules
//	@param props
//	@param conn
//	@return Engine
func (s *Selector) Select(stmt *statement.Context, params []any, rules *rule.MetaData, _ metadata.Props, conn metadata.ConnectionContext) Engine {
	if stmt.Category == statement.TCL || stmt.Kind.IsSessionControl() {
		return &BroadcastEngine{}
	}
	hint := conn.MergedHint(stmt)
	tables := stmt.TableNames()
	// DATA_SOURCE_NAME 优先于其他规则，分片表在该数据源上没有逻辑表，拒绝路由
	if hint.DataSourceName != "" {
		engine := &PassThroughEngine{DataSource: hint.DataSourceName}
		if sharding, ok := rules.Sharding(); ok {
			for _, t := range tables {
				if sharding.IsShardingTable(t) {
					engine.ShardingTables = append(engine.ShardingTables, t)
				}
			}
		}
		return engine
	}
	next := s.selectFeature(stmt, params, rules, hint, tables)
	if shadow, ok := rules.Shadow(); ok && isShadowCandidate(shadow, hint, tables) {
		return &ShadowEngine{Inner: next, Stmt: stmt, Params: params, Hint: hint}
	}
	return next
}

func (s *Selector) selectFeature(stmt *statement.Context, params []any, rules *rule.MetaData, hint statement.HintValueContext, tables []string) Engine {
	if sharding, ok := rules.Sharding(); ok && sharding.ContainsShardingTable(tables) {
		return &ShardingEngine{Stmt: stmt, Params: params, Hint: hint, Logger: s.Logger, DbPolicy: s.DbPolicy, TbPolicy: s.TbPolicy}
	}
	single, hasSingle := rules.Single()
	broadcast, hasBroadcast := rules.Broadcast()
	if hasSingle && singleOrBroadcast(single, broadcast, tables) {
		return &SingleEngine{Stmt: stmt}
	}
	if hasBroadcast && broadcast.AllBroadcast(tables) {
		return &BroadcastEngine{Tables: tables}
	}
	return &PassThroughEngine{}
}

// 至少一张单表，其余为广播表
func singleOrBroadcast(single *rule.SingleRule, broadcast *rule.BroadcastRule, tables []string) bool {
	found := false
	for _, t := range tables {
		switch {
		case single.IsSingleTable(t):
			found = true
		case broadcast != nil && broadcast.IsBroadcastTable(t):
		default:
			return false
		}
	}
	return found
}

func isShadowCandidate(shadow *rule.ShadowRule, hint statement.HintValueContext, tables []string) bool {
	return shadow.ContainsShadowTable(tables) || hint.Shadow && shadow.DefaultAlgorithm() != nil
}

// Execute runs engine and rejects an empty result
func Execute(ctx context.Context, engine Engine, rules *rule.MetaData) (*Context, error) {
	rc, err := engine.Route(ctx, rules, rules.Database())
	if err != nil {
		return nil, err
	}
	if rc == nil || rc.IsEmpty() {
		return nil, errs.NewInvariant("%s route engine returned no route unit", engine.Name())
	}
	return rc, nil
}

// BroadcastEngine 广播路由，每个数据源一个路由单元
type BroadcastEngine struct {
	// broadcast tables of the statement, empty for session statements
	Tables []string
}

func (*BroadcastEngine) Name() string { return "broadcast" }

func (e *BroadcastEngine) Route(_ context.Context, _ *rule.MetaData, database *metadata.Database) (*Context, error) {
	rc := NewContext()
	for _, ds := range database.DataSources() {
		rc.Add(Unit{DataSource: Mapper{LogicName: ds, ActualName: ds}})
	}
	if rc.IsEmpty() {
		return nil, errs.NewRoute("database `%s` has no data source to broadcast to", database.Name)
	}
	return rc, nil
}

// SingleEngine 单表路由
type SingleEngine struct {
	Stmt *statement.Context
}

func (*SingleEngine) Name() string { return "single" }

func (e *SingleEngine) Route(_ context.Context, rules *rule.MetaData, database *metadata.Database) (*Context, error) {
	single, ok := rules.Single()
	if !ok {
		return nil, errs.NewRoute("database `%s` has no single rule", database.Name)
	}
	var dataSource string
	for _, t := range e.Stmt.TableNames() {
		node, ok := single.DataNode(t)
		if !ok {
			continue
		}
		if dataSource != "" && dataSource != node.DataSource {
			return nil, errs.NewRoute("single tables of the statement are on different data sources `%s` and `%s`", dataSource, node.DataSource)
		}
		dataSource = node.DataSource
	}
	if dataSource == "" {
		return nil, errs.NewRoute("statement references no single table")
	}
	rc := NewContext()
	rc.Add(Unit{DataSource: Mapper{LogicName: dataSource, ActualName: dataSource}})
	return rc, nil
}

// PassThroughEngine 直连路由，DataSource 为空时取单表规则默认数据源，否则取第一个数据源
type PassThroughEngine struct {
	DataSource string
	// sharding tables referenced under a DATA_SOURCE_NAME hint, routing them fails
	ShardingTables []string
}

func (*PassThroughEngine) Name() string { return "pass-through" }

func (e *PassThroughEngine) Route(_ context.Context, rules *rule.MetaData, database *metadata.Database) (*Context, error) {
	if len(e.ShardingTables) > 0 {
		return nil, errs.NewRoute("data source hint `%s` can not route sharding tables %v, use sharding value hints", e.DataSource, e.ShardingTables)
	}
	ds := e.DataSource
	if ds == "" {
		if single, ok := rules.Single(); ok {
			ds = single.DefaultDataSource()
		}
	}
	if ds == "" {
		if names := database.DataSources(); len(names) > 0 {
			ds = names[0]
		}
	}
	if ds == "" {
		return nil, errs.NewRoute("database `%s` has no data source", database.Name)
	}
	if !database.HasDataSource(ds) {
		return nil, errs.NewRoute("data source `%s` is not configured in database `%s`", ds, database.Name)
	}
	rc := NewContext()
	rc.Add(Unit{DataSource: Mapper{LogicName: ds, ActualName: ds}})
	return rc, nil
}
