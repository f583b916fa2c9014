// Package dbroute routes and rewrites bound SQL statements against the sharding, single,
// broadcast, shadow, encrypt and mask rules of registered logic databases.
package dbroute

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rewrite"
	"github.com/qjerry/dbroute/route"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"github.com/qjerry/dbroute/subscriber"
	"github.com/qjerry/dbroute/util/str"
	"github.com/qjerry/dbroute/validate"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DBRoute struct {
	mu        sync.RWMutex
	owners    map[string]*subscriber.Owner
	props     metadata.Props
	logger    logger.Interface
	listeners []subscriber.Listener
	// database route policy
	dbPolicy route.DbPolicy
	// table route policy
	tbPolicy route.TbPolicy
	// 打印路由信息
	traceRouteMode bool
}

// DatabaseConfig 逻辑库配置
type DatabaseConfig struct {
	Name        string
	Type        metadata.Type
	DataSources []string
	// 已存在的逻辑表，单表规则据此定位
	Tables []string
	Rules  []rule.Configuration
	// 为空时按 Type 选择无连接的 dialector
	Dialector gorm.Dialector
}

// QueryContext 一条已绑定的语句
type QueryContext struct {
	// 为空时取 Connection.CurrentDatabase
	Database   string
	Statement  *statement.Context
	Params     []any
	Connection metadata.ConnectionContext
}

// ExecutionUnit 一条真实SQL
type ExecutionUnit struct {
	DataSource string
	SQL        string
	Params     []any
}

// ExecutionContext 路由改写结果
type ExecutionContext struct {
	ID           uuid.UUID
	Database     string
	Engine       string
	RouteContext *route.Context
	Units        []ExecutionUnit
}

type Option func(dr *DBRoute)

func WithLogger(l logger.Interface) Option {
	return func(dr *DBRoute) { dr.logger = l }
}

func WithProps(props metadata.Props) Option {
	return func(dr *DBRoute) { dr.props = props }
}

// WithListener listeners notified after an algorithm is deleted from a published snapshot
func WithListener(listeners ...subscriber.Listener) Option {
	return func(dr *DBRoute) { dr.listeners = append(dr.listeners, listeners...) }
}

// WithPolicy replaces the default sharding route policies
func WithPolicy(dbPolicy route.DbPolicy, tbPolicy route.TbPolicy) Option {
	return func(dr *DBRoute) {
		dr.dbPolicy = dbPolicy
		dr.tbPolicy = tbPolicy
	}
}

// WithTraceRouteMode traces every actual SQL tagged with its data source
func WithTraceRouteMode() Option {
	return func(dr *DBRoute) { dr.traceRouteMode = true }
}

func New(opts ...Option) *DBRoute {
	dr := &DBRoute{
		owners: map[string]*subscriber.Owner{},
		props:  metadata.DefaultProps(),
		logger: logger.Discard,
	}
	for _, opt := range opts {
		opt(dr)
	}
	if dr.logger == nil {
		dr.logger = logger.Discard
	}
	if dr.dbPolicy == nil {
		dr.dbPolicy = route.DbShardingRoutePolicy{}
	}
	if dr.tbPolicy == nil {
		dr.tbPolicy = route.TbShardingRoutePolicy{}
	}
	if dr.traceRouteMode {
		dr.logger = NewRouteTraceLogger(dr.logger)
	}
	return dr
}

// Register new DBRoute holding one database
func Register(config DatabaseConfig, opts ...Option) (*DBRoute, error) {
	dr := New(opts...)
	if err := dr.Register(config); err != nil {
		return nil, err
	}
	return dr, nil
}

// Register builds the rules of config and starts the owner of its snapshots
func (dr *DBRoute) Register(config DatabaseConfig) error {
	if config.Name == "" {
		return errs.NewConfiguration("database name is required")
	}
	if len(config.DataSources) == 0 {
		return errs.NewConfiguration("database `%s` has no data source", config.Name)
	}
	if config.Type == "" {
		config.Type = metadata.MySQL
	}
	database := metadata.NewDatabase(config.Name, config.Type, config.DataSources, config.Tables...)
	if config.Dialector != nil {
		database.Dialector = config.Dialector
	}
	rules, err := rule.Build(database, 1, config.Rules...)
	if err != nil {
		return err
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	key := str.Fold(config.Name)
	if _, ok := dr.owners[key]; ok {
		return errs.NewConfiguration("database `%s` is already registered", config.Name)
	}
	dr.owners[key] = subscriber.NewOwner(rules, dr.logger, dr.listeners...)
	dr.logger.Info(context.Background(), "database `%s` registered, data sources %v", config.Name, database.DataSources())
	return nil
}

// Databases registered database names, sorted
func (dr *DBRoute) Databases() []string {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	names := make([]string, 0, len(dr.owners))
	for _, o := range dr.owners {
		names = append(names, o.Snapshot().Database().Name)
	}
	sort.Strings(names)
	return names
}

func (dr *DBRoute) owner(database string) (*subscriber.Owner, error) {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	o, ok := dr.owners[str.Fold(database)]
	if !ok {
		return nil, errs.NewConfiguration("database `%s` is not registered", database)
	}
	return o, nil
}

// Snapshot current rules of database
func (dr *DBRoute) Snapshot(database string) (*rule.MetaData, error) {
	o, err := dr.owner(database)
	if err != nil {
		return nil, err
	}
	return o.Snapshot(), nil
}

// Route
//
//	@Description: 选择引擎 -> 前置校验 -> 路由 -> 后置校验 -> 生成并合并改写标记，整个过程只读取一个规则快照
//	@param ctx
//	@param qc
//	@return *ExecutionContext
//	@return error
func (dr *DBRoute) Route(ctx context.Context, qc *QueryContext) (*ExecutionContext, error) {
	if qc == nil || qc.Statement == nil {
		return nil, errs.NewInvariant("route without a statement")
	}
	name := qc.Database
	if name == "" {
		name = qc.Connection.CurrentDatabase
	}
	rules, err := dr.Snapshot(name)
	if err != nil {
		return nil, err
	}
	var (
		stmt     = qc.Statement
		database = rules.Database()
		hint     = qc.Connection.MergedHint(stmt)
		selector = &route.Selector{Logger: dr.logger, DbPolicy: dr.dbPolicy, TbPolicy: dr.tbPolicy}
	)
	engine := selector.Select(stmt, qc.Params, rules, dr.props, qc.Connection)
	if err = validate.PreValidate(rules, stmt, qc.Params, database, dr.props); err != nil {
		return nil, err
	}
	rc, err := route.Execute(ctx, engine, rules)
	if err != nil {
		return nil, err
	}
	if err = validate.PostValidate(rules, stmt, hint, qc.Params, database, dr.props, rc); err != nil {
		return nil, err
	}
	result, err := rewrite.Rewrite(stmt, qc.Params, rules, hint, rc)
	if err != nil {
		return nil, err
	}

	ec := &ExecutionContext{
		ID:           uuid.New(),
		Database:     database.Name,
		Engine:       engine.Name(),
		RouteContext: rc,
		Units:        make([]ExecutionUnit, 0, len(result.Units)),
	}
	for _, u := range result.Units {
		ec.Units = append(ec.Units, ExecutionUnit{DataSource: u.RouteUnit.DataSource.ActualName, SQL: u.SQL, Params: u.Params})
	}
	dr.show(ctx, stmt, ec, database)
	return ec, nil
}

// show sql-show 及路由追踪
func (dr *DBRoute) show(ctx context.Context, stmt *statement.Context, ec *ExecutionContext, database *metadata.Database) {
	if dr.props.SQLShow {
		dr.logger.Info(ctx, "Logic SQL: %s", stmt.SQL)
		for _, u := range ec.Units {
			if dr.props.SQLSimple {
				dr.logger.Info(ctx, "Actual SQL: %s ::: %s", u.DataSource, u.SQL)
				continue
			}
			dr.logger.Info(ctx, "Actual SQL: %s ::: %s ::: %v", u.DataSource, u.SQL, u.Params)
		}
	}
	if !dr.traceRouteMode {
		return
	}
	begin := time.Now()
	for _, u := range ec.Units {
		dr.logger.Trace(markDataSource(ctx, u.DataSource), begin, func() (string, int64) {
			return database.Dialector.Explain(u.SQL, u.Params...), -1
		}, nil)
	}
}

// Publish applies event to the rules of its database
func (dr *DBRoute) Publish(ctx context.Context, event subscriber.Event) error {
	o, err := dr.owner(event.Database())
	if err != nil {
		return err
	}
	return o.Publish(ctx, event)
}

// Subscribe publishes every received event until events closes or ctx ends, failures are logged
func (dr *DBRoute) Subscribe(ctx context.Context, events <-chan subscriber.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := dr.Publish(ctx, e); err != nil {
				dr.logger.Error(ctx, "apply %T of database `%s`: %v", e, e.Database(), err)
			}
		}
	}
}

// MaskValue masks a result value, unchanged when table.column has no mask rule
func (dr *DBRoute) MaskValue(database, table, column string, value any) (any, error) {
	rules, err := dr.Snapshot(database)
	if err != nil {
		return nil, err
	}
	mask, ok := rules.Mask()
	if !ok {
		return value, nil
	}
	masked, _ := mask.Mask(table, column, value)
	return masked, nil
}

// DecryptValue decrypts a cipher column value, unchanged when table.column is not encrypted
func (dr *DBRoute) DecryptValue(database, table, column string, cipher any) (any, error) {
	rules, err := dr.Snapshot(database)
	if err != nil {
		return nil, err
	}
	encrypt, ok := rules.Encrypt()
	if !ok {
		return cipher, nil
	}
	t, ok := encrypt.EncryptTable(table)
	if !ok || !t.IsEncryptColumn(column) {
		return cipher, nil
	}
	return encrypt.Decrypt(rules.Database().Name, table, column, cipher)
}

// Close stops every owner, snapshots stay readable
func (dr *DBRoute) Close() {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	for _, o := range dr.owners {
		o.Close()
	}
}
