package validate

import (
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/route"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"github.com/qjerry/dbroute/util/str"
)

// ShardingValidator 分片语句校验
type ShardingValidator interface {
	PreValidate(r *rule.ShardingRule, stmt *statement.Context, params []any, database *metadata.Database, props metadata.Props) error
	PostValidate(r *rule.ShardingRule, stmt *statement.Context, hint statement.HintValueContext, params []any, database *metadata.Database, props metadata.Props, rc *route.Context) error
}

func shardingValidator(stmt *statement.Context) ShardingValidator {
	switch stmt.Kind {
	case statement.RenameTable:
		return renameTableValidator{}
	case statement.CreateTable:
		return createTableValidator{}
	case statement.DropTable, statement.TruncateTable:
		return dropTableValidator{}
	}
	switch stmt.Category {
	case statement.Update:
		return updateValidator{}
	case statement.Insert:
		if len(stmt.OnDuplicateKeyUpdate) > 0 {
			return insertOnDuplicateValidator{}
		}
	}
	return nil
}

type renameTableValidator struct{}

// PreValidate 分片表不支持 RENAME TABLE
func (renameTableValidator) PreValidate(r *rule.ShardingRule, stmt *statement.Context, _ []any, _ *metadata.Database, _ metadata.Props) error {
	if table, ok := r.FirstShardingTable(renameTables(stmt)); ok {
		return errs.NewValidation(stmt.Kind.String(), table, "")
	}
	return nil
}

// PostValidate 路由结果数量必须等于分片表的参考数据节点数
func (renameTableValidator) PostValidate(r *rule.ShardingRule, stmt *statement.Context, _ statement.HintValueContext, _ []any, _ *metadata.Database, props metadata.Props, rc *route.Context) error {
	for _, pair := range stmt.RenameTables {
		if err := checkCardinality(r, stmt, pair.Table.Name.Value, props, rc); err != nil {
			return err
		}
	}
	return nil
}

func renameTables(stmt *statement.Context) []string {
	if len(stmt.RenameTables) == 0 {
		return stmt.TableNames()
	}
	tables := make([]string, 0, len(stmt.RenameTables)*2)
	for _, pair := range stmt.RenameTables {
		tables = append(tables, pair.Table.Name.Value, pair.RenameTable.Name.Value)
	}
	return tables
}

func checkCardinality(r *rule.ShardingRule, stmt *statement.Context, table string, props metadata.Props, rc *route.Context) error {
	if !r.IsShardingTable(table) {
		return nil
	}
	policy, err := CardinalityPolicyOf(props)
	if err != nil {
		return err
	}
	reference, err := policy.Reference(r, table)
	if err != nil {
		return err
	}
	if routed := unitsOf(rc, table); routed != reference {
		return errs.NewRoute("%s `%s` routed to %d data nodes, expect %d", stmt.Kind, table, routed, reference)
	}
	return nil
}

func unitsOf(rc *route.Context, table string) int {
	n := 0
	for _, u := range rc.Units() {
		for _, m := range u.Tables {
			if str.EqualFold(m.LogicName, table) {
				n++
				break
			}
		}
	}
	return n
}

type createTableValidator struct{}

func (createTableValidator) PreValidate(r *rule.ShardingRule, stmt *statement.Context, _ []any, database *metadata.Database, _ metadata.Props) error {
	if stmt.IfNotExists {
		return nil
	}
	for _, t := range stmt.TableNames() {
		if r.IsShardingTable(t) && database.ContainsTable(t) {
			return errs.NewValidation(stmt.Kind.String(), t, "table already exists")
		}
	}
	return nil
}

func (createTableValidator) PostValidate(r *rule.ShardingRule, stmt *statement.Context, _ statement.HintValueContext, _ []any, _ *metadata.Database, _ metadata.Props, rc *route.Context) error {
	return checkAllNodes(r, stmt, rc)
}

type dropTableValidator struct{}

func (dropTableValidator) PreValidate(r *rule.ShardingRule, stmt *statement.Context, _ []any, database *metadata.Database, _ metadata.Props) error {
	tables := stmt.TableNames()
	if _, ok := r.FirstShardingTable(tables); !ok {
		return nil
	}
	for _, t := range tables {
		// 分片表与非分片表不能同时删除
		if !r.IsShardingTable(t) {
			return errs.NewValidation(stmt.Kind.String(), t, "can not mix sharding and non-sharding tables")
		}
		if !stmt.IfExists && !database.ContainsTable(t) {
			return errs.NewValidation(stmt.Kind.String(), t, "table does not exist")
		}
	}
	return nil
}

func (dropTableValidator) PostValidate(r *rule.ShardingRule, stmt *statement.Context, _ statement.HintValueContext, _ []any, _ *metadata.Database, _ metadata.Props, rc *route.Context) error {
	return checkAllNodes(r, stmt, rc)
}

// DDL 必须路由到全部数据节点
func checkAllNodes(r *rule.ShardingRule, stmt *statement.Context, rc *route.Context) error {
	for _, t := range stmt.TableNames() {
		table, ok := r.ShardingTable(t)
		if !ok {
			continue
		}
		if routed := unitsOf(rc, t); routed != len(table.DataNodes) {
			return errs.NewRoute("%s `%s` routed to %d of %d data nodes", stmt.Kind, t, routed, len(table.DataNodes))
		}
	}
	return nil
}

type updateValidator struct{}

// PreValidate 不允许修改分片键，除非与 WHERE 中的等值条件相同
func (updateValidator) PreValidate(r *rule.ShardingRule, stmt *statement.Context, params []any, _ *metadata.Database, _ metadata.Props) error {
	for _, a := range stmt.Assignments {
		table := stmt.ColumnTable(a.Column)
		if !r.IsShardingColumn(table, a.Column.Name.Value) {
			continue
		}
		if sameAsCondition(stmt, params, table, a) {
			continue
		}
		return errs.NewValidation(stmt.Category.String(), table, "can not update sharding column `%s`", a.Column.Name.Value)
	}
	return nil
}

func (updateValidator) PostValidate(*rule.ShardingRule, *statement.Context, statement.HintValueContext, []any, *metadata.Database, metadata.Props, *route.Context) error {
	return nil
}

func sameAsCondition(stmt *statement.Context, params []any, table string, a statement.AssignmentSegment) bool {
	assigned, ok := valueOf(a.Value, params)
	if !ok {
		return false
	}
	for _, p := range stmt.Predicates {
		if p.Operator != statement.OperatorEqual || len(p.Values) != 1 {
			continue
		}
		if !str.EqualFold(p.Column.Name.Value, a.Column.Name.Value) || !str.EqualFold(stmt.ColumnTable(p.Column), table) {
			continue
		}
		if v, ok := valueOf(p.Values[0], params); ok && str.ToString(v) == str.ToString(assigned) {
			return true
		}
	}
	return false
}

func valueOf(e statement.Expression, params []any) (any, bool) {
	switch v := e.(type) {
	case *statement.LiteralExpression:
		return v.Value, v.Value != nil
	case *statement.ParameterMarker:
		if v.Index >= 0 && v.Index < len(params) {
			return params[v.Index], params[v.Index] != nil
		}
	}
	return nil, false
}

type insertOnDuplicateValidator struct{}

// PreValidate ON DUPLICATE KEY UPDATE 不允许修改分片键
func (insertOnDuplicateValidator) PreValidate(r *rule.ShardingRule, stmt *statement.Context, _ []any, _ *metadata.Database, _ metadata.Props) error {
	table := stmt.InsertTable()
	for _, a := range stmt.OnDuplicateKeyUpdate {
		if r.IsShardingColumn(table, a.Column.Name.Value) {
			return errs.NewValidation("INSERT ... ON DUPLICATE KEY UPDATE", table, "can not update sharding column `%s`", a.Column.Name.Value)
		}
	}
	return nil
}

func (insertOnDuplicateValidator) PostValidate(*rule.ShardingRule, *statement.Context, statement.HintValueContext, []any, *metadata.Database, metadata.Props, *route.Context) error {
	return nil
}

// DROP SCHEMA 下仍有单表时需要 CASCADE
func preValidateSingle(r *rule.SingleRule, stmt *statement.Context) error {
	if stmt.Kind != statement.DropSchema || stmt.Cascade {
		return nil
	}
	if tables := r.TablesInSchema(stmt.Schema); len(tables) > 0 {
		return errs.NewValidation(stmt.Kind.String(), stmt.Schema, "schema still holds single tables %v, use CASCADE", tables)
	}
	return nil
}
