package route

import (
	"context"

	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/rule"
	"gorm.io/gorm/logger"
)

type presetKey struct {
	table    string
	database bool
}

// WithPresetDataSource 预设分库结果，跳过分库算法
func WithPresetDataSource(ctx context.Context, table, dataSource string) context.Context {
	return context.WithValue(ctx, presetKey{table: table, database: true}, dataSource)
}

// WithPresetTable 预设分表结果，跳过分表算法
func WithPresetTable(ctx context.Context, table, actualTable string) context.Context {
	return context.WithValue(ctx, presetKey{table: table}, actualTable)
}

func preset(ctx context.Context, table string, database bool) (string, bool) {
	v, ok := ctx.Value(presetKey{table: table, database: database}).(string)
	return v, ok && v != ""
}

// DbPolicy Data Source Routing Policy
type DbPolicy interface {
	Resolve(ctx context.Context, table *rule.ShardingTable, values []any, log logger.Interface) ([]string, error)
}

// DbShardingRoutePolicy 分库路由
type DbShardingRoutePolicy struct {
}

func (DbShardingRoutePolicy) Resolve(ctx context.Context, table *rule.ShardingTable, values []any, log logger.Interface) ([]string, error) {
	dataSources := table.DataSourceNames()
	if ds, ok := preset(ctx, table.LogicTable, true); ok {
		// 预设好了分库，直接返回
		log.Info(ctx, "database pre_set sharding: %v", ds)
		if matched := matchPreset(dataSources, ds); matched != nil {
			return matched, nil
		}
		return nil, errs.NewRoute("preset data source `%s` is not a data source of `%s`", ds, table.LogicTable)
	}
	strategy := table.DatabaseStrategy
	if strategy == nil || len(values) == 0 {
		// 无分库条件，全库路由
		return dataSources, nil
	}
	result, err := doSharding(strategy, dataSources, table.LogicTable, values)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "database sharding: %v", result)
	return result, nil
}

func doSharding(strategy *rule.ShardingStrategy, targets []string, logic string, values []any) ([]string, error) {
	column := strategy.Column
	if strategy.IsHint() {
		column = hintParameter
	}
	var result []string
	seen := map[string]struct{}{}
	for _, v := range values {
		target, err := strategy.Algorithm.DoSharding(targets, algorithm.ShardingValue{LogicTable: logic, Column: column, Value: v})
		if err != nil {
			return nil, err
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		result = append(result, target)
	}
	return result, nil
}
