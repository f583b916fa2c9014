package route

import (
	"context"

	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/util/str"
	"gorm.io/gorm/logger"
)

// hint strategies evaluate their expression against this parameter, e.g. ds_${value % 2}
const hintParameter = "value"

// TbPolicy Table Routing Policy
type TbPolicy interface {
	Resolve(ctx context.Context, table *rule.ShardingTable, dataSource string, values []any, log logger.Interface) ([]string, error)
}

// TbShardingRoutePolicy 分表路由
type TbShardingRoutePolicy struct {
}

func (TbShardingRoutePolicy) Resolve(ctx context.Context, table *rule.ShardingTable, dataSource string, values []any, log logger.Interface) ([]string, error) {
	actualTables := table.ActualTables(dataSource)
	if actual, ok := preset(ctx, table.LogicTable, false); ok {
		log.Info(ctx, "table pre_set sharding: %v", actual)
		// 不在该库上的预设表不参与路由
		return matchPreset(actualTables, actual), nil
	}
	strategy := table.TableStrategy
	if strategy == nil || len(values) == 0 {
		return actualTables, nil
	}
	// 算法面向全部真实表计算，再过滤出该库上的表
	targets, err := doSharding(strategy, allActualTables(table), table.LogicTable, values)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, t := range targets {
		result = append(result, matchPreset(actualTables, t)...)
	}
	log.Info(ctx, "table sharding: %v", result)
	return result, nil
}

func allActualTables(table *rule.ShardingTable) []string {
	var tables []string
	seen := map[string]struct{}{}
	for _, n := range table.DataNodes {
		if _, ok := seen[n.Table]; ok {
			continue
		}
		seen[n.Table] = struct{}{}
		tables = append(tables, n.Table)
	}
	return tables
}

func matchPreset(targets []string, target string) []string {
	for _, t := range targets {
		if str.EqualFold(t, target) {
			return []string{t}
		}
	}
	return nil
}
