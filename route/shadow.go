package route

import (
	"context"
	"strings"

	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
)

// ShadowEngine 影子库路由，包装下一级引擎的结果
type ShadowEngine struct {
	Inner  Engine
	Stmt   *statement.Context
	Params []any
	Hint   statement.HintValueContext
}

func (e *ShadowEngine) Name() string { return "shadow(" + e.Inner.Name() + ")" }

func (e *ShadowEngine) Route(ctx context.Context, rules *rule.MetaData, database *metadata.Database) (*Context, error) {
	rc, err := e.Inner.Route(ctx, rules, database)
	if err != nil {
		return nil, err
	}
	shadow, ok := rules.Shadow()
	if !ok {
		return rc, nil
	}
	matched, err := e.isShadow(shadow)
	if err != nil {
		return nil, err
	}
	if !matched {
		return rc, nil
	}
	result := NewContext()
	for _, u := range rc.Units() {
		target, ok := shadow.ShadowDataSource(u.DataSource.ActualName)
		if !ok {
			result.Add(u)
			continue
		}
		if shadow.Mode() == rule.ShadowBoth {
			result.Add(u)
		}
		result.Add(Unit{DataSource: Mapper{LogicName: u.DataSource.LogicName, ActualName: target}, Tables: u.Tables})
	}
	return result, nil
}

func (e *ShadowEngine) isShadow(shadow *rule.ShadowRule) (bool, error) {
	operation := strings.ToLower(e.Stmt.Category.String())
	tables := e.Stmt.TableNames()
	if !shadow.ContainsShadowTable(tables) {
		return isHintShadow(shadow.DefaultAlgorithm(), e.Hint.Shadow), nil
	}
	for _, name := range tables {
		table, ok := shadow.ShadowTable(name)
		if !ok {
			continue
		}
		for _, a := range table.Algorithms {
			if _, ok := a.(algorithm.HintShadowAlgorithm); ok {
				if isHintShadow(a, e.Hint.Shadow) {
					return true, nil
				}
				continue
			}
			for _, column := range conditionColumns(e.Stmt, name) {
				values, found, err := columnValues(e.Stmt, e.Params, name, column)
				if err != nil {
					return false, err
				}
				if !found {
					continue
				}
				if a.IsShadow(algorithm.ShadowCondition{Table: name, Operation: operation, Column: column, Values: values}) {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func isHintShadow(a algorithm.ShadowAlgorithm, hint bool) bool {
	if a == nil || !hint {
		return false
	}
	h, ok := a.(algorithm.HintShadowAlgorithm)
	return ok && h.IsHint() && a.IsShadow(algorithm.ShadowCondition{Hint: true})
}
