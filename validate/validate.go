// Package validate checks structural constraints of a statement against the active rules,
// once before routing and once the route context is known. Validators never repair a
// statement, the first violation rejects it.
package validate

import (
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/route"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
)

// PreValidate 路由前校验
func PreValidate(rules *rule.MetaData, stmt *statement.Context, params []any, database *metadata.Database, props metadata.Props) error {
	for _, r := range rules.Rules() {
		var err error
		switch r := r.(type) {
		case *rule.ShardingRule:
			if v := shardingValidator(stmt); v != nil {
				err = v.PreValidate(r, stmt, params, database, props)
			}
		case *rule.SingleRule:
			err = preValidateSingle(r, stmt)
		case *rule.ShadowRule, *rule.BroadcastRule, *rule.EncryptRule, *rule.MaskRule:
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// PostValidate 路由后校验
func PostValidate(rules *rule.MetaData, stmt *statement.Context, hint statement.HintValueContext, params []any, database *metadata.Database, props metadata.Props, rc *route.Context) error {
	for _, r := range rules.Rules() {
		var err error
		switch r := r.(type) {
		case *rule.ShardingRule:
			if v := shardingValidator(stmt); v != nil {
				err = v.PostValidate(r, stmt, hint, params, database, props, rc)
			}
		case *rule.SingleRule, *rule.ShadowRule, *rule.BroadcastRule, *rule.EncryptRule, *rule.MaskRule:
		}
		if err != nil {
			return err
		}
	}
	return nil
}
