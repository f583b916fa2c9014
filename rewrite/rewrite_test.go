package rewrite

import (
	"context"
	"testing"

	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/route"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	md5Test  = "098f6bcd4621d373cade4e832627b4f6"
	md5Alice = "6384e2b2184bcbf58eccf10ca7a6563c"
	md5Like  = "77593a8cd61b99143a0f9f511db67d0d"
)

func item(name string) *rule.EncryptColumnItemConfiguration {
	return &rule.EncryptColumnItemConfiguration{Name: name, EncryptorName: "md5"}
}

func encryptConfig() *rule.EncryptRuleConfiguration {
	return &rule.EncryptRuleConfiguration{
		Tables: map[string]rule.EncryptTableConfiguration{
			"t_user": {Columns: map[string]rule.EncryptColumnConfiguration{
				"name": {Cipher: *item("name_cipher"), AssistedQuery: item("name_assisted"), LikeQuery: item("name_like")},
				"nick": {Cipher: *item("nick_cipher")},
			}},
			"t": {Columns: map[string]rule.EncryptColumnConfiguration{
				"name": {Cipher: *item("name_cipher"), AssistedQuery: item("name_assisted")},
				"nick": {Cipher: *item("nick_cipher")},
			}},
			"t_order": {Columns: map[string]rule.EncryptColumnConfiguration{
				"status": {Cipher: *item("status_cipher")},
			}},
		},
		Encryptors: map[string]algorithm.Configuration{"md5": {Type: "MD5"}},
	}
}

func shardingConfig() *rule.ShardingRuleConfiguration {
	return &rule.ShardingRuleConfiguration{
		Tables: map[string]rule.ShardingTableConfiguration{
			"t_order": {
				ActualDataNodes:  "ds_${0..1}.t_order_${0..1}",
				DatabaseStrategy: &rule.ShardingStrategyConfiguration{ShardingColumn: "user_id", ShardingAlgorithmName: "database_inline"},
				TableStrategy:    &rule.ShardingStrategyConfiguration{ShardingColumn: "order_id", ShardingAlgorithmName: "order_inline"},
			},
			"t_order_item": {
				ActualDataNodes:  "ds_${0..1}.t_order_item_${0..1}",
				DatabaseStrategy: &rule.ShardingStrategyConfiguration{ShardingColumn: "user_id", ShardingAlgorithmName: "database_inline"},
				TableStrategy:    &rule.ShardingStrategyConfiguration{ShardingColumn: "order_id", ShardingAlgorithmName: "item_inline"},
			},
		},
		BindingTables: []string{"t_order,t_order_item"},
		ShardingAlgorithms: map[string]algorithm.Configuration{
			"database_inline": {Type: "INLINE", Props: map[string]string{"algorithm-expression": "ds_${user_id % 2}"}},
			"order_inline":    {Type: "INLINE", Props: map[string]string{"algorithm-expression": "t_order_${order_id % 2}"}},
			"item_inline":     {Type: "INLINE", Props: map[string]string{"algorithm-expression": "t_order_item_${order_id % 2}"}},
		},
	}
}

func testRules(t *testing.T, configs ...rule.Configuration) *rule.MetaData {
	t.Helper()
	db := metadata.NewDatabase("logic_db", metadata.MySQL, []string{"ds_0", "ds_1"})
	rules, err := rule.Build(db, 1, configs...)
	require.NoError(t, err)
	return rules
}

func singleUnit() *route.Context {
	rc := route.NewContext()
	rc.Add(route.Unit{DataSource: route.Mapper{LogicName: "ds_0", ActualName: "ds_0"}})
	return rc
}

func routeAndRewrite(t *testing.T, stmt *statement.Context, params []any, rules *rule.MetaData) *Result {
	t.Helper()
	engine := route.Select(stmt, params, rules, metadata.DefaultProps(), metadata.ConnectionContext{})
	rc, err := route.Execute(context.Background(), engine, rules)
	require.NoError(t, err)
	result, err := Rewrite(stmt, params, rules, stmt.Hint, rc)
	require.NoError(t, err)
	return result
}

func testEncryptor(t *testing.T) encryptor {
	rules := testRules(t, encryptConfig())
	r, ok := rules.Encrypt()
	require.True(t, ok)
	return encryptor{rule: r, database: rules.Database()}
}

func TestInsertOnDuplicateValuesRewrite(t *testing.T) {
	sql := "INSERT INTO t VALUES (?) ON DUPLICATE KEY UPDATE name=VALUES(name)"
	stmt := statement.NewBuilder(sql).Table("t").InsertRow("(?)").OnDuplicate("name=VALUES(name)").MustBuild()
	g := &EncryptInsertOnUpdateGenerator{testEncryptor(t)}
	require.True(t, g.IsGenerateSQLToken(stmt))

	tokens, err := g.GenerateSQLTokens(stmt)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	token, ok := tokens[0].(*FunctionAssignmentToken)
	require.True(t, ok)
	assert.Equal(t, "name=VALUES(name)", stmt.Text(token.Bounds()))
	assert.Equal(t, []Pair{
		{Column: "name_cipher", Value: "VALUES(name_cipher)"},
		{Column: "name_assisted", Value: "VALUES(name_assisted)"},
	}, token.Pairs)
	assert.Equal(t, "name_cipher = VALUES(name_cipher), name_assisted = VALUES(name_assisted)", token.Render(route.Unit{}))
}

func TestInsertOnDuplicateFacetMismatch(t *testing.T) {
	g := &EncryptInsertOnUpdateGenerator{testEncryptor(t)}
	for _, assignment := range []string{"name=VALUES(nick)", "age=VALUES(name)", "nick=VALUES(age)"} {
		sql := "INSERT INTO t (name) VALUES (?) ON DUPLICATE KEY UPDATE " + assignment
		stmt := statement.NewBuilder(sql).Table("t").InsertColumns("(name)").InsertRow("(?)").OnDuplicate(assignment).MustBuild()
		tokens, err := g.GenerateSQLTokens(stmt)
		require.Error(t, err, assignment)
		assert.True(t, errs.IsUnsupportedRewrite(err), assignment)
		assert.Empty(t, tokens)
	}

	sql := "INSERT INTO t (name) VALUES (?) ON DUPLICATE KEY UPDATE name = NOW()"
	stmt := statement.NewBuilder(sql).Table("t").InsertColumns("(name)").InsertRow("(?)").OnDuplicate("name = NOW()").MustBuild()
	_, err := g.GenerateSQLTokens(stmt)
	assert.True(t, errs.IsUnsupportedRewrite(err))
}

func TestInsertOnDuplicateSkipsPlainColumns(t *testing.T) {
	g := &EncryptInsertOnUpdateGenerator{testEncryptor(t)}
	sql := "INSERT INTO t (name) VALUES (?) ON DUPLICATE KEY UPDATE age=VALUES(age), name = ?"
	stmt := statement.NewBuilder(sql).Table("t").InsertColumns("(name)").InsertRow("(?)").
		OnDuplicate("age=VALUES(age)").OnDuplicate("name = ?").MustBuild()
	tokens, err := g.GenerateSQLTokens(stmt)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	token, ok := tokens[0].(*ParameterAssignmentToken)
	require.True(t, ok)
	assert.Equal(t, []string{"name_cipher", "name_assisted"}, token.Columns)
	assert.Equal(t, 1, token.Rewrite.Index)
	assert.Equal(t, "name_cipher = ?, name_assisted = ?", token.Render(route.Unit{}))
}

func TestRewriteWithoutTokensIsByteIdentical(t *testing.T) {
	rules := testRules(t)
	sql := "SELECT  *  FROM t_plain /* keep */ WHERE a = ?   AND b = 'x'"
	stmt := statement.NewBuilder(sql).Table("t_plain").Where("a = ?").Where("b = 'x'").MustBuild()
	params := []any{1}
	result, err := Rewrite(stmt, params, rules, stmt.Hint, singleUnit())
	require.NoError(t, err)
	require.Len(t, result.Units, 1)
	assert.Equal(t, sql, result.Units[0].SQL)
	assert.Equal(t, params, result.Units[0].Params)
	assert.Empty(t, result.Tokens)
}

func TestShardingTableRewrite(t *testing.T) {
	rules := testRules(t, shardingConfig())

	sql := "SELECT * FROM t_order o JOIN t_order_item i ON o.order_id = i.order_id WHERE o.user_id = ? AND o.order_id = ?"
	stmt := statement.NewBuilder(sql).Table("t_order o").Table("t_order_item i").
		Where("o.user_id = ?").Where("o.order_id = ?").MustBuild()
	result := routeAndRewrite(t, stmt, []any{1, 1}, rules)
	require.Len(t, result.Units, 1)
	assert.Equal(t, "ds_1", result.Units[0].RouteUnit.DataSource.ActualName)
	assert.Equal(t, "SELECT * FROM t_order_1 o JOIN t_order_item_1 i ON o.order_id = i.order_id WHERE o.user_id = ? AND o.order_id = ?", result.Units[0].SQL)
	assert.Equal(t, []any{1, 1}, result.Units[0].Params)

	sql = "SELECT t_order.status FROM t_order WHERE t_order.user_id = ? AND t_order.order_id = ?"
	stmt = statement.NewBuilder(sql).Table("t_order").Projection("t_order.status").
		Where("t_order.user_id = ?").Where("t_order.order_id = ?").MustBuild()
	result = routeAndRewrite(t, stmt, []any{0, 1}, rules)
	require.Len(t, result.Units, 1)
	assert.Equal(t, "SELECT t_order_1.status FROM t_order_1 WHERE t_order_1.user_id = ? AND t_order_1.order_id = ?", result.Units[0].SQL)
}

func TestShardingTableRewritePerUnit(t *testing.T) {
	rules := testRules(t, shardingConfig())
	sql := "SELECT * FROM `t_order` WHERE status = 'ok'"
	stmt := statement.NewBuilder(sql).Table("`t_order`").Where("status = 'ok'").MustBuild()
	result := routeAndRewrite(t, stmt, nil, rules)
	require.Len(t, result.Units, 4)
	var got []string
	for _, u := range result.Units {
		got = append(got, u.RouteUnit.DataSource.ActualName+": "+u.SQL)
	}
	assert.Equal(t, []string{
		"ds_0: SELECT * FROM `t_order_0` WHERE status = 'ok'",
		"ds_0: SELECT * FROM `t_order_1` WHERE status = 'ok'",
		"ds_1: SELECT * FROM `t_order_0` WHERE status = 'ok'",
		"ds_1: SELECT * FROM `t_order_1` WHERE status = 'ok'",
	}, got)
}

func TestEncryptInsertRewrite(t *testing.T) {
	rules := testRules(t, encryptConfig())
	sql := "INSERT INTO t_user (id, name) VALUES (?, ?), (2, 'alice')"
	stmt := statement.NewBuilder(sql).Table("t_user").InsertColumns("(id, name)").
		InsertRow("(?, ?)").InsertRow("(2, 'alice')").MustBuild()
	result, err := Rewrite(stmt, []any{1, "test"}, rules, stmt.Hint, singleUnit())
	require.NoError(t, err)
	require.Len(t, result.Units, 1)
	assert.Equal(t, "INSERT INTO t_user (id, name_cipher, name_assisted, name_like) VALUES (?, ?, ?, ?), (2, '"+
		md5Alice+"', '"+md5Alice+"', '"+md5Alice+"')", result.Units[0].SQL)
	assert.Equal(t, []any{1, md5Test, md5Test, md5Test}, result.Units[0].Params)
}

func TestEncryptInsertWithoutColumns(t *testing.T) {
	rules := testRules(t, encryptConfig())
	sql := "INSERT INTO t_user VALUES (?, ?)"
	stmt := statement.NewBuilder(sql).Table("t_user").InsertRow("(?, ?)").MustBuild()
	_, err := Rewrite(stmt, []any{1, "test"}, rules, stmt.Hint, singleUnit())
	assert.True(t, errs.IsUnsupportedRewrite(err))
}

func TestEncryptUpdateRewrite(t *testing.T) {
	rules := testRules(t, encryptConfig())
	sql := "UPDATE t_user SET name = ?, nick = 'alice', age = 3 WHERE name = ?"
	stmt := statement.NewBuilder(sql).Table("t_user").
		Set("name = ?").Set("nick = 'alice'").Set("age = 3").Where("name = ?").MustBuild()
	result, err := Rewrite(stmt, []any{"test", "test"}, rules, stmt.Hint, singleUnit())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t_user SET name_cipher = ?, name_assisted = ?, name_like = ?, nick_cipher = '"+md5Alice+
		"', age = 3 WHERE name_assisted = ?", result.Units[0].SQL)
	assert.Equal(t, []any{md5Test, md5Test, md5Test, md5Test}, result.Units[0].Params)

	sql = "UPDATE t_user SET name = CONCAT(name, 'x')"
	stmt = statement.NewBuilder(sql).Table("t_user").Set("name = CONCAT(name, 'x')").MustBuild()
	_, err = Rewrite(stmt, nil, rules, stmt.Hint, singleUnit())
	assert.True(t, errs.IsUnsupportedRewrite(err))
}

func TestEncryptSelectRewrite(t *testing.T) {
	rules := testRules(t, encryptConfig())
	sql := "SELECT name, nick AS n FROM t_user WHERE name IN (?, 'alice') AND name LIKE ? AND nick IS NULL"
	stmt := statement.NewBuilder(sql).Table("t_user").Projection("name").Projection("nick AS n").
		Where("name IN (?, 'alice')").Where("name LIKE ?").Where("nick IS NULL").MustBuild()
	result, err := Rewrite(stmt, []any{"test", "a%"}, rules, stmt.Hint, singleUnit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT name_cipher AS name, nick_cipher AS n FROM t_user WHERE name_assisted IN (?, '"+md5Alice+
		"') AND name_like LIKE ? AND nick_cipher IS NULL", result.Units[0].SQL)
	assert.Equal(t, []any{md5Test, md5Like}, result.Units[0].Params)
}

func TestEncryptPredicateUnsupported(t *testing.T) {
	rules := testRules(t, encryptConfig())
	for _, where := range []string{"nick LIKE 'a%'", "name > ?"} {
		sql := "SELECT id FROM t_user WHERE " + where
		stmt := statement.NewBuilder(sql).Table("t_user").Where(where).MustBuild()
		_, err := Rewrite(stmt, []any{"x"}, rules, stmt.Hint, singleUnit())
		assert.True(t, errs.IsUnsupportedRewrite(err), where)
	}
}

func TestSkipEncryptRewriteHint(t *testing.T) {
	rules := testRules(t, encryptConfig())
	sql := "/* SHARDINGSPHERE_HINT: SKIP_ENCRYPT_REWRITE=true */ SELECT name FROM t_user WHERE name = ?"
	stmt := statement.NewBuilder(sql).Table("t_user").Projection("name").Where("name = ?").MustBuild()
	require.True(t, stmt.Hint.SkipEncryptRewrite)
	result, err := Rewrite(stmt, []any{"test"}, rules, stmt.Hint, singleUnit())
	require.NoError(t, err)
	assert.Equal(t, sql, result.Units[0].SQL)
	assert.Equal(t, []any{"test"}, result.Units[0].Params)
}

func TestShardingAndEncryptRewrite(t *testing.T) {
	rules := testRules(t, shardingConfig(), encryptConfig())
	sql := "UPDATE t_order SET status = ? WHERE user_id = ? AND order_id = ?"
	stmt := statement.NewBuilder(sql).Table("t_order").Set("status = ?").Where("user_id = ?").Where("order_id = ?").MustBuild()
	result := routeAndRewrite(t, stmt, []any{"test", 1, 0}, rules)
	require.Len(t, result.Units, 1)
	assert.Equal(t, "UPDATE t_order_0 SET status_cipher = ? WHERE user_id = ? AND order_id = ?", result.Units[0].SQL)
	assert.Equal(t, []any{md5Test, 1, 0}, result.Units[0].Params)
}

func TestMergeRejectsOverlap(t *testing.T) {
	sql := "SELECT a FROM t"
	tokens := []Token{
		&PredicateColumnToken{Span: statement.Span{Start: 7, Stop: 7}, Column: "b"},
		&PredicateColumnToken{Span: statement.Span{Start: 0, Stop: 7}, Column: "x"},
	}
	_, err := Merge(sql, tokens)
	assert.True(t, errs.IsInvariantViolation(err))

	_, err = Merge(sql, []Token{&PredicateColumnToken{Span: statement.Span{Start: 14, Stop: 20}}})
	assert.True(t, errs.IsInvariantViolation(err))

	merged, err := Merge(sql, []Token{
		&PredicateColumnToken{Span: statement.Span{Start: 14, Stop: 14}, Column: "t_1"},
		&PredicateColumnToken{Span: statement.Span{Start: 7, Stop: 7}, Column: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT b FROM t_1", Splice(sql, merged, route.Unit{}))
}

func TestParameters(t *testing.T) {
	double := func(v any) ([]any, error) { return []any{v, v}, nil }
	tokens := []Token{&InsertValueToken{Rewrite: &ParameterRewrite{Index: 1, Derive: double}}}
	params, err := Parameters([]any{"a", "b", "c"}, tokens)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "b", "c"}, params)

	tokens = append(tokens, &PredicateValueToken{Rewrite: &ParameterRewrite{Index: 1, Derive: double}})
	_, err = Parameters([]any{"a", "b"}, tokens)
	assert.True(t, errs.IsInvariantViolation(err))

	_, err = Parameters(nil, tokens[:1])
	assert.True(t, errs.IsRoute(err))
}

func TestRenderLiteral(t *testing.T) {
	assert.Equal(t, "null", renderLiteral(metadata.MySQL, nil))
	assert.Equal(t, "3", renderLiteral(metadata.MySQL, int64(3)))
	assert.Equal(t, "1.5", renderLiteral(metadata.MySQL, 1.5))
	assert.Equal(t, "'it\\'s'", renderLiteral(metadata.MySQL, "it's"))
	assert.Equal(t, `'a\\b'`, renderLiteral(metadata.MySQL, `a\b`))

	assert.Equal(t, "3", renderLiteral(metadata.PostgreSQL, int64(3)))
	assert.Equal(t, "'it''s'", renderLiteral(metadata.PostgreSQL, "it's"))
	assert.Equal(t, `'a\b'`, renderLiteral(metadata.PostgreSQL, `a\b`))
}

func TestInsertOnDuplicateLiteralRewrite(t *testing.T) {
	g := &EncryptInsertOnUpdateGenerator{testEncryptor(t)}
	sql := "INSERT INTO t (name) VALUES (?) ON DUPLICATE KEY UPDATE name = 'test'"
	stmt := statement.NewBuilder(sql).Table("t").InsertColumns("(name)").InsertRow("(?)").OnDuplicate("name = 'test'").MustBuild()
	tokens, err := g.GenerateSQLTokens(stmt)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	token, ok := tokens[0].(*LiteralAssignmentToken)
	require.True(t, ok)
	assert.Equal(t, "name = 'test'", stmt.Text(token.Bounds()))
	assert.Equal(t, []Pair{
		{Column: "name_cipher", Value: "'" + md5Test + "'"},
		{Column: "name_assisted", Value: "'" + md5Test + "'"},
	}, token.Pairs)

	result, err := Rewrite(stmt, []any{"test"}, testRules(t, encryptConfig()), stmt.Hint, singleUnit())
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (name_cipher, name_assisted) VALUES (?, ?) ON DUPLICATE KEY UPDATE name_cipher = '"+
		md5Test+"', name_assisted = '"+md5Test+"'", result.Units[0].SQL)
	assert.Equal(t, []any{md5Test, md5Test}, result.Units[0].Params)
}

func TestInsertOnDuplicateCipherOnly(t *testing.T) {
	g := &EncryptInsertOnUpdateGenerator{testEncryptor(t)}
	sql := "INSERT INTO t (nick) VALUES (?) ON DUPLICATE KEY UPDATE nick=VALUES(nick)"
	stmt := statement.NewBuilder(sql).Table("t").InsertColumns("(nick)").InsertRow("(?)").OnDuplicate("nick=VALUES(nick)").MustBuild()
	tokens, err := g.GenerateSQLTokens(stmt)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	token, ok := tokens[0].(*FunctionAssignmentToken)
	require.True(t, ok)
	assert.Equal(t, []Pair{{Column: "nick_cipher", Value: "VALUES(nick_cipher)"}}, token.Pairs)
	assert.Equal(t, "nick_cipher = VALUES(nick_cipher)", token.Render(route.Unit{}))
}

func TestEncryptAmbiguousColumn(t *testing.T) {
	rules := testRules(t, encryptConfig())
	sql := "SELECT name FROM t_user u JOIN t_plain p ON u.id = p.uid WHERE name = ?"
	for _, stmt := range []*statement.Context{
		statement.NewBuilder(sql).Table("t_user u").Table("t_plain p").Where("name = ?").MustBuild(),
		statement.NewBuilder(sql).Table("t_user u").Table("t_plain p").Projection("name").MustBuild(),
	} {
		_, err := Rewrite(stmt, []any{"test"}, rules, stmt.Hint, singleUnit())
		assert.True(t, errs.IsUnsupportedRewrite(err))
	}

	sql = "UPDATE t_user u JOIN t_plain p ON u.id = p.uid SET nick = ? WHERE p.uid = ?"
	stmt := statement.NewBuilder(sql).Table("t_user u").Table("t_plain p").Set("nick = ?").Where("p.uid = ?").MustBuild()
	_, err := Rewrite(stmt, []any{"test", 1}, rules, stmt.Hint, singleUnit())
	assert.True(t, errs.IsUnsupportedRewrite(err))

	// 限定表名后可以确定
	sql = "SELECT u.name FROM t_user u JOIN t_plain p ON u.id = p.uid WHERE u.name = ? AND age = ?"
	stmt = statement.NewBuilder(sql).Table("t_user u").Table("t_plain p").Projection("u.name").
		Where("u.name = ?").Where("age = ?").MustBuild()
	result, err := Rewrite(stmt, []any{"test", 3}, rules, stmt.Hint, singleUnit())
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.name_cipher AS name FROM t_user u JOIN t_plain p ON u.id = p.uid WHERE u.name_assisted = ? AND age = ?", result.Units[0].SQL)
	assert.Equal(t, []any{md5Test, 3}, result.Units[0].Params)
}
