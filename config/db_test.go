package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qjerry/dbroute"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/persist"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"github.com/qjerry/dbroute/subscriber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

const testConfig = `
props:
  sqlShow: true
logger:
  level: silent
persist:
  type: memory
databases:
  - name: logic_db
    dbType: mysql
    dataSources: [ds_0, ds_1]
    tables: [t_config]
    rules:
      sharding:
        tables:
          t_order:
            actualDataNodes: ds_${0..1}.t_order_${0..1}
            databaseStrategy:
              shardingColumn: user_id
              shardingAlgorithmName: database_inline
            tableStrategy:
              shardingColumn: order_id
              shardingAlgorithmName: order_mod
        shardingAlgorithms:
          database_inline:
            type: INLINE
            props:
              algorithm-expression: ds_${user_id % 2}
          order_mod:
            type: MOD
            props:
              sharding-count: 2
          unused:
            type: HASH_MOD
            props:
              sharding-count: 4
      broadcast:
        tables: [t_dict]
      mask:
        tables:
          t_user:
            columns:
              phone:
                maskAlgorithm: keep
        maskAlgorithms:
          keep:
            type: KEEP_FIRST_N_LAST_M
            props:
              first-n: 3
              last-m: 4
  - name: pg_db
    dbType: postgres
    dsn: host=localhost user=dbroute dbname=dbroute
    dataSources: [pg_0]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dbroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.True(t, cfg.Props.SQLShow)
	assert.Equal(t, metadata.CardinalityRecorded, cfg.Props.RenameCardinalityReference)
	assert.Equal(t, "silent", cfg.Logger.Level)
	assert.Equal(t, 200*time.Millisecond, cfg.Logger.SlowThreshold)
	assert.Equal(t, PersistMemory, cfg.Persist.Type)
	require.Len(t, cfg.Databases, 2)

	db := cfg.Databases[0]
	assert.Equal(t, "logic_db", db.Name)
	assert.Equal(t, []string{"ds_0", "ds_1"}, db.DataSources)
	require.NotNil(t, db.Rules.Sharding)
	order := db.Rules.Sharding.Tables["t_order"]
	assert.Equal(t, "ds_${0..1}.t_order_${0..1}", order.ActualDataNodes)
	assert.Equal(t, "order_id", order.TableStrategy.ShardingColumn)
	assert.Equal(t, algorithm.Configuration{Type: "MOD", Props: map[string]string{"sharding-count": "2"}},
		db.Rules.Sharding.ShardingAlgorithms["order_mod"])
	assert.Nil(t, db.Rules.Encrypt)

	kinds := make([]rule.Kind, 0)
	for _, c := range db.Rules.Configurations() {
		kinds = append(kinds, c.Kind())
	}
	assert.Equal(t, []rule.Kind{rule.KindSharding, rule.KindBroadcast, rule.KindMask}, kinds)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewDBRoute(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	dr, closeFn, err := NewDBRoute(ctx, cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	assert.Equal(t, []string{"logic_db", "pg_db"}, dr.Databases())
	pg, err := dr.Snapshot("pg_db")
	require.NoError(t, err)
	assert.Equal(t, metadata.PostgreSQL, pg.Database().Type)
	assert.Equal(t, "postgres", pg.Database().Dialector.Name())

	sql := "SELECT * FROM t_order WHERE user_id = ? AND order_id = ?"
	stmt := statement.NewBuilder(sql).Table("t_order").Where("user_id = ?").Where("order_id = ?").MustBuild()
	ec, err := dr.Route(ctx, &dbroute.QueryContext{Database: "logic_db", Statement: stmt, Params: []any{3, 4}})
	require.NoError(t, err)
	require.Len(t, ec.Units, 1)
	assert.Equal(t, "ds_1", ec.Units[0].DataSource)
	assert.Equal(t, "SELECT * FROM t_order_0 WHERE user_id = ? AND order_id = ?", ec.Units[0].SQL)

	masked, err := dr.MaskValue("logic_db", "t_user", "phone", "13812345678")
	require.NoError(t, err)
	assert.Equal(t, "138****5678", masked)

	err = dr.Publish(ctx, subscriber.DeleteAlgorithmEvent{DatabaseName: "logic_db", Feature: rule.KindSharding, AlgorithmName: "unused"})
	require.NoError(t, err)
}

func TestSyncRules(t *testing.T) {
	ctx := context.Background()
	repo, closeRepo, err := openRepository(ctx, PersistConfig{Type: PersistMemory})
	require.NoError(t, err)
	defer closeRepo()
	cfg, err := Load(writeConfig(t, testConfig))
	require.NoError(t, err)
	configured := cfg.Databases[0].Rules.Configurations()

	service := persist.NewRuleService(repo)
	seeded, err := syncRules(ctx, service, "logic_db", configured)
	require.NoError(t, err)
	assert.Equal(t, configured, seeded)

	// 已持久化的规则优先
	stored, err := syncRules(ctx, service, "logic_db", []rule.Configuration{&rule.BroadcastRuleConfiguration{Tables: []string{"t_other"}}})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, configured[0], stored[0])
}

func TestOpenRepository(t *testing.T) {
	repo, closeRepo, err := openRepository(context.Background(), PersistConfig{})
	require.NoError(t, err)
	assert.Nil(t, repo)
	assert.NoError(t, closeRepo())

	_, _, err = openRepository(context.Background(), PersistConfig{Type: "etcd"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestOpenDialector(t *testing.T) {
	assert.Nil(t, openDialector(DatabaseConfig{DBType: "mysql"}))
	assert.Equal(t, "mysql", openDialector(DatabaseConfig{DBType: "mysql", DSN: "root@tcp(127.0.0.1:3306)/db"}).Name())
	assert.Equal(t, "postgres", openDialector(DatabaseConfig{DBType: "pg", DSN: "host=localhost"}).Name())
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = NewLogger(LoggerConfig{Type: "zap", Level: "error"})
	require.NoError(t, err)
	assert.NotNil(t, l.LogMode(logger.Info))

	_, err = NewLogger(LoggerConfig{Level: "verbose"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = NewLogger(LoggerConfig{Type: "logrus"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
