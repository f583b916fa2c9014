package persist

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/subscriber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shardingConfig() *rule.ShardingRuleConfiguration {
	return &rule.ShardingRuleConfiguration{
		Tables: map[string]rule.ShardingTableConfiguration{
			"t_order": {
				ActualDataNodes:  "ds_${0..1}.t_order_${0..1}",
				DatabaseStrategy: &rule.ShardingStrategyConfiguration{ShardingColumn: "user_id", ShardingAlgorithmName: "mod"},
			},
		},
		ShardingAlgorithms: map[string]algorithm.Configuration{
			"mod":    {Type: "MOD", Props: map[string]string{"sharding-count": "2"}},
			"unused": {Type: "HASH_MOD", Props: map[string]string{"sharding-count": "4"}},
		},
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Persist(ctx, "/metadata/logic_db/rules/sharding/rule", "a"))
	require.NoError(t, repo.Persist(ctx, "/metadata/logic_db/rules/sharding/algorithms/mod", "b"))
	require.NoError(t, repo.Persist(ctx, "/metadata/logic_db/rules/mask/rule", "c"))
	require.NoError(t, repo.Persist(ctx, "/metadata/logic_dbx/rules/mask/rule", "d"))

	v, ok, err := repo.Load(ctx, "/metadata/logic_db/rules/mask/rule")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c", v)
	_, ok, err = repo.Load(ctx, "/metadata/none")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := repo.ChildrenKeys(ctx, "/metadata/logic_db/rules")
	require.NoError(t, err)
	assert.Equal(t, []string{"mask", "sharding"}, keys)

	require.NoError(t, repo.Delete(ctx, "/metadata/logic_db"))
	keys, err = repo.ChildrenKeys(ctx, "/metadata")
	require.NoError(t, err)
	assert.Equal(t, []string{"logic_dbx"}, keys)
}

func TestRuleServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	service := NewRuleService(repo)
	sharding := shardingConfig()
	broadcast := &rule.BroadcastRuleConfiguration{Tables: []string{"t_dict"}}
	require.NoError(t, service.Persist(ctx, "logic_db", sharding, broadcast))

	names, err := repo.ChildrenKeys(ctx, "/metadata/logic_db/rules/sharding/algorithms")
	require.NoError(t, err)
	assert.Equal(t, []string{"mod", "unused"}, names)
	body, ok, err := repo.Load(ctx, "/metadata/logic_db/rules/sharding/rule")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, body, "shardingAlgorithms")
	assert.Contains(t, body, "actualDataNodes")

	configs, err := service.Load(ctx, "logic_db")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, sharding, configs[0])
	assert.Equal(t, broadcast, configs[1])

	require.NoError(t, service.Drop(ctx, "logic_db"))
	configs, err = service.Load(ctx, "logic_db")
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestRuleServiceFollowsDeletedAlgorithm(t *testing.T) {
	ctx := context.Background()
	service := NewRuleService(NewMemoryRepository())
	require.NoError(t, service.Persist(ctx, "logic_db", shardingConfig()))

	db := metadata.NewDatabase("logic_db", metadata.MySQL, []string{"ds_0", "ds_1"})
	rules, err := rule.Build(db, 1, shardingConfig())
	require.NoError(t, err)
	owner := subscriber.NewOwner(rules, nil, service)
	defer owner.Close()

	err = owner.Publish(ctx, subscriber.DeleteAlgorithmEvent{DatabaseName: "logic_db", Feature: rule.KindSharding, AlgorithmName: "unused"})
	require.NoError(t, err)

	configs, err := service.Load(ctx, "logic_db")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	loaded := configs[0].(*rule.ShardingRuleConfiguration)
	assert.Contains(t, loaded.ShardingAlgorithms, "mod")
	assert.NotContains(t, loaded.ShardingAlgorithms, "unused")
}

func TestSQLRepository(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(createTableSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	repo, err := NewSQLRepository(ctx, db)
	require.NoError(t, err)

	mock.ExpectExec(upsertSQL).WithArgs("/m/a", "1").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Persist(ctx, "/m/a", "1"))

	mock.ExpectQuery(loadSQL).WithArgs("/m/a").WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("1"))
	v, ok, err := repo.Load(ctx, "/m/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	mock.ExpectQuery(loadSQL).WithArgs("/m/none").WillReturnRows(sqlmock.NewRows([]string{"value"}))
	_, ok, err = repo.Load(ctx, "/m/none")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(descendantsSQL).WithArgs(3, "/m/").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("/m/a/x").AddRow("/m/b").AddRow("/m/a/y"))
	keys, err := repo.ChildrenKeys(ctx, "/m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	mock.ExpectExec(deleteSQL).WithArgs("/m", 3, "/m/").WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, repo.Delete(ctx, "/m"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepositoryReplace(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Persist(ctx, "/m/a/old", "1"))
	require.NoError(t, repo.Persist(ctx, "/m/b", "2"))

	require.NoError(t, repo.Replace(ctx, "/m/a", map[string]string{"/m/a/new": "3"}))
	keys, err := repo.ChildrenKeys(ctx, "/m/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, keys)
	_, ok, err := repo.Load(ctx, "/m/b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLRepositoryReplace(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(createTableSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	repo, err := NewSQLRepository(ctx, db)
	require.NoError(t, err)
	nodes := map[string]string{"/m/b": "2", "/m/a": "1"}

	mock.ExpectBegin()
	mock.ExpectExec(deleteSQL).WithArgs("/m", 3, "/m/").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(upsertSQL).WithArgs("/m/a", "1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(upsertSQL).WithArgs("/m/b", "2").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Replace(ctx, "/m", nodes))

	// 写入失败整体回滚
	mock.ExpectBegin()
	mock.ExpectExec(deleteSQL).WithArgs("/m", 3, "/m/").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(upsertSQL).WithArgs("/m/a", "1").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()
	err = repo.Replace(ctx, "/m", nodes)
	assert.ErrorContains(t, err, "disk full")

	assert.NoError(t, mock.ExpectationsWereMet())
}
