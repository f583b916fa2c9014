package rule

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase() *metadata.Database {
	return metadata.NewDatabase("sharding_db", metadata.MySQL, []string{"ds_0", "ds_1", "shadow_ds"}, "t_order", "t_order_item", "t_user")
}

func shardingConfig() *ShardingRuleConfiguration {
	return &ShardingRuleConfiguration{
		Tables: map[string]ShardingTableConfiguration{
			"t_order": {
				ActualDataNodes:  "ds_${0..1}.t_order_${0..1}",
				DatabaseStrategy: &ShardingStrategyConfiguration{ShardingColumn: "user_id", ShardingAlgorithmName: "database_inline"},
				TableStrategy:    &ShardingStrategyConfiguration{ShardingColumn: "order_id", ShardingAlgorithmName: "table_inline"},
			},
			"t_order_item": {
				ActualDataNodes:  "ds_${0..1}.t_order_item_${0..1}",
				DatabaseStrategy: &ShardingStrategyConfiguration{ShardingColumn: "user_id", ShardingAlgorithmName: "database_inline"},
				TableStrategy:    &ShardingStrategyConfiguration{ShardingColumn: "order_id", ShardingAlgorithmName: "item_inline"},
			},
			"t_log": {},
		},
		BindingTables: []string{"t_order, t_order_item"},
		ShardingAlgorithms: map[string]algorithm.Configuration{
			"database_inline": {Type: "INLINE", Props: map[string]string{"algorithm-expression": "ds_${user_id % 2}"}},
			"table_inline":    {Type: "INLINE", Props: map[string]string{"algorithm-expression": "t_order_${order_id % 2}"}},
			"item_inline":     {Type: "INLINE", Props: map[string]string{"algorithm-expression": "t_order_item_${order_id % 2}"}},
		},
	}
}

func encryptConfig() *EncryptRuleConfiguration {
	return &EncryptRuleConfiguration{
		Tables: map[string]EncryptTableConfiguration{
			"t_user": {Columns: map[string]EncryptColumnConfiguration{
				"name": {
					Cipher:        EncryptColumnItemConfiguration{Name: "name_cipher", EncryptorName: "aes"},
					AssistedQuery: &EncryptColumnItemConfiguration{Name: "name_assisted", EncryptorName: "md5"},
				},
			}},
		},
		Encryptors: map[string]algorithm.Configuration{
			"aes": {Type: "AES", Props: map[string]string{"aes-key-value": "123456abc"}},
			"md5": {Type: "MD5"},
		},
	}
}

func TestBuildOrdersByPriority(t *testing.T) {
	md, err := Build(testDatabase(), 1,
		encryptConfig(),
		&BroadcastRuleConfiguration{Tables: []string{"t_dict"}},
		shardingConfig(),
		&SingleRuleConfiguration{Tables: []string{"ds_0.t_single"}},
	)
	require.NoError(t, err)
	var kinds []Kind
	for _, r := range md.Rules() {
		kinds = append(kinds, r.Kind())
	}
	assert.Equal(t, []Kind{KindSharding, KindSingle, KindBroadcast, KindEncrypt}, kinds)
	assert.Equal(t, int64(1), md.Version())

	sharding, ok := md.Sharding()
	require.True(t, ok)
	assert.True(t, sharding.IsShardingTable("T_ORDER"))
	_, ok = md.Shadow()
	assert.False(t, ok)

	cfg, ok := md.Configuration(KindBroadcast)
	require.True(t, ok)
	assert.Equal(t, []string{"t_dict"}, cfg.(*BroadcastRuleConfiguration).Tables)
}

func TestNewMetaDataRejectsDuplicates(t *testing.T) {
	b1, err := NewBroadcastRule(&BroadcastRuleConfiguration{Tables: []string{"a"}})
	require.NoError(t, err)
	b2, err := NewBroadcastRule(&BroadcastRuleConfiguration{Tables: []string{"b"}})
	require.NoError(t, err)
	_, err = NewMetaData(testDatabase(), 0, b1, b2)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestShardingRule(t *testing.T) {
	r, err := NewShardingRule(testDatabase(), shardingConfig())
	require.NoError(t, err)

	order, ok := r.ShardingTable("t_order")
	require.True(t, ok)
	assert.Len(t, order.DataNodes, 4)
	assert.Equal(t, []string{"ds_0", "ds_1"}, order.DataSourceNames())
	assert.Equal(t, []string{"t_order_0", "t_order_1"}, order.ActualTables("ds_1"))
	assert.Equal(t, 3, order.NodeIndex("ds_1", "t_order_1"))
	assert.True(t, order.IsShardingColumn("USER_ID"))
	assert.True(t, order.IsShardingColumn("order_id"))
	assert.False(t, order.IsShardingColumn("status"))

	log, ok := r.ShardingTable("t_log")
	require.True(t, ok)
	assert.Equal(t, []DataNode{{DataSource: "ds_0", Table: "t_log"}, {DataSource: "ds_1", Table: "t_log"}, {DataSource: "shadow_ds", Table: "t_log"}}, log.DataNodes)
	assert.Nil(t, log.DatabaseStrategy)

	assert.True(t, r.IsAllBinding([]string{"t_order", "t_order_item"}))
	assert.False(t, r.IsAllBinding([]string{"t_order", "t_log"}))
	assert.Equal(t, []string{"t_log", "t_order", "t_order_item"}, r.ShardingTableNames())

	first, ok := r.FirstShardingTable([]string{"t_user", "t_order_item", "t_order"})
	assert.True(t, ok)
	assert.Equal(t, "t_order_item", first)

	n, err := r.RecomputeNodeCount("t_order")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestShardingRuleInvalid(t *testing.T) {
	cfg := shardingConfig()
	cfg.Tables["t_bad"] = ShardingTableConfiguration{ActualDataNodes: "ds_9.t_bad"}
	_, err := NewShardingRule(testDatabase(), cfg)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	cfg = shardingConfig()
	cfg.Tables["t_bad"] = ShardingTableConfiguration{TableStrategy: &ShardingStrategyConfiguration{ShardingColumn: "id", ShardingAlgorithmName: "missing"}}
	_, err = NewShardingRule(testDatabase(), cfg)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))

	cfg = shardingConfig()
	cfg.BindingTables = []string{"t_order,t_log"}
	_, err = NewShardingRule(testDatabase(), cfg)
	assert.Error(t, err)
}

func TestEncryptRule(t *testing.T) {
	r, err := NewEncryptRule(encryptConfig())
	require.NoError(t, err)
	table, ok := r.EncryptTable("T_USER")
	require.True(t, ok)
	assert.True(t, table.IsEncryptColumn("NAME"))
	assert.Equal(t, "name_cipher", table.CipherColumn("name"))
	assisted, ok := table.AssistedQueryColumn("name")
	assert.True(t, ok)
	assert.Equal(t, "name_assisted", assisted)
	_, ok = table.LikeQueryColumn("name")
	assert.False(t, ok)
	assert.Equal(t, "", table.CipherColumn("age"))

	cipher, err := r.Encrypt("db", "t_user", "name", "alice")
	require.NoError(t, err)
	plain, err := r.Decrypt("db", "t_user", "name", cipher)
	require.NoError(t, err)
	assert.Equal(t, "alice", plain)

	digest, err := r.EncryptAssistedQuery("db", "t_user", "name", "test")
	require.NoError(t, err)
	assert.Equal(t, "098f6bcd4621d373cade4e832627b4f6", digest)

	_, err = r.EncryptLikeQuery("db", "t_user", "name", "a")
	assert.Error(t, err)
	_, err = r.Encrypt("db", "t_user", "age", 1)
	assert.Error(t, err)
}

func TestEncryptRuleRejectsQueryColumnWithoutCipher(t *testing.T) {
	cfg := encryptConfig()
	cfg.Tables["t_user"].Columns["phone"] = EncryptColumnConfiguration{
		AssistedQuery: &EncryptColumnItemConfiguration{Name: "phone_assisted", EncryptorName: "md5"},
	}
	_, err := NewEncryptRule(cfg)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestMaskRule(t *testing.T) {
	r, err := NewMaskRule(&MaskRuleConfiguration{
		Tables: map[string]MaskTableConfiguration{"t_user": {Columns: map[string]MaskColumnConfiguration{"phone": {MaskAlgorithm: "keep"}}}},
		MaskAlgorithms: map[string]algorithm.Configuration{
			"keep": {Type: "KEEP_FIRST_N_LAST_M", Props: map[string]string{"first-n": "3", "last-m": "4"}},
		},
	})
	require.NoError(t, err)
	masked, ok := r.Mask("t_user", "phone", "13812345678")
	assert.True(t, ok)
	assert.Equal(t, "138****5678", masked)
	same, ok := r.Mask("t_user", "name", "alice")
	assert.False(t, ok)
	assert.Equal(t, "alice", same)
}

func TestShadowRule(t *testing.T) {
	r, err := NewShadowRule(testDatabase(), &ShadowRuleConfiguration{
		DataSources: map[string]ShadowDataSourceConfiguration{"shadow_group": {ProductionDataSourceName: "ds_0", ShadowDataSourceName: "shadow_ds"}},
		Tables:      map[string]ShadowTableConfiguration{"t_order": {DataSourceNames: []string{"shadow_group"}, ShadowAlgorithmNames: []string{"user_match"}}},
		ShadowAlgorithms: map[string]algorithm.Configuration{
			"user_match": {Type: "VALUE_MATCH", Props: map[string]string{"column": "user_id", "operation": "insert", "value": "1"}},
			"hint":       {Type: "SQL_HINT"},
		},
		DefaultShadowAlgorithmName: "hint",
	})
	require.NoError(t, err)
	assert.Equal(t, ShadowOnly, r.Mode())
	shadow, ok := r.ShadowDataSource("ds_0")
	assert.True(t, ok)
	assert.Equal(t, "shadow_ds", shadow)
	assert.True(t, r.ContainsShadowTable([]string{"t_user", "t_order"}))
	assert.NotNil(t, r.DefaultAlgorithm())

	_, err = NewShadowRule(testDatabase(), &ShadowRuleConfiguration{Mode: "SOMETIMES"})
	assert.Error(t, err)
}

func TestSingleAndBroadcastRule(t *testing.T) {
	single, err := NewSingleRule(testDatabase(), &SingleRuleConfiguration{
		Tables:            []string{"ds_0.t_single", "ds_1.public.t_config"},
		DefaultDataSource: "ds_1",
	})
	require.NoError(t, err)
	assert.True(t, single.AllSingle([]string{"t_single", "T_CONFIG"}))
	assert.False(t, single.AllSingle([]string{"t_single", "t_order"}))
	node, ok := single.DataNode("t_config")
	assert.True(t, ok)
	assert.Equal(t, "ds_1", node.DataSource)
	assert.Equal(t, []string{"t_config"}, single.TablesInSchema("PUBLIC"))
	assert.Equal(t, "ds_1", single.DefaultDataSource())

	_, err = NewSingleRule(testDatabase(), &SingleRuleConfiguration{Tables: []string{"ds_0.t", "ds_1.t"}})
	assert.Error(t, err)
	_, err = NewSingleRule(testDatabase(), &SingleRuleConfiguration{Tables: []string{"t"}})
	assert.Error(t, err)

	broadcast, err := NewBroadcastRule(&BroadcastRuleConfiguration{Tables: []string{"t_dict"}})
	require.NoError(t, err)
	assert.True(t, broadcast.AllBroadcast([]string{"T_DICT"}))
	assert.False(t, broadcast.AllBroadcast(nil))
}

func TestConfigurationCloneIsDeep(t *testing.T) {
	cfg := shardingConfig()
	clone := cfg.Clone().(*ShardingRuleConfiguration)
	clone.ShardingAlgorithms["database_inline"].Props["algorithm-expression"] = "changed"
	clone.Tables["t_order"].DatabaseStrategy.ShardingColumn = "changed"
	assert.Equal(t, "ds_${user_id % 2}", cfg.ShardingAlgorithms["database_inline"].Props["algorithm-expression"])
	assert.Equal(t, "user_id", cfg.Tables["t_order"].DatabaseStrategy.ShardingColumn)

	enc := encryptConfig()
	encClone := enc.Clone().(*EncryptRuleConfiguration)
	encClone.Tables["t_user"].Columns["name"].AssistedQuery.Name = "changed"
	assert.Equal(t, "name_assisted", enc.Tables["t_user"].Columns["name"].AssistedQuery.Name)
}
