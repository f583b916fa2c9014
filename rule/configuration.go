package rule

import (
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
)

// Configuration rule configuration snapshot, a closed set implemented by the
// *XxxRuleConfiguration types of this package
type Configuration interface {
	Kind() Kind
	Clone() Configuration
	configuration()
}

// AlgorithmOwner configurations holding a named algorithm map
type AlgorithmOwner interface {
	Configuration
	Algorithms() map[string]algorithm.Configuration
}

// ShardingStrategyConfiguration an empty column means a hint strategy
type ShardingStrategyConfiguration struct {
	ShardingColumn        string `mapstructure:"shardingColumn" yaml:"shardingColumn,omitempty"`
	ShardingAlgorithmName string `mapstructure:"shardingAlgorithmName" yaml:"shardingAlgorithmName"`
}

func (s *ShardingStrategyConfiguration) clone() *ShardingStrategyConfiguration {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// ShardingTableConfiguration 分片表
type ShardingTableConfiguration struct {
	// inline expression, e.g. ds_${0..1}.t_order_${0..1}
	ActualDataNodes  string                         `mapstructure:"actualDataNodes" yaml:"actualDataNodes,omitempty"`
	DatabaseStrategy *ShardingStrategyConfiguration `mapstructure:"databaseStrategy" yaml:"databaseStrategy,omitempty"`
	TableStrategy    *ShardingStrategyConfiguration `mapstructure:"tableStrategy" yaml:"tableStrategy,omitempty"`
}

// ShardingRuleConfiguration 分片规则
type ShardingRuleConfiguration struct {
	Tables map[string]ShardingTableConfiguration `mapstructure:"tables" yaml:"tables"`
	// each entry is a comma separated group, e.g. "t_order,t_order_item"
	BindingTables           []string                           `mapstructure:"bindingTables" yaml:"bindingTables,omitempty"`
	DefaultDatabaseStrategy *ShardingStrategyConfiguration     `mapstructure:"defaultDatabaseStrategy" yaml:"defaultDatabaseStrategy,omitempty"`
	DefaultTableStrategy    *ShardingStrategyConfiguration     `mapstructure:"defaultTableStrategy" yaml:"defaultTableStrategy,omitempty"`
	ShardingAlgorithms      map[string]algorithm.Configuration `mapstructure:"shardingAlgorithms" yaml:"shardingAlgorithms,omitempty"`
}

func (*ShardingRuleConfiguration) Kind() Kind { return KindSharding }
func (*ShardingRuleConfiguration) configuration() {}

func (c *ShardingRuleConfiguration) Algorithms() map[string]algorithm.Configuration {
	return c.ShardingAlgorithms
}

func (c *ShardingRuleConfiguration) Clone() Configuration {
	clone := &ShardingRuleConfiguration{
		Tables:                  make(map[string]ShardingTableConfiguration, len(c.Tables)),
		BindingTables:           append([]string(nil), c.BindingTables...),
		DefaultDatabaseStrategy: c.DefaultDatabaseStrategy.clone(),
		DefaultTableStrategy:    c.DefaultTableStrategy.clone(),
		ShardingAlgorithms:      cloneAlgorithms(c.ShardingAlgorithms),
	}
	for name, t := range c.Tables {
		clone.Tables[name] = ShardingTableConfiguration{
			ActualDataNodes:  t.ActualDataNodes,
			DatabaseStrategy: t.DatabaseStrategy.clone(),
			TableStrategy:    t.TableStrategy.clone(),
		}
	}
	return clone
}

// EncryptColumnItemConfiguration one physical column and its encryptor
type EncryptColumnItemConfiguration struct {
	Name          string `mapstructure:"name" yaml:"name"`
	EncryptorName string `mapstructure:"encryptorName" yaml:"encryptorName"`
}

func (i *EncryptColumnItemConfiguration) clone() *EncryptColumnItemConfiguration {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// EncryptColumnConfiguration logic column -> cipher, assisted query, like query
type EncryptColumnConfiguration struct {
	Cipher        EncryptColumnItemConfiguration  `mapstructure:"cipher" yaml:"cipher"`
	AssistedQuery *EncryptColumnItemConfiguration `mapstructure:"assistedQuery" yaml:"assistedQuery,omitempty"`
	LikeQuery     *EncryptColumnItemConfiguration `mapstructure:"likeQuery" yaml:"likeQuery,omitempty"`
}

// EncryptTableConfiguration 加密表
type EncryptTableConfiguration struct {
	Columns map[string]EncryptColumnConfiguration `mapstructure:"columns" yaml:"columns"`
}

// EncryptRuleConfiguration 加密规则
type EncryptRuleConfiguration struct {
	Tables     map[string]EncryptTableConfiguration `mapstructure:"tables" yaml:"tables"`
	Encryptors map[string]algorithm.Configuration   `mapstructure:"encryptors" yaml:"encryptors,omitempty"`
}

func (*EncryptRuleConfiguration) Kind() Kind { return KindEncrypt }
func (*EncryptRuleConfiguration) configuration() {}

func (c *EncryptRuleConfiguration) Algorithms() map[string]algorithm.Configuration {
	return c.Encryptors
}

func (c *EncryptRuleConfiguration) Clone() Configuration {
	clone := &EncryptRuleConfiguration{
		Tables:     make(map[string]EncryptTableConfiguration, len(c.Tables)),
		Encryptors: cloneAlgorithms(c.Encryptors),
	}
	for name, t := range c.Tables {
		columns := make(map[string]EncryptColumnConfiguration, len(t.Columns))
		for col, cfg := range t.Columns {
			columns[col] = EncryptColumnConfiguration{
				Cipher:        cfg.Cipher,
				AssistedQuery: cfg.AssistedQuery.clone(),
				LikeQuery:     cfg.LikeQuery.clone(),
			}
		}
		clone.Tables[name] = EncryptTableConfiguration{Columns: columns}
	}
	return clone
}

// MaskColumnConfiguration 脱敏列
type MaskColumnConfiguration struct {
	MaskAlgorithm string `mapstructure:"maskAlgorithm" yaml:"maskAlgorithm"`
}

// MaskTableConfiguration 脱敏表
type MaskTableConfiguration struct {
	Columns map[string]MaskColumnConfiguration `mapstructure:"columns" yaml:"columns"`
}

// MaskRuleConfiguration 脱敏规则
type MaskRuleConfiguration struct {
	Tables         map[string]MaskTableConfiguration  `mapstructure:"tables" yaml:"tables"`
	MaskAlgorithms map[string]algorithm.Configuration `mapstructure:"maskAlgorithms" yaml:"maskAlgorithms,omitempty"`
}

func (*MaskRuleConfiguration) Kind() Kind { return KindMask }
func (*MaskRuleConfiguration) configuration() {}

func (c *MaskRuleConfiguration) Algorithms() map[string]algorithm.Configuration {
	return c.MaskAlgorithms
}

func (c *MaskRuleConfiguration) Clone() Configuration {
	clone := &MaskRuleConfiguration{
		Tables:         make(map[string]MaskTableConfiguration, len(c.Tables)),
		MaskAlgorithms: cloneAlgorithms(c.MaskAlgorithms),
	}
	for name, t := range c.Tables {
		columns := make(map[string]MaskColumnConfiguration, len(t.Columns))
		for col, cfg := range t.Columns {
			columns[col] = cfg
		}
		clone.Tables[name] = MaskTableConfiguration{Columns: columns}
	}
	return clone
}

// Shadow modes
const (
	ShadowOnly = "SHADOW_ONLY"
	ShadowBoth = "BOTH"
)

// ShadowDataSourceConfiguration production -> shadow data source
type ShadowDataSourceConfiguration struct {
	ProductionDataSourceName string `mapstructure:"productionDataSourceName" yaml:"productionDataSourceName"`
	ShadowDataSourceName     string `mapstructure:"shadowDataSourceName" yaml:"shadowDataSourceName"`
}

// ShadowTableConfiguration 影子表
type ShadowTableConfiguration struct {
	DataSourceNames      []string `mapstructure:"dataSourceNames" yaml:"dataSourceNames"`
	ShadowAlgorithmNames []string `mapstructure:"shadowAlgorithmNames" yaml:"shadowAlgorithmNames"`
}

// ShadowRuleConfiguration 影子库规则
type ShadowRuleConfiguration struct {
	DataSources                map[string]ShadowDataSourceConfiguration `mapstructure:"dataSources" yaml:"dataSources"`
	Tables                     map[string]ShadowTableConfiguration      `mapstructure:"tables" yaml:"tables,omitempty"`
	DefaultShadowAlgorithmName string                                   `mapstructure:"defaultShadowAlgorithmName" yaml:"defaultShadowAlgorithmName,omitempty"`
	ShadowAlgorithms           map[string]algorithm.Configuration       `mapstructure:"shadowAlgorithms" yaml:"shadowAlgorithms,omitempty"`
	// SHADOW_ONLY routes matched statements to shadow instead of production, BOTH to both
	Mode string `mapstructure:"mode" yaml:"mode,omitempty"`
}

func (*ShadowRuleConfiguration) Kind() Kind { return KindShadow }
func (*ShadowRuleConfiguration) configuration() {}

func (c *ShadowRuleConfiguration) Algorithms() map[string]algorithm.Configuration {
	return c.ShadowAlgorithms
}

func (c *ShadowRuleConfiguration) Clone() Configuration {
	clone := &ShadowRuleConfiguration{
		DataSources:                make(map[string]ShadowDataSourceConfiguration, len(c.DataSources)),
		Tables:                     make(map[string]ShadowTableConfiguration, len(c.Tables)),
		DefaultShadowAlgorithmName: c.DefaultShadowAlgorithmName,
		ShadowAlgorithms:           cloneAlgorithms(c.ShadowAlgorithms),
		Mode:                       c.Mode,
	}
	for name, ds := range c.DataSources {
		clone.DataSources[name] = ds
	}
	for name, t := range c.Tables {
		clone.Tables[name] = ShadowTableConfiguration{
			DataSourceNames:      append([]string(nil), t.DataSourceNames...),
			ShadowAlgorithmNames: append([]string(nil), t.ShadowAlgorithmNames...),
		}
	}
	return clone
}

// SingleRuleConfiguration 单表规则
type SingleRuleConfiguration struct {
	// ds.table or ds.schema.table
	Tables            []string `mapstructure:"tables" yaml:"tables"`
	DefaultDataSource string   `mapstructure:"defaultDataSource" yaml:"defaultDataSource,omitempty"`
}

func (*SingleRuleConfiguration) Kind() Kind { return KindSingle }
func (*SingleRuleConfiguration) configuration() {}

func (c *SingleRuleConfiguration) Clone() Configuration {
	return &SingleRuleConfiguration{Tables: append([]string(nil), c.Tables...), DefaultDataSource: c.DefaultDataSource}
}

// BroadcastRuleConfiguration 广播表规则
type BroadcastRuleConfiguration struct {
	Tables []string `mapstructure:"tables" yaml:"tables"`
}

func (*BroadcastRuleConfiguration) Kind() Kind { return KindBroadcast }
func (*BroadcastRuleConfiguration) configuration() {}

func (c *BroadcastRuleConfiguration) Clone() Configuration {
	return &BroadcastRuleConfiguration{Tables: append([]string(nil), c.Tables...)}
}

func cloneAlgorithms(src map[string]algorithm.Configuration) map[string]algorithm.Configuration {
	dst := make(map[string]algorithm.Configuration, len(src))
	for name, cfg := range src {
		dst[name] = cfg.Clone()
	}
	return dst
}

// NewConfiguration empty configuration of kind, algorithm maps are allocated
func NewConfiguration(kind Kind) (Configuration, error) {
	switch kind {
	case KindSharding:
		return &ShardingRuleConfiguration{ShardingAlgorithms: map[string]algorithm.Configuration{}}, nil
	case KindEncrypt:
		return &EncryptRuleConfiguration{Encryptors: map[string]algorithm.Configuration{}}, nil
	case KindMask:
		return &MaskRuleConfiguration{MaskAlgorithms: map[string]algorithm.Configuration{}}, nil
	case KindShadow:
		return &ShadowRuleConfiguration{ShadowAlgorithms: map[string]algorithm.Configuration{}}, nil
	case KindSingle:
		return &SingleRuleConfiguration{}, nil
	case KindBroadcast:
		return &BroadcastRuleConfiguration{}, nil
	}
	return nil, errs.NewConfiguration("unknown rule kind `%s`", kind)
}
