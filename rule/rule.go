// Package rule holds the closed set of feature rules of a logic database and the immutable
// snapshot routing and rewriting read from.
package rule

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/metadata"
)

// Kind rule variant
type Kind string

const (
	KindShadow    Kind = "shadow"
	KindSharding  Kind = "sharding"
	KindSingle    Kind = "single"
	KindBroadcast Kind = "broadcast"
	KindEncrypt   Kind = "encrypt"
	KindMask      Kind = "mask"
)

// Kinds all variants in priority order
var Kinds = []Kind{KindShadow, KindSharding, KindSingle, KindBroadcast, KindEncrypt, KindMask}

// Priority lower runs first
func (k Kind) Priority() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return len(Kinds)
}

// Rule a closed set: *ShadowRule, *ShardingRule, *SingleRule, *BroadcastRule, *EncryptRule,
// *MaskRule. Rules are immutable once built.
type Rule interface {
	Kind() Kind
	Configuration() Configuration
	rule()
}

// MetaData immutable snapshot of the rules of one logic database
type MetaData struct {
	database *metadata.Database
	rules    []Rule
	version  int64
}

// NewMetaData orders rules by priority, at most one rule per kind
func NewMetaData(database *metadata.Database, version int64, rules ...Rule) (*MetaData, error) {
	seen := make(map[Kind]struct{}, len(rules))
	sorted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.Kind()]; dup {
			return nil, errs.NewConfiguration("duplicated %s rule", r.Kind())
		}
		seen[r.Kind()] = struct{}{}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Kind().Priority() < sorted[j].Kind().Priority()
	})
	return &MetaData{database: database, rules: sorted, version: version}, nil
}

// Build 由配置构建规则快照
func Build(database *metadata.Database, version int64, configs ...Configuration) (*MetaData, error) {
	rules := make([]Rule, 0, len(configs))
	for _, cfg := range configs {
		r, err := New(database, cfg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return NewMetaData(database, version, rules...)
}

// New builds one rule from its configuration
func New(database *metadata.Database, cfg Configuration) (Rule, error) {
	var (
		r   Rule
		err error
	)
	switch c := cfg.(type) {
	case *ShardingRuleConfiguration:
		r, err = NewShardingRule(database, c)
	case *EncryptRuleConfiguration:
		r, err = NewEncryptRule(c)
	case *MaskRuleConfiguration:
		r, err = NewMaskRule(c)
	case *ShadowRuleConfiguration:
		r, err = NewShadowRule(database, c)
	case *SingleRuleConfiguration:
		r, err = NewSingleRule(database, c)
	case *BroadcastRuleConfiguration:
		r, err = NewBroadcastRule(c)
	default:
		return nil, errs.NewConfiguration("unknown rule configuration %T", cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "build %s rule of database `%s`", cfg.Kind(), database.Name)
	}
	return r, nil
}

// Database the logic database the snapshot belongs to
func (m *MetaData) Database() *metadata.Database {
	return m.database
}

// Version increases with every published snapshot
func (m *MetaData) Version() int64 {
	return m.version
}

// Rules in priority order
func (m *MetaData) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}

// Configurations of every rule, in priority order
func (m *MetaData) Configurations() []Configuration {
	configs := make([]Configuration, 0, len(m.rules))
	for _, r := range m.rules {
		configs = append(configs, r.Configuration())
	}
	return configs
}

// Configuration of kind
func (m *MetaData) Configuration(kind Kind) (Configuration, bool) {
	for _, r := range m.rules {
		if r.Kind() == kind {
			return r.Configuration(), true
		}
	}
	return nil, false
}

// Find the rule of type T
func Find[T Rule](m *MetaData) (T, bool) {
	for _, r := range m.rules {
		if t, ok := r.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Sharding 分片规则
func (m *MetaData) Sharding() (*ShardingRule, bool) { return Find[*ShardingRule](m) }

// Encrypt 加密规则
func (m *MetaData) Encrypt() (*EncryptRule, bool) { return Find[*EncryptRule](m) }

// Mask 脱敏规则
func (m *MetaData) Mask() (*MaskRule, bool) { return Find[*MaskRule](m) }

// Shadow 影子库规则
func (m *MetaData) Shadow() (*ShadowRule, bool) { return Find[*ShadowRule](m) }

// Single 单表规则
func (m *MetaData) Single() (*SingleRule, bool) { return Find[*SingleRule](m) }

// Broadcast 广播表规则
func (m *MetaData) Broadcast() (*BroadcastRule, bool) { return Find[*BroadcastRule](m) }
