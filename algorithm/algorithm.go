// Package algorithm provides the sharding, encrypt, mask and shadow algorithms referenced by
// rule configurations, created by type name through a registry.
package algorithm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/errs"
)

// Configuration algorithm type and its properties
type Configuration struct {
	Type  string            `mapstructure:"type" yaml:"type"`
	Props map[string]string `mapstructure:"props" yaml:"props,omitempty"`
}

// Clone deep copy
func (c Configuration) Clone() Configuration {
	props := make(map[string]string, len(c.Props))
	for k, v := range c.Props {
		props[k] = v
	}
	return Configuration{Type: c.Type, Props: props}
}

// Props typed access to algorithm properties
type Props map[string]string

// String required string property
func (p Props) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", errs.NewConfiguration("property `%s` is required", key)
	}
	return v, nil
}

// StringOr optional string property
func (p Props) StringOr(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

// Int required integer property
func (p Props) Int(key string) (int, error) {
	v, err := p.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(errs.ErrConfiguration, "property `%s` is not an integer: %v", key, v)
	}
	return n, nil
}

// IntOr optional integer property
func (p Props) IntOr(key string, def int) (int, error) {
	if _, ok := p[key]; !ok {
		return def, nil
	}
	return p.Int(key)
}

// Kind the algorithm family
type Kind string

const (
	KindSharding Kind = "sharding"
	KindEncrypt  Kind = "encrypt"
	KindMask     Kind = "mask"
	KindShadow   Kind = "shadow"
)

// Factory creates an algorithm from its properties
type Factory func(props Props) (any, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]map[string]Factory)
)

// Register makes an algorithm type available to rule configurations.
// If Register is called twice with the same kind and type, or if f is nil, it panics.
func Register(kind Kind, typ string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("algorithm: Register factory is nil")
	}
	typ = strings.ToUpper(typ)
	factories, ok := registry[kind]
	if !ok {
		registry[kind] = map[string]Factory{typ: f}
		return
	}
	if _, dup := factories[typ]; dup {
		panic(fmt.Sprintf("algorithm: Register called twice for %s algorithm %s", kind, typ))
	}
	factories[typ] = f
}

// Types registered algorithm types of kind, sorted
func Types(kind Kind) []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry[kind]))
	for t := range registry[kind] {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func create(kind Kind, cfg Configuration) (any, error) {
	registryMu.RLock()
	f, ok := registry[kind][strings.ToUpper(cfg.Type)]
	registryMu.RUnlock()
	if !ok {
		return nil, errs.NewConfiguration("unknown %s algorithm type `%s`", kind, cfg.Type)
	}
	algorithm, err := f(Props(cfg.Props))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s algorithm `%s`", kind, cfg.Type)
	}
	return algorithm, nil
}

// NewSharding 创建分片算法
func NewSharding(cfg Configuration) (ShardingAlgorithm, error) {
	a, err := create(KindSharding, cfg)
	if err != nil {
		return nil, err
	}
	return a.(ShardingAlgorithm), nil
}

// NewEncrypt 创建加密算法
func NewEncrypt(cfg Configuration) (EncryptAlgorithm, error) {
	a, err := create(KindEncrypt, cfg)
	if err != nil {
		return nil, err
	}
	return a.(EncryptAlgorithm), nil
}

// NewMask 创建脱敏算法
func NewMask(cfg Configuration) (MaskAlgorithm, error) {
	a, err := create(KindMask, cfg)
	if err != nil {
		return nil, err
	}
	return a.(MaskAlgorithm), nil
}

// NewShadow 创建影子算法
func NewShadow(cfg Configuration) (ShadowAlgorithm, error) {
	a, err := create(KindShadow, cfg)
	if err != nil {
		return nil, err
	}
	return a.(ShadowAlgorithm), nil
}
