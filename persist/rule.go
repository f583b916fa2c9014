package persist

import (
	"context"
	"path"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/subscriber"
	"gopkg.in/yaml.v3"
)

const (
	ruleNode       = "rule"
	algorithmsNode = "algorithms"
)

// RuleService swaps rule configurations to YAML data nodes and back:
//
//	/metadata/<db>/rules/<kind>/rule
//	/metadata/<db>/rules/<kind>/algorithms/<name>
type RuleService struct {
	repo Repository
}

func NewRuleService(repo Repository) *RuleService {
	return &RuleService{repo: repo}
}

func rulesPath(database string) string {
	return path.Join("/metadata", database, "rules")
}

// Persist replaces the stored configurations of database
func (s *RuleService) Persist(ctx context.Context, database string, configs ...rule.Configuration) error {
	for _, cfg := range configs {
		if err := s.persist(ctx, database, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *RuleService) persist(ctx context.Context, database string, cfg rule.Configuration) error {
	base := path.Join(rulesPath(database), string(cfg.Kind()))
	nodes := make(map[string]string)
	// 算法单独存储
	body := cfg.Clone()
	if owner, ok := body.(rule.AlgorithmOwner); ok {
		algorithms := owner.Algorithms()
		for name, a := range algorithms {
			data, err := yaml.Marshal(a)
			if err != nil {
				return errors.Wrapf(err, "marshal %s algorithm `%s`", cfg.Kind(), name)
			}
			nodes[path.Join(base, algorithmsNode, name)] = string(data)
		}
		for name := range algorithms {
			delete(algorithms, name)
		}
	}
	data, err := yaml.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "marshal %s rule", cfg.Kind())
	}
	nodes[path.Join(base, ruleNode)] = string(data)
	return s.repo.Replace(ctx, base, nodes)
}

// Load stored configurations of database, in priority order
func (s *RuleService) Load(ctx context.Context, database string) ([]rule.Configuration, error) {
	var configs []rule.Configuration
	for _, kind := range rule.Kinds {
		cfg, ok, err := s.load(ctx, database, kind)
		if err != nil {
			return nil, err
		}
		if ok {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

func (s *RuleService) load(ctx context.Context, database string, kind rule.Kind) (rule.Configuration, bool, error) {
	base := path.Join(rulesPath(database), string(kind))
	data, ok, err := s.repo.Load(ctx, path.Join(base, ruleNode))
	if err != nil || !ok {
		return nil, false, err
	}
	cfg, err := rule.NewConfiguration(kind)
	if err != nil {
		return nil, false, err
	}
	if err = yaml.Unmarshal([]byte(data), cfg); err != nil {
		return nil, false, errors.Wrapf(err, "unmarshal %s rule of `%s`", kind, database)
	}
	owner, ok := cfg.(rule.AlgorithmOwner)
	if !ok {
		return cfg, true, nil
	}
	names, err := s.repo.ChildrenKeys(ctx, path.Join(base, algorithmsNode))
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		raw, _, err := s.repo.Load(ctx, path.Join(base, algorithmsNode, name))
		if err != nil {
			return nil, false, err
		}
		var a algorithm.Configuration
		if err = yaml.Unmarshal([]byte(raw), &a); err != nil {
			return nil, false, errors.Wrapf(err, "unmarshal %s algorithm `%s`", kind, name)
		}
		owner.Algorithms()[name] = a
	}
	return cfg, true, nil
}

// Drop removes every stored rule of database
func (s *RuleService) Drop(ctx context.Context, database string) error {
	return s.repo.Delete(ctx, rulesPath(database))
}

// OnRuleConfigurationChanged persists the configuration a new snapshot was built from
func (s *RuleService) OnRuleConfigurationChanged(ctx context.Context, event subscriber.RuleConfigurationChangedEvent) error {
	return s.persist(ctx, event.DatabaseName, event.Config)
}
