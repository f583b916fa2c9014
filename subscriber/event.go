// Package subscriber applies rule configuration change events to the rule snapshot of a logic
// database. Each database has one owner goroutine, readers take immutable snapshots.
package subscriber

import (
	"context"

	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/rule"
)

// Event 规则配置变更事件
type Event interface {
	Database() string
	event()
}

// AlterAlgorithmEvent upserts one named algorithm of a feature
type AlterAlgorithmEvent struct {
	DatabaseName  string
	Feature       rule.Kind
	AlgorithmName string
	Config        algorithm.Configuration
}

// DeleteAlgorithmEvent removes one named algorithm of a feature
type DeleteAlgorithmEvent struct {
	DatabaseName  string
	Feature       rule.Kind
	AlgorithmName string
}

func (e AlterAlgorithmEvent) Database() string  { return e.DatabaseName }
func (e DeleteAlgorithmEvent) Database() string { return e.DatabaseName }
func (AlterAlgorithmEvent) event()              {}
func (DeleteAlgorithmEvent) event()             {}

// RuleConfigurationChangedEvent the configuration a published snapshot was built from
type RuleConfigurationChangedEvent struct {
	DatabaseName string
	Version      int64
	Config       rule.Configuration
}

// Listener 配置变更监听，e.g. the persist service
type Listener interface {
	OnRuleConfigurationChanged(ctx context.Context, event RuleConfigurationChangedEvent) error
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, event RuleConfigurationChangedEvent) error

func (f ListenerFunc) OnRuleConfigurationChanged(ctx context.Context, event RuleConfigurationChangedEvent) error {
	return f(ctx, event)
}
