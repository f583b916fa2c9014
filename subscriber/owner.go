package subscriber

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/util/str"
	"gorm.io/gorm/logger"
)

// ErrClosed the owner no longer accepts events
var ErrClosed = errors.New("rule owner closed")

type command struct {
	ctx   context.Context
	event Event
	reply chan error
}

// Owner the only writer of a database's rule snapshot
type Owner struct {
	snapshot  atomic.Pointer[rule.MetaData]
	commands  chan command
	done      chan struct{}
	closeOnce sync.Once
	listeners []Listener
	log       logger.Interface
}

// NewOwner publishes initial and starts the owner goroutine
func NewOwner(initial *rule.MetaData, log logger.Interface, listeners ...Listener) *Owner {
	if log == nil {
		log = logger.Discard
	}
	o := &Owner{
		commands:  make(chan command),
		done:      make(chan struct{}),
		listeners: listeners,
		log:       log,
	}
	o.snapshot.Store(initial)
	go o.run()
	return o
}

// Snapshot current immutable rules, take it once per statement
func (o *Owner) Snapshot() *rule.MetaData {
	return o.snapshot.Load()
}

// Publish hands event to the owner goroutine and waits until it is applied or rejected. A
// listener failing after the new snapshot is live is logged, Publish still returns nil.
func (o *Owner) Publish(ctx context.Context, event Event) error {
	if !str.EqualFold(event.Database(), o.Snapshot().Database().Name) {
		return errs.NewConfiguration("event of database `%s` published to `%s`", event.Database(), o.Snapshot().Database().Name)
	}
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	cmd := command{ctx: ctx, event: event, reply: make(chan error, 1)}
	select {
	case o.commands <- cmd:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes events until the channel closes, ctx ends or the owner closes. Rejected
// events are logged and skipped.
func (o *Owner) Subscribe(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := o.Publish(ctx, e); err != nil {
				o.log.Error(ctx, "apply %T of database `%s`: %v", e, e.Database(), err)
			}
		}
	}
}

// Close stops the owner goroutine, the last snapshot stays readable
func (o *Owner) Close() {
	o.closeOnce.Do(func() { close(o.done) })
}

func (o *Owner) run() {
	for {
		select {
		case <-o.done:
			return
		case cmd := <-o.commands:
			cmd.reply <- o.apply(cmd.ctx, cmd.event)
		}
	}
}

func (o *Owner) apply(ctx context.Context, event Event) error {
	current := o.Snapshot()
	var (
		feature rule.Kind
		mutate  func(algorithms map[string]algorithm.Configuration) error
	)
	switch e := event.(type) {
	case AlterAlgorithmEvent:
		feature = e.Feature
		mutate = func(algorithms map[string]algorithm.Configuration) error {
			algorithms[e.AlgorithmName] = e.Config.Clone()
			return nil
		}
	case DeleteAlgorithmEvent:
		feature = e.Feature
		mutate = func(algorithms map[string]algorithm.Configuration) error {
			if _, ok := algorithms[e.AlgorithmName]; !ok {
				return errs.NewConfiguration("%s algorithm `%s` does not exist", e.Feature, e.AlgorithmName)
			}
			delete(algorithms, e.AlgorithmName)
			return nil
		}
	default:
		return errs.NewConfiguration("unknown event %T", event)
	}

	cfg, err := cloneOwner(current, feature, event)
	if err != nil {
		return err
	}
	if err = mutate(cfg.Algorithms()); err != nil {
		return err
	}
	next, err := rebuild(current, cfg)
	if err != nil {
		// 保留旧快照
		return err
	}
	o.snapshot.Store(next)
	o.log.Info(ctx, "rules of database `%s` published, version %d", next.Database().Name, next.Version())

	if _, ok := event.(DeleteAlgorithmEvent); !ok {
		return nil
	}
	// 新快照已生效，通知失败只记录
	changed := RuleConfigurationChangedEvent{DatabaseName: next.Database().Name, Version: next.Version(), Config: cfg}
	for _, l := range o.listeners {
		if err = l.OnRuleConfigurationChanged(ctx, changed); err != nil {
			o.log.Error(ctx, "notify %s rule change of database `%s`, version %d: %v", feature, changed.DatabaseName, changed.Version, err)
		}
	}
	return nil
}

// cloneOwner clone of the feature's configuration, an alter of an absent feature starts empty
func cloneOwner(current *rule.MetaData, feature rule.Kind, event Event) (rule.AlgorithmOwner, error) {
	existing, ok := current.Configuration(feature)
	if !ok {
		if _, alter := event.(AlterAlgorithmEvent); !alter {
			return nil, errs.NewConfiguration("database `%s` has no %s rule", current.Database().Name, feature)
		}
		empty, err := rule.NewConfiguration(feature)
		if err != nil {
			return nil, err
		}
		existing = empty
	}
	cfg, ok := existing.Clone().(rule.AlgorithmOwner)
	if !ok {
		return nil, errs.NewConfiguration("%s rule holds no algorithms", feature)
	}
	return cfg, nil
}

// rebuild new snapshot with the rule of cfg's kind replaced
func rebuild(current *rule.MetaData, cfg rule.Configuration) (*rule.MetaData, error) {
	changed, err := rule.New(current.Database(), cfg)
	if err != nil {
		return nil, err
	}
	rules := make([]rule.Rule, 0, len(current.Rules())+1)
	for _, r := range current.Rules() {
		if r.Kind() != cfg.Kind() {
			rules = append(rules, r)
		}
	}
	rules = append(rules, changed)
	return rule.NewMetaData(current.Database(), current.Version()+1, rules...)
}
