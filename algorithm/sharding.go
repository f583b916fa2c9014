package algorithm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/util/str"
)

// ShardingValue the column value a target is computed from
type ShardingValue struct {
	LogicTable string
	Column     string
	Value      any
}

// ShardingAlgorithm picks the target (data source or actual table) for a value
type ShardingAlgorithm interface {
	DoSharding(targets []string, value ShardingValue) (string, error)
}

func init() {
	Register(KindSharding, "INLINE", newInlineSharding)
	Register(KindSharding, "MOD", newModSharding)
	Register(KindSharding, "HASH_MOD", newHashModSharding)
}

// InlineShardingAlgorithm algorithm-expression: t_order_${user_id % 2}
type InlineShardingAlgorithm struct {
	expression string
}

func newInlineSharding(props Props) (any, error) {
	expression, err := props.String("algorithm-expression")
	if err != nil {
		return nil, err
	}
	return &InlineShardingAlgorithm{expression: expression}, nil
}

func (a *InlineShardingAlgorithm) DoSharding(targets []string, value ShardingValue) (string, error) {
	result, err := evaluateInline(a.expression, value.Column, value.Value)
	if err != nil {
		return "", err
	}
	return matchTarget(targets, result, value)
}

// ModShardingAlgorithm sharding-count: value % count selects the target ending with the remainder
type ModShardingAlgorithm struct {
	count int64
}

func newModSharding(props Props) (any, error) {
	count, err := props.Int("sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errs.NewConfiguration("sharding-count must be positive, got %d", count)
	}
	return &ModShardingAlgorithm{count: int64(count)}, nil
}

func (a *ModShardingAlgorithm) DoSharding(targets []string, value ShardingValue) (string, error) {
	n, err := strconv.ParseInt(str.ToString(value.Value), 10, 64)
	if err != nil {
		return "", errs.NewRoute("MOD sharding value `%v` of `%s.%s` is not an integer", value.Value, value.LogicTable, value.Column)
	}
	remainder := n % a.count
	if remainder < 0 {
		remainder = -remainder
	}
	return suffixTarget(targets, remainder, value)
}

// HashModShardingAlgorithm sharding-count: hashcode(value) % count
type HashModShardingAlgorithm struct {
	count int32
}

func newHashModSharding(props Props) (any, error) {
	count, err := props.Int("sharding-count")
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, errs.NewConfiguration("sharding-count must be positive, got %d", count)
	}
	return &HashModShardingAlgorithm{count: int32(count)}, nil
}

func (a *HashModShardingAlgorithm) DoSharding(targets []string, value ShardingValue) (string, error) {
	return suffixTarget(targets, int64(str.HashMode(str.ToString(value.Value), a.count)), value)
}

func suffixTarget(targets []string, suffix int64, value ShardingValue) (string, error) {
	for _, t := range targets {
		if n, ok := str.TrailingNumber(t); ok && n == suffix {
			return t, nil
		}
	}
	return "", errs.NewRoute("no target of %v ends with %d for `%s.%s`", targets, suffix, value.LogicTable, value.Column)
}

func matchTarget(targets []string, result string, value ShardingValue) (string, error) {
	for _, t := range targets {
		if str.EqualFold(t, result) {
			return t, nil
		}
	}
	return "", errs.NewRoute("sharding value `%v` of `%s.%s` resolves to `%s`, not one of %v", value.Value, value.LogicTable, value.Column, result, targets)
}

var inlineFunctions = map[string]govaluate.ExpressionFunction{
	"parse": func(args ...interface{}) (interface{}, error) {
		var sb strings.Builder
		for _, arg := range args {
			sb.WriteString(str.ToString(arg))
		}
		return sb.String(), nil
	},
	"hashcode": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errors.New("hashcode expects one argument")
		}
		return float64(str.Hashcode(str.ToString(args[0]))), nil
	},
	"mod": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, errors.New("mod expects two arguments")
		}
		a, err := strconv.ParseInt(str.ToString(args[0]), 10, 64)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseInt(str.ToString(args[1]), 10, 64)
		if err != nil || b == 0 {
			return nil, errors.Errorf("invalid modulus %v", args[1])
		}
		m := a % b
		if m < 0 {
			m = -m
		}
		return float64(m), nil
	},
}

// evaluateInline 分片表达式解析，${...} 内为 govaluate 表达式
func evaluateInline(expression, parameter string, value interface{}) (string, error) {
	var sb strings.Builder
	rest := expression
	for {
		start := strings.Index(rest, "${")
		skip := 2
		if arrow := strings.Index(rest, "$->{"); arrow >= 0 && (start < 0 || arrow < start) {
			start, skip = arrow, 4
		}
		if start < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", errs.NewConfiguration("unclosed placeholder in `%s`", expression)
		}
		end += start
		sb.WriteString(rest[:start])
		body := rest[start+skip : end]
		evaluable, err := govaluate.NewEvaluableExpressionWithFunctions(body, inlineFunctions)
		if err != nil {
			return "", errors.Wrapf(errs.ErrConfiguration, "parse expression `%s`: %v", body, err)
		}
		result, err := evaluable.Evaluate(map[string]interface{}{parameter: value})
		if err != nil {
			return "", errs.NewRoute("evaluate `%s` with %s=%v: %v", body, parameter, value, err)
		}
		sb.WriteString(str.ToString(result))
		rest = rest[end+1:]
	}
}

// String for logs
func (a *InlineShardingAlgorithm) String() string {
	return fmt.Sprintf("INLINE(%s)", a.expression)
}
