package algorithm

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/util/str"
)

// ShadowCondition what a shadow algorithm decides on
type ShadowCondition struct {
	Table string
	// insert, update, delete, select
	Operation string
	Column    string
	Values    []any
	// the statement carries a SHADOW=true hint
	Hint bool
}

// ShadowAlgorithm decides whether a statement goes to the shadow data source
type ShadowAlgorithm interface {
	IsShadow(cond ShadowCondition) bool
}

// HintShadowAlgorithm marker for algorithms matched by the SQL hint only
type HintShadowAlgorithm interface {
	ShadowAlgorithm
	IsHint() bool
}

func init() {
	Register(KindShadow, "VALUE_MATCH", newValueMatchShadow)
	Register(KindShadow, "REGEX_MATCH", newRegexMatchShadow)
	Register(KindShadow, "SQL_HINT", newSQLHintShadow)
}

type columnShadow struct {
	column    string
	operation string
}

func newColumnShadow(props Props) (columnShadow, error) {
	column, err := props.String("column")
	if err != nil {
		return columnShadow{}, err
	}
	operation := strings.ToLower(props.StringOr("operation", ""))
	switch operation {
	case "insert", "update", "delete", "select":
	default:
		return columnShadow{}, errs.NewConfiguration("shadow operation must be one of insert, update, delete, select, got `%s`", operation)
	}
	return columnShadow{column: column, operation: operation}, nil
}

func (c columnShadow) applies(cond ShadowCondition) bool {
	return !cond.Hint && str.EqualFold(cond.Column, c.column) && strings.EqualFold(cond.Operation, c.operation)
}

// ValueMatchShadowAlgorithm column value equals value
type ValueMatchShadowAlgorithm struct {
	columnShadow
	value string
}

func newValueMatchShadow(props Props) (any, error) {
	c, err := newColumnShadow(props)
	if err != nil {
		return nil, err
	}
	value, err := props.String("value")
	if err != nil {
		return nil, err
	}
	return &ValueMatchShadowAlgorithm{columnShadow: c, value: value}, nil
}

func (a *ValueMatchShadowAlgorithm) IsShadow(cond ShadowCondition) bool {
	if !a.applies(cond) || len(cond.Values) == 0 {
		return false
	}
	for _, v := range cond.Values {
		if str.ToString(v) != a.value {
			return false
		}
	}
	return true
}

// RegexMatchShadowAlgorithm column value matches regex
type RegexMatchShadowAlgorithm struct {
	columnShadow
	regex *regexp.Regexp
}

func newRegexMatchShadow(props Props) (any, error) {
	c, err := newColumnShadow(props)
	if err != nil {
		return nil, err
	}
	expr, err := props.String("regex")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrConfiguration, "regex `%s`: %v", expr, err)
	}
	return &RegexMatchShadowAlgorithm{columnShadow: c, regex: re}, nil
}

func (a *RegexMatchShadowAlgorithm) IsShadow(cond ShadowCondition) bool {
	if !a.applies(cond) || len(cond.Values) == 0 {
		return false
	}
	for _, v := range cond.Values {
		if !a.regex.MatchString(str.ToString(v)) {
			return false
		}
	}
	return true
}

// SQLHintShadowAlgorithm /* SHARDINGSPHERE_HINT: SHADOW=true */
type SQLHintShadowAlgorithm struct{}

func newSQLHintShadow(_ Props) (any, error) {
	return &SQLHintShadowAlgorithm{}, nil
}

func (*SQLHintShadowAlgorithm) IsShadow(cond ShadowCondition) bool {
	return cond.Hint
}

func (*SQLHintShadowAlgorithm) IsHint() bool {
	return true
}
