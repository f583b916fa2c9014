// Package inline expands inline expressions such as ds_${0..1}.t_order_${[0, 1]}
// into the cartesian product of their placeholders.
package inline

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Expand 展开行表达式，多个表达式以逗号分隔
func Expand(expression string) ([]string, error) {
	var result []string
	for _, segment := range splitTopLevel(expression) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		values, err := expandOne(segment)
		if err != nil {
			return nil, err
		}
		result = append(result, values...)
	}
	return result, nil
}

// IsInline 是否包含占位符
func IsInline(expression string) bool {
	return strings.Contains(expression, "${") || strings.Contains(expression, "$->{")
}

func expandOne(segment string) ([]string, error) {
	parts := []string{""}
	rest := segment
	for {
		start, skip := placeholderStart(rest)
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return nil, errors.Errorf("unclosed placeholder in inline expression `%s`", segment)
		}
		end += start
		prefix := rest[:start]
		values, err := placeholderValues(rest[start+skip : end])
		if err != nil {
			return nil, errors.Wrapf(err, "inline expression `%s`", segment)
		}
		next := make([]string, 0, len(parts)*len(values))
		for _, p := range parts {
			for _, v := range values {
				next = append(next, p+prefix+v)
			}
		}
		parts = next
		rest = rest[end+1:]
	}
	for i := range parts {
		parts[i] += rest
	}
	return parts, nil
}

func placeholderStart(s string) (int, int) {
	i := strings.Index(s, "${")
	j := strings.Index(s, "$->{")
	switch {
	case i < 0 && j < 0:
		return -1, 0
	case j >= 0 && (i < 0 || j < i):
		return j, 4
	default:
		return i, 2
	}
}

func placeholderValues(body string) ([]string, error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "[") && strings.HasSuffix(body, "]") {
		var values []string
		for _, item := range strings.Split(body[1:len(body)-1], ",") {
			item = strings.Trim(strings.TrimSpace(item), `'"`)
			if item != "" {
				values = append(values, item)
			}
		}
		return values, nil
	}
	if lo, hi, ok := strings.Cut(body, ".."); ok {
		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, errors.Wrapf(err, "range start `%s`", lo)
		}
		to, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, errors.Wrapf(err, "range end `%s`", hi)
		}
		if to < from {
			return nil, errors.Errorf("empty range `%s`", body)
		}
		values := make([]string, 0, to-from+1)
		for n := from; n <= to; n++ {
			values = append(values, strconv.Itoa(n))
		}
		return values, nil
	}
	return []string{strings.Trim(body, `'"`)}, nil
}

// 仅在占位符外按逗号切分
func splitTopLevel(expression string) []string {
	var (
		result []string
		depth  int
		last   int
	)
	for i := 0; i < len(expression); i++ {
		switch expression[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ',':
			if depth == 0 {
				result = append(result, expression[last:i])
				last = i + 1
			}
		}
	}
	return append(result, expression[last:])
}
