package str

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Hashcode 计算字符串的hashcode
func Hashcode(s string) int32 {
	var hash int32 = 0
	for _, c := range s {
		hash = c + ((hash << 5) - hash)
	}
	return hash
}

// HashMode 计算字符串的hashcode后取余
func HashMode(s string, num int32) int {
	if num <= 0 {
		return 0
	}
	hash := Hashcode(s)
	return int(math.Abs(float64(hash % num)))
}

// Fold 标识符大小写折叠，用于规则查找
func Fold(s string) string {
	// cases.Caser is stateful and not safe for concurrent use
	return cases.Fold().String(s)
}

// EqualFold 标识符比较
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}

// TrailingNumber 取名称末尾的数字后缀，如 t_order_3 -> 3
func TrailingNumber(name string) (int64, bool) {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.ParseInt(name[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Unquote 去掉标识符的引号
func Unquote(s string) (string, byte) {
	if len(s) >= 2 {
		switch q := s[0]; q {
		case '`', '"', '[':
			closing := q
			if q == '[' {
				closing = ']'
			}
			if s[len(s)-1] == closing {
				return s[1 : len(s)-1], q
			}
		}
	}
	return s, 0
}

// ToString 参数值转字符串
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
