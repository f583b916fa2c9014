package statement

import (
	"strconv"
	"strings"

	"github.com/qjerry/dbroute/util/str"
)

const hintPrefix = "SHARDINGSPHERE_HINT:"

// HintValueContext values carried by a SQL comment hint
//
//	/* SHARDINGSPHERE_HINT: SHADOW=true, SKIP_ENCRYPT_REWRITE=true, t_order.SHARDING_DATABASE_VALUE=1 */
type HintValueContext struct {
	Shadow             bool
	SkipEncryptRewrite bool
	DataSourceName     string
	// folded logic table -> values
	ShardingDatabaseValues map[string][]any
	ShardingTableValues    map[string][]any
}

// DatabaseValues hint values for the database strategy of table
func (h HintValueContext) DatabaseValues(table string) []any {
	return h.ShardingDatabaseValues[str.Fold(table)]
}

// TableValues hint values for the table strategy of table
func (h HintValueContext) TableValues(table string) []any {
	return h.ShardingTableValues[str.Fold(table)]
}

// ExtractHint 解析注释中的hint
func ExtractHint(sql string) HintValueContext {
	hint := HintValueContext{}
	rest := sql
	for {
		open := strings.Index(rest, "/*")
		if open < 0 {
			return hint
		}
		end := strings.Index(rest[open:], "*/")
		if end < 0 {
			return hint
		}
		body := strings.TrimSpace(rest[open+2 : open+end])
		rest = rest[open+end+2:]
		if !strings.HasPrefix(strings.ToUpper(body), hintPrefix) {
			continue
		}
		for _, pair := range strings.Split(body[len(hintPrefix):], ",") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			hint.apply(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}
}

func (h *HintValueContext) apply(key, value string) {
	upper := strings.ToUpper(key)
	switch {
	case upper == "SHADOW":
		h.Shadow, _ = strconv.ParseBool(value)
	case upper == "SKIP_ENCRYPT_REWRITE":
		h.SkipEncryptRewrite, _ = strconv.ParseBool(value)
	case upper == "DATA_SOURCE_NAME":
		h.DataSourceName = value
	case strings.HasSuffix(upper, ".SHARDING_DATABASE_VALUE"):
		if h.ShardingDatabaseValues == nil {
			h.ShardingDatabaseValues = map[string][]any{}
		}
		table := str.Fold(key[:strings.LastIndexByte(key, '.')])
		h.ShardingDatabaseValues[table] = append(h.ShardingDatabaseValues[table], hintValue(value))
	case strings.HasSuffix(upper, ".SHARDING_TABLE_VALUE"):
		if h.ShardingTableValues == nil {
			h.ShardingTableValues = map[string][]any{}
		}
		table := str.Fold(key[:strings.LastIndexByte(key, '.')])
		h.ShardingTableValues[table] = append(h.ShardingTableValues[table], hintValue(value))
	}
}

func hintValue(value string) any {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	return strings.Trim(value, `'"`)
}
