package rewrite

import (
	"strconv"
	"strings"

	"github.com/qjerry/dbroute/metadata"
	"github.com/qjerry/dbroute/rule"
	"github.com/qjerry/dbroute/statement"
	"github.com/qjerry/dbroute/util/str"
	"github.com/xwb1989/sqlparser"
)

// Generator SQLTokenGenerator，one per rewrite concern of a feature
type Generator interface {
	IsGenerateSQLToken(stmt *statement.Context) bool
	GenerateSQLTokens(stmt *statement.Context) ([]Token, error)
}

// Generators token generators of the active rules, sharding first then encrypt
func Generators(rules *rule.MetaData, hint statement.HintValueContext) []Generator {
	database := rules.Database()
	var generators []Generator
	for _, r := range rules.Rules() {
		switch r := r.(type) {
		case *rule.ShardingRule:
			generators = append(generators, &ShardingTableGenerator{Rule: r, Database: database})
		case *rule.EncryptRule:
			if hint.SkipEncryptRewrite {
				continue
			}
			generators = append(generators, EncryptGenerators(r, database)...)
		case *rule.ShadowRule, *rule.SingleRule, *rule.BroadcastRule, *rule.MaskRule:
		}
	}
	return generators
}

// Generate collects tokens of every applicable generator
func Generate(stmt *statement.Context, generators []Generator) ([]Token, error) {
	var tokens []Token
	for _, g := range generators {
		if !g.IsGenerateSQLToken(stmt) {
			continue
		}
		generated, err := g.GenerateSQLTokens(stmt)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, generated...)
	}
	return tokens, nil
}

// ShardingTableGenerator logic table names and table-qualified column owners of sharding tables
type ShardingTableGenerator struct {
	Rule     *rule.ShardingRule
	Database *metadata.Database
}

func (g *ShardingTableGenerator) IsGenerateSQLToken(stmt *statement.Context) bool {
	return g.Rule.ContainsShardingTable(stmt.TableNames())
}

func (g *ShardingTableGenerator) GenerateSQLTokens(stmt *statement.Context) ([]Token, error) {
	var tokens []Token
	aliases := make(map[string]struct{})
	for _, t := range stmt.Tables {
		if t.Alias != "" {
			aliases[str.Fold(t.Alias)] = struct{}{}
		}
		if !g.Rule.IsShardingTable(t.Name.Value) {
			continue
		}
		tokens = append(tokens, &TableToken{
			Span:     t.Span,
			Table:    t.Name.Value,
			Quote:    t.Name.Quote,
			Original: stmt.Text(t.Span),
			Database: g.Database,
		})
	}
	for _, c := range columnsOf(stmt) {
		if c.Owner == "" || !g.Rule.IsShardingTable(c.Owner) {
			continue
		}
		// 别名优先
		if _, ok := aliases[str.Fold(c.Owner)]; ok {
			continue
		}
		span, ok := stmt.ColumnOwnerSpan(c)
		if !ok {
			continue
		}
		original := stmt.Text(span)
		_, quote := str.Unquote(original)
		tokens = append(tokens, &TableToken{Span: span, Table: c.Owner, Quote: quote, Original: original, Database: g.Database})
	}
	return tokens, nil
}

func columnsOf(stmt *statement.Context) []statement.ColumnSegment {
	var columns []statement.ColumnSegment
	for _, p := range stmt.Projections {
		columns = append(columns, p.Column)
	}
	if stmt.InsertColumns != nil {
		columns = append(columns, stmt.InsertColumns.Columns...)
	}
	for _, a := range stmt.Assignments {
		columns = append(columns, a.Column)
	}
	for _, a := range stmt.OnDuplicateKeyUpdate {
		columns = append(columns, a.Column)
	}
	for _, p := range stmt.Predicates {
		columns = append(columns, p.Column)
	}
	return columns
}

// renderLiteral SQL literal of a derived value. PostgreSQL strings double their quotes and keep
// backslashes as is, other types render the MySQL way.
func renderLiteral(dbType metadata.Type, v any) string {
	switch x := v.(type) {
	case nil:
		return sqlparser.String(&sqlparser.NullVal{})
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return sqlparser.String(sqlparser.NewIntVal([]byte(str.ToString(x))))
	case float32:
		return sqlparser.String(sqlparser.NewFloatVal([]byte(strconv.FormatFloat(float64(x), 'f', -1, 32))))
	case float64:
		return sqlparser.String(sqlparser.NewFloatVal([]byte(strconv.FormatFloat(x, 'f', -1, 64))))
	case bool:
		if x {
			return sqlparser.String(sqlparser.NewIntVal([]byte("1")))
		}
		return sqlparser.String(sqlparser.NewIntVal([]byte("0")))
	default:
		if dbType == metadata.PostgreSQL {
			return "'" + strings.ReplaceAll(str.ToString(x), "'", "''") + "'"
		}
		return sqlparser.String(sqlparser.NewStrVal([]byte(str.ToString(x))))
	}
}
