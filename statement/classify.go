package statement

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Classify 识别语句类型
func Classify(sql string) (Category, Kind) {
	switch sqlparser.Preview(sql) {
	case sqlparser.StmtSelect:
		return Select, KindNone
	case sqlparser.StmtInsert, sqlparser.StmtReplace:
		return Insert, KindNone
	case sqlparser.StmtUpdate:
		return Update, KindNone
	case sqlparser.StmtDelete:
		return Delete, KindNone
	case sqlparser.StmtDDL:
		return DDL, ddlKind(sql)
	case sqlparser.StmtBegin:
		return TCL, Begin
	case sqlparser.StmtCommit:
		return TCL, Commit
	case sqlparser.StmtRollback:
		return TCL, Rollback
	case sqlparser.StmtSet:
		return DAL, Set
	case sqlparser.StmtUse:
		return DAL, Use
	case sqlparser.StmtShow:
		return DAL, Show
	}
	// Preview 不识别的
	words := leadingWords(sql, 3)
	switch {
	case strings.HasPrefix(words, "SAVEPOINT"), strings.HasPrefix(words, "RELEASE SAVEPOINT"):
		return TCL, Savepoint
	case strings.HasPrefix(words, "ROLLBACK TO"):
		return TCL, Rollback
	case strings.HasPrefix(words, "BEGIN"), strings.HasPrefix(words, "START TRANSACTION"):
		return TCL, Begin
	case strings.HasPrefix(words, "COMMIT"):
		return TCL, Commit
	case strings.HasPrefix(words, "ROLLBACK"):
		return TCL, Rollback
	case strings.HasPrefix(words, "DESC"), strings.HasPrefix(words, "EXPLAIN"):
		return DAL, KindNone
	}
	return CategoryUnknown, KindNone
}

func ddlKind(sql string) Kind {
	words := leadingWords(sql, 4)
	switch {
	case strings.HasPrefix(words, "CREATE TABLE"), strings.HasPrefix(words, "CREATE TEMPORARY TABLE"):
		return CreateTable
	case strings.HasPrefix(words, "CREATE INDEX"), strings.HasPrefix(words, "CREATE UNIQUE INDEX"):
		return CreateIndex
	case strings.HasPrefix(words, "ALTER TABLE"):
		return AlterTable
	case strings.HasPrefix(words, "DROP TABLE"):
		return DropTable
	case strings.HasPrefix(words, "DROP INDEX"):
		return DropIndex
	case strings.HasPrefix(words, "DROP SCHEMA"), strings.HasPrefix(words, "DROP DATABASE"):
		return DropSchema
	case strings.HasPrefix(words, "TRUNCATE"):
		return TruncateTable
	case strings.HasPrefix(words, "RENAME TABLE"):
		return RenameTable
	}
	return KindNone
}

func leadingWords(sql string, n int) string {
	trimmed := strings.TrimSpace(sqlparser.StripLeadingComments(sql))
	trimmed = strings.TrimRight(trimmed, ";")
	fields := strings.Fields(trimmed)
	if len(fields) > n {
		fields = fields[:n]
	}
	return normalizeKeyword(strings.Join(fields, " "))
}
