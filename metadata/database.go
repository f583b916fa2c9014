// Package metadata holds the per-database metadata, configuration properties and session state
// consumed by routing and rewriting.
package metadata

import (
	"sort"
	"strings"

	"github.com/qjerry/dbroute/util/str"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Type database protocol type
type Type string

const (
	MySQL      Type = "mysql"
	PostgreSQL Type = "postgres"
)

// ParseType 数据库类型，默认mysql
func ParseType(s string) Type {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return PostgreSQL
	default:
		return MySQL
	}
}

// Database logic database metadata
type Database struct {
	Name      string
	Type      Type
	Dialector gorm.Dialector

	dataSources []string
	tables      map[string]string
}

// NewDatabase dataSources are kept sorted, tables are the logic tables known to exist
func NewDatabase(name string, dbType Type, dataSources []string, tables ...string) *Database {
	sorted := append([]string(nil), dataSources...)
	sort.Strings(sorted)
	db := &Database{
		Name:        name,
		Type:        dbType,
		Dialector:   DefaultDialector(dbType),
		dataSources: sorted,
		tables:      make(map[string]string, len(tables)),
	}
	for _, t := range tables {
		db.tables[str.Fold(t)] = t
	}
	return db
}

// DefaultDialector dialector without a connection, used for quoting and explaining
func DefaultDialector(dbType Type) gorm.Dialector {
	if dbType == PostgreSQL {
		return postgres.New(postgres.Config{})
	}
	return mysql.New(mysql.Config{SkipInitializeWithVersion: true})
}

// DataSources sorted data source names
func (d *Database) DataSources() []string {
	return append([]string(nil), d.dataSources...)
}

// HasDataSource data source configured
func (d *Database) HasDataSource(name string) bool {
	for _, ds := range d.dataSources {
		if str.EqualFold(ds, name) {
			return true
		}
	}
	return false
}

// ContainsTable logic table exists
func (d *Database) ContainsTable(name string) bool {
	_, ok := d.tables[str.Fold(name)]
	return ok
}

// Tables known logic tables, sorted
func (d *Database) Tables() []string {
	tables := make([]string, 0, len(d.tables))
	for _, t := range d.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Quote 按方言给标识符加引号
func (d *Database) Quote(name string) string {
	var sb strings.Builder
	d.Dialector.QuoteTo(&sb, name)
	return sb.String()
}

// QuoteAs quotes name when quote is set, keeps it bare otherwise
func (d *Database) QuoteAs(name string, quote byte) string {
	if quote == 0 {
		return name
	}
	return d.Quote(name)
}
