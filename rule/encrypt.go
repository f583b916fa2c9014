package rule

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/algorithm"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/util/str"
)

// EncryptColumnItem physical column and its algorithm
type EncryptColumnItem struct {
	Name          string
	EncryptorName string
	Encryptor     algorithm.EncryptAlgorithm
}

// EncryptColumn logic column with its cipher column and optional query columns
type EncryptColumn struct {
	Name          string
	Cipher        EncryptColumnItem
	AssistedQuery *EncryptColumnItem
	LikeQuery     *EncryptColumnItem
}

// EncryptTable 加密表
type EncryptTable struct {
	Table   string
	columns map[string]*EncryptColumn
}

// IsEncryptColumn 是否加密列
func (t *EncryptTable) IsEncryptColumn(column string) bool {
	_, ok := t.columns[str.Fold(column)]
	return ok
}

// Column encrypt column by logic name
func (t *EncryptTable) Column(column string) (*EncryptColumn, bool) {
	c, ok := t.columns[str.Fold(column)]
	return c, ok
}

// ColumnNames sorted logic column names
func (t *EncryptTable) ColumnNames() []string {
	names := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// CipherColumn 密文列，非加密列返回空
func (t *EncryptTable) CipherColumn(column string) string {
	if c, ok := t.Column(column); ok {
		return c.Cipher.Name
	}
	return ""
}

// AssistedQueryColumn 辅助查询列
func (t *EncryptTable) AssistedQueryColumn(column string) (string, bool) {
	if c, ok := t.Column(column); ok && c.AssistedQuery != nil {
		return c.AssistedQuery.Name, true
	}
	return "", false
}

// LikeQueryColumn 模糊查询列
func (t *EncryptTable) LikeQueryColumn(column string) (string, bool) {
	if c, ok := t.Column(column); ok && c.LikeQuery != nil {
		return c.LikeQuery.Name, true
	}
	return "", false
}

// EncryptRule 加密规则
type EncryptRule struct {
	cfg    *EncryptRuleConfiguration
	tables map[string]*EncryptTable
}

// NewEncryptRule 构建加密规则
func NewEncryptRule(cfg *EncryptRuleConfiguration) (*EncryptRule, error) {
	encryptors := make(map[string]algorithm.EncryptAlgorithm, len(cfg.Encryptors))
	for name, algoCfg := range cfg.Encryptors {
		a, err := algorithm.NewEncrypt(algoCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "encryptor `%s`", name)
		}
		encryptors[str.Fold(name)] = a
	}
	item := func(table, column string, c *EncryptColumnItemConfiguration) (*EncryptColumnItem, error) {
		if c == nil {
			return nil, nil
		}
		if c.Name == "" {
			return nil, errs.NewConfiguration("query column of `%s.%s` has no name", table, column)
		}
		a, ok := encryptors[str.Fold(c.EncryptorName)]
		if !ok {
			return nil, errs.NewConfiguration("encryptor `%s` of `%s.%s` is not configured", c.EncryptorName, table, column)
		}
		return &EncryptColumnItem{Name: c.Name, EncryptorName: c.EncryptorName, Encryptor: a}, nil
	}
	r := &EncryptRule{cfg: cfg.Clone().(*EncryptRuleConfiguration), tables: make(map[string]*EncryptTable, len(cfg.Tables))}
	for tableName, tableCfg := range cfg.Tables {
		table := &EncryptTable{Table: tableName, columns: make(map[string]*EncryptColumn, len(tableCfg.Columns))}
		for columnName, columnCfg := range tableCfg.Columns {
			// assisted and like query columns only refine an encrypted column
			if columnCfg.Cipher.Name == "" {
				return nil, errs.NewConfiguration("encrypt column `%s.%s` has no cipher column", tableName, columnName)
			}
			cipher, err := item(tableName, columnName, &columnCfg.Cipher)
			if err != nil {
				return nil, err
			}
			assisted, err := item(tableName, columnName, columnCfg.AssistedQuery)
			if err != nil {
				return nil, err
			}
			like, err := item(tableName, columnName, columnCfg.LikeQuery)
			if err != nil {
				return nil, err
			}
			table.columns[str.Fold(columnName)] = &EncryptColumn{Name: columnName, Cipher: *cipher, AssistedQuery: assisted, LikeQuery: like}
		}
		r.tables[str.Fold(tableName)] = table
	}
	return r, nil
}

func (*EncryptRule) Kind() Kind { return KindEncrypt }
func (*EncryptRule) rule()      {}

func (r *EncryptRule) Configuration() Configuration {
	return r.cfg.Clone()
}

// EncryptTable 加密表
func (r *EncryptRule) EncryptTable(name string) (*EncryptTable, bool) {
	t, ok := r.tables[str.Fold(name)]
	return t, ok
}

// ContainsEncryptTable any of names is an encrypt table
func (r *EncryptRule) ContainsEncryptTable(names []string) bool {
	for _, n := range names {
		if _, ok := r.EncryptTable(n); ok {
			return true
		}
	}
	return false
}

func (r *EncryptRule) column(table, column string) (*EncryptColumn, error) {
	t, ok := r.EncryptTable(table)
	if !ok {
		return nil, errs.NewConfiguration("`%s` is not an encrypt table", table)
	}
	c, ok := t.Column(column)
	if !ok {
		return nil, errs.NewConfiguration("`%s.%s` is not an encrypt column", table, column)
	}
	return c, nil
}

// Encrypt 加密为密文
func (r *EncryptRule) Encrypt(database, table, column string, value any) (any, error) {
	c, err := r.column(table, column)
	if err != nil {
		return nil, err
	}
	return encryptWith(&c.Cipher, database, table, column, value)
}

// EncryptAssistedQuery 加密为辅助查询值
func (r *EncryptRule) EncryptAssistedQuery(database, table, column string, value any) (any, error) {
	c, err := r.column(table, column)
	if err != nil {
		return nil, err
	}
	if c.AssistedQuery == nil {
		return nil, errs.NewConfiguration("`%s.%s` has no assisted query column", table, column)
	}
	return encryptWith(c.AssistedQuery, database, table, column, value)
}

// EncryptLikeQuery 加密为模糊查询值
func (r *EncryptRule) EncryptLikeQuery(database, table, column string, value any) (any, error) {
	c, err := r.column(table, column)
	if err != nil {
		return nil, err
	}
	if c.LikeQuery == nil {
		return nil, errs.NewConfiguration("`%s.%s` has no like query column", table, column)
	}
	return encryptWith(c.LikeQuery, database, table, column, value)
}

// Decrypt 解密密文
func (r *EncryptRule) Decrypt(database, table, column string, cipher any) (any, error) {
	c, err := r.column(table, column)
	if err != nil {
		return nil, err
	}
	d, ok := c.Cipher.Encryptor.(algorithm.Decryptor)
	if !ok {
		return nil, errs.NewConfiguration("encryptor `%s` of `%s.%s` can not decrypt", c.Cipher.EncryptorName, table, column)
	}
	plain, err := d.Decrypt(cipher, algorithm.EncryptContext{Database: database, Table: table, Column: column})
	return plain, errors.Wrapf(err, "decrypt `%s.%s`", table, column)
}

func encryptWith(item *EncryptColumnItem, database, table, column string, value any) (any, error) {
	out, err := item.Encryptor.Encrypt(value, algorithm.EncryptContext{Database: database, Table: table, Column: column})
	if err != nil {
		return nil, errors.Wrapf(err, "encrypt `%s.%s` with `%s`", table, column, item.EncryptorName)
	}
	return out, nil
}
