package persist

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	createTableSQL = "CREATE TABLE IF NOT EXISTS repository (key TEXT PRIMARY KEY, value TEXT NOT NULL)"
	upsertSQL      = "INSERT INTO repository (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"
	loadSQL        = "SELECT value FROM repository WHERE key = ?"
	// substr 代替 LIKE，key 中的 _ 不是通配符
	descendantsSQL = "SELECT key FROM repository WHERE substr(key, 1, ?) = ?"
	deleteSQL      = "DELETE FROM repository WHERE key = ? OR substr(key, 1, ?) = ?"
)

// SQLRepository repository table in a database/sql database
type SQLRepository struct {
	db *sql.DB
}

// OpenSQLite opens or creates the sqlite file at path and its repository table
func OpenSQLite(ctx context.Context, path string) (*SQLRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite repository `%s`", path)
	}
	// sqlite 单写
	db.SetMaxOpenConns(1)
	repo, err := NewSQLRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository creates the repository table when missing
func NewSQLRepository(ctx context.Context, db *sql.DB) (*SQLRepository, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, errors.Wrap(err, "create repository table")
	}
	return &SQLRepository{db: db}, nil
}

func (r *SQLRepository) Persist(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, upsertSQL, key, value)
	return errors.Wrapf(err, "persist `%s`", key)
}

func (r *SQLRepository) Load(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, loadSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "load `%s`", key)
	}
	return value, true, nil
}

func (r *SQLRepository) ChildrenKeys(ctx context.Context, key string) ([]string, error) {
	prefix := strings.TrimSuffix(key, "/") + "/"
	rows, err := r.db.QueryContext(ctx, descendantsSQL, len(prefix), prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "children of `%s`", key)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, errors.WithStack(err)
		}
		keys = append(keys, k)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return children(key, keys), nil
}

func (r *SQLRepository) Delete(ctx context.Context, key string) error {
	prefix := strings.TrimSuffix(key, "/") + "/"
	_, err := r.db.ExecContext(ctx, deleteSQL, key, len(prefix), prefix)
	return errors.Wrapf(err, "delete `%s`", key)
}

// Replace deletes the subtree and writes nodes in one transaction, sorted by key
func (r *SQLRepository) Replace(ctx context.Context, key string, nodes map[string]string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "replace `%s`", key)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	prefix := strings.TrimSuffix(key, "/") + "/"
	if _, err = tx.ExecContext(ctx, deleteSQL, key, len(prefix), prefix); err != nil {
		return errors.Wrapf(err, "delete `%s`", key)
	}
	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err = tx.ExecContext(ctx, upsertSQL, k, nodes[k]); err != nil {
			return errors.Wrapf(err, "persist `%s`", k)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit replace of `%s`", key)
	}
	return nil
}

// Close closes the underlying database
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
