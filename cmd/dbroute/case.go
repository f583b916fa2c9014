package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/statement"
	"gopkg.in/yaml.v3"
)

// Case 一条待路由的语句及其片段
type Case struct {
	Name            string   `yaml:"name"`
	Database        string   `yaml:"database"`
	CurrentDatabase string   `yaml:"currentDatabase"`
	SQL             string   `yaml:"sql"`
	Params          []any    `yaml:"params"`
	Tables          []string `yaml:"tables"`
	Projections     []string `yaml:"projections"`
	InsertColumns   string   `yaml:"insertColumns"`
	InsertRows      []string `yaml:"insertRows"`
	OnDuplicate     []string `yaml:"onDuplicate"`
	Set             []string `yaml:"set"`
	Where           []string `yaml:"where"`
	Rename          []string `yaml:"rename"`
	IfExists        bool     `yaml:"ifExists"`
	IfNotExists     bool     `yaml:"ifNotExists"`
	Cascade         bool     `yaml:"cascade"`
	Schema          string   `yaml:"schema"`
}

// LoadCases a YAML sequence of cases
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read cases `%s`", path)
	}
	var cases []Case
	if err = yaml.Unmarshal(data, &cases); err != nil {
		return nil, errors.Wrapf(err, "decode cases `%s`", path)
	}
	return cases, nil
}

// Statement binds the case fragments to its SQL
func (c Case) Statement() (*statement.Context, error) {
	b := statement.NewBuilder(c.SQL)
	for _, t := range c.Tables {
		b.Table(t)
	}
	for _, p := range c.Projections {
		b.Projection(p)
	}
	if c.InsertColumns != "" {
		b.InsertColumns(c.InsertColumns)
	}
	for _, r := range c.InsertRows {
		b.InsertRow(r)
	}
	for _, a := range c.OnDuplicate {
		b.OnDuplicate(a)
	}
	for _, a := range c.Set {
		b.Set(a)
	}
	for _, w := range c.Where {
		b.Where(w)
	}
	for _, r := range c.Rename {
		b.Rename(r)
	}
	if c.IfExists {
		b.IfExists()
	}
	if c.IfNotExists {
		b.IfNotExists()
	}
	if c.Cascade {
		b.Cascade()
	}
	if c.Schema != "" {
		b.Schema(c.Schema)
	}
	stmt, err := b.Build()
	return stmt, errors.Wrapf(err, "bind case `%s`", c.Name)
}
