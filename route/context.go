// Package route computes the physical targets of a bound statement: the engine selector, the
// broadcast / sharding / shadow / single / pass-through engines and the database and table
// sharding policies they use.
package route

import (
	"sort"
	"strings"

	"github.com/qjerry/dbroute/util/str"
)

// Mapper logic name -> actual name
type Mapper struct {
	LogicName  string
	ActualName string
}

// Unit 一个物理执行目标
type Unit struct {
	DataSource Mapper
	Tables     []Mapper
}

// ActualTable actual name of logic in this unit, logic itself when not renamed
func (u Unit) ActualTable(logic string) string {
	for _, t := range u.Tables {
		if str.EqualFold(t.LogicName, logic) {
			return t.ActualName
		}
	}
	return logic
}

// Renamed logic table has a different actual name in this unit
func (u Unit) Renamed(logic string) bool {
	for _, t := range u.Tables {
		if str.EqualFold(t.LogicName, logic) {
			return t.ActualName != t.LogicName
		}
	}
	return false
}

func (u Unit) String() string {
	var sb strings.Builder
	sb.WriteString(u.DataSource.ActualName)
	for i, t := range u.Tables {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(t.LogicName)
		sb.WriteString("->")
		sb.WriteString(t.ActualName)
	}
	return sb.String()
}

func (u Unit) key() string {
	return str.Fold(u.String())
}

// Context RouteContext，路由结果，去重且有序
type Context struct {
	units []Unit
	seen  map[string]struct{}
}

// NewContext 空路由结果
func NewContext() *Context {
	return &Context{seen: map[string]struct{}{}}
}

// Add adds unit unless an identical one exists, table mappers are kept sorted by logic name
func (c *Context) Add(u Unit) bool {
	tables := append([]Mapper(nil), u.Tables...)
	sort.SliceStable(tables, func(i, j int) bool {
		return str.Fold(tables[i].LogicName) < str.Fold(tables[j].LogicName)
	})
	u.Tables = tables
	k := u.key()
	if _, ok := c.seen[k]; ok {
		return false
	}
	c.seen[k] = struct{}{}
	c.units = append(c.units, u)
	return true
}

// Units sorted by data source then table mappers
func (c *Context) Units() []Unit {
	units := append([]Unit(nil), c.units...)
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].DataSource.ActualName != units[j].DataSource.ActualName {
			return units[i].DataSource.ActualName < units[j].DataSource.ActualName
		}
		return units[i].key() < units[j].key()
	})
	return units
}

// Len unit count
func (c *Context) Len() int {
	return len(c.units)
}

// IsEmpty no unit
func (c *Context) IsEmpty() bool {
	return len(c.units) == 0
}

// DataSourceNames distinct actual data sources, sorted
func (c *Context) DataSourceNames() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, u := range c.units {
		if _, ok := seen[u.DataSource.ActualName]; ok {
			continue
		}
		seen[u.DataSource.ActualName] = struct{}{}
		names = append(names, u.DataSource.ActualName)
	}
	sort.Strings(names)
	return names
}

// Equal same units, order independent
func (c *Context) Equal(o *Context) bool {
	if c.Len() != o.Len() {
		return false
	}
	for k := range c.seen {
		if _, ok := o.seen[k]; !ok {
			return false
		}
	}
	return true
}
