// Nukepave - nuke-and-pave backup and restore for relational databases
// Copyright (C) 2025 blubskye
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
//
// Source code: https://github.com/blubskye/nukepave

// Package graph models foreign-key dependencies between tables and derives a
// load order from them.
package graph

// Edge is a foreign-key relationship from a dependent table to the table it
// references
type Edge struct {
	Table           string `json:"table_name"`
	ReferencedTable string `json:"referenced_table_name"`
}

// Graph maps each table to the tables it depends on. Nodes and dependency
// lists keep insertion order so traversal is deterministic.
type Graph struct {
	nodes []string
	index map[string]int
	deps  [][]string
	seen  []map[string]struct{}
	edges int
}

func newGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Build creates a graph with every listed table as a node, then applies the
// edges. Endpoints that were not listed are added in first-seen order.
func Build(tables []string, edges []Edge) *Graph {
	g := newGraph()
	for _, t := range tables {
		g.addNode(t)
	}
	for _, e := range edges {
		g.addEdge(e.Table, e.ReferencedTable)
	}
	return g
}

// FromEdges creates a graph whose nodes are the endpoints of edges
func FromEdges(edges []Edge) *Graph {
	return Build(nil, edges)
}

func (g *Graph) addNode(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}
	i := len(g.nodes)
	g.index[name] = i
	g.nodes = append(g.nodes, name)
	g.deps = append(g.deps, nil)
	g.seen = append(g.seen, make(map[string]struct{}))
	return i
}

// addEdge records that table depends on referenced. Self references only
// register the node.
func (g *Graph) addEdge(table, referenced string) {
	if table == "" || referenced == "" {
		return
	}
	i := g.addNode(table)
	if referenced == table {
		return
	}
	g.addNode(referenced)
	if _, dup := g.seen[i][referenced]; dup {
		return
	}
	g.seen[i][referenced] = struct{}{}
	g.deps[i] = append(g.deps[i], referenced)
	g.edges++
}

// Nodes returns all tables in insertion order
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct dependency edges
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Has reports whether the table is a node
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// DependsOn returns the tables name references, in insertion order
func (g *Graph) DependsOn(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	out := make([]string, len(g.deps[i]))
	copy(out, g.deps[i])
	return out
}

// Dependents returns the tables that reference name
func (g *Graph) Dependents(name string) []string {
	var out []string
	for i, n := range g.nodes {
		if _, ok := g.seen[i][name]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Subset returns a graph restricted to the given tables. Node order follows
// the receiver; edges leaving the subset are dropped.
func (g *Graph) Subset(tables []string) *Graph {
	keep := make(map[string]bool, len(tables))
	for _, t := range tables {
		keep[t] = true
	}

	sub := newGraph()
	for _, n := range g.nodes {
		if keep[n] {
			sub.addNode(n)
		}
	}
	for i, n := range g.nodes {
		if !keep[n] {
			continue
		}
		for _, d := range g.deps[i] {
			if keep[d] {
				sub.addEdge(n, d)
			}
		}
	}
	return sub
}

// Edges returns the dependency edges in node order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for i, n := range g.nodes {
		for _, d := range g.deps[i] {
			out = append(out, Edge{Table: n, ReferencedTable: d})
		}
	}
	return out
}
