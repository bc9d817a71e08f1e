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

package graph

import "sort"

// Order is a table processing sequence. Tables holds every node exactly
// once: dependency-respecting placements first, then cyclic tables sorted by
// name.
type Order struct {
	Tables []string   `json:"order"`
	Cyclic []string   `json:"cyclic_tables"`
	Cycles [][]string `json:"cycles,omitempty"`
}

// IsCyclic reports whether table was flagged as part of a cycle
func (o Order) IsCyclic(table string) bool {
	for _, c := range o.Cyclic {
		if c == table {
			return true
		}
	}
	return false
}

// HasCycles reports whether any cycle was detected
func (o Order) HasCycles() bool {
	return len(o.Cyclic) > 0
}

type frame struct {
	node string
	next int
}

// TopologicalOrder computes a load order using an iterative depth-first
// traversal. When a dependency is already on the stack, every node on the
// stack is flagged cyclic and traversal continues. A node that depends on a
// cyclic node is flagged as well. Cyclic nodes are appended alphabetically.
func TopologicalOrder(g *Graph) Order {
	visited := make(map[string]bool, g.Len())
	onStack := make(map[string]bool)
	cyclic := make(map[string]bool)

	var normal []string
	var cycles [][]string
	stack := make([]frame, 0, 16)

	for _, root := range g.nodes {
		if visited[root] {
			continue
		}
		visited[root] = true
		onStack[root] = true
		stack = append(stack[:0], frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.deps[g.index[top.node]]

			if top.next < len(deps) {
				dep := deps[top.next]
				top.next++

				switch {
				case onStack[dep]:
					for _, f := range stack {
						cyclic[f.node] = true
					}
					cycles = append(cycles, cyclePath(stack, dep))
				case !visited[dep]:
					visited[dep] = true
					onStack[dep] = true
					stack = append(stack, frame{node: dep})
				}
				continue
			}

			node := top.node
			stack = stack[:len(stack)-1]
			onStack[node] = false

			if !cyclic[node] {
				for _, d := range deps {
					if cyclic[d] {
						cyclic[node] = true
						break
					}
				}
			}
			if !cyclic[node] {
				normal = append(normal, node)
			}
		}
	}

	flagged := make([]string, 0, len(cyclic))
	for n := range cyclic {
		flagged = append(flagged, n)
	}
	sort.Strings(flagged)

	tables := make([]string, 0, g.Len())
	tables = append(tables, normal...)
	tables = append(tables, flagged...)

	return Order{
		Tables: tables,
		Cyclic: flagged,
		Cycles: cycles,
	}
}

// cyclePath returns the stack segment from dep to the top, closed with dep
func cyclePath(stack []frame, dep string) []string {
	start := 0
	for i, f := range stack {
		if f.node == dep {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.node)
	}
	return append(path, dep)
}

// ApplyManualOrder places the manually listed tables first, in the given
// order, followed by the remaining computed tables. Manual names that are not
// in computed are returned as missing.
func ApplyManualOrder(computed, manual []string) (order []string, missing []string) {
	available := make(map[string]bool, len(computed))
	for _, t := range computed {
		available[t] = true
	}

	placed := make(map[string]bool, len(computed))
	for _, t := range manual {
		if !available[t] {
			missing = append(missing, t)
			continue
		}
		if placed[t] {
			continue
		}
		placed[t] = true
		order = append(order, t)
	}
	for _, t := range computed {
		if !placed[t] {
			order = append(order, t)
		}
	}
	return order, missing
}
