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

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func indexOf(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, t := range order {
		idx[t] = i
	}
	return idx
}

func assertPermutation(t *testing.T, g *Graph, order Order) {
	t.Helper()

	if len(order.Tables) != g.Len() {
		t.Fatalf("order has %d tables, graph has %d: %v", len(order.Tables), g.Len(), order.Tables)
	}
	seen := make(map[string]bool)
	for _, n := range order.Tables {
		if seen[n] {
			t.Fatalf("table %q appears more than once in %v", n, order.Tables)
		}
		if !g.Has(n) {
			t.Fatalf("table %q is not a graph node", n)
		}
		seen[n] = true
	}
}

func TestBuildExcludesSelfReferences(t *testing.T) {
	t.Parallel()

	g := Build([]string{"employee", "projects", "time"}, []Edge{
		{Table: "employee", ReferencedTable: "employee"},
		{Table: "projects", ReferencedTable: "projects"},
		{Table: "time", ReferencedTable: "projects"},
		{Table: "time", ReferencedTable: "employee"},
		{Table: "time", ReferencedTable: "projects"},
	})

	if got := g.DependsOn("employee"); len(got) != 0 {
		t.Errorf("employee depends on %v, want nothing", got)
	}
	if got, want := g.DependsOn("time"), []string{"projects", "employee"}; !reflect.DeepEqual(got, want) {
		t.Errorf("time depends on %v, want %v", got, want)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount() = %d, want 2", g.EdgeCount())
	}
	if got := g.Dependents("employee"); !reflect.DeepEqual(got, []string{"time"}) {
		t.Errorf("Dependents(employee) = %v", got)
	}
}

func TestBuildKeepsIsolatedTables(t *testing.T) {
	t.Parallel()

	g := Build([]string{"audit_log", "login"}, nil)
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}

	g = FromEdges([]Edge{{Table: "time", ReferencedTable: "employee"}})
	if got := g.Nodes(); !reflect.DeepEqual(got, []string{"time", "employee"}) {
		t.Errorf("Nodes() = %v", got)
	}
}

func TestTopologicalOrderScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		tables     []string
		edges      []Edge
		want       []string
		wantCyclic []string
	}{
		{
			name:   "self referencing employee",
			tables: []string{"employee"},
			edges:  []Edge{{"employee", "employee"}},
			want:   []string{"employee"},
		},
		{
			name:   "projects and time",
			tables: []string{"time", "projects", "employee"},
			edges: []Edge{
				{"projects", "projects"},
				{"time", "projects"},
				{"time", "employee"},
				{"employee", "employee"},
			},
			want: []string{"projects", "employee", "time"},
		},
		{
			name:       "two table cycle",
			tables:     []string{"b", "a"},
			edges:      []Edge{{"a", "b"}, {"b", "a"}},
			want:       []string{"a", "b"},
			wantCyclic: []string{"a", "b"},
		},
		{
			name:   "cycle with unrelated tables",
			tables: []string{"zeta", "child", "parent", "lookup"},
			edges: []Edge{
				{"child", "parent"},
				{"parent", "child"},
				{"zeta", "lookup"},
			},
			want:       []string{"lookup", "zeta", "child", "parent"},
			wantCyclic: []string{"child", "parent"},
		},
		{
			name:   "dependent of a cycle is deferred",
			tables: []string{"a", "b", "c"},
			edges: []Edge{
				{"a", "b"},
				{"b", "a"},
				{"c", "a"},
			},
			want:       []string{"a", "b", "c"},
			wantCyclic: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := Build(tt.tables, tt.edges)
			got := TopologicalOrder(g)
			assertPermutation(t, g, got)

			if !reflect.DeepEqual(got.Tables, tt.want) {
				t.Errorf("Tables = %v, want %v", got.Tables, tt.want)
			}
			if len(got.Cyclic) != len(tt.wantCyclic) || (len(tt.wantCyclic) > 0 && !reflect.DeepEqual(got.Cyclic, tt.wantCyclic)) {
				t.Errorf("Cyclic = %v, want %v", got.Cyclic, tt.wantCyclic)
			}
		})
	}
}

func TestTopologicalOrderCycleIsDeterministic(t *testing.T) {
	t.Parallel()

	edges := []Edge{{"a", "b"}, {"b", "a"}, {"c", "b"}, {"d", "d"}}
	first := TopologicalOrder(Build([]string{"a", "b", "c", "d"}, edges))

	for i := 0; i < 20; i++ {
		got := TopologicalOrder(Build([]string{"a", "b", "c", "d"}, edges))
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %+v differs from %+v", i, got, first)
		}
	}

	if !first.IsCyclic("a") || !first.IsCyclic("b") {
		t.Errorf("a and b should be cyclic: %v", first.Cyclic)
	}
	if first.IsCyclic("d") {
		t.Error("self reference alone must not be cyclic")
	}
	if len(first.Cycles) == 0 {
		t.Error("expected a recorded cycle path")
	}
}

// Randomised DAGs: every dependency must be placed before its dependent.
func TestTopologicalOrderAcyclicProperty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 2 + rng.Intn(25)
		tables := make([]string, n)
		for i := range tables {
			tables[i] = fmt.Sprintf("t%02d", i)
		}
		rng.Shuffle(n, func(i, j int) { tables[i], tables[j] = tables[j], tables[i] })

		// Edges only point from a higher rank to a lower rank, so no cycles.
		var edges []Edge
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if rng.Intn(4) == 0 {
					edges = append(edges, Edge{Table: tables[i], ReferencedTable: tables[j]})
				}
			}
		}

		g := Build(tables, edges)
		order := TopologicalOrder(g)
		assertPermutation(t, g, order)

		if order.HasCycles() {
			t.Fatalf("iteration %d: unexpected cycles %v", iter, order.Cyclic)
		}
		pos := indexOf(order.Tables)
		for _, e := range edges {
			if pos[e.ReferencedTable] >= pos[e.Table] {
				t.Fatalf("iteration %d: %s placed before its dependency %s", iter, e.Table, e.ReferencedTable)
			}
		}
	}
}

func TestSubset(t *testing.T) {
	t.Parallel()

	g := Build([]string{"employee", "projects", "time"}, []Edge{
		{"time", "projects"},
		{"time", "employee"},
	})
	sub := g.Subset([]string{"time", "employee"})

	if got := sub.Nodes(); !reflect.DeepEqual(got, []string{"employee", "time"}) {
		t.Errorf("Nodes() = %v", got)
	}
	if got := sub.DependsOn("time"); !reflect.DeepEqual(got, []string{"employee"}) {
		t.Errorf("DependsOn(time) = %v", got)
	}
}

func TestApplyManualOrder(t *testing.T) {
	t.Parallel()

	order, missing := ApplyManualOrder(
		[]string{"employee", "projects", "time"},
		[]string{"time", "ghost", "time", "employee"},
	)

	if want := []string{"time", "employee", "projects"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if want := []string{"ghost"}; !reflect.DeepEqual(missing, want) {
		t.Errorf("missing = %v, want %v", missing, want)
	}
}
