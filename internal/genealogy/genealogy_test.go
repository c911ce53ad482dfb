package genealogy

import (
	"testing"

	"github.com/dukerupert/heirloom/internal/model"
)

func edge(id, p1, p2 int64, t model.RelationshipType) model.Relationship {
	return model.Relationship{ID: id, Person1ID: p1, Person2ID: p2, Type: t, Active: true}
}

func TestReciprocal(t *testing.T) {
	tests := []struct {
		in, want model.RelationshipType
	}{
		{model.RelParent, model.RelChild},
		{model.RelChild, model.RelParent},
		{model.RelSpouse, model.RelSpouse},
		{model.RelSibling, model.RelSibling},
		{model.RelAdoptedParent, model.RelAdoptedChild},
		{model.RelAdoptedChild, model.RelAdoptedParent},
		{model.RelStepParent, model.RelStepChild},
		{model.RelStepChild, model.RelStepParent},
	}
	for _, tt := range tests {
		got, ok := Reciprocal(tt.in)
		if !ok || got != tt.want {
			t.Errorf("Reciprocal(%s) = %s, %v; want %s", tt.in, got, ok, tt.want)
		}
	}
	if _, ok := Reciprocal("cousin"); ok {
		t.Error("expected no reciprocal for unknown type")
	}
}

func TestEveryTypeHasReciprocal(t *testing.T) {
	for _, typ := range Types {
		r, ok := Reciprocal(typ)
		if !ok {
			t.Fatalf("%s has no reciprocal", typ)
		}
		back, _ := Reciprocal(r)
		if back != typ {
			t.Errorf("reciprocal of reciprocal of %s = %s", typ, back)
		}
	}
}

func TestValidType(t *testing.T) {
	if !ValidType(model.RelStepChild) {
		t.Error("step_child should be valid")
	}
	if ValidType("friend") {
		t.Error("friend should not be valid")
	}
}

func TestComputeGenerationsNoSpouse(t *testing.T) {
	levels := ComputeGenerations([]model.Relationship{
		edge(1, 1, 2, model.RelParent),
		edge(2, 2, 1, model.RelChild),
	})
	if len(levels) != 0 {
		t.Errorf("levels = %v, want none without a root couple", levels)
	}
}

func TestComputeGenerationsRootCouple(t *testing.T) {
	// alice(1) spouse bob(2); alice parent of carol(3)
	levels := ComputeGenerations([]model.Relationship{
		edge(1, 1, 2, model.RelSpouse),
		edge(2, 2, 1, model.RelSpouse),
		edge(3, 1, 3, model.RelParent),
		edge(4, 3, 1, model.RelChild),
	})
	want := map[int64]int{1: 0, 2: 0, 3: 1}
	for id, lvl := range want {
		if got, ok := levels[id]; !ok || got != lvl {
			t.Errorf("level[%d] = %d (%v), want %d", id, got, ok, lvl)
		}
	}
}

func TestComputeGenerationsDeepChainIndependentOfEdgeOrder(t *testing.T) {
	// Edges are listed grandchild-first; a single unordered pass would
	// see the grandchild before its parent had a level.
	edges := []model.Relationship{
		edge(10, 4, 5, model.RelParent), // d -> e
		edge(9, 3, 4, model.RelParent),  // c -> d
		edge(8, 1, 3, model.RelParent),  // a -> c
		edge(1, 1, 2, model.RelSpouse),  // a = b
	}
	levels := ComputeGenerations(edges)
	want := map[int64]int{1: 0, 2: 0, 3: 1, 4: 2, 5: 3}
	for id, lvl := range want {
		if levels[id] != lvl {
			t.Errorf("level[%d] = %d, want %d", id, levels[id], lvl)
		}
	}
}

func TestComputeGenerationsUpwardAndSideways(t *testing.T) {
	edges := []model.Relationship{
		edge(1, 1, 2, model.RelSpouse),
		edge(2, 6, 1, model.RelParent),        // grandparent above alice
		edge(3, 1, 7, model.RelSibling),       // alice's sibling
		edge(4, 2, 8, model.RelAdoptedParent), // bob adopts 8
		edge(5, 9, 2, model.RelStepChild),     // 9 is bob's step child
	}
	levels := ComputeGenerations(edges)
	want := map[int64]int{6: -1, 7: 0, 8: 1, 9: 1}
	for id, lvl := range want {
		if got, ok := levels[id]; !ok || got != lvl {
			t.Errorf("level[%d] = %d (%v), want %d", id, got, ok, lvl)
		}
	}
}

func TestComputeGenerationsFirstSpouseIsRoot(t *testing.T) {
	edges := []model.Relationship{
		edge(7, 3, 4, model.RelSpouse),
		edge(2, 1, 2, model.RelSpouse),
		edge(5, 2, 3, model.RelParent),
	}
	levels := ComputeGenerations(edges)
	if levels[1] != 0 || levels[2] != 0 {
		t.Errorf("root couple levels = %d, %d; want 0, 0", levels[1], levels[2])
	}
	if levels[3] != 1 || levels[4] != 1 {
		t.Errorf("later couple levels = %d, %d; want 1, 1", levels[3], levels[4])
	}
}

func TestComputeGenerationsSkipsInactiveAndUnreachable(t *testing.T) {
	inactive := edge(3, 1, 3, model.RelParent)
	inactive.Active = false
	levels := ComputeGenerations([]model.Relationship{
		edge(1, 1, 2, model.RelSpouse),
		inactive,
		edge(4, 10, 11, model.RelParent),
	})
	if _, ok := levels[3]; ok {
		t.Error("inactive edge should not propagate")
	}
	if _, ok := levels[11]; ok {
		t.Error("disconnected component should not be assigned")
	}
}

func TestComputeGenerationsShortestPathWins(t *testing.T) {
	// 3 is reachable as child of 1 (level 1) and as grandchild via 4 (level 2).
	edges := []model.Relationship{
		edge(1, 1, 2, model.RelSpouse),
		edge(2, 1, 4, model.RelParent),
		edge(3, 4, 3, model.RelParent),
		edge(4, 1, 3, model.RelParent),
	}
	levels := ComputeGenerations(edges)
	if levels[3] != 1 {
		t.Errorf("level[3] = %d, want 1", levels[3])
	}
}
